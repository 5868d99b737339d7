package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/orchids/video-gallery/internal/domain"
)

// GalleryRepository keeps galleries in process memory. Every read returns a
// copy, so callers never observe later mutations.
type GalleryRepository struct {
	mu        sync.RWMutex
	galleries map[string]*domain.Gallery
	now       func() time.Time
}

func NewGalleryRepository() *GalleryRepository {
	return &GalleryRepository{
		galleries: make(map[string]*domain.Gallery),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (r *GalleryRepository) FindOrCreate(ctx context.Context, id, defaultName string) (*domain.Gallery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.galleries[id]; ok {
		return g.Clone(), nil
	}

	g := domain.NewGallery(id, defaultName)
	if err := g.Validate(); err != nil {
		return nil, err
	}
	r.galleries[id] = g
	return g.Clone(), nil
}

func (r *GalleryRepository) BindCollection(ctx context.Context, id, collectionID string) (*domain.Gallery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.galleries[id]
	if !ok {
		return nil, domain.ErrGalleryNotFound
	}
	if !g.HasCollection() {
		g.CollectionID = collectionID
		g.UpdatedAt = r.now()
	}
	return g.Clone(), nil
}

func (r *GalleryRepository) AppendVideo(ctx context.Context, id string, entry domain.VideoEntry) (*domain.Gallery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.galleries[id]
	if !ok {
		return nil, domain.ErrGalleryNotFound
	}
	g.Videos = append(g.Videos, entry)
	g.UpdatedAt = r.now()
	return g.Clone(), nil
}

func (r *GalleryRepository) Create(ctx context.Context, gallery *domain.Gallery) error {
	if err := gallery.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.galleries[gallery.ID]; ok {
		return domain.ErrGalleryExists
	}
	r.galleries[gallery.ID] = gallery.Clone()
	return nil
}

func (r *GalleryRepository) GetByID(ctx context.Context, id string) (*domain.Gallery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.galleries[id]
	if !ok {
		return nil, domain.ErrGalleryNotFound
	}
	return g.Clone(), nil
}

func (r *GalleryRepository) List(ctx context.Context, limit, offset int) ([]*domain.Gallery, int64, error) {
	r.mu.RLock()
	all := make([]*domain.Gallery, 0, len(r.galleries))
	for _, g := range r.galleries {
		all = append(all, g.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := int64(len(all))
	if offset >= len(all) {
		return []*domain.Gallery{}, total, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (r *GalleryRepository) IsVideoReferenced(ctx context.Context, videoID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, g := range r.galleries {
		if g.HasVideo(videoID) {
			return true, nil
		}
	}
	return false, nil
}

func (r *GalleryRepository) IsCollectionBound(ctx context.Context, collectionID string) (bool, error) {
	if collectionID == "" {
		return false, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, g := range r.galleries {
		if g.CollectionID == collectionID {
			return true, nil
		}
	}
	return false, nil
}

func (r *GalleryRepository) Ping(ctx context.Context) error {
	return nil
}

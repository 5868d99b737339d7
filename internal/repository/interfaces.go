package repository

import (
	"context"

	"github.com/orchids/video-gallery/internal/domain"
)

// GalleryRepository persists galleries as single documents. Concurrent
// requests for the same gallery coordinate only through these methods, so
// BindCollection and AppendVideo must be atomic in every implementation.
type GalleryRepository interface {
	// FindOrCreate returns the gallery with the given id, creating it with
	// defaultName when absent. Losing a creation race re-fetches the winner.
	FindOrCreate(ctx context.Context, id, defaultName string) (*domain.Gallery, error)

	// BindCollection sets the collection id only when none is bound yet and
	// returns the gallery as stored afterwards, so callers can tell whether
	// their id won.
	BindCollection(ctx context.Context, id, collectionID string) (*domain.Gallery, error)

	AppendVideo(ctx context.Context, id string, entry domain.VideoEntry) (*domain.Gallery, error)

	Create(ctx context.Context, gallery *domain.Gallery) error
	GetByID(ctx context.Context, id string) (*domain.Gallery, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Gallery, int64, error)

	IsVideoReferenced(ctx context.Context, videoID string) (bool, error)
	IsCollectionBound(ctx context.Context, collectionID string) (bool, error)

	Ping(ctx context.Context) error
}

package service

import (
	"context"
	"fmt"

	"github.com/orchids/video-gallery/internal/metrics"
	"github.com/orchids/video-gallery/internal/repository"
	"github.com/orchids/video-gallery/pkg/logger"
)

type MediaDeleter interface {
	DeleteVideo(ctx context.Context, videoID string) error
	DeleteCollection(ctx context.Context, collectionID string) error
}

// ReaperService deletes remote videos and collections that no gallery ended
// up referencing. It runs out of band, after a grace period, so an upload
// still in flight never loses its placeholder.
type ReaperService struct {
	galleryRepo repository.GalleryRepository
	media       MediaDeleter
	metrics     *metrics.Recorder
	log         *logger.Logger
}

func NewReaperService(
	galleryRepo repository.GalleryRepository,
	media MediaDeleter,
	recorder *metrics.Recorder,
	log *logger.Logger,
) *ReaperService {
	return &ReaperService{
		galleryRepo: galleryRepo,
		media:       media,
		metrics:     recorder,
		log:         log,
	}
}

// ReapVideo reports whether the video was deleted.
func (s *ReaperService) ReapVideo(ctx context.Context, videoID string) (deleted bool, err error) {
	defer func() { s.metrics.RecordReap("video", deleted, err) }()

	referenced, err := s.galleryRepo.IsVideoReferenced(ctx, videoID)
	if err != nil {
		return false, fmt.Errorf("check video reference: %w", err)
	}
	if referenced {
		s.log.Debug(ctx, "video is referenced by a gallery, keeping it", map[string]interface{}{
			"video_id": videoID,
		})
		return false, nil
	}

	if err := s.media.DeleteVideo(ctx, videoID); err != nil {
		return false, fmt.Errorf("delete video: %w", err)
	}

	s.log.Info(ctx, "orphaned video deleted", map[string]interface{}{
		"video_id": videoID,
	})
	return true, nil
}

// ReapCollection reports whether the collection was deleted.
func (s *ReaperService) ReapCollection(ctx context.Context, collectionID string) (deleted bool, err error) {
	defer func() { s.metrics.RecordReap("collection", deleted, err) }()

	bound, err := s.galleryRepo.IsCollectionBound(ctx, collectionID)
	if err != nil {
		return false, fmt.Errorf("check collection binding: %w", err)
	}
	if bound {
		s.log.Debug(ctx, "collection is bound to a gallery, keeping it", map[string]interface{}{
			"collection_id": collectionID,
		})
		return false, nil
	}

	if err := s.media.DeleteCollection(ctx, collectionID); err != nil {
		return false, fmt.Errorf("delete collection: %w", err)
	}

	s.log.Info(ctx, "orphaned collection deleted", map[string]interface{}{
		"collection_id": collectionID,
	})
	return true, nil
}

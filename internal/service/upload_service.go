package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/orchids/video-gallery/internal/config"
	"github.com/orchids/video-gallery/internal/domain"
	"github.com/orchids/video-gallery/internal/mediahost"
	"github.com/orchids/video-gallery/internal/metrics"
	"github.com/orchids/video-gallery/internal/repository"
	"github.com/orchids/video-gallery/internal/tus"
	"github.com/orchids/video-gallery/pkg/logger"
	"github.com/orchids/video-gallery/pkg/signature"
	"github.com/orchids/video-gallery/pkg/validator"
)

// Orchestration steps, used to prefix errors and label metrics.
const (
	StepValidate          = "validate"
	StepFindGallery       = "find gallery"
	StepCollection        = "ensure collection"
	StepCreatePlaceholder = "create placeholder"
	StepTransfer          = "transfer"
	StepAppendVideo       = "append video"
)

// persistTimeout bounds recording a video whose bytes already reached the
// media host. The request context is not used past that point.
const persistTimeout = 30 * time.Second

type MediaHost interface {
	LibraryID() string
	PlaybackURL(videoID string) string
	CreateCollection(ctx context.Context, name string) (string, error)
	CreateVideoPlaceholder(ctx context.Context, title, collectionID string) (*mediahost.Placeholder, error)
	FetchMetadata(ctx context.Context, videoID string) (*mediahost.VideoMetadata, error)
	UploadBinary(ctx context.Context, uploadURL string, data []byte, contentType string) error
}

type ResumableUploader interface {
	Upload(ctx context.Context, req tus.Request) (*tus.Result, error)
}

// OrphanScheduler queues delayed checks for remote resources that may have
// been left without a gallery referencing them.
type OrphanScheduler interface {
	ScheduleVideoReap(ctx context.Context, videoID string) error
	ScheduleCollectionReap(ctx context.Context, collectionID string) error
}

type UploadInput struct {
	GalleryID  string
	Title      string
	Filename   string
	MimeType   string
	Data       []byte
	OnProgress tus.ProgressFunc
}

type UploadService struct {
	galleryRepo repository.GalleryRepository
	media       MediaHost
	uploader    ResumableUploader
	signer      *signature.Signer
	scheduler   OrphanScheduler
	metrics     *metrics.Recorder
	config      *config.UploadConfig
	tusEndpoint string
	log         *logger.Logger
	now         func() time.Time
}

// NewUploadService wires the orchestrator. uploader may be nil when no tus
// endpoint is configured, and scheduler may be nil to disable orphan
// cleanup.
func NewUploadService(
	galleryRepo repository.GalleryRepository,
	media MediaHost,
	uploader ResumableUploader,
	signer *signature.Signer,
	scheduler OrphanScheduler,
	recorder *metrics.Recorder,
	config *config.UploadConfig,
	tusEndpoint string,
	log *logger.Logger,
) *UploadService {
	return &UploadService{
		galleryRepo: galleryRepo,
		media:       media,
		uploader:    uploader,
		signer:      signer,
		scheduler:   scheduler,
		metrics:     recorder,
		config:      config,
		tusEndpoint: tusEndpoint,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Upload stores the payload on the media host and records it in the gallery.
// The gallery gains exactly one entry on success and none on failure.
func (s *UploadService) Upload(ctx context.Context, in UploadInput) (gallery *domain.Gallery, err error) {
	start := s.now()
	defer func() {
		s.metrics.ObserveUpload(s.now().Sub(start), int64(len(in.Data)), err)
	}()

	title, err := s.validate(&in)
	if err != nil {
		return nil, s.stepError(ctx, StepValidate, err)
	}

	s.log.Info(ctx, "starting gallery upload", map[string]interface{}{
		"gallery_id": in.GalleryID,
		"title":      title,
		"filename":   in.Filename,
		"size":       len(in.Data),
	})

	gallery, err = s.galleryRepo.FindOrCreate(ctx, in.GalleryID, title)
	if err != nil {
		return nil, s.stepError(ctx, StepFindGallery, err)
	}

	collectionID, err := s.ensureCollection(ctx, gallery)
	if err != nil {
		return nil, s.stepError(ctx, StepCollection, err)
	}

	placeholder, err := s.media.CreateVideoPlaceholder(ctx, title, collectionID)
	if err != nil {
		return nil, s.stepError(ctx, StepCreatePlaceholder, err)
	}

	sig := s.signer.Sign(placeholder.VideoID)

	if err := s.transfer(ctx, placeholder, sig, in, title, collectionID); err != nil {
		s.scheduleVideoReap(ctx, placeholder.VideoID)
		return nil, s.stepError(ctx, StepTransfer, err)
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	entry := s.buildEntry(persistCtx, placeholder.VideoID, title, collectionID)

	gallery, err = s.galleryRepo.AppendVideo(persistCtx, in.GalleryID, entry)
	if err != nil {
		s.scheduleVideoReap(persistCtx, placeholder.VideoID)
		return nil, s.stepError(persistCtx, StepAppendVideo, err)
	}

	s.log.Info(persistCtx, "gallery upload completed", map[string]interface{}{
		"gallery_id":    gallery.ID,
		"video_id":      entry.VideoID,
		"collection_id": collectionID,
		"playback_url":  entry.PlaybackURL,
	})

	return gallery, nil
}

func (s *UploadService) validate(in *UploadInput) (string, error) {
	in.GalleryID = validator.SanitizeString(in.GalleryID)
	if err := validator.ValidateGalleryID(in.GalleryID); err != nil {
		return "", err
	}

	var maxSize int64
	if s.config != nil {
		maxSize = s.config.MaxFileSize
	}
	if err := validator.ValidateFileSize(int64(len(in.Data)), maxSize); err != nil {
		return "", err
	}

	title := validator.SanitizeString(in.Title)
	if title == "" {
		title = validator.TitleFromFilename(in.Filename)
	}
	if err := validator.ValidateTitle(title); err != nil {
		return "", err
	}

	if in.MimeType == "" {
		in.MimeType = "application/octet-stream"
	}

	return title, nil
}

// ensureCollection returns the gallery's collection, creating and binding
// one on first use. Only one concurrent request wins the binding; a losing
// request adopts the winner's collection and queues its own for deletion.
func (s *UploadService) ensureCollection(ctx context.Context, gallery *domain.Gallery) (string, error) {
	if gallery.HasCollection() {
		return gallery.CollectionID, nil
	}

	created, err := s.media.CreateCollection(ctx, gallery.Name)
	if err != nil {
		return "", fmt.Errorf("create collection: %w", err)
	}

	bound, err := s.galleryRepo.BindCollection(ctx, gallery.ID, created)
	if err != nil {
		s.scheduleCollectionReap(ctx, created)
		return "", fmt.Errorf("bind collection: %w", err)
	}

	if bound.CollectionID != created {
		s.log.Info(ctx, "collection already bound by a concurrent upload", map[string]interface{}{
			"gallery_id":       gallery.ID,
			"bound_collection": bound.CollectionID,
			"discarded":        created,
		})
		s.scheduleCollectionReap(ctx, created)
	}

	return bound.CollectionID, nil
}

func (s *UploadService) transfer(
	ctx context.Context,
	placeholder *mediahost.Placeholder,
	sig signature.UploadSignature,
	in UploadInput,
	title, collectionID string,
) error {
	if s.uploader != nil && s.tusEndpoint != "" {
		metadata := map[string]string{
			"filetype": in.MimeType,
			"title":    title,
		}
		if in.Filename != "" {
			metadata["filename"] = in.Filename
		}
		if collectionID != "" {
			metadata["collection"] = collectionID
		}

		result, err := s.uploader.Upload(ctx, tus.Request{
			Fingerprint: UploadFingerprint(s.media.LibraryID(), placeholder.VideoID),
			Endpoint:    s.tusEndpoint,
			Data:        in.Data,
			Headers:     sig.Headers(),
			Metadata:    metadata,
			Deadline:    sig.ExpiresAt(),
			OnProgress:  in.OnProgress,
		})
		if err != nil {
			return err
		}
		s.metrics.ObserveTransferAttempts(result.Attempts)
		return nil
	}

	if placeholder.UploadURL != "" {
		if err := s.media.UploadBinary(ctx, placeholder.UploadURL, in.Data, in.MimeType); err != nil {
			return err
		}
		if in.OnProgress != nil {
			in.OnProgress(int64(len(in.Data)), int64(len(in.Data)))
		}
		return nil
	}

	return domain.NewConfigurationError("no resumable upload endpoint configured and the placeholder has no upload URL")
}

// buildEntry assembles the gallery entry. Metadata is best effort: the
// bytes are already stored, so a failed lookup falls back to the derived
// playback URL and the local clock.
func (s *UploadService) buildEntry(ctx context.Context, videoID, title, collectionID string) domain.VideoEntry {
	entry := domain.VideoEntry{
		VideoID:      videoID,
		Title:        title,
		PlaybackURL:  s.media.PlaybackURL(videoID),
		UploadedAt:   s.now(),
		CollectionID: collectionID,
	}

	meta, err := s.media.FetchMetadata(ctx, videoID)
	if err != nil {
		s.metrics.RecordMetadataFallback()
		s.log.Warn(ctx, "failed to fetch video metadata, using derived playback URL", map[string]interface{}{
			"video_id": videoID,
			"error":    err.Error(),
		})
		return entry
	}

	if meta.PlaybackURL != "" {
		entry.PlaybackURL = meta.PlaybackURL
	}
	entry.ThumbnailURL = meta.ThumbnailURL
	if meta.CreatedAt != nil {
		entry.UploadedAt = meta.CreatedAt.UTC()
	}

	return entry
}

func (s *UploadService) CreateCollection(ctx context.Context, name string) (string, error) {
	name = validator.SanitizeString(name)
	if err := validator.ValidateCollectionName(name); err != nil {
		return "", err
	}
	return s.media.CreateCollection(ctx, name)
}

func (s *UploadService) CreateGallery(ctx context.Context, name string) (*domain.Gallery, error) {
	name = validator.SanitizeString(name)
	if err := validator.ValidateCollectionName(name); err != nil {
		return nil, err
	}

	gallery := domain.NewGallery(uuid.New().String(), name)
	if err := s.galleryRepo.Create(ctx, gallery); err != nil {
		return nil, fmt.Errorf("failed to create gallery: %w", err)
	}

	s.log.Info(ctx, "gallery created", map[string]interface{}{
		"gallery_id": gallery.ID,
		"name":       gallery.Name,
	})

	return gallery, nil
}

func (s *UploadService) GetGallery(ctx context.Context, id string) (*domain.Gallery, error) {
	if err := validator.ValidateGalleryID(id); err != nil {
		return nil, err
	}
	return s.galleryRepo.GetByID(ctx, id)
}

func (s *UploadService) ListGalleries(ctx context.Context, page, limit int) ([]*domain.Gallery, int64, error) {
	if err := validator.ValidatePageParams(page, limit); err != nil {
		return nil, 0, err
	}
	return s.galleryRepo.List(ctx, limit, (page-1)*limit)
}

func (s *UploadService) stepError(ctx context.Context, step string, err error) error {
	s.metrics.RecordStepError(step)
	if !errors.Is(err, domain.ErrValidation) && !errors.Is(err, domain.ErrFileTooLarge) {
		s.log.Error(ctx, "gallery upload failed", err, map[string]interface{}{
			"step": step,
		})
	}
	return fmt.Errorf("%s: %w", step, err)
}

// Orphan checks are queued on a context detached from the request so a
// cancelled upload still gets cleaned up.
func (s *UploadService) scheduleVideoReap(ctx context.Context, videoID string) {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.ScheduleVideoReap(context.WithoutCancel(ctx), videoID); err != nil {
		s.log.Warn(ctx, "failed to schedule orphan video check", map[string]interface{}{
			"video_id": videoID,
			"error":    err.Error(),
		})
	}
}

func (s *UploadService) scheduleCollectionReap(ctx context.Context, collectionID string) {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.ScheduleCollectionReap(context.WithoutCancel(ctx), collectionID); err != nil {
		s.log.Warn(ctx, "failed to schedule orphan collection check", map[string]interface{}{
			"collection_id": collectionID,
			"error":         err.Error(),
		})
	}
}

// UploadFingerprint identifies a resumable upload across processes.
func UploadFingerprint(libraryID, videoID string) string {
	return fmt.Sprintf("bunny::%s::%s", libraryID, videoID)
}

package queue

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/orchids/video-gallery/pkg/logger"
)

type Reaper interface {
	ReapVideo(ctx context.Context, videoID string) (bool, error)
	ReapCollection(ctx context.Context, collectionID string) (bool, error)
}

type ReapHandler struct {
	reaper Reaper
	logger *logger.Logger
}

func NewReapHandler(reaper Reaper, logger *logger.Logger) *ReapHandler {
	return &ReapHandler{
		reaper: reaper,
		logger: logger,
	}
}

func (h *ReapHandler) ProcessVideo(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseReapVideoPayload(task)
	if err != nil {
		h.logger.Error(ctx, "failed to parse reap video payload", err, nil)
		return fmt.Errorf("parse payload: %w: %w", err, asynq.SkipRetry)
	}

	deleted, err := h.reaper.ReapVideo(ctx, payload.VideoID)
	if err != nil {
		return fmt.Errorf("reap video %s: %w", payload.VideoID, err)
	}

	h.logger.Info(ctx, "video orphan check completed", map[string]interface{}{
		"video_id": payload.VideoID,
		"deleted":  deleted,
		"task_id":  taskID(task),
	})

	return nil
}

func (h *ReapHandler) ProcessCollection(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseReapCollectionPayload(task)
	if err != nil {
		h.logger.Error(ctx, "failed to parse reap collection payload", err, nil)
		return fmt.Errorf("parse payload: %w: %w", err, asynq.SkipRetry)
	}

	deleted, err := h.reaper.ReapCollection(ctx, payload.CollectionID)
	if err != nil {
		return fmt.Errorf("reap collection %s: %w", payload.CollectionID, err)
	}

	h.logger.Info(ctx, "collection orphan check completed", map[string]interface{}{
		"collection_id": payload.CollectionID,
		"deleted":       deleted,
		"task_id":       taskID(task),
	})

	return nil
}

// Register mounts the reap handlers on an asynq mux.
func (h *ReapHandler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeReapVideo, h.ProcessVideo)
	mux.HandleFunc(TypeReapCollection, h.ProcessCollection)
}

// Tasks built in tests carry no result writer.
func taskID(task *asynq.Task) string {
	if rw := task.ResultWriter(); rw != nil {
		return rw.TaskID()
	}
	return ""
}

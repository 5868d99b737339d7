package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/orchids/video-gallery/pkg/logger"
)

const QueueMaintenance = "low"

type QueueClient struct {
	client *asynq.Client
	grace  time.Duration
	logger *logger.Logger
}

// NewQueueClient schedules orphan checks grace after they are requested, so
// an upload that is still running keeps its placeholder.
func NewQueueClient(redisOpt asynq.RedisConnOpt, grace time.Duration, logger *logger.Logger) *QueueClient {
	return &QueueClient{
		client: asynq.NewClient(redisOpt),
		grace:  grace,
		logger: logger,
	}
}

func (q *QueueClient) Close() error {
	return q.client.Close()
}

func (q *QueueClient) ScheduleVideoReap(ctx context.Context, videoID string) error {
	task, err := NewReapVideoTask(ReapVideoPayload{VideoID: videoID})
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return q.enqueue(ctx, task, "video_id", videoID)
}

func (q *QueueClient) ScheduleCollectionReap(ctx context.Context, collectionID string) error {
	task, err := NewReapCollectionTask(ReapCollectionPayload{CollectionID: collectionID})
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return q.enqueue(ctx, task, "collection_id", collectionID)
}

func (q *QueueClient) enqueue(ctx context.Context, task *asynq.Task, idField, id string) error {
	opts := []asynq.Option{
		asynq.MaxRetry(3),
		asynq.Timeout(2 * time.Minute),
		asynq.Queue(QueueMaintenance),
		asynq.ProcessIn(q.grace),
		asynq.Unique(q.grace + time.Hour),
	}

	info, err := q.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		q.logger.Debug(ctx, "orphan check already scheduled", map[string]interface{}{
			"task_type": task.Type(),
			idField:     id,
		})
		return nil
	}
	if err != nil {
		q.logger.Error(ctx, "failed to enqueue orphan check", err, map[string]interface{}{
			"task_type": task.Type(),
			idField:     id,
		})
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	q.logger.Info(ctx, "orphan check scheduled", map[string]interface{}{
		"task_type":  task.Type(),
		"task_id":    info.ID,
		"queue":      info.Queue,
		"process_at": info.NextProcessAt,
		idField:      id,
	})

	return nil
}

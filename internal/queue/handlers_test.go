package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchids/video-gallery/pkg/logger"
)

type fakeReaper struct {
	videos      []string
	collections []string
	err         error
}

func (f *fakeReaper) ReapVideo(_ context.Context, videoID string) (bool, error) {
	f.videos = append(f.videos, videoID)
	return f.err == nil, f.err
}

func (f *fakeReaper) ReapCollection(_ context.Context, collectionID string) (bool, error) {
	f.collections = append(f.collections, collectionID)
	return f.err == nil, f.err
}

func TestReapHandler_DispatchesPayloads(t *testing.T) {
	reaper := &fakeReaper{}
	h := NewReapHandler(reaper, logger.Nop())

	videoTask, err := NewReapVideoTask(ReapVideoPayload{VideoID: "vid-1"})
	require.NoError(t, err)
	require.NoError(t, h.ProcessVideo(context.Background(), videoTask))

	collTask, err := NewReapCollectionTask(ReapCollectionPayload{CollectionID: "col-1"})
	require.NoError(t, err)
	require.NoError(t, h.ProcessCollection(context.Background(), collTask))

	assert.Equal(t, []string{"vid-1"}, reaper.videos)
	assert.Equal(t, []string{"col-1"}, reaper.collections)
}

func TestReapHandler_MalformedPayloadSkipsRetry(t *testing.T) {
	h := NewReapHandler(&fakeReaper{}, logger.Nop())

	err := h.ProcessVideo(context.Background(), asynq.NewTask(TypeReapVideo, []byte(`{}`)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	err = h.ProcessCollection(context.Background(), asynq.NewTask(TypeReapCollection, []byte(`not json`)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestReapHandler_ReaperFailureIsRetried(t *testing.T) {
	h := NewReapHandler(&fakeReaper{err: errors.New("media host down")}, logger.Nop())

	task, err := NewReapVideoTask(ReapVideoPayload{VideoID: "vid-1"})
	require.NoError(t, err)

	err = h.ProcessVideo(context.Background(), task)
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestTasks_Types(t *testing.T) {
	task, err := NewReapVideoTask(ReapVideoPayload{VideoID: "vid-1"})
	require.NoError(t, err)
	assert.Equal(t, TypeReapVideo, task.Type())

	payload, err := ParseReapVideoPayload(task)
	require.NoError(t, err)
	assert.Equal(t, "vid-1", payload.VideoID)
}

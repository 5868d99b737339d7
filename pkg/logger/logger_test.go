package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Empty(t, RequestID(context.Background()))
}

func TestLogger_ErrorIncludesRequestIDAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := &Logger{logger: zerolog.New(&buf)}

	ctx := WithRequestID(context.Background(), "req-1")
	log.Error(ctx, "upload failed", errors.New("boom"), map[string]interface{}{"step": "transfer"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "upload failed", entry["message"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "transfer", entry["step"])
}

func TestTaskServerLogger(t *testing.T) {
	var buf bytes.Buffer
	log := &Logger{logger: zerolog.New(&buf)}

	log.TaskServer().Warn("queue ", "low", " paused")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "asynq", entry["component"])
	assert.Equal(t, "queue low paused", entry["message"])
}

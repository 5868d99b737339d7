package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	TypeReapVideo      = "media:reap_video"
	TypeReapCollection = "media:reap_collection"
)

type ReapVideoPayload struct {
	VideoID string `json:"video_id"`
}

type ReapCollectionPayload struct {
	CollectionID string `json:"collection_id"`
}

func NewReapVideoTask(payload ReapVideoPayload) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reap video payload: %w", err)
	}
	return asynq.NewTask(TypeReapVideo, payloadBytes), nil
}

func ParseReapVideoPayload(task *asynq.Task) (*ReapVideoPayload, error) {
	var payload ReapVideoPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reap video payload: %w", err)
	}
	if payload.VideoID == "" {
		return nil, fmt.Errorf("reap video payload has no video id")
	}
	return &payload, nil
}

func NewReapCollectionTask(payload ReapCollectionPayload) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reap collection payload: %w", err)
	}
	return asynq.NewTask(TypeReapCollection, payloadBytes), nil
}

func ParseReapCollectionPayload(task *asynq.Task) (*ReapCollectionPayload, error) {
	var payload ReapCollectionPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reap collection payload: %w", err)
	}
	if payload.CollectionID == "" {
		return nil, fmt.Errorf("reap collection payload has no collection id")
	}
	return &payload, nil
}

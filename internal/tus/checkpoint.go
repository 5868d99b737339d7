package tus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Checkpoint records how far an upload got, keyed by fingerprint. It is only
// a hint: the offset is always re-read from the upload URL before resuming.
type Checkpoint struct {
	Fingerprint string    `json:"fingerprint"`
	UploadURL   string    `json:"upload_url"`
	Offset      int64     `json:"offset"`
	Size        int64     `json:"size"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CheckpointStore interface {
	// Load returns nil, nil when nothing is stored for the fingerprint.
	Load(ctx context.Context, fingerprint string) (*Checkpoint, error)
	Save(ctx context.Context, checkpoint *Checkpoint) error
	Delete(ctx context.Context, fingerprint string) error
}

type MemoryCheckpointStore struct {
	mu          sync.Mutex
	checkpoints map[string]Checkpoint
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		checkpoints: make(map[string]Checkpoint),
	}
}

func (s *MemoryCheckpointStore) Load(ctx context.Context, fingerprint string) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.checkpoints[fingerprint]
	if !ok {
		return nil, nil
	}
	return &cp, nil
}

func (s *MemoryCheckpointStore) Save(ctx context.Context, checkpoint *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoints[checkpoint.Fingerprint] = *checkpoint
	return nil
}

func (s *MemoryCheckpointStore) Delete(ctx context.Context, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.checkpoints, fingerprint)
	return nil
}

type RedisCheckpointStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCheckpointStore(client *redis.Client, ttl time.Duration) *RedisCheckpointStore {
	return &RedisCheckpointStore{
		client: client,
		ttl:    ttl,
	}
}

func (s *RedisCheckpointStore) key(fingerprint string) string {
	return fmt.Sprintf("tus:checkpoint:%s", fingerprint)
}

func (s *RedisCheckpointStore) Load(ctx context.Context, fingerprint string) (*Checkpoint, error) {
	data, err := s.client.Get(ctx, s.key(fingerprint)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *RedisCheckpointStore) Save(ctx context.Context, checkpoint *Checkpoint) error {
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	if err := s.client.Set(ctx, s.key(checkpoint.Fingerprint), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store checkpoint: %w", err)
	}
	return nil
}

func (s *RedisCheckpointStore) Delete(ctx context.Context, fingerprint string) error {
	if err := s.client.Del(ctx, s.key(fingerprint)).Err(); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

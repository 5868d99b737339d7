package tus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisCheckpointStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisCheckpointStore(client, ttl), mr
}

func TestRedisCheckpointStore_RoundTrip(t *testing.T) {
	store, mr := newRedisStore(t, time.Hour)
	ctx := context.Background()

	cp, err := store.Load(ctx, "fp-1")
	require.NoError(t, err)
	assert.Nil(t, cp)

	saved := &Checkpoint{
		Fingerprint: "fp-1",
		UploadURL:   "https://video.example/tusupload/abc",
		Offset:      4096,
		Size:        10240,
		UpdatedAt:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, store.Save(ctx, saved))
	assert.Equal(t, time.Hour, mr.TTL("tus:checkpoint:fp-1"))

	loaded, err := store.Load(ctx, "fp-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, saved.UploadURL, loaded.UploadURL)
	assert.Equal(t, saved.Offset, loaded.Offset)
	assert.Equal(t, saved.Size, loaded.Size)
	assert.True(t, saved.UpdatedAt.Equal(loaded.UpdatedAt))

	require.NoError(t, store.Delete(ctx, "fp-1"))
	assert.False(t, mr.Exists("tus:checkpoint:fp-1"))

	cp, err = store.Load(ctx, "fp-1")
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestRedisCheckpointStore_ExpiresWithTTL(t *testing.T) {
	store, mr := newRedisStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &Checkpoint{Fingerprint: "fp-1", Offset: 1, Size: 2}))
	mr.FastForward(2 * time.Minute)

	cp, err := store.Load(ctx, "fp-1")
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestRedisCheckpointStore_CorruptValue(t *testing.T) {
	store, mr := newRedisStore(t, time.Hour)
	require.NoError(t, mr.Set("tus:checkpoint:fp-1", "not json"))

	cp, err := store.Load(context.Background(), "fp-1")
	require.Error(t, err)
	assert.Nil(t, cp)
	assert.Contains(t, err.Error(), "failed to unmarshal checkpoint")
}

func TestRedisCheckpointStore_ServerDown(t *testing.T) {
	store, mr := newRedisStore(t, time.Hour)
	mr.Close()

	_, err := store.Load(context.Background(), "fp-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load checkpoint")
}

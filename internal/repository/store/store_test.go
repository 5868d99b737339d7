package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchids/video-gallery/internal/config"
	"github.com/orchids/video-gallery/internal/domain"
	"github.com/orchids/video-gallery/internal/repository/memory"
	"github.com/orchids/video-gallery/pkg/logger"
)

func TestOpenGalleryRepository_Memory(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Driver: config.StoreDriverMemory}}

	repo, closeFn, err := OpenGalleryRepository(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	defer closeFn()

	assert.IsType(t, &memory.GalleryRepository{}, repo)
	assert.NoError(t, repo.Ping(context.Background()))
}

func TestOpenGalleryRepository_UnknownDriver(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Driver: "sqlite"}}

	_, _, err := OpenGalleryRepository(context.Background(), cfg, logger.Nop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

func TestAsynqRedisOpt(t *testing.T) {
	opt := AsynqRedisOpt(&config.RedisConfig{Host: "redis", Port: "6380", Password: "secret", DB: 2})
	assert.Equal(t, "redis:6380", opt.Addr)
	assert.Equal(t, "secret", opt.Password)
	assert.Equal(t, 2, opt.DB)
}

package mediahost

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchids/video-gallery/internal/config"
	"github.com/orchids/video-gallery/internal/domain"
	"github.com/orchids/video-gallery/pkg/logger"
)

func newTestClient(t *testing.T, handler http.Handler, mutate ...func(*config.MediaHostConfig)) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.MediaHostConfig{
		APIBaseURL:     server.URL,
		LibraryID:      "lib-1",
		APIKey:         "key-1",
		RequestTimeout: 5 * time.Second,
		MaxRetries:     2,
	}
	for _, m := range mutate {
		m(cfg)
	}

	client, err := NewClient(cfg, logger.Nop())
	require.NoError(t, err)
	return client
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := NewClient(&config.MediaHostConfig{APIBaseURL: "http://example.com"}, logger.Nop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

func TestClient_CreateCollection(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/library/lib-1/collections", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("AccessKey"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Holiday", body["name"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"guid":"col-1","name":"Holiday"}`))
	}))

	id, err := client.CreateCollection(context.Background(), "  Holiday ")
	require.NoError(t, err)
	assert.Equal(t, "col-1", id)
}

func TestClient_CreateCollection_BlankName(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))

	_, err := client.CreateCollection(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestClient_CreateCollection_IsNotRetried(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))

	_, err := client.CreateCollection(context.Background(), "Holiday")
	require.Error(t, err)

	var remoteErr *domain.RemoteServiceError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, http.StatusBadGateway, remoteErr.StatusCode)
	assert.Equal(t, "upstream down", remoteErr.Body)
	assert.Equal(t, "create collection", remoteErr.Op)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_CreateVideoPlaceholder(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/library/lib-1/videos", r.URL.Path)
		assert.Equal(t, "col-1", r.URL.Query().Get("collectionId"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Intro", body["Title"])

		w.Write([]byte(`{"guid":"vid-1","uploadUrl":"https://upload.example/vid-1"}`))
	}))

	placeholder, err := client.CreateVideoPlaceholder(context.Background(), "Intro", "col-1")
	require.NoError(t, err)
	assert.Equal(t, "vid-1", placeholder.VideoID)
	assert.Equal(t, "col-1", placeholder.CollectionID)
	assert.Equal(t, "https://upload.example/vid-1", placeholder.UploadURL)
}

func TestClient_CreateVideoPlaceholder_MissingGUID(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))

	_, err := client.CreateVideoPlaceholder(context.Background(), "Intro", "col-1")
	var remoteErr *domain.RemoteServiceError
	require.True(t, errors.As(err, &remoteErr))
}

func TestClient_FetchMetadata_DerivedPlaybackURL(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/library/lib-1/videos/vid-1", r.URL.Path)
		w.Write([]byte(`{"guid":"vid-1","title":"Intro","dateUploaded":"2024-05-01T10:00:00.123","thumbnailFileName":"thumbnail.jpg"}`))
	}), func(cfg *config.MediaHostConfig) {
		cfg.CDNHostname = "vz-abc.b-cdn.net"
	})

	meta, err := client.FetchMetadata(context.Background(), "vid-1")
	require.NoError(t, err)

	assert.Equal(t, "https://iframe.mediadelivery.net/play/lib-1/vid-1", meta.PlaybackURL)
	assert.Equal(t, "https://vz-abc.b-cdn.net/vid-1/thumbnail.jpg", meta.ThumbnailURL)
	require.NotNil(t, meta.CreatedAt)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 123000000, time.UTC), *meta.CreatedAt)
}

func TestClient_FetchMetadata_DirectPlaybackURL(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"guid":"vid-1","host":"vz-abc.b-cdn.net","hostSign":"token=abc","thumbnailUrl":"https://thumbs/vid-1.jpg","createdAt":"2024-05-01T10:00:00Z"}`))
	}))

	meta, err := client.FetchMetadata(context.Background(), "vid-1")
	require.NoError(t, err)

	assert.Equal(t, "https://vz-abc.b-cdn.net/vid-1/playlist.m3u8?token=abc", meta.PlaybackURL)
	assert.Equal(t, "https://thumbs/vid-1.jpg", meta.ThumbnailURL)
	require.NotNil(t, meta.CreatedAt)
}

func TestClient_FetchMetadata_RetriesReads(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"guid":"vid-1","playbackUrl":"https://play/vid-1"}`))
	}))

	meta, err := client.FetchMetadata(context.Background(), "vid-1")
	require.NoError(t, err)
	assert.Equal(t, "https://play/vid-1", meta.PlaybackURL)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_UploadBinary(t *testing.T) {
	var received []byte
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "video/mp4", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("AccessKey"))
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))

	err := client.UploadBinary(context.Background(), client.baseURL+"/presigned/vid-1", []byte("payload"), "video/mp4")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), received)
}

func TestClient_DeleteVideo_NotFoundIsSuccess(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
	}))

	assert.NoError(t, client.DeleteVideo(context.Background(), "vid-1"))
}

func TestClient_PlaybackURL(t *testing.T) {
	client := newTestClient(t, http.NotFoundHandler(), func(cfg *config.MediaHostConfig) {
		cfg.PlaybackBaseURL = "https://player.example/embed/"
	})
	assert.Equal(t, "https://player.example/embed/lib-1/vid-9", client.PlaybackURL("vid-9"))
}

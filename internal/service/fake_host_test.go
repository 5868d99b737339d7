package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orchids/video-gallery/internal/config"
	"github.com/orchids/video-gallery/internal/mediahost"
	"github.com/orchids/video-gallery/internal/repository"
	"github.com/orchids/video-gallery/internal/repository/memory"
	"github.com/orchids/video-gallery/internal/tus"
	"github.com/orchids/video-gallery/pkg/logger"
	"github.com/orchids/video-gallery/pkg/signature"
)

const (
	testLibraryID = "lib-1"
	testAPIKey    = "key-1"
)

type hostedUpload struct {
	videoID string
	length  int64
	data    []byte
}

// fakeBunny serves the media host REST API and its tus endpoint.
type fakeBunny struct {
	t *testing.T

	mu              sync.Mutex
	collections     []string
	videos          []string
	uploads         map[string]*hostedUpload
	deletedVideos   []string
	deletedColls    []string
	binaryUploads   map[string][]byte
	failMetadata    bool
	failPlaceholder bool
	patchDelay      time.Duration
	placeholderURL  bool
	collectionDelay time.Duration
	badSignatures   int
	nextUpload      int
	server          *httptest.Server
}

func newFakeBunny(t *testing.T) *fakeBunny {
	t.Helper()

	f := &fakeBunny{
		t:             t,
		uploads:       make(map[string]*hostedUpload),
		binaryUploads: make(map[string][]byte),
	}
	f.server = httptest.NewServer(f)
	t.Cleanup(f.server.Close)
	return f
}

// configure mutates the fake under its lock, so handler goroutines see the
// change without a data race.
func (f *fakeBunny) configure(fn func(f *fakeBunny)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeBunny) rejectedSignatures() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.badSignatures
}

func (f *fakeBunny) tusEndpoint() string {
	return f.server.URL + "/tusupload"
}

func (f *fakeBunny) counts() (collections, videos int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.collections), len(f.videos)
}

func (f *fakeBunny) uploadedBytes(videoID string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, up := range f.uploads {
		if up.videoID == videoID {
			return up.data
		}
	}
	return f.binaryUploads[videoID]
}

func (f *fakeBunny) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	libPrefix := "/library/" + testLibraryID + "/"

	switch {
	case strings.HasPrefix(path, "/tusupload"):
		f.serveTus(w, r)
	case strings.HasPrefix(path, "/binary/"):
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.binaryUploads[strings.TrimPrefix(path, "/binary/")] = body
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	case strings.HasPrefix(path, libPrefix):
		if r.Header.Get("AccessKey") != testAPIKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.serveAPI(w, r, strings.TrimPrefix(path, libPrefix))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeBunny) serveAPI(w http.ResponseWriter, r *http.Request, rest string) {
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodPost && rest == "collections":
		f.mu.Lock()
		delay := f.collectionDelay
		f.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}

		f.mu.Lock()
		id := fmt.Sprintf("col-%d", len(f.collections)+1)
		f.collections = append(f.collections, id)
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"guid": id})

	case r.Method == http.MethodPost && rest == "videos":
		f.mu.Lock()
		if f.failPlaceholder {
			f.mu.Unlock()
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"message":"placeholder failed"}`))
			return
		}
		id := fmt.Sprintf("vid-%d", len(f.videos)+1)
		f.videos = append(f.videos, id)
		withURL := f.placeholderURL
		f.mu.Unlock()

		resp := map[string]string{"guid": id, "collectionId": r.URL.Query().Get("collectionId")}
		if withURL {
			resp["uploadUrl"] = f.server.URL + "/binary/" + id
		}
		json.NewEncoder(w).Encode(resp)

	case r.Method == http.MethodGet && strings.HasPrefix(rest, "videos/"):
		id := strings.TrimPrefix(rest, "videos/")
		f.mu.Lock()
		fail := f.failMetadata
		f.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"guid":         id,
			"title":        "remote title",
			"playbackUrl":  "https://play.example/" + id,
			"thumbnailUrl": "https://thumbs.example/" + id + ".jpg",
			"createdAt":    "2024-05-01T10:00:00Z",
		})

	case r.Method == http.MethodDelete && strings.HasPrefix(rest, "videos/"):
		f.mu.Lock()
		f.deletedVideos = append(f.deletedVideos, strings.TrimPrefix(rest, "videos/"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodDelete && strings.HasPrefix(rest, "collections/"):
		f.mu.Lock()
		f.deletedColls = append(f.deletedColls, strings.TrimPrefix(rest, "collections/"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeBunny) serveTus(w http.ResponseWriter, r *http.Request) {
	videoID := r.Header.Get("VideoId")
	expected := sha256.Sum256([]byte(testLibraryID + testAPIKey + r.Header.Get("AuthorizationExpire") + videoID))
	if r.Header.Get("AuthorizationSignature") != hex.EncodeToString(expected[:]) || r.Header.Get("LibraryId") != testLibraryID {
		f.mu.Lock()
		f.badSignatures++
		f.mu.Unlock()
		w.WriteHeader(http.StatusForbidden)
		return
	}

	id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/tusupload"), "/")

	switch r.Method {
	case http.MethodPost:
		length, _ := strconv.ParseInt(r.Header.Get("Upload-Length"), 10, 64)
		f.mu.Lock()
		f.nextUpload++
		uploadID := fmt.Sprintf("up-%d", f.nextUpload)
		f.uploads[uploadID] = &hostedUpload{videoID: videoID, length: length}
		f.mu.Unlock()
		w.Header().Set("Location", "/tusupload/"+uploadID)
		w.WriteHeader(http.StatusCreated)

	case http.MethodHead:
		f.mu.Lock()
		up, ok := f.uploads[id]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Upload-Offset", strconv.Itoa(len(up.data)))
		w.WriteHeader(http.StatusOK)

	case http.MethodPatch:
		f.mu.Lock()
		delay := f.patchDelay
		f.mu.Unlock()
		if delay > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(delay):
			}
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		up, ok := f.uploads[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		up.data = append(up.data, body...)
		w.Header().Set("Upload-Offset", strconv.Itoa(len(up.data)))
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type recordingScheduler struct {
	mu          sync.Mutex
	videos      []string
	collections []string
}

func (s *recordingScheduler) ScheduleVideoReap(_ context.Context, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos = append(s.videos, videoID)
	return nil
}

func (s *recordingScheduler) ScheduleCollectionReap(_ context.Context, collectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = append(s.collections, collectionID)
	return nil
}

type testHarness struct {
	host      *fakeBunny
	client    *mediahost.Client
	repo      *memory.GalleryRepository
	scheduler *recordingScheduler
	service   *UploadService
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	ttl         time.Duration
	maxFileSize int64
	useTus      bool
	wrapRepo    func(repository.GalleryRepository) repository.GalleryRepository
}

func withTTL(ttl time.Duration) harnessOption {
	return func(c *harnessConfig) { c.ttl = ttl }
}

func withoutTus() harnessOption {
	return func(c *harnessConfig) { c.useTus = false }
}

func withMaxFileSize(n int64) harnessOption {
	return func(c *harnessConfig) { c.maxFileSize = n }
}

// withRepo wraps the gallery repository the service writes through.
// h.repo still reads the underlying memory store.
func withRepo(wrap func(repository.GalleryRepository) repository.GalleryRepository) harnessOption {
	return func(c *harnessConfig) { c.wrapRepo = wrap }
}

func newHarness(t *testing.T, opts ...harnessOption) *testHarness {
	t.Helper()

	hc := harnessConfig{ttl: time.Hour, maxFileSize: 1 << 20, useTus: true}
	for _, opt := range opts {
		opt(&hc)
	}

	host := newFakeBunny(t)
	log := logger.Nop()

	client, err := mediahost.NewClient(&config.MediaHostConfig{
		APIBaseURL:     host.server.URL,
		LibraryID:      testLibraryID,
		APIKey:         testAPIKey,
		RequestTimeout: 10 * time.Second,
		MaxRetries:     0,
	}, log)
	require.NoError(t, err)

	signer, err := signature.NewSigner(testLibraryID, testAPIKey, hc.ttl)
	require.NoError(t, err)

	uploader := tus.NewUploader(tus.Config{
		ChunkSize:   4,
		RetryDelays: []time.Duration{0, 10 * time.Millisecond},
	}, tus.NewMemoryCheckpointStore(), log)

	endpoint := ""
	if hc.useTus {
		endpoint = host.tusEndpoint()
	}

	repo := memory.NewGalleryRepository()
	scheduler := &recordingScheduler{}

	var galleryRepo repository.GalleryRepository = repo
	if hc.wrapRepo != nil {
		galleryRepo = hc.wrapRepo(repo)
	}

	svc := NewUploadService(
		galleryRepo,
		client,
		uploader,
		signer,
		scheduler,
		nil,
		&config.UploadConfig{MaxFileSize: hc.maxFileSize},
		endpoint,
		log,
	)

	return &testHarness{
		host:      host,
		client:    client,
		repo:      repo,
		scheduler: scheduler,
		service:   svc,
	}
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchids/video-gallery/internal/domain"
	"github.com/orchids/video-gallery/pkg/logger"
)

type fakeMonitor struct {
	healthy  bool
	queueErr error
	workers  []domain.WorkerInfo
}

func (f *fakeMonitor) CheckHealth(context.Context) *domain.HealthReport {
	return &domain.HealthReport{
		Healthy:   f.healthy,
		Checks:    map[string]bool{"store": true, "redis": f.healthy},
		Timestamp: time.Now(),
	}
}

func (f *fakeMonitor) GetSystemMetrics(context.Context) (*domain.SystemMetrics, error) {
	return &domain.SystemMetrics{Goroutines: 12}, nil
}

func (f *fakeMonitor) GetQueueMetrics(context.Context) (*domain.QueueMetrics, error) {
	if f.queueErr != nil {
		return nil, f.queueErr
	}
	return &domain.QueueMetrics{
		Queues:    []domain.QueueStats{{Queue: "low", Scheduled: 2}},
		Scheduled: 2,
	}, nil
}

func (f *fakeMonitor) ListWorkers(context.Context) ([]domain.WorkerInfo, error) {
	return f.workers, nil
}

func newAdminRouter(monitor Monitor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewAdminHandler(monitor, logger.Nop())
	router.GET("/health", h.Health)
	h.RegisterRoutes(router.Group("/api"))
	return router
}

func TestAdminHandler_Health(t *testing.T) {
	w := httptest.NewRecorder()
	newAdminRouter(&fakeMonitor{healthy: true}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])

	w = httptest.NewRecorder()
	newAdminRouter(&fakeMonitor{healthy: false}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body["status"])
}

func TestAdminHandler_QueueStats(t *testing.T) {
	w := httptest.NewRecorder()
	newAdminRouter(&fakeMonitor{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/queue/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)

	envelope := decodeEnvelope(t, w)
	data := envelope.Data.(map[string]interface{})
	assert.Equal(t, float64(2), data["scheduled"])

	w = httptest.NewRecorder()
	newAdminRouter(&fakeMonitor{queueErr: errors.New("redis down")}).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/queue/stats", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdminHandler_Workers(t *testing.T) {
	monitor := &fakeMonitor{workers: []domain.WorkerInfo{{ServerID: "srv-1", Concurrency: 4}}}

	w := httptest.NewRecorder()
	newAdminRouter(monitor).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/workers", nil))
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeEnvelope(t, w).Data.(map[string]interface{})
	assert.Equal(t, float64(1), data["count"])
}

func TestAdminHandler_SystemMetrics(t *testing.T) {
	w := httptest.NewRecorder()
	newAdminRouter(&fakeMonitor{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/system", nil))
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeEnvelope(t, w).Data.(map[string]interface{})
	assert.Equal(t, float64(12), data["goroutines"])
}

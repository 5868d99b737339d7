package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orchids/video-gallery/internal/domain"
	"github.com/orchids/video-gallery/pkg/logger"
	"github.com/orchids/video-gallery/pkg/response"
)

type Monitor interface {
	CheckHealth(ctx context.Context) *domain.HealthReport
	GetSystemMetrics(ctx context.Context) (*domain.SystemMetrics, error)
	GetQueueMetrics(ctx context.Context) (*domain.QueueMetrics, error)
	ListWorkers(ctx context.Context) ([]domain.WorkerInfo, error)
}

type AdminHandler struct {
	monitor Monitor
	log     *logger.Logger
}

func NewAdminHandler(monitor Monitor, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		monitor: monitor,
		log:     log,
	}
}

func (h *AdminHandler) RegisterRoutes(api *gin.RouterGroup) {
	admin := api.Group("/admin")
	{
		admin.GET("/queue/stats", h.GetQueueStats)
		admin.GET("/workers", h.ListActiveWorkers)
		admin.GET("/system", h.GetSystemMetrics)
	}
}

func (h *AdminHandler) Health(c *gin.Context) {
	report := h.monitor.CheckHealth(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !report.Healthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"checks":    report.Checks,
		"timestamp": report.Timestamp,
	})
}

func (h *AdminHandler) GetQueueStats(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := h.monitor.GetQueueMetrics(ctx)
	if err != nil {
		h.log.Error(ctx, "failed to get queue stats", err, nil)
		response.ServiceUnavailable(c, "Failed to retrieve queue statistics")
		return
	}

	response.Success(c, http.StatusOK, stats)
}

func (h *AdminHandler) ListActiveWorkers(c *gin.Context) {
	ctx := c.Request.Context()

	workers, err := h.monitor.ListWorkers(ctx)
	if err != nil {
		h.log.Error(ctx, "failed to list workers", err, nil)
		response.ServiceUnavailable(c, "Failed to retrieve worker information")
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"workers": workers,
		"count":   len(workers),
	})
}

func (h *AdminHandler) GetSystemMetrics(c *gin.Context) {
	ctx := c.Request.Context()

	metrics, err := h.monitor.GetSystemMetrics(ctx)
	if err != nil {
		h.log.Error(ctx, "failed to collect system metrics", err, nil)
		response.InternalError(c, "Failed to collect system metrics")
		return
	}

	response.Success(c, http.StatusOK, metrics)
}

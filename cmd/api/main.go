package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orchids/video-gallery/internal/config"
	"github.com/orchids/video-gallery/internal/handler"
	"github.com/orchids/video-gallery/internal/mediahost"
	"github.com/orchids/video-gallery/internal/metrics"
	"github.com/orchids/video-gallery/internal/queue"
	"github.com/orchids/video-gallery/internal/repository/store"
	"github.com/orchids/video-gallery/internal/service"
	"github.com/orchids/video-gallery/internal/tus"
	"github.com/orchids/video-gallery/pkg/logger"
	"github.com/orchids/video-gallery/pkg/signature"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Server.Environment, cfg.LogLevel)
	ctx := context.Background()
	log.Info(ctx, "Starting video gallery service", map[string]interface{}{
		"environment": cfg.Server.Environment,
		"port":        cfg.Server.Port,
		"store":       cfg.Store.Driver,
	})

	galleryRepo, closeStore, err := store.OpenGalleryRepository(ctx, cfg, log)
	if err != nil {
		log.Fatal(ctx, "Failed to initialize gallery store", err, nil)
	}
	defer closeStore()

	redisClient, err := store.InitRedis(ctx, &cfg.Redis)
	if err != nil {
		log.Fatal(ctx, "Failed to initialize Redis", err, nil)
	}
	defer redisClient.Close()
	log.Info(ctx, "Redis connection established", nil)

	recorder, err := metrics.New(metrics.DefaultNamespace, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal(ctx, "Failed to register metrics", err, nil)
	}

	mediaClient, err := mediahost.NewClient(&cfg.MediaHost, log)
	if err != nil {
		log.Fatal(ctx, "Failed to initialize media host client", err, nil)
	}

	signer, err := signature.NewSigner(cfg.MediaHost.LibraryID, cfg.MediaHost.APIKey, cfg.Upload.SignatureTTL)
	if err != nil {
		log.Fatal(ctx, "Failed to initialize upload signer", err, nil)
	}

	var uploader service.ResumableUploader
	if cfg.MediaHost.TusEndpoint != "" {
		uploader = tus.NewUploader(tus.Config{
			ChunkSize:    cfg.Upload.ChunkSize,
			RetryDelays:  cfg.Upload.RetryDelays,
			ChunkTimeout: cfg.Upload.ChunkTimeout,
		}, tus.NewRedisCheckpointStore(redisClient, cfg.Upload.CheckpointTTL), log)
	} else {
		log.Warn(ctx, "No tus endpoint configured, uploads use the placeholder upload URL", nil)
	}

	redisOpt := store.AsynqRedisOpt(&cfg.Redis)
	queueClient := queue.NewQueueClient(redisOpt, cfg.Worker.OrphanGracePeriod, log)
	defer queueClient.Close()

	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	uploadService := service.NewUploadService(
		galleryRepo,
		mediaClient,
		uploader,
		signer,
		queueClient,
		recorder,
		&cfg.Upload,
		cfg.MediaHost.TusEndpoint,
		log,
	)
	monitoringService := service.NewMonitoringService(inspector,
		service.HealthCheck{Name: "store", Check: galleryRepo.Ping},
		service.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}},
	)

	galleryHandler := handler.NewGalleryHandler(uploadService, cfg.Upload.MaxFileSize, log)
	adminHandler := handler.NewAdminHandler(monitoringService, log)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware())

	router.GET("/health", adminHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	galleryHandler.RegisterRoutes(api)
	adminHandler.RegisterRoutes(api)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info(ctx, "HTTP server starting", map[string]interface{}{
			"address": cfg.Server.Address(),
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(ctx, "Failed to start server", err, nil)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info(ctx, "Shutting down server...", nil)

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "Server forced to shutdown", err, nil)
		return
	}

	log.Info(ctx, "Server exited gracefully", nil)
}

func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), requestID))

		c.Next()
	}
}

func LoggerMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info(c.Request.Context(), "HTTP request", map[string]interface{}{
			"method":     c.Request.Method,
			"path":       path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		})
	}
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		c.Header("Access-Control-Expose-Headers", "X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

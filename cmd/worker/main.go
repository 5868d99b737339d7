package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/orchids/video-gallery/internal/config"
	"github.com/orchids/video-gallery/internal/mediahost"
	"github.com/orchids/video-gallery/internal/metrics"
	"github.com/orchids/video-gallery/internal/queue"
	"github.com/orchids/video-gallery/internal/repository/store"
	"github.com/orchids/video-gallery/internal/service"
	"github.com/orchids/video-gallery/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Server.Environment, cfg.LogLevel)
	ctx := context.Background()
	log.Info(ctx, "Starting orphan reaper worker", map[string]interface{}{
		"environment":  cfg.Server.Environment,
		"concurrency":  cfg.Worker.Concurrency,
		"grace_period": cfg.Worker.OrphanGracePeriod.String(),
	})

	galleryRepo, closeStore, err := store.OpenGalleryRepository(ctx, cfg, log)
	if err != nil {
		log.Fatal(ctx, "Failed to initialize gallery store", err, nil)
	}
	defer closeStore()

	mediaClient, err := mediahost.NewClient(&cfg.MediaHost, log)
	if err != nil {
		log.Fatal(ctx, "Failed to initialize media host client", err, nil)
	}

	recorder, err := metrics.New(metrics.DefaultNamespace, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal(ctx, "Failed to register metrics", err, nil)
	}

	reaperService := service.NewReaperService(galleryRepo, mediaClient, recorder, log)
	reapHandler := queue.NewReapHandler(reaperService, log)

	srv := asynq.NewServer(
		store.AsynqRedisOpt(&cfg.Redis),
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				"default":              3,
				queue.QueueMaintenance: 1,
			},
			Logger: log.TaskServer(),
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error(ctx, "task execution failed", err, map[string]interface{}{
					"task_type": task.Type(),
					"payload":   string(task.Payload()),
				})
			}),
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delays := []time.Duration{
					1 * time.Minute,
					5 * time.Minute,
					30 * time.Minute,
				}
				if n < len(delays) {
					return delays[n]
				}
				return delays[len(delays)-1]
			},
		},
	)

	mux := asynq.NewServeMux()
	reapHandler.Register(mux)

	log.Info(ctx, "Worker server starting", map[string]interface{}{
		"concurrency": cfg.Worker.Concurrency,
	})
	if err := srv.Start(mux); err != nil {
		log.Fatal(ctx, "Worker server failed", err, nil)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info(ctx, "Shutting down worker server...", nil)

	srv.Shutdown()

	log.Info(ctx, "Worker server exited gracefully", nil)
}

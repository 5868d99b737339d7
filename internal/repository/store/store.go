// Package store opens the gallery repository selected by configuration and
// the Redis client both binaries share.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/orchids/video-gallery/internal/config"
	"github.com/orchids/video-gallery/internal/domain"
	"github.com/orchids/video-gallery/internal/repository"
	"github.com/orchids/video-gallery/internal/repository/memory"
	"github.com/orchids/video-gallery/internal/repository/mongodb"
	"github.com/orchids/video-gallery/internal/repository/postgres"
	"github.com/orchids/video-gallery/pkg/logger"
)

// OpenGalleryRepository connects to the configured store and prepares its
// schema. The returned close function releases the connection.
func OpenGalleryRepository(ctx context.Context, cfg *config.Config, log *logger.Logger) (repository.GalleryRepository, func(), error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		pool, err := initDatabase(ctx, &cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		repo := postgres.NewPostgresGalleryRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Info(ctx, "Database connection established", map[string]interface{}{
			"driver": cfg.Store.Driver,
		})
		return repo, pool.Close, nil

	case config.StoreDriverMongo:
		client, err := initMongo(ctx, &cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		}
		repo := mongodb.NewMongoGalleryRepository(client.Database(cfg.Mongo.Database))
		if err := repo.EnsureIndexes(ctx); err != nil {
			closeFn()
			return nil, nil, err
		}
		log.Info(ctx, "Database connection established", map[string]interface{}{
			"driver":   cfg.Store.Driver,
			"database": cfg.Mongo.Database,
		})
		return repo, closeFn, nil

	case config.StoreDriverMemory:
		log.Warn(ctx, "Using in-memory gallery store; data is lost on restart", nil)
		return memory.NewGalleryRepository(), func() {}, nil
	}

	return nil, nil, domain.NewConfigurationError("unknown store driver %q", cfg.Store.Driver)
}

func initDatabase(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return pool, nil
}

func initMongo(ctx context.Context, cfg *config.MongoConfig) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("unable to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("unable to ping MongoDB: %w", err)
	}

	return client, nil
}

func InitRedis(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("unable to connect to Redis: %w", err)
	}

	return client, nil
}

// AsynqRedisOpt points asynq at the same Redis instance.
func AsynqRedisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

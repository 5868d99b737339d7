package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/orchids/video-gallery/internal/domain"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
	StoreDriverMemory   = "memory"
)

type ServerConfig struct {
	Host            string
	Port            string
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type StoreConfig struct {
	Driver string
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

type RedisConfig struct {
	Host         string
	Port         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

type MediaHostConfig struct {
	APIBaseURL      string
	LibraryID       string
	APIKey          string
	TusEndpoint     string
	PlaybackBaseURL string
	CDNHostname     string
	RequestTimeout  time.Duration
	MaxRetries      int
}

type UploadConfig struct {
	MaxFileSize   int64
	ChunkSize     int64
	RetryDelays   []time.Duration
	SignatureTTL  time.Duration
	ChunkTimeout  time.Duration
	CheckpointTTL time.Duration
}

type WorkerConfig struct {
	Concurrency       int
	OrphanGracePeriod time.Duration
}

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Database  DatabaseConfig
	Mongo     MongoConfig
	Redis     RedisConfig
	MediaHost MediaHostConfig
	Upload    UploadConfig
	Worker    WorkerConfig
	LogLevel  string
}

func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnv("SERVER_PORT", "8080"),
			Environment:     getEnv("ENVIRONMENT", "development"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 5*time.Minute),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 65*time.Minute),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "video_gallery"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Mongo: MongoConfig{
			URI:            getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGO_DATABASE", "video_gallery"),
			ConnectTimeout: getDurationEnv("MONGO_CONNECT_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getIntEnv("REDIS_DB", 0),
			PoolSize:     getIntEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns: getIntEnv("REDIS_MIN_IDLE_CONNS", 2),
		},
		MediaHost: MediaHostConfig{
			APIBaseURL:      getEnv("BUNNY_API_BASE_URL", "https://video.bunnycdn.com"),
			LibraryID:       getEnv("BUNNY_LIBRARY_ID", ""),
			APIKey:          getEnv("BUNNY_API_KEY", ""),
			TusEndpoint:     getEnv("BUNNY_TUS_ENDPOINT", "https://video.bunnycdn.com/tusupload"),
			PlaybackBaseURL: getEnv("BUNNY_PLAYBACK_BASE_URL", "https://iframe.mediadelivery.net/play"),
			CDNHostname:     getEnv("BUNNY_CDN_HOSTNAME", ""),
			RequestTimeout:  getDurationEnv("BUNNY_REQUEST_TIMEOUT", 30*time.Second),
			MaxRetries:      getIntEnv("BUNNY_MAX_RETRIES", 3),
		},
		Upload: UploadConfig{
			MaxFileSize:   getInt64Env("UPLOAD_MAX_FILE_SIZE", 2*1024*1024*1024),
			ChunkSize:     getInt64Env("UPLOAD_CHUNK_SIZE", 5*1024*1024),
			RetryDelays:   getDurationListEnv("UPLOAD_RETRY_DELAYS", []time.Duration{0, 3 * time.Second, 5 * time.Second, 10 * time.Second}),
			SignatureTTL:  getDurationEnv("UPLOAD_SIGNATURE_TTL", time.Hour),
			ChunkTimeout:  getDurationEnv("UPLOAD_CHUNK_TIMEOUT", 2*time.Minute),
			CheckpointTTL: getDurationEnv("UPLOAD_CHECKPOINT_TTL", 24*time.Hour),
		},
		Worker: WorkerConfig{
			Concurrency:       getIntEnv("WORKER_CONCURRENCY", 4),
			OrphanGracePeriod: getDurationEnv("WORKER_ORPHAN_GRACE_PERIOD", 24*time.Hour),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return domain.NewConfigurationError("server port is required")
	}
	if c.MediaHost.LibraryID == "" || c.MediaHost.APIKey == "" {
		return domain.NewConfigurationError("BUNNY_LIBRARY_ID and BUNNY_API_KEY are required")
	}
	if c.MediaHost.APIBaseURL == "" {
		return domain.NewConfigurationError("media host API base URL is required")
	}
	switch c.Store.Driver {
	case StoreDriverPostgres:
		if c.Database.Host == "" || c.Database.DBName == "" {
			return domain.NewConfigurationError("database configuration is incomplete")
		}
	case StoreDriverMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			return domain.NewConfigurationError("mongo configuration is incomplete")
		}
	case StoreDriverMemory:
	default:
		return domain.NewConfigurationError("unknown store driver %q", c.Store.Driver)
	}
	if c.Upload.MaxFileSize <= 0 {
		return domain.NewConfigurationError("max file size must be positive")
	}
	if c.Upload.ChunkSize <= 0 {
		return domain.NewConfigurationError("upload chunk size must be positive")
	}
	if c.Upload.SignatureTTL < time.Second {
		return domain.NewConfigurationError("upload signature TTL must be at least 1s")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getDurationListEnv parses "0s,3s,5s,10s". Any malformed element discards
// the whole value in favour of the default.
func getDurationListEnv(key string, defaultValue []time.Duration) []time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	delays := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		d, err := time.ParseDuration(strings.TrimSpace(part))
		if err != nil || d < 0 {
			return defaultValue
		}
		delays = append(delays, d)
	}
	return delays
}

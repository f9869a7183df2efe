package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/m7moud/notification-queue/internal/worker"
)

// Config holds the application configuration
type Config struct {
	Server        ServerConfig
	Log           LogConfig
	Notifications NotificationConfig
	ReplayConfig  worker.ReplayConfig
	ArchiveConfig worker.ArchiveConfig
}

// ServerConfig holds listener addresses
type ServerConfig struct {
	QueueAddr string
	HTTPAddr  string
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string
}

// NotificationConfig holds notification service settings
type NotificationConfig struct {
	Queue     string
	PollLimit int
}

type environment struct {
	QueueAddr string `env:"QUEUE_ADDR" envDefault:":8080"`
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":8081"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	NotificationQueue string `env:"NOTIFICATION_QUEUE" envDefault:"Notifications"`
	PollLimit         int    `env:"POLL_LIMIT" envDefault:"10"`

	InputFile  string `env:"INPUT_FILE"`
	BufferSize int    `env:"BUFFER_SIZE" envDefault:"65536"`

	ArchiveQueue  string        `env:"ARCHIVE_QUEUE"`
	OutputFile    string        `env:"OUTPUT_FILE" envDefault:"archive.jsonl"`
	BatchSize     int           `env:"BATCH_SIZE" envDefault:"100"`
	FlushInterval time.Duration `env:"FLUSH_INTERVAL" envDefault:"5s"`
	PollInterval  time.Duration `env:"POLL_INTERVAL" envDefault:"500ms"`
	AppendMode    bool          `env:"APPEND_MODE" envDefault:"false"`
}

// LoadFromEnv loads configuration from environment variables, reading a
// .env file first when one exists.
func LoadFromEnv() (*Config, error) {
	// a missing .env file is fine
	_ = godotenv.Load()

	return load(env.Options{})
}

// LoadFromMap loads configuration from vars instead of the process environment.
func LoadFromMap(vars map[string]string) (*Config, error) {
	return load(env.Options{Environment: vars})
}

func load(opts env.Options) (*Config, error) {
	var e environment
	if err := env.ParseWithOptions(&e, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if e.PollLimit <= 0 {
		return nil, fmt.Errorf("invalid POLL_LIMIT: must be positive, got %d", e.PollLimit)
	}
	if e.BatchSize <= 0 {
		return nil, fmt.Errorf("invalid BATCH_SIZE: must be positive, got %d", e.BatchSize)
	}
	if e.BufferSize <= 0 {
		return nil, fmt.Errorf("invalid BUFFER_SIZE: must be positive, got %d", e.BufferSize)
	}
	if e.FlushInterval <= 0 {
		return nil, fmt.Errorf("invalid FLUSH_INTERVAL: must be positive, got %s", e.FlushInterval)
	}
	if e.PollInterval <= 0 {
		return nil, fmt.Errorf("invalid POLL_INTERVAL: must be positive, got %s", e.PollInterval)
	}

	return &Config{
		Server: ServerConfig{
			QueueAddr: e.QueueAddr,
			HTTPAddr:  e.HTTPAddr,
		},
		Log: LogConfig{
			Level:  e.LogLevel,
			Format: e.LogFormat,
		},
		Notifications: NotificationConfig{
			Queue:     e.NotificationQueue,
			PollLimit: e.PollLimit,
		},
		ReplayConfig: worker.ReplayConfig{
			InputFile:  e.InputFile,
			BatchSize:  e.BatchSize,
			BufferSize: e.BufferSize,
		},
		ArchiveConfig: worker.ArchiveConfig{
			Queue:         e.ArchiveQueue,
			OutputFile:    e.OutputFile,
			BatchSize:     e.BatchSize,
			FlushInterval: e.FlushInterval,
			PollInterval:  e.PollInterval,
			AppendMode:    e.AppendMode,
		},
	}, nil
}

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/env"
)

const envPrefix = "AUTOMATON_"

type Config struct {
	Primary  Primary        `koanf:"primary"`
	Database DatabaseConfig `koanf:"database"`
	Payment  PaymentConfig  `koanf:"payment"`
	Plugin   PluginConfig   `koanf:"plugin"`
	Retry    RetryConfig    `koanf:"retry"`
	Worker   WorkerConfig   `koanf:"worker"`
	Janitor  JanitorConfig  `koanf:"janitor"`
	Queue    QueueConfig    `koanf:"queue"`
	Locker   LockerConfig   `koanf:"locker"`
	Logger   LoggerConfig   `koanf:"logger"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type DatabaseConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"required"`
	User            string        `koanf:"user" validate:"required"`
	Password        string        `koanf:"password" validate:"required"`
	Name            string        `koanf:"name" validate:"required"`
	SSLMode         string        `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"required"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"required"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time" validate:"required"`
}

// PaymentConfig tunes the plugin dispatcher.
type PaymentConfig struct {
	PluginTimeout    time.Duration `koanf:"plugin_timeout" validate:"required"`
	PoolSize         int           `koanf:"pool_size" validate:"required,min=1"`
	LockMaxTries     int           `koanf:"lock_max_tries" validate:"required,min=1"`
	LockWaitInterval time.Duration `koanf:"lock_wait_interval" validate:"required"`
}

// PluginConfig describes the HTTP payment plugin registered at startup.
type PluginConfig struct {
	Name           string        `koanf:"name" validate:"required"`
	BaseURL        string        `koanf:"base_url" validate:"required,url"`
	ConnTimeout    time.Duration `koanf:"conn_timeout" validate:"required"`
	ControlPlugins []string      `koanf:"control_plugins"`
}

type RetryConfig struct {
	BaseDelay  time.Duration `koanf:"base_delay" validate:"required"`
	MaxDelay   time.Duration `koanf:"max_delay" validate:"required"`
	MaxRetries int           `koanf:"max_retries" validate:"min=0"`
}

// WorkerConfig drives the retry queue poller.
type WorkerConfig struct {
	Interval  time.Duration `koanf:"interval" validate:"required"`
	BatchSize int           `koanf:"batch_size" validate:"required"`
}

type JanitorConfig struct {
	Interval       time.Duration `koanf:"interval" validate:"required"`
	PendingTimeout time.Duration `koanf:"pending_timeout" validate:"required"`
	AttemptCutoff  time.Duration `koanf:"attempt_cutoff" validate:"required"`
	BatchSize      int           `koanf:"batch_size" validate:"required,max=100"`
}

// QueueConfig selects where retry notifications live. A claimed
// notification becomes claimable again after ClaimVisibility.
type QueueConfig struct {
	Backend         string        `koanf:"backend" validate:"required,oneof=postgres sqlite"`
	SQLitePath      string        `koanf:"sqlite_path"`
	ClaimVisibility time.Duration `koanf:"claim_visibility"`
}

type LockerConfig struct {
	Backend string `koanf:"backend" validate:"required,oneof=memory postgres"`
}

type LoggerConfig struct {
	Level string `koanf:"level"`
}

// envKey maps AUTOMATON_JANITOR__BATCH_SIZE to janitor.batch_size.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
}

// LoadConfig reads the AUTOMATON_ environment (and .env, if present) and
// validates the result.
func LoadConfig() (*Config, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	k := koanf.New(".")
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		logger.Error("failed to load environment variables", "error", err)
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		logger.Error("could not unmarshal config", "error", err)
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		logger.Error("config validation failed", "error", err)
		return nil, err
	}
	if cfg.Queue.Backend == "sqlite" && cfg.Queue.SQLitePath == "" {
		logger.Error("sqlite queue backend requires a path")
		return nil, errors.New("queue.sqlite_path is required for the sqlite backend")
	}

	return cfg, nil
}

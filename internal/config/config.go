// Package config defines service configuration and how it is loaded.
package config

import (
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`
	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":5000".
	Addr string `koanf:"addr" validate:"required"`
	// ShutdownTimeout bounds graceful shutdown of the server and workers.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	// DBPath is the SQLite database file. Empty keeps history in memory.
	DBPath string `koanf:"db_path"`
	// RulesPath overrides the built-in weight and range tables.
	RulesPath string `koanf:"rules_path"`

	// ContentThreshold is the number of stored readings from which a user
	// is ranked by content similarity.
	ContentThreshold int `koanf:"content_threshold" validate:"gte=1"`
	// FallbackEnabled retries via cold-start when content ranking has no
	// usable history.
	FallbackEnabled bool `koanf:"fallback_enabled"`

	// EventQueueSize bounds the in-memory ingestion queue.
	EventQueueSize int `koanf:"queue_size" validate:"gte=1"`
	// WorkerCount sets the number of ingestion workers.
	WorkerCount int `koanf:"worker_count" validate:"gte=1"`
	// DedupeSize sets the size of the deduplication cache; 0 is unbounded.
	DedupeSize int `koanf:"dedupe_size" validate:"gte=0"`
	// PersistRetries is the total number of attempts per history event.
	PersistRetries int `koanf:"persist_retries" validate:"gte=1"`

	// CORSAllowedOrigins lists origins allowed to call the API.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
	// RateLimitRequests per RateLimitWindow per client IP; 0 disables limiting.
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`

	// Circuit breaker around history loads.
	BreakerMaxRequests      uint32        `koanf:"breaker_max_requests" validate:"gte=1"`
	BreakerInterval         time.Duration `koanf:"breaker_interval" validate:"gte=0"`
	BreakerTimeout          time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold" validate:"gte=1"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "text",
		Addr:                    ":5000",
		ShutdownTimeout:         30 * time.Second,
		DBPath:                  "",
		RulesPath:               "",
		ContentThreshold:        50,
		FallbackEnabled:         true,
		EventQueueSize:          10_000,
		WorkerCount:             runtime.NumCPU(),
		DedupeSize:              100_000,
		PersistRetries:          3,
		CORSAllowedOrigins:      []string{"*"},
		RateLimitRequests:       100,
		RateLimitWindow:         time.Minute,
		BreakerMaxRequests:      1,
		BreakerInterval:         time.Minute,
		BreakerTimeout:          10 * time.Second,
		BreakerFailureThreshold: 5,
	}
}

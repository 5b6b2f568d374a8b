package service

import (
	"time"

	"github.com/okian/restwell/internal/adapters/repository"
	"github.com/okian/restwell/internal/domain/rules"
	"github.com/okian/restwell/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of ingestion workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the ingestion queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache. Zero keeps every key.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size >= 0 {
			s.dedupeSize = size
		}
	}
}

// WithPersistRetries sets the attempts per history event and the initial
// delay between them.
func WithPersistRetries(tries int, initial time.Duration) Option {
	return func(s *Service) {
		if tries > 0 {
			s.persistTries = uint(tries)
		}
		if initial > 0 {
			s.persistBackoff = initial
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore sets the history store. The service owns it and closes it on Stop,
// or when Start fails.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithRules sets the weight and range tables. Defaults to the built-in tables.
func WithRules(table *rules.Table) Option {
	return func(s *Service) {
		if table != nil {
			s.table = table
		}
	}
}

// WithContentThreshold sets the history size from which content-based
// ranking is used.
func WithContentThreshold(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.threshold = n
		}
	}
}

// WithFallback enables or disables the cold-start fallback.
func WithFallback(enabled bool) Option {
	return func(s *Service) {
		s.fallback = enabled
	}
}

// BreakerSettings configures the circuit breaker around history loads.
type BreakerSettings struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval after which closed-state counts are cleared; 0 never clears.
	Interval time.Duration
	// Timeout spent open before probing again.
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures that trips it.
	FailureThreshold uint32
}

// WithBreaker configures the history circuit breaker.
func WithBreaker(b BreakerSettings) Option {
	return func(s *Service) {
		if b.MaxRequests > 0 {
			s.breakerSettings.MaxRequests = b.MaxRequests
		}
		if b.Interval >= 0 {
			s.breakerSettings.Interval = b.Interval
		}
		if b.Timeout > 0 {
			s.breakerSettings.Timeout = b.Timeout
		}
		if b.FailureThreshold > 0 {
			s.breakerSettings.FailureThreshold = b.FailureThreshold
		}
	}
}

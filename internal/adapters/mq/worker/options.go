// Package worker persists queued history events in the background.
package worker

import (
	"time"

	"github.com/okian/restwell/internal/domain/model"
	"github.com/okian/restwell/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithRetry sets how many times a failed persist is attempted in total and
// the initial delay between attempts.
func WithRetry(maxTries uint, initial time.Duration) Option {
	return func(w *InMemoryWorker) {
		if maxTries > 0 {
			w.maxTries = maxTries
		}
		if initial > 0 {
			w.initialBackoff = initial
		}
	}
}

// WithFailureHook registers a callback for events that could not be
// persisted after all retries.
func WithFailureHook(fn func(model.HistoryEvent, error)) Option {
	return func(w *InMemoryWorker) {
		w.onFailure = fn
	}
}

package dispatch

import (
	"github.com/okian/restwell/internal/domain/scoring"
	"github.com/okian/restwell/pkg/logger"
)

// DefaultThreshold is the number of historical readings from which a user is
// ranked by content similarity instead of cold-start rules.
const DefaultThreshold = 50

// Option applies a configuration option to the Dispatcher.
type Option func(*Dispatcher)

// WithThreshold sets the content-based routing threshold. Non-positive values
// are ignored.
func WithThreshold(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.threshold = n
		}
	}
}

// WithFallback enables or disables the cold-start retry after a
// content-based failure caused by unusable history.
func WithFallback(enabled bool) Option {
	return func(d *Dispatcher) {
		d.fallback = enabled
	}
}

// WithLogger sets the logger used to report fallbacks.
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// WithRanker replaces the default weighted ranker.
func WithRanker(r scoring.Ranker) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.ranker = r
		}
	}
}

// Package aggregate blends a user's current reading with their most recent
// historical reading into the reference parameter set used for similarity
// ranking.
package aggregate

import (
	"fmt"

	"github.com/okian/restwell/internal/domain/model"
	"github.com/okian/restwell/internal/domain/rules"
)

// ErrMalformedHistoryRecord is returned when a historical reading has no timestamp.
var ErrMalformedHistoryRecord = model.ErrMalformedHistoryRecord

// Reference computes the reference value for every weighted parameter.
//
// With history, each value is the mean of the current value and the value of
// the most recently recorded historical reading. A value missing on either
// side counts as 0 before averaging. Without history the current values are
// returned as-is, again defaulting absent parameters to 0. The result always
// has exactly the keys of weights.
func Reference(current model.ParameterReading, history []model.ParameterReading, weights rules.Weights) (model.Values, error) {
	latest, ok, err := Latest(history)
	if err != nil {
		return nil, err
	}

	out := make(model.Values, len(weights))
	for _, p := range weights.Parameters() {
		cur := current.ValueOrZero(p)
		if !ok {
			out[p] = cur
			continue
		}
		out[p] = (cur + latest.ValueOrZero(p)) / 2
	}
	return out, nil
}

// Latest returns the reading with the greatest RecordedAt. On equal
// timestamps the earlier entry in history wins. ok is false for an empty
// history.
func Latest(history []model.ParameterReading) (latest model.ParameterReading, ok bool, err error) {
	for i, r := range history {
		if r.RecordedAt.IsZero() {
			return model.ParameterReading{}, false, fmt.Errorf("reading %d (%q): missing recorded_at: %w", i, r.ID, ErrMalformedHistoryRecord)
		}
		if !ok || r.RecordedAt.After(latest.RecordedAt) {
			latest, ok = r, true
		}
	}
	return latest, ok, nil
}

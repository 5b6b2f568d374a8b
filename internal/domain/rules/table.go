// Package rules holds the static advisory configuration: the impact weight
// table used by similarity scoring and the range rule table used by the
// cold-start engine. Tables are loaded from versioned YAML and validated
// once at startup; after that they are read-only and safe to share.
package rules

import (
	"github.com/okian/restwell/internal/domain/model"
)

// Interval is a half-open range [Low, High) carrying an advisory message.
type Interval struct {
	Low     float64 `koanf:"low"`
	High    float64 `koanf:"high" validate:"gtfield=Low"`
	Message string  `koanf:"message" validate:"required"`
}

// Contains reports whether v lies in [Low, High).
func (i Interval) Contains(v float64) bool {
	return i.Low <= v && v < i.High
}

// ParameterRanges is the ordered interval list for one parameter.
type ParameterRanges struct {
	Parameter model.Parameter `koanf:"parameter" validate:"required"`
	Intervals []Interval      `koanf:"intervals" validate:"required,min=1,dive"`
}

// Min returns the lowest covered value.
func (r ParameterRanges) Min() float64 { return r.Intervals[0].Low }

// Max returns the exclusive upper bound of the covered domain.
func (r ParameterRanges) Max() float64 { return r.Intervals[len(r.Intervals)-1].High }

// Weights maps each parameter to its non-negative impact weight.
type Weights map[model.Parameter]float64

// Parameters returns the weighted parameters in model declaration order, so
// sums over the map are computed in a stable order.
func (w Weights) Parameters() []model.Parameter {
	out := make([]model.Parameter, 0, len(w))
	for _, p := range model.Parameters() {
		if _, ok := w[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Table is the complete advisory configuration.
type Table struct {
	Version  int               `koanf:"version" validate:"gte=1"`
	Weights  Weights           `koanf:"weights" validate:"required,min=1,dive,gte=0"`
	Unranged []model.Parameter `koanf:"unranged"`
	Ranges   []ParameterRanges `koanf:"ranges" validate:"required,min=1,dive"`
}

// RangesFor returns the interval list for p.
func (t *Table) RangesFor(p model.Parameter) (ParameterRanges, bool) {
	for _, r := range t.Ranges {
		if r.Parameter == p {
			return r, true
		}
	}
	return ParameterRanges{}, false
}

// RangedParameters returns ranged parameters in table declaration order.
func (t *Table) RangedParameters() []model.Parameter {
	out := make([]model.Parameter, len(t.Ranges))
	for i, r := range t.Ranges {
		out[i] = r.Parameter
	}
	return out
}

func (t *Table) isUnranged(p model.Parameter) bool {
	for _, u := range t.Unranged {
		if u == p {
			return true
		}
	}
	return false
}

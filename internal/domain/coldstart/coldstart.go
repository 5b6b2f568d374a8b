// Package coldstart turns a single reading into per-parameter advisories by
// matching each supplied value against the range rule table. It is used when
// a user does not yet have enough history for personalised ranking.
package coldstart

import (
	"fmt"
	"strconv"

	"github.com/okian/restwell/internal/domain/model"
	"github.com/okian/restwell/internal/domain/rules"
)

// Advisory is the outcome of ranging one parameter.
type Advisory struct {
	Parameter model.Parameter
	Value     float64
	Message   string
	// InRange is false when the value fell outside every configured interval.
	InRange bool
}

// Engine evaluates readings against a validated rule table.
type Engine struct {
	table *rules.Table
}

// New returns an Engine over table. The table must not be mutated afterwards.
func New(table *rules.Table) *Engine {
	return &Engine{table: table}
}

// Evaluate returns one advisory per ranged parameter present in reading, in
// table declaration order. Parameters missing from the reading are skipped.
func (e *Engine) Evaluate(reading model.ParameterReading) []Advisory {
	out := make([]Advisory, 0, len(e.table.Ranges))
	for _, r := range e.table.Ranges {
		v, ok := reading.Value(r.Parameter)
		if !ok {
			continue
		}
		out = append(out, Match(r, v))
	}
	return out
}

// Match selects the first interval of r containing v. Intervals are
// half-open, so a value equal to one interval's High belongs to the next.
func Match(r rules.ParameterRanges, v float64) Advisory {
	for _, iv := range r.Intervals {
		if iv.Contains(v) {
			return Advisory{Parameter: r.Parameter, Value: v, Message: iv.Message, InRange: true}
		}
	}
	return Advisory{Parameter: r.Parameter, Value: v, Message: OutOfRangeMessage(r.Parameter, v)}
}

// OutOfRangeMessage is the generic advisory for a value no interval covers.
func OutOfRangeMessage(p model.Parameter, v float64) string {
	return fmt.Sprintf("Value %s for %s is out of expected range. Consider consulting a professional.",
		FormatValue(v), p)
}

// FormatValue renders v with the shortest representation that round-trips,
// so 30 prints as "30" and 37.25 as "37.25".
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Messages projects advisories to their text.
func Messages(advisories []Advisory) []string {
	out := make([]string, len(advisories))
	for i, a := range advisories {
		out[i] = a.Message
	}
	return out
}

// OutOfRange returns the advisories whose value matched no interval.
func OutOfRange(advisories []Advisory) []Advisory {
	var out []Advisory
	for _, a := range advisories {
		if !a.InRange {
			out = append(out, a)
		}
	}
	return out
}

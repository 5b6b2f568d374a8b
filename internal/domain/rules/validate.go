package rules

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks field constraints and the cross-table invariants:
// parameters are known and unique, intervals are contiguous, every ranged
// parameter is weighted and every weighted parameter is ranged or listed as
// unranged.
func (t *Table) Validate() error {
	if err := structValidator().Struct(t); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTable, err)
	}

	for p := range t.Weights {
		if !p.IsKnown() {
			return fmt.Errorf("%w: unknown weighted parameter %q", ErrInvalidTable, p)
		}
	}
	for _, p := range t.Unranged {
		if !p.IsKnown() {
			return fmt.Errorf("%w: unknown unranged parameter %q", ErrInvalidTable, p)
		}
	}

	seen := make(map[string]struct{}, len(t.Ranges))
	for _, r := range t.Ranges {
		if !r.Parameter.IsKnown() {
			return fmt.Errorf("%w: unknown ranged parameter %q", ErrInvalidTable, r.Parameter)
		}
		if _, dup := seen[string(r.Parameter)]; dup {
			return fmt.Errorf("%w: parameter %q ranged twice", ErrInvalidTable, r.Parameter)
		}
		seen[string(r.Parameter)] = struct{}{}
		if t.isUnranged(r.Parameter) {
			return fmt.Errorf("%w: parameter %q is both ranged and unranged", ErrInvalidTable, r.Parameter)
		}
		if _, ok := t.Weights[r.Parameter]; !ok {
			return fmt.Errorf("%w: ranged parameter %q has no weight", ErrInvalidTable, r.Parameter)
		}
		for i := 1; i < len(r.Intervals); i++ {
			prev, cur := r.Intervals[i-1], r.Intervals[i]
			if cur.Low < prev.High {
				return fmt.Errorf("%w: %s intervals %d and %d overlap", ErrInvalidTable, r.Parameter, i-1, i)
			}
			if cur.Low != prev.High {
				return fmt.Errorf("%w: %s has a gap between %g and %g", ErrInvalidTable, r.Parameter, prev.High, cur.Low)
			}
		}
	}

	for p := range t.Weights {
		if _, ok := seen[string(p)]; !ok && !t.isUnranged(p) {
			return fmt.Errorf("%w: weighted parameter %q has no ranges", ErrInvalidTable, p)
		}
	}
	return nil
}

// Package scoring ranks a user's past recommendations by weighted similarity
// to a reference parameter set.
//
// Ranking scores every record, then sorts, costing
// O(records × weighted parameters + records log records) per call. Ranker is
// an interface so a cached implementation can be slotted in without changing
// callers.
package scoring

import (
	"fmt"
	"math"
	"slices"

	"github.com/okian/restwell/internal/domain/model"
	"github.com/okian/restwell/internal/domain/rules"
)

// Ranked is a record together with its similarity score.
type Ranked struct {
	Record model.RecommendationRecord
	Score  float64
}

// Ranker selects the historical recommendation closest to a reference.
type Ranker interface {
	// Best returns the highest scoring record. Ties go to the most recent record.
	Best(reference model.Values, records []model.RecommendationRecord) (Ranked, error)
}

// WeightedRanker implements Ranker with the impact-weighted similarity score.
type WeightedRanker struct {
	weights rules.Weights
	params  []model.Parameter
}

// NewWeightedRanker creates a ranker over the given weights.
func NewWeightedRanker(weights rules.Weights) *WeightedRanker {
	return &WeightedRanker{
		weights: weights,
		params:  weights.Parameters(),
	}
}

// Score returns the similarity of record to reference.
func (r *WeightedRanker) Score(reference model.Values, record model.RecommendationRecord) float64 {
	return score(r.weights, r.params, reference, record)
}

// Score computes Σ weight[p] * (1 - |record[p] - reference[p]|) over the
// weighted parameters, treating absent values as 0. Values are expected to
// be normalised to [0, 1]; the result is not clamped and may be negative.
func Score(weights rules.Weights, reference model.Values, record model.RecommendationRecord) float64 {
	return score(weights, weights.Parameters(), reference, record)
}

func score(weights rules.Weights, params []model.Parameter, reference model.Values, record model.RecommendationRecord) float64 {
	var sum float64
	for _, p := range params {
		sum += weights[p] * (1 - math.Abs(record.ValueOrZero(p)-reference.ValueOrZero(p)))
	}
	return sum
}

// Rank scores every record and returns them best first. Records are first
// ordered by RecommendationDate descending, and the score sort is stable, so
// equal scores keep the more recent record ahead.
func (r *WeightedRanker) Rank(reference model.Values, records []model.RecommendationRecord) ([]Ranked, error) {
	if len(records) == 0 {
		return nil, ErrEmptyHistory
	}

	out := make([]Ranked, len(records))
	for i, rec := range records {
		if rec.RecommendationDate.IsZero() {
			return nil, fmt.Errorf("record %d (%q): missing recommendation date: %w", i, rec.ID, ErrMalformedHistoryRecord)
		}
		out[i] = Ranked{Record: rec, Score: r.Score(reference, rec)}
	}

	slices.SortStableFunc(out, func(a, b Ranked) int {
		return b.Record.RecommendationDate.Compare(a.Record.RecommendationDate)
	})
	slices.SortStableFunc(out, func(a, b Ranked) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	return out, nil
}

// Best implements Ranker by taking the head of Rank.
func (r *WeightedRanker) Best(reference model.Values, records []model.RecommendationRecord) (Ranked, error) {
	ranked, err := r.Rank(reference, records)
	if err != nil {
		return Ranked{}, err
	}
	return ranked[0], nil
}

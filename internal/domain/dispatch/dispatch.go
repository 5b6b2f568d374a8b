// Package dispatch routes a recommendation request to the cold-start rule
// engine or the content-based ranker depending on how much history the user
// has accumulated.
//
// The routing count is the number of historical parameter readings, not the
// number of past recommendations. A user can therefore cross the threshold
// with no recommendation records at all; the ranker reports that case as
// scoring.ErrEmptyHistory and the dispatcher falls back to cold-start.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/restwell/internal/domain/aggregate"
	"github.com/okian/restwell/internal/domain/coldstart"
	"github.com/okian/restwell/internal/domain/model"
	"github.com/okian/restwell/internal/domain/rules"
	"github.com/okian/restwell/internal/domain/scoring"
	"github.com/okian/restwell/pkg/logger"
	"github.com/okian/restwell/pkg/metrics"
)

// Strategy names the algorithm that produced a result.
type Strategy string

// Strategies.
const (
	StrategyColdStart    Strategy = "cold_start"
	StrategyContentBased Strategy = "content_based"
)

// Fallback reasons.
const (
	ReasonEmptyHistory     = "empty_history"
	ReasonMalformedHistory = "malformed_history"
)

// Request is one recommendation request: the current reading plus a snapshot
// of the user's stored history.
type Request struct {
	Current model.ParameterReading
	History model.UserHistory
}

// Result is the engine output.
type Result struct {
	Strategy Strategy
	// Advisories is set for cold-start results.
	Advisories []coldstart.Advisory
	// Technique and Score are set for content-based results.
	Technique string
	Score     float64
	Record    model.RecommendationRecord
	// FallbackReason is non-empty when a content-based attempt was abandoned
	// for cold-start.
	FallbackReason string
}

// Payload returns what is serialised as "recommendations": a list of
// advisory strings for cold-start, a single technique otherwise.
func (r Result) Payload() any {
	if r.Strategy == StrategyContentBased {
		return r.Technique
	}
	return coldstart.Messages(r.Advisories)
}

// Dispatcher is safe for concurrent use; it holds only read-only tables.
type Dispatcher struct {
	table     *rules.Table
	coldStart *coldstart.Engine
	ranker    scoring.Ranker
	threshold int
	fallback  bool
	log       logger.Logger
}

// New creates a dispatcher over a validated rule table.
func New(table *rules.Table, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		table:     table,
		coldStart: coldstart.New(table),
		ranker:    scoring.NewWeightedRanker(table.Weights),
		threshold: DefaultThreshold,
		fallback:  true,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Threshold returns the configured routing threshold.
func (d *Dispatcher) Threshold() int { return d.threshold }

// Route reports which strategy a user with historyCount readings gets.
func (d *Dispatcher) Route(historyCount int) Strategy {
	if historyCount >= d.threshold {
		return StrategyContentBased
	}
	return StrategyColdStart
}

// Recommend produces a recommendation for req.
func (d *Dispatcher) Recommend(ctx context.Context, req Request) (Result, error) {
	const op = "dispatch.Recommend"

	if req.Current.UserID == "" {
		metrics.RecordRecommendationError("missing_field")
		return Result{}, fmt.Errorf("%s: user_id: %w", op, ErrMissingField)
	}

	start := time.Now()
	strategy := d.Route(len(req.History.Parameters))

	var (
		res Result
		err error
	)
	if strategy == StrategyContentBased {
		res, err = d.contentBased(req)
		if err != nil {
			reason, recoverable := fallbackReason(err)
			if !recoverable || !d.fallback {
				metrics.RecordRecommendationError(string(StrategyContentBased))
				return Result{}, fmt.Errorf("%s: %w", op, err)
			}
			d.log.Warn(ctx, "content-based ranking failed, falling back to cold-start",
				logger.String("user_id", req.Current.UserID),
				logger.String("reason", reason),
				logger.Int("history_readings", len(req.History.Parameters)),
				logger.Int("history_recommendations", len(req.History.Recommendations)),
				logger.Error(err),
			)
			metrics.RecordFallback(reason)
			res = d.coldStartResult(req)
			res.FallbackReason = reason
		}
	} else {
		res = d.coldStartResult(req)
	}

	metrics.RecordRecommendation(string(res.Strategy), float64(time.Since(start).Microseconds())/1000)
	return res, nil
}

func (d *Dispatcher) coldStartResult(req Request) Result {
	advisories := d.coldStart.Evaluate(req.Current)
	for _, a := range coldstart.OutOfRange(advisories) {
		metrics.RecordOutOfRange(string(a.Parameter))
	}
	return Result{Strategy: StrategyColdStart, Advisories: advisories}
}

func (d *Dispatcher) contentBased(req Request) (Result, error) {
	reference, err := aggregate.Reference(req.Current, req.History.Parameters, d.table.Weights)
	if err != nil {
		return Result{}, err
	}
	best, err := d.ranker.Best(reference, req.History.Recommendations)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Strategy:  StrategyContentBased,
		Technique: best.Record.Technique,
		Score:     best.Score,
		Record:    best.Record,
	}, nil
}

func fallbackReason(err error) (string, bool) {
	switch {
	case errors.Is(err, scoring.ErrEmptyHistory):
		return ReasonEmptyHistory, true
	case errors.Is(err, scoring.ErrMalformedHistoryRecord):
		return ReasonMalformedHistory, true
	default:
		return "", false
	}
}

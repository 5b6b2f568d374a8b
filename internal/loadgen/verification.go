package loadgen

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/okian/restwell/pkg/logger"
)

type recommendationRequest struct {
	UserID string `json:"user_id"`
	Parameters
}

// requestRecommendations asks for one recommendation per user, using the
// plan's current reading.
func requestRecommendations(ctx context.Context, config *Config, plans []UserPlan) ([]Outcome, error) {
	logger.Get().Info(ctx, "requesting recommendations",
		logger.Int("users", len(plans)),
		logger.Int("workers", config.Workers))

	client := newHTTPClient(config.BaseURL, config.Timeout)
	outcomes := make([]Outcome, len(plans))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Workers)
	for i := range plans {
		g.Go(func() error {
			plan := &plans[i]
			out := Outcome{UserID: plan.UserID, Experienced: plan.Experienced}
			out.Response, out.Err = recommend(gctx, client, recommendationRequest{UserID: plan.UserID, Parameters: plan.Current})
			if out.Err != nil && config.Verbose {
				logger.Get().Warn(gctx, "recommendation failed", logger.String("userID", plan.UserID), logger.Error(out.Err))
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled during retrieval: %w", err)
	}
	return outcomes, nil
}

func recommend(ctx context.Context, client *HTTPClient, req recommendationRequest) (RecommendationResponse, error) {
	var out RecommendationResponse
	resp, err := client.Post(ctx, "/recommendation", req)
	if err != nil {
		return out, err
	}
	if err := decode(resp, &out); err != nil {
		return out, err
	}
	if resp.StatusCode != StatusOK {
		return out, fmt.Errorf("recommendation returned status: %d", resp.StatusCode)
	}
	return out, nil
}

// verifyOutcomes checks that experienced users got a content-based answer
// naming a technique and everyone else got cold-start advisories.
func verifyOutcomes(ctx context.Context, outcomes []Outcome, stats *Stats) error {
	logger.Get().Info(ctx, "verifying recommendations", logger.Int("users", len(outcomes)))

	for _, o := range outcomes {
		switch o.Response.Strategy {
		case StrategyColdStart:
			stats.ColdStart++
		case StrategyContentBased:
			stats.ContentBased++
		}
		if err := checkOutcome(o); err != nil {
			stats.Mismatched++
			logger.Get().Warn(ctx, "unexpected recommendation",
				logger.String("userID", o.UserID),
				logger.Error(err))
		}
	}

	if stats.Mismatched > 0 {
		return fmt.Errorf("%w: %d of %d users", ErrVerification, stats.Mismatched, len(outcomes))
	}
	logger.Get().Info(ctx, "all recommendations verified",
		logger.Int("coldStart", stats.ColdStart),
		logger.Int("contentBased", stats.ContentBased))
	return nil
}

func checkOutcome(o Outcome) error {
	if o.Err != nil {
		return o.Err
	}
	want := StrategyColdStart
	if o.Experienced {
		want = StrategyContentBased
	}
	if o.Response.Strategy != want {
		return fmt.Errorf("strategy %q, want %q (fallback %q)", o.Response.Strategy, want, o.Response.FallbackReason)
	}
	if o.Response.RequestID == "" {
		return fmt.Errorf("response carries no request id")
	}
	switch rec := o.Response.Recommendations.(type) {
	case string:
		if want == StrategyContentBased && rec == "" {
			return fmt.Errorf("content-based answer names no technique")
		}
	case []any, nil:
		if want == StrategyContentBased {
			return fmt.Errorf("content-based answer is not a technique")
		}
	default:
		return fmt.Errorf("unexpected recommendations payload %T", rec)
	}
	return nil
}

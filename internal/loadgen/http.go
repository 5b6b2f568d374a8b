package loadgen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/okian/restwell/pkg/logger"
)

// maxSubmitTries bounds retries of a submission the service pushed back on.
const maxSubmitTries = 5

var errBackpressure = errors.New("service applied backpressure")

// HTTPClient wraps http.Client with timeout.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Get performs a GET request against path.
func (c *HTTPClient) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with a JSON body.
func (c *HTTPClient) Post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// decode reads resp into v when v is non-nil and closes the body.
func decode(resp *http.Response, v any) error {
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type submission struct {
	path string
	body any
}

type submitResult int

const (
	resultSuccess submitResult = iota
	resultDuplicate
	resultFailed
)

// submitHistories posts every reading and recommendation record through a
// bounded pool of workers.
func submitHistories(ctx context.Context, config *Config, plans []UserPlan, stats *Stats) error {
	var jobs []submission
	for i := range plans {
		for _, r := range plans[i].Readings {
			jobs = append(jobs, submission{path: "/history/readings", body: r})
		}
		for _, r := range plans[i].Recommendations {
			jobs = append(jobs, submission{path: "/history/recommendations", body: r})
		}
	}
	logger.Get().Info(ctx, "submitting history",
		logger.Int("entries", len(jobs)),
		logger.Int("workers", config.Workers))

	client := newHTTPClient(config.BaseURL, config.Timeout)
	var submitted, successful, duplicate, failed atomic.Int64
	var lastReport atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Workers)
	for _, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			result := submitOne(gctx, client, job)
			submitted.Add(1)
			switch result {
			case resultSuccess:
				successful.Add(1)
			case resultDuplicate:
				duplicate.Add(1)
			case resultFailed:
				failed.Add(1)
			}

			now := time.Now().UnixNano()
			last := lastReport.Load()
			if now-last >= int64(progressInterval) && lastReport.CompareAndSwap(last, now) {
				logger.Get().Info(gctx, "submission progress",
					logger.Int("submitted", int(submitted.Load())),
					logger.Int("total", len(jobs)),
					logger.Int("failed", int(failed.Load())))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled during submission: %w", err)
	}

	stats.Submitted = int(submitted.Load())
	stats.Successful = int(successful.Load())
	stats.Duplicate = int(duplicate.Load())
	stats.Failed = int(failed.Load())

	logger.Get().Info(ctx, "history submission completed",
		logger.Int("successful", stats.Successful),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("failed", stats.Failed))
	return nil
}

// submitOne posts a single entry, backing off while the ingestion queue is
// full.
func submitOne(ctx context.Context, client *HTTPClient, job submission) submitResult {
	result, err := backoff.Retry(ctx, func() (submitResult, error) {
		resp, err := client.Post(ctx, job.path, job.body)
		if err != nil {
			return resultFailed, backoff.Permanent(err)
		}
		_ = decode(resp, nil)
		switch resp.StatusCode {
		case StatusAccepted:
			return resultSuccess, nil
		case StatusOK:
			// Assume duplicate for 200 even if parsing fails.
			return resultDuplicate, nil
		case StatusTooManyRequests:
			return resultFailed, errBackpressure
		default:
			return resultFailed, backoff.Permanent(fmt.Errorf("%s: status %d", job.path, resp.StatusCode))
		}
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(maxSubmitTries))
	if err != nil {
		logger.Get().Debug(ctx, "submission failed", logger.String("path", job.path), logger.Error(err))
		return resultFailed
	}
	return result
}

// importHistories sends each user's history as one /history/import document.
func importHistories(ctx context.Context, config *Config, plans []UserPlan, stats *Stats) error {
	logger.Get().Info(ctx, "importing histories",
		logger.Int("users", len(plans)),
		logger.Int("workers", config.Workers))

	client := newHTTPClient(config.BaseURL, config.Timeout)
	var successful, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Workers)
	for i := range plans {
		doc := importDocument(&plans[i])
		g.Go(func() error {
			resp, err := client.Post(gctx, "/history/import", doc)
			if err != nil {
				failed.Add(1)
				return nil
			}
			if derr := decode(resp, nil); derr != nil || resp.StatusCode != StatusOK {
				failed.Add(1)
				return nil
			}
			successful.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	stats.Submitted = len(plans)
	stats.Successful = int(successful.Load())
	stats.Failed = int(failed.Load())
	logger.Get().Info(ctx, "history import completed",
		logger.Int("successful", stats.Successful),
		logger.Int("failed", stats.Failed))
	return nil
}

type importRow struct {
	ID                 string `json:"id"`
	RecordedAt         string `json:"recorded_at,omitempty"`
	Technique          string `json:"technique,omitempty"`
	RecommendationDate string `json:"recommendation_date,omitempty"`
	Parameters
}

type importDoc struct {
	UserID          string      `json:"user_id"`
	Parameters      []importRow `json:"parameters"`
	Recommendations []importRow `json:"recommendations"`
}

// importDocument flattens a plan into the legacy flat-row import shape.
func importDocument(plan *UserPlan) importDoc {
	doc := importDoc{
		UserID:          plan.UserID,
		Parameters:      make([]importRow, 0, len(plan.Readings)),
		Recommendations: make([]importRow, 0, len(plan.Recommendations)),
	}
	for _, r := range plan.Readings {
		doc.Parameters = append(doc.Parameters, importRow{ID: r.ReadingID, RecordedAt: r.RecordedAt, Parameters: r.Parameters})
	}
	for _, r := range plan.Recommendations {
		doc.Recommendations = append(doc.Recommendations, importRow{
			ID:                 r.RecommendationID,
			Technique:          r.Technique,
			RecommendationDate: r.RecommendationDate,
			Parameters:         r.Parameters,
		})
	}
	return doc
}

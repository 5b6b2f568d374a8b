package loadgen

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"

	"github.com/okian/restwell/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

var (
	// ErrInvalidConfig reports a run configuration that cannot work.
	ErrInvalidConfig = errors.New("invalid seed configuration")
	// ErrVerification reports users routed to the wrong recommender.
	ErrVerification = errors.New("verification failed")

	errNotDrained = errors.New("history not yet stored")
)

// Validate checks the configuration before any request is sent.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: url is required", ErrInvalidConfig)
	case c.Users < 1:
		return fmt.Errorf("%w: users must be positive", ErrInvalidConfig)
	case c.Threshold < 1:
		return fmt.Errorf("%w: threshold must be positive", ErrInvalidConfig)
	case c.Records < 1:
		return fmt.Errorf("%w: records must be positive", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	}
	return nil
}

// Run seeds the service with synthetic histories and checks that each user
// is routed to the recommender their history size calls for.
func Run(ctx context.Context, config *Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting restwell seed run",
		logger.String("baseURL", config.BaseURL),
		logger.Int("users", config.Users),
		logger.Int("threshold", config.Threshold),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.Any("import", config.Import))

	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	plans, err := generatePlans(ctx, config, stats)
	if err != nil {
		return fmt.Errorf("history generation failed: %w", err)
	}

	if config.Import {
		if err := importHistories(ctx, config, plans, stats); err != nil {
			return fmt.Errorf("history import failed: %w", err)
		}
	} else {
		before, err := fetchStoreCounts(ctx, config)
		if err != nil {
			return fmt.Errorf("stats retrieval failed: %w", err)
		}
		if err := submitHistories(ctx, config, plans, stats); err != nil {
			return fmt.Errorf("history submission failed: %w", err)
		}
		if err := waitForIngestion(ctx, config, before.total()+stats.Successful); err != nil {
			return fmt.Errorf("waiting for ingestion failed: %w", err)
		}
	}

	outcomes, err := requestRecommendations(ctx, config, plans)
	if err != nil {
		return fmt.Errorf("recommendation retrieval failed: %w", err)
	}

	verifyErr := verifyOutcomes(ctx, outcomes, stats)

	if config.OutputFile != "" {
		if err := savePlansToFile(ctx, config.OutputFile, plans); err != nil {
			logger.Get().Warn(ctx, "failed to save histories to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	if verifyErr != nil {
		return verifyErr
	}
	logger.Get().Info(ctx, "seed run completed successfully")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	logger.Get().Info(ctx, "checking service health")

	resp, err := newHTTPClient(config.BaseURL, config.Timeout).Get(ctx, "/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if err := decode(resp, nil); err != nil {
		return err
	}
	// Any 200 is healthy; the body is Prometheus exposition text.
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

func fetchStoreCounts(ctx context.Context, config *Config) (storeCounts, error) {
	var counts storeCounts
	resp, err := newHTTPClient(config.BaseURL, config.Timeout).Get(ctx, "/stats")
	if err != nil {
		return counts, fmt.Errorf("failed to fetch stats: %w", err)
	}
	if err := decode(resp, &counts); err != nil {
		return counts, err
	}
	if resp.StatusCode != StatusOK {
		return counts, fmt.Errorf("stats returned status: %d", resp.StatusCode)
	}
	return counts, nil
}

// waitForIngestion polls /stats until the store holds want entries or
// config.Settle elapses. Writes are asynchronous, so recommendations asked
// for earlier would see partial histories.
func waitForIngestion(ctx context.Context, config *Config, want int) error {
	logger.Get().Info(ctx, "waiting for history to be stored", logger.Int("entries", want))

	_, err := backoff.Retry(ctx, func() (storeCounts, error) {
		counts, err := fetchStoreCounts(ctx, config)
		if err != nil {
			return counts, err
		}
		if counts.total() < want {
			return counts, fmt.Errorf("%w: %d of %d", errNotDrained, counts.total(), want)
		}
		return counts, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(PollInterval)),
		backoff.WithMaxElapsedTime(config.Settle))
	return err
}

// savePlansToFile writes the generated histories as a JSON array.
func savePlansToFile(ctx context.Context, filename string, plans []UserPlan) error {
	if len(plans) == 0 {
		return errors.New("no histories to save")
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(plans, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal histories: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	logger.Get().Info(ctx, "histories saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var successRate, entriesPerSecond float64
	if stats.Submitted > 0 {
		successRate = float64(stats.Successful) / float64(stats.Submitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		entriesPerSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("usersGenerated", stats.UsersGenerated),
		logger.Int("readingsGenerated", stats.ReadingsGenerated),
		logger.Int("recordsGenerated", stats.RecordsGenerated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("successful", stats.Successful),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("failed", stats.Failed),
		logger.Int("coldStart", stats.ColdStart),
		logger.Int("contentBased", stats.ContentBased),
		logger.Int("mismatched", stats.Mismatched),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("entriesPerSecond", entriesPerSecond))
}

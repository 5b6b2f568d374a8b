// Package service wires the recommendation engine to history storage and
// ingestion and exposes the operations the HTTP API needs.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	eventqueue "github.com/okian/restwell/internal/adapters/mq/queue"
	workerpool "github.com/okian/restwell/internal/adapters/mq/worker"
	"github.com/okian/restwell/internal/adapters/repository"
	"github.com/okian/restwell/internal/domain/dedupe"
	"github.com/okian/restwell/internal/domain/dispatch"
	"github.com/okian/restwell/internal/domain/model"
	"github.com/okian/restwell/internal/domain/rules"
	"github.com/okian/restwell/pkg/logger"
	"github.com/okian/restwell/pkg/metrics"
)

const breakerName = "history"

// Ack reports the outcome of a history submission.
type Ack struct {
	ID        string
	Duplicate bool
}

// Stats is a point-in-time view of the service.
type Stats struct {
	Started          bool             `json:"started"`
	Workers          int              `json:"workers"`
	QueueLength      int              `json:"queue_length"`
	QueueCapacity    int              `json:"queue_capacity"`
	DedupeEntries    int64            `json:"dedupe_entries"`
	ContentThreshold int              `json:"content_threshold"`
	Breaker          string           `json:"breaker"`
	Store            repository.Stats `json:"store"`
}

// Service implements the API dependencies for the recommendation system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	table      *rules.Table
	dispatcher *dispatch.Dispatcher
	breaker    *gobreaker.CircuitBreaker[model.UserHistory]
	deduper    dedupe.Deduper
	queue      *eventqueue.InMemoryQueue
	pool       *workerpool.Pool

	// Configuration
	workerCount     int
	queueSize       int
	dedupeSize      int
	persistTries    uint
	persistBackoff  time.Duration
	threshold       int
	fallback        bool
	breakerSettings BreakerSettings

	started bool
	logger  logger.Logger
}

// New constructs a Service. Components are created by Start.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:    runtime.NumCPU(),
		queueSize:      10_000,
		dedupeSize:     100_000,
		persistTries:   3,
		persistBackoff: 50 * time.Millisecond,
		threshold:      dispatch.DefaultThreshold,
		fallback:       true,
		breakerSettings: BreakerSettings{
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          10 * time.Second,
			FailureThreshold: 5,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes the engine and starts the ingestion workers. If it
// fails, a store supplied with WithStore is closed.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}

	if err := s.loadRules(); err != nil {
		if s.store != nil {
			if cerr := s.store.Close(); cerr != nil {
				s.logger.Error(ctx, "failed to close history store", logger.Error(cerr))
			}
		}
		return err
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
		s.logger.Info(ctx, "using in-memory history store")
	}

	s.dispatcher = dispatch.New(s.table,
		dispatch.WithThreshold(s.threshold),
		dispatch.WithFallback(s.fallback),
		dispatch.WithLogger(s.logger.Named("dispatch")),
	)
	s.breaker = s.newBreaker(ctx)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, &storePersister{store: s.store},
		workerpool.WithLogger(s.logger),
		workerpool.WithRetry(s.persistTries, s.persistBackoff),
		workerpool.WithFailureHook(func(ev model.HistoryEvent, _ error) {
			// Let the client resubmit an event that never made it to the store.
			s.deduper.Unrecord(context.Background(), dedupe.Key(ev))
		}),
	)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "recommendation service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("contentThreshold", s.dispatcher.Threshold()),
	)
	return nil
}

func (s *Service) loadRules() error {
	if s.table == nil {
		table, err := rules.Default()
		if err != nil {
			return fmt.Errorf("load default rules: %w", err)
		}
		s.table = table
		return nil
	}
	if err := s.table.Validate(); err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	return nil
}

func (s *Service) newBreaker(ctx context.Context) *gobreaker.CircuitBreaker[model.UserHistory] {
	cfg := s.breakerSettings
	_ = metrics.UpdateBreakerState(breakerName, gobreaker.StateClosed.String())
	return gobreaker.NewCircuitBreaker[model.UserHistory](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// A caller giving up is not a store failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn(ctx, "history breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
			if err := metrics.UpdateBreakerState(name, to.String()); err != nil {
				s.logger.Error(ctx, "failed to publish breaker state", logger.Error(err))
			}
		},
	})
}

// Stop drains the ingestion queue and closes the store. Events still queued
// when ctx expires are dropped.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping recommendation service...")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop workers: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	s.started = false
	s.logger.Info(ctx, "recommendation service stopped")
	return errors.Join(errs...)
}

// Recommend loads the user's history and runs the engine on current.
func (s *Service) Recommend(ctx context.Context, current model.ParameterReading) (dispatch.Result, error) {
	const op = "service.Recommend"

	d, err := s.running()
	if err != nil {
		return dispatch.Result{}, err
	}
	if current.UserID == "" {
		return d.Recommend(ctx, dispatch.Request{Current: current})
	}

	history, err := s.loadHistory(ctx, current.UserID)
	if err != nil {
		metrics.RecordRecommendationError("history")
		return dispatch.Result{}, fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Debug(ctx, "loaded history",
		logger.String("user_id", current.UserID),
		logger.Int("readings", len(history.Parameters)),
		logger.Int("recommendations", len(history.Recommendations)),
	)
	return d.Recommend(ctx, dispatch.Request{Current: current, History: history})
}

// loadHistory reads a snapshot through the breaker. A user without stored
// history gets an empty snapshot.
func (s *Service) loadHistory(ctx context.Context, userID string) (model.UserHistory, error) {
	h, err := s.breaker.Execute(func() (model.UserHistory, error) {
		sess, err := s.store.Acquire(ctx)
		if err != nil {
			return model.UserHistory{}, err
		}
		defer func() { _ = sess.Close() }()

		h, err := sess.LoadHistory(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return model.UserHistory{UserID: userID}, nil
		}
		return h, err
	})
	if err != nil {
		return model.UserHistory{}, fmt.Errorf("load history for %s: %w", userID, err)
	}
	return h, nil
}

// SubmitReading queues r for storage. A missing ID is generated and a zero
// RecordedAt is set to now.
func (s *Service) SubmitReading(ctx context.Context, r model.ParameterReading) (Ack, error) {
	if r.UserID == "" {
		return Ack{}, fmt.Errorf("%w: user_id is required", ErrInvalidEvent)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now().UTC()
	}
	return s.submit(ctx, model.HistoryEvent{ID: r.ID, Kind: model.KindReading, Reading: r})
}

// SubmitRecommendation queues r for storage with the same defaults as
// SubmitReading.
func (s *Service) SubmitRecommendation(ctx context.Context, r model.RecommendationRecord) (Ack, error) {
	switch {
	case r.UserID == "":
		return Ack{}, fmt.Errorf("%w: user_id is required", ErrInvalidEvent)
	case r.Technique == "":
		return Ack{}, fmt.Errorf("%w: technique is required", ErrInvalidEvent)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.RecommendationDate.IsZero() {
		r.RecommendationDate = time.Now().UTC()
	}
	return s.submit(ctx, model.HistoryEvent{ID: r.ID, Kind: model.KindRecommendation, Recommendation: r})
}

func (s *Service) submit(ctx context.Context, ev model.HistoryEvent) (Ack, error) { //nolint:gocritic // hugeParam: event is copied into the queue anyway
	if _, err := s.running(); err != nil {
		return Ack{}, err
	}

	key := dedupe.Key(ev)
	if s.deduper.SeenAndRecord(ctx, key) {
		metrics.RecordHistoryDuplicate()
		s.logger.Debug(ctx, "duplicate history event, skipping",
			logger.String("event_id", ev.ID),
			logger.String("kind", ev.Kind.String()),
		)
		return Ack{ID: ev.ID, Duplicate: true}, nil
	}

	if err := s.queue.Enqueue(ctx, ev); err != nil {
		// Rollback the "seen" status since enqueue failed
		s.deduper.Unrecord(ctx, key)
		if errors.Is(err, eventqueue.ErrFull) {
			return Ack{}, fmt.Errorf("%w: %w", ErrBackpressure, err)
		}
		return Ack{}, fmt.Errorf("enqueue %s %s: %w", ev.Kind, ev.ID, err)
	}
	return Ack{ID: ev.ID}, nil
}

// ImportHistory stores h synchronously. Entries already stored are skipped.
func (s *Service) ImportHistory(ctx context.Context, h model.UserHistory) (repository.ImportResult, error) {
	if _, err := s.running(); err != nil {
		return repository.ImportResult{}, err
	}
	sess, err := s.store.Acquire(ctx)
	if err != nil {
		return repository.ImportResult{}, fmt.Errorf("import history: %w", err)
	}
	defer func() { _ = sess.Close() }()

	res, err := sess.ImportHistory(ctx, h)
	if err != nil {
		return repository.ImportResult{}, fmt.Errorf("import history for %s: %w", h.UserID, err)
	}
	s.logger.Info(ctx, "history imported",
		logger.String("user_id", h.UserID),
		logger.Int("readings", res.Readings),
		logger.Int("recommendations", res.Recommendations),
	)
	return res, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Started:          s.started,
		Workers:          s.workerCount,
		QueueCapacity:    s.queueSize,
		ContentThreshold: s.threshold,
	}
	if !s.started {
		return stats, nil
	}

	stats.QueueLength = s.queue.Len()
	stats.DedupeEntries = s.deduper.Size()
	stats.Breaker = s.breaker.State().String()
	stats.ContentThreshold = s.dispatcher.Threshold()

	st, err := s.store.Stats(ctx)
	if err != nil {
		return stats, fmt.Errorf("store stats: %w", err)
	}
	stats.Store = st

	metrics.UpdateQueueSize(stats.QueueLength)
	metrics.UpdateUsersTotal(st.Users)
	return stats, nil
}

func (s *Service) running() (*dispatch.Dispatcher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.dispatcher, nil
}

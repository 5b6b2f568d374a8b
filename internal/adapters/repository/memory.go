package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/okian/restwell/internal/domain/model"
	"github.com/okian/restwell/pkg/metrics"
)

type memoryUser struct {
	history           model.UserHistory
	readingIDs        map[string]struct{}
	recommendationIDs map[string]struct{}
}

// MemoryStore keeps history in process memory. It backs tests and runs
// configured without a database path.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]*memoryUser
	closed atomic.Bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*memoryUser)}
}

// Acquire returns a session over the shared maps.
func (s *MemoryStore) Acquire(_ context.Context) (Session, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	metrics.AddStoreSessions(1)
	return &memorySession{store: s}, nil
}

// Stats counts stored users and entries.
func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	if s.closed.Load() {
		return Stats{}, ErrClosed
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Users: len(s.users)}
	for _, u := range s.users {
		st.Readings += len(u.history.Parameters)
		st.Recommendations += len(u.history.Recommendations)
	}
	return st, nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.closed.Store(true)
	return nil
}

// user returns the entry for id, creating it. Caller holds the write lock.
func (s *MemoryStore) user(id string) *memoryUser {
	u, ok := s.users[id]
	if !ok {
		u = &memoryUser{
			history:           model.UserHistory{UserID: id},
			readingIDs:        make(map[string]struct{}),
			recommendationIDs: make(map[string]struct{}),
		}
		s.users[id] = u
	}
	return u
}

func (s *MemoryStore) addReading(r model.ParameterReading) (bool, error) {
	if err := validateReading(r); err != nil {
		return false, err
	}
	u := s.user(r.UserID)
	if _, dup := u.readingIDs[r.ID]; dup {
		return false, nil
	}
	u.readingIDs[r.ID] = struct{}{}
	r.Values = r.Values.Clone()
	u.history.Parameters = append(u.history.Parameters, r)
	return true, nil
}

func (s *MemoryStore) addRecommendation(r model.RecommendationRecord) (bool, error) {
	if err := validateRecommendation(r); err != nil {
		return false, err
	}
	u := s.user(r.UserID)
	if _, dup := u.recommendationIDs[r.ID]; dup {
		return false, nil
	}
	u.recommendationIDs[r.ID] = struct{}{}
	r.Values = r.Values.Clone()
	u.history.Recommendations = append(u.history.Recommendations, r)
	return true, nil
}

type memorySession struct {
	store  *MemoryStore
	closed atomic.Bool
}

func (m *memorySession) check() error {
	if m.closed.Load() {
		return ErrSessionClosed
	}
	if m.store.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (m *memorySession) LoadHistory(_ context.Context, userID string) (model.UserHistory, error) {
	if err := m.check(); err != nil {
		return model.UserHistory{}, err
	}
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()

	u, ok := m.store.users[userID]
	if !ok {
		return model.UserHistory{UserID: userID}, fmt.Errorf("user %q: %w", userID, ErrNotFound)
	}
	return u.history.Clone(), nil
}

func (m *memorySession) AppendReading(_ context.Context, r model.ParameterReading) error {
	if err := m.check(); err != nil {
		return err
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	_, err := m.store.addReading(r)
	return err
}

func (m *memorySession) AppendRecommendation(_ context.Context, r model.RecommendationRecord) error {
	if err := m.check(); err != nil {
		return err
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	_, err := m.store.addRecommendation(r)
	return err
}

// ImportHistory validates every entry before inserting any, so a bad
// document leaves the store untouched.
func (m *memorySession) ImportHistory(_ context.Context, h model.UserHistory) (ImportResult, error) {
	if err := m.check(); err != nil {
		return ImportResult{}, err
	}
	for _, r := range h.Parameters {
		if err := validateReading(r); err != nil {
			return ImportResult{}, err
		}
	}
	for _, r := range h.Recommendations {
		if err := validateRecommendation(r); err != nil {
			return ImportResult{}, err
		}
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	var res ImportResult
	for _, r := range h.Parameters {
		if ok, _ := m.store.addReading(r); ok {
			res.Readings++
		}
	}
	for _, r := range h.Recommendations {
		if ok, _ := m.store.addRecommendation(r); ok {
			res.Recommendations++
		}
	}
	return res, nil
}

func (m *memorySession) Close() error {
	if m.closed.CompareAndSwap(false, true) {
		metrics.AddStoreSessions(-1)
	}
	return nil
}

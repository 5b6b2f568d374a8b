package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okian/restwell/internal/domain/model"
	"github.com/okian/restwell/pkg/metrics"
)

// IDs are unique per user, not globally: two users may submit the same
// client-side reading or recommendation ID.
const schema = `
CREATE TABLE IF NOT EXISTS parameter_readings (
	user_id     TEXT NOT NULL,
	id          TEXT NOT NULL,
	recorded_at TEXT NOT NULL,
	values_json TEXT NOT NULL,
	PRIMARY KEY (user_id, id)
);

CREATE TABLE IF NOT EXISTS recommendations (
	user_id             TEXT NOT NULL,
	id                  TEXT NOT NULL,
	recommendation_date TEXT NOT NULL,
	technique           TEXT NOT NULL,
	values_json         TEXT NOT NULL,
	PRIMARY KEY (user_id, id)
);
`

const (
	defaultBusyTimeout  = 5 * time.Second
	defaultMaxOpenConns = 16
)

// SQLiteStore keeps history in a SQLite database.
type SQLiteStore struct {
	db           *sql.DB
	busyTimeout  time.Duration
	maxOpenConns int
	closed       atomic.Bool
}

// NewSQLiteStore opens (creating if needed) the database at path and
// bootstraps its tables. ":memory:" gives a private in-memory database.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{
		busyTimeout:  defaultBusyTimeout,
		maxOpenConns: defaultMaxOpenConns,
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite", s.dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(s.maxOpenConns)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	s.db = db
	return s, nil
}

// dsn appends per-connection pragmas so every pooled connection gets them.
func (s *SQLiteStore) dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, sep, s.busyTimeout.Milliseconds())
}

// Acquire reserves a dedicated connection for the session.
func (s *SQLiteStore) Acquire(ctx context.Context) (Session, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		metrics.RecordStoreError("acquire")
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	metrics.AddStoreSessions(1)
	return &sqliteSession{conn: conn}, nil
}

// Stats counts stored users and entries.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	if s.closed.Load() {
		return Stats{}, ErrClosed
	}
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM (SELECT user_id FROM parameter_readings UNION SELECT user_id FROM recommendations)),
			(SELECT COUNT(*) FROM parameter_readings),
			(SELECT COUNT(*) FROM recommendations)`,
	).Scan(&st.Users, &st.Readings, &st.Recommendations)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// querier is satisfied by *sql.Conn and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type sqliteSession struct {
	conn   *sql.Conn
	closed atomic.Bool
}

func (s *sqliteSession) check() error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	return nil
}

func observe(op string, start time.Time, err error) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
	if err != nil && !errors.Is(err, ErrNotFound) {
		metrics.RecordStoreError(op)
	}
}

func (s *sqliteSession) LoadHistory(ctx context.Context, userID string) (h model.UserHistory, err error) {
	defer func(start time.Time) { observe("load_history", start, err) }(time.Now())
	if err = s.check(); err != nil {
		return model.UserHistory{}, err
	}

	h.UserID = userID
	if h.Parameters, err = loadReadings(ctx, s.conn, userID); err != nil {
		return model.UserHistory{}, err
	}
	if h.Recommendations, err = loadRecommendations(ctx, s.conn, userID); err != nil {
		return model.UserHistory{}, err
	}
	if len(h.Parameters) == 0 && len(h.Recommendations) == 0 {
		return h, fmt.Errorf("user %q: %w", userID, ErrNotFound)
	}
	return h, nil
}

func loadReadings(ctx context.Context, q querier, userID string) ([]model.ParameterReading, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, recorded_at, values_json FROM parameter_readings WHERE user_id = ? ORDER BY rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var out []model.ParameterReading
	for rows.Next() {
		var id, recordedAt, values string
		if err := rows.Scan(&id, &recordedAt, &values); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		r := model.ParameterReading{ID: id, UserID: userID}
		if r.RecordedAt, err = decodeTime(recordedAt); err != nil {
			return nil, fmt.Errorf("reading %s: %w", id, err)
		}
		if r.Values, err = decodeValues(values); err != nil {
			return nil, fmt.Errorf("reading %s: %w", id, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func loadRecommendations(ctx context.Context, q querier, userID string) ([]model.RecommendationRecord, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, recommendation_date, technique, values_json FROM recommendations WHERE user_id = ? ORDER BY rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("query recommendations: %w", err)
	}
	defer rows.Close()

	var out []model.RecommendationRecord
	for rows.Next() {
		var id, date, technique, values string
		if err := rows.Scan(&id, &date, &technique, &values); err != nil {
			return nil, fmt.Errorf("scan recommendation: %w", err)
		}
		r := model.RecommendationRecord{ID: id, UserID: userID, Technique: technique}
		if r.RecommendationDate, err = decodeTime(date); err != nil {
			return nil, fmt.Errorf("recommendation %s: %w", id, err)
		}
		if r.Values, err = decodeValues(values); err != nil {
			return nil, fmt.Errorf("recommendation %s: %w", id, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func insertReading(ctx context.Context, q querier, r model.ParameterReading) (bool, error) {
	if err := validateReading(r); err != nil {
		return false, err
	}
	values, err := encodeValues(r.Values)
	if err != nil {
		return false, err
	}
	res, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO parameter_readings (id, user_id, recorded_at, values_json) VALUES (?, ?, ?, ?)`,
		r.ID, r.UserID, encodeTime(r.RecordedAt), values)
	if err != nil {
		return false, fmt.Errorf("insert reading %s: %w", r.ID, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func insertRecommendation(ctx context.Context, q querier, r model.RecommendationRecord) (bool, error) {
	if err := validateRecommendation(r); err != nil {
		return false, err
	}
	values, err := encodeValues(r.Values)
	if err != nil {
		return false, err
	}
	res, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO recommendations (id, user_id, recommendation_date, technique, values_json) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.UserID, encodeTime(r.RecommendationDate), r.Technique, values)
	if err != nil {
		return false, fmt.Errorf("insert recommendation %s: %w", r.ID, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteSession) AppendReading(ctx context.Context, r model.ParameterReading) (err error) {
	defer func(start time.Time) { observe("append_reading", start, err) }(time.Now())
	if err = s.check(); err != nil {
		return err
	}
	_, err = insertReading(ctx, s.conn, r)
	return err
}

func (s *sqliteSession) AppendRecommendation(ctx context.Context, r model.RecommendationRecord) (err error) {
	defer func(start time.Time) { observe("append_recommendation", start, err) }(time.Now())
	if err = s.check(); err != nil {
		return err
	}
	_, err = insertRecommendation(ctx, s.conn, r)
	return err
}

// ImportHistory inserts everything in one transaction.
func (s *sqliteSession) ImportHistory(ctx context.Context, h model.UserHistory) (res ImportResult, err error) {
	defer func(start time.Time) { observe("import_history", start, err) }(time.Now())
	if err = s.check(); err != nil {
		return ImportResult{}, err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return ImportResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var ok bool
	for _, r := range h.Parameters {
		if ok, err = insertReading(ctx, tx, r); err != nil {
			return ImportResult{}, err
		}
		if ok {
			res.Readings++
		}
	}
	for _, r := range h.Recommendations {
		if ok, err = insertRecommendation(ctx, tx, r); err != nil {
			return ImportResult{}, err
		}
		if ok {
			res.Recommendations++
		}
	}
	if err = tx.Commit(); err != nil {
		return ImportResult{}, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

// Close releases the connection back to the pool. It is safe to call twice.
func (s *sqliteSession) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	metrics.AddStoreSessions(-1)
	if err := s.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("release connection: %w", err)
	}
	return nil
}

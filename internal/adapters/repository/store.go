// Package repository stores user history and hands it to the engine as
// plain snapshots.
package repository

import (
	"context"

	"github.com/okian/restwell/internal/domain/model"
)

// Session is a scoped handle on the store. Callers acquire one per request
// and must Close it on every path.
type Session interface {
	// LoadHistory returns a snapshot of everything stored for userID.
	// Returns ErrNotFound if the user has no history at all.
	LoadHistory(ctx context.Context, userID string) (model.UserHistory, error)

	// AppendReading stores r. Storing the same ID twice is a no-op.
	AppendReading(ctx context.Context, r model.ParameterReading) error

	// AppendRecommendation stores r. Storing the same ID twice is a no-op.
	AppendRecommendation(ctx context.Context, r model.RecommendationRecord) error

	// ImportHistory stores every entry of h and reports how many were new.
	ImportHistory(ctx context.Context, h model.UserHistory) (ImportResult, error)

	Close() error
}

// ImportResult counts the entries an import actually inserted.
type ImportResult struct {
	Readings        int `json:"readings"`
	Recommendations int `json:"recommendations"`
}

// Stats summarises store contents.
type Stats struct {
	Users           int `json:"users"`
	Readings        int `json:"readings"`
	Recommendations int `json:"recommendations"`
}

// Store is the history backend.
type Store interface {
	// Acquire returns a session bound to ctx. Returns ErrClosed after Close.
	Acquire(ctx context.Context) (Session, error)

	Stats(ctx context.Context) (Stats, error)

	Close() error
}

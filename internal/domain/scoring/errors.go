package scoring

import "github.com/okian/restwell/internal/domain/model"

// Errors returned by rankers.
var (
	// ErrEmptyHistory is returned when there are no recommendation records to rank.
	ErrEmptyHistory = model.ErrEmptyHistory
	// ErrMalformedHistoryRecord is returned when a record has no recommendation date.
	ErrMalformedHistoryRecord = model.ErrMalformedHistoryRecord
)

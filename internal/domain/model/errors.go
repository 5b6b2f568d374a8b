package model

import "errors"

// History data-quality errors shared by the aggregation and ranking stages.
var (
	ErrEmptyHistory           = errors.New("no historical recommendation records")
	ErrMalformedHistoryRecord = errors.New("malformed history record")
)

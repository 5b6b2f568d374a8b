package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted   = errors.New("service not started")
	ErrBackpressure = errors.New("ingestion queue full")
	ErrInvalidEvent = errors.New("invalid history event")
)

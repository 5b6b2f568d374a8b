package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound       = errors.New("user history not found")
	ErrClosed         = errors.New("store closed")
	ErrSessionClosed  = errors.New("session closed")
	ErrInvalidHistory = errors.New("invalid history document")
	ErrInvalidRecord  = errors.New("invalid history record")
)

package rules

import "errors"

// Sentinel kinds for rule table errors.
var (
	ErrInvalidTable = errors.New("invalid rule table")
	ErrLoadTable    = errors.New("load rule table failed")
)

package dispatch

import "errors"

// ErrMissingField is returned when a request lacks its user identifier.
var ErrMissingField = errors.New("missing required field")

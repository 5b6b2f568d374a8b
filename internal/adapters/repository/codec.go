package repository

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/restwell/internal/domain/model"
)

// Zero timestamps are stored as empty strings so that malformed history
// survives a round trip and is reported by the engine instead of being
// replaced with a guess.
func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func encodeValues(v model.Values) (string, error) {
	if v == nil {
		v = model.Values{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal values: %w", err)
	}
	return string(b), nil
}

func decodeValues(s string) (model.Values, error) {
	v := model.Values{}
	if s == "" {
		return v, nil
	}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("unmarshal values: %w", err)
	}
	return v, nil
}

func validateReading(r model.ParameterReading) error {
	switch {
	case r.ID == "":
		return fmt.Errorf("%w: reading id is empty", ErrInvalidRecord)
	case r.UserID == "":
		return fmt.Errorf("%w: reading %s has no user", ErrInvalidRecord, r.ID)
	}
	return nil
}

func validateRecommendation(r model.RecommendationRecord) error {
	switch {
	case r.ID == "":
		return fmt.Errorf("%w: recommendation id is empty", ErrInvalidRecord)
	case r.UserID == "":
		return fmt.Errorf("%w: recommendation %s has no user", ErrInvalidRecord, r.ID)
	case r.Technique == "":
		return fmt.Errorf("%w: recommendation %s has no technique", ErrInvalidRecord, r.ID)
	}
	return nil
}

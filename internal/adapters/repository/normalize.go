package repository

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/okian/restwell/internal/domain/model"
)

// historyDocument is the outer shape of an import. Both lists are decoded
// row by row because they may hold canonical rows, legacy flat rows, or a
// single legacy envelope wrapping flat rows.
type historyDocument struct {
	UserID          string          `json:"user_id"`
	Parameters      json.RawMessage `json:"parameters"`
	Recommendations json.RawMessage `json:"recommendations"`
}

// Legacy field names.
const (
	legacyRecordedAt         = "recordedAt"
	legacyRecommendationDate = "recommendationDate"
	legacyTechnique          = "Technique"
	legacyRecommendationText = "recommendationText"
	legacyUserID             = "userId"
	legacyID                 = "_id"
)

// idNamespace derives stable IDs for rows imported without one, so that
// importing the same document twice does not duplicate history.
var idNamespace = uuid.MustParse("6f1c8a52-3c1e-4d7e-9a55-2b8f0e9d4a11")

// DecodeHistory normalises an import document into one UserHistory.
//
// Accepted row shapes, per list:
//   - canonical: {"id", "recorded_at" | "recommendation_date", "technique", "values": {...}}
//   - legacy flat: {"_id", "recordedAt" | "recommendationDate", "Technique" | "recommendationText", <parameter>: n, ...}
//   - legacy envelope: [{"parameters": [<flat rows>]}] and [{"recommendations": [<flat rows>]}]
//
// defaultUserID is used when the document names no user.
func DecodeHistory(data []byte, defaultUserID string) (model.UserHistory, error) {
	var doc historyDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return model.UserHistory{}, fmt.Errorf("%w: %v", ErrInvalidHistory, err)
	}
	userID := doc.UserID
	if userID == "" {
		userID = defaultUserID
	}
	if userID == "" {
		return model.UserHistory{}, fmt.Errorf("%w: user_id is required", ErrInvalidHistory)
	}

	h := model.UserHistory{UserID: userID}

	rows, err := decodeRows(doc.Parameters, "parameters")
	if err != nil {
		return model.UserHistory{}, err
	}
	for i, row := range rows {
		r, err := readingFromRow(row, userID)
		if err != nil {
			return model.UserHistory{}, fmt.Errorf("%w: parameters[%d]: %v", ErrInvalidHistory, i, err)
		}
		h.Parameters = append(h.Parameters, r)
	}

	rows, err = decodeRows(doc.Recommendations, "recommendations")
	if err != nil {
		return model.UserHistory{}, err
	}
	for i, row := range rows {
		r, err := recommendationFromRow(row, userID)
		if err != nil {
			return model.UserHistory{}, fmt.Errorf("%w: recommendations[%d]: %v", ErrInvalidHistory, i, err)
		}
		h.Recommendations = append(h.Recommendations, r)
	}
	return h, nil
}

type row map[string]json.RawMessage

// decodeRows unwraps the legacy single-element envelope if present.
func decodeRows(raw json.RawMessage, envelopeKey string) ([]row, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var rows []row
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("%w: %s must be a list of objects: %v", ErrInvalidHistory, envelopeKey, err)
	}
	if len(rows) == 1 {
		if inner, ok := rows[0][envelopeKey]; ok {
			return decodeRows(inner, envelopeKey)
		}
	}
	return rows, nil
}

func readingFromRow(r row, userID string) (model.ParameterReading, error) {
	out := model.ParameterReading{UserID: userID}
	var err error
	if out.RecordedAt, err = r.time("recorded_at", legacyRecordedAt); err != nil {
		return out, err
	}
	if out.Values, err = r.values(); err != nil {
		return out, err
	}
	if out.ID, err = r.id(); err != nil {
		return out, err
	}
	if u, err := r.string("user_id", legacyUserID); err != nil {
		return out, err
	} else if u != "" && u != userID {
		return out, fmt.Errorf("row belongs to user %q, not %q", u, userID)
	}
	if out.ID == "" {
		out.ID = derivedID("reading", userID, out.RecordedAt, "", out.Values)
	}
	return out, nil
}

func recommendationFromRow(r row, userID string) (model.RecommendationRecord, error) {
	out := model.RecommendationRecord{UserID: userID}
	var err error
	if out.RecommendationDate, err = r.time("recommendation_date", legacyRecommendationDate); err != nil {
		return out, err
	}
	if out.Technique, err = r.string("technique", legacyTechnique, legacyRecommendationText); err != nil {
		return out, err
	}
	if out.Technique == "" {
		return out, fmt.Errorf("technique is required")
	}
	if out.Values, err = r.values(); err != nil {
		return out, err
	}
	if out.ID, err = r.id(); err != nil {
		return out, err
	}
	if u, err := r.string("user_id", legacyUserID); err != nil {
		return out, err
	} else if u != "" && u != userID {
		return out, fmt.Errorf("row belongs to user %q, not %q", u, userID)
	}
	if out.ID == "" {
		out.ID = derivedID("recommendation", userID, out.RecommendationDate, out.Technique, out.Values)
	}
	return out, nil
}

func (r row) first(keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := r[k]; ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return v, true
		}
	}
	return nil, false
}

func (r row) string(keys ...string) (string, error) {
	raw, ok := r.first(keys...)
	if !ok {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%s: expected string", keys[0])
	}
	return s, nil
}

// id accepts "id", a string "_id" or an extended-JSON {"$oid": "..."}.
func (r row) id() (string, error) {
	raw, ok := r.first("id", legacyID)
	if !ok {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var oid struct {
		OID string `json:"$oid"`
	}
	if err := json.Unmarshal(raw, &oid); err != nil || oid.OID == "" {
		return "", fmt.Errorf("id: expected string or {\"$oid\"}")
	}
	return oid.OID, nil
}

// time accepts RFC 3339, a plain date, or an extended-JSON {"$date": ...}.
// A missing timestamp yields the zero time; the engine reports it.
func (r row) time(keys ...string) (time.Time, error) {
	raw, ok := r.first(keys...)
	if !ok {
		return time.Time{}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var wrapped struct {
			Date string `json:"$date"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil || wrapped.Date == "" {
			return time.Time{}, fmt.Errorf("%s: expected timestamp string", keys[0])
		}
		s = wrapped.Date
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%s: unrecognised timestamp %q", keys[0], s)
}

// values reads the canonical "values" object, or falls back to top-level
// parameter keys of a flat legacy row. Unknown keys are ignored.
func (r row) values() (model.Values, error) {
	out := model.Values{}
	if raw, ok := r.first("values"); ok {
		var m map[string]float64
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("values: %v", err)
		}
		for k, v := range m {
			if p := model.Parameter(k); p.IsKnown() {
				out[p] = v
			}
		}
		return out, nil
	}
	for _, p := range model.Parameters() {
		raw, ok := r.first(string(p))
		if !ok {
			continue
		}
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%s: expected number", p)
		}
		out[p] = v
	}
	return out, nil
}

func derivedID(kind, userID string, at time.Time, technique string, values model.Values) string {
	var b strings.Builder
	b.WriteString(kind)
	b.WriteByte('|')
	b.WriteString(userID)
	b.WriteByte('|')
	b.WriteString(encodeTime(at))
	b.WriteByte('|')
	b.WriteString(technique)
	for _, p := range model.Parameters() {
		if v, ok := values[p]; ok {
			b.WriteByte('|')
			b.WriteString(string(p))
			b.WriteByte('=')
			b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
	}
	return uuid.NewSHA1(idNamespace, []byte(b.String())).String()
}

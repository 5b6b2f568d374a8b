// Package model contains domain models passed between layers.
package model

import (
	"maps"
	"time"
)

// Parameter names one tracked physiological measurement.
type Parameter string

// Tracked parameters, in declaration order.
const (
	SnoringRange    Parameter = "snoring_range"
	RespirationRate Parameter = "respiration_rate"
	BodyTemperature Parameter = "body_temperature"
	LimbMovement    Parameter = "limb_movement"
	BloodOxygen     Parameter = "blood_oxygen"
	HeartRate       Parameter = "heart_rate"
	SleepDuration   Parameter = "sleep_duration"
	Age             Parameter = "age"
	Weight          Parameter = "weight"
)

var parameters = []Parameter{
	SnoringRange,
	RespirationRate,
	BodyTemperature,
	LimbMovement,
	BloodOxygen,
	HeartRate,
	SleepDuration,
	Age,
	Weight,
}

// Parameters returns the nine tracked parameters in declaration order.
func Parameters() []Parameter {
	out := make([]Parameter, len(parameters))
	copy(out, parameters)
	return out
}

// IsKnown reports whether p is one of the tracked parameters.
func (p Parameter) IsKnown() bool {
	for _, q := range parameters {
		if p == q {
			return true
		}
	}
	return false
}

// Values maps parameters to their measured value. A missing key means the
// value was not supplied.
type Values map[Parameter]float64

// Value returns the value for p and whether it was supplied.
func (v Values) Value(p Parameter) (float64, bool) {
	x, ok := v[p]
	return x, ok
}

// ValueOrZero returns the value for p, or 0 when it was not supplied.
func (v Values) ValueOrZero(p Parameter) float64 {
	return v[p]
}

// Clone returns an independent copy.
func (v Values) Clone() Values {
	if v == nil {
		return Values{}
	}
	return maps.Clone(v)
}

// ParameterReading is one set of sensor values recorded for a user.
type ParameterReading struct {
	ID         string
	UserID     string
	Values     Values
	RecordedAt time.Time
}

// Value returns the reading's value for p and whether it was supplied.
func (r ParameterReading) Value(p Parameter) (float64, bool) { return r.Values.Value(p) }

// ValueOrZero returns the reading's value for p, defaulting to 0.
func (r ParameterReading) ValueOrZero(p Parameter) float64 { return r.Values.ValueOrZero(p) }

// RecommendationRecord is a technique previously issued to a user together
// with the parameter values captured when it was issued.
type RecommendationRecord struct {
	ID                 string
	UserID             string
	RecommendationDate time.Time
	Technique          string
	Values             Values
}

// ValueOrZero returns the record's value for p, defaulting to 0.
func (r RecommendationRecord) ValueOrZero(p Parameter) float64 { return r.Values.ValueOrZero(p) }

// UserHistory is a snapshot of everything stored for one user. Entries are
// not guaranteed to be sorted.
type UserHistory struct {
	UserID          string
	Parameters      []ParameterReading
	Recommendations []RecommendationRecord
}

// Clone returns a deep copy so callers can hand out snapshots safely.
func (h UserHistory) Clone() UserHistory {
	out := UserHistory{UserID: h.UserID}
	if len(h.Parameters) > 0 {
		out.Parameters = make([]ParameterReading, len(h.Parameters))
		for i, r := range h.Parameters {
			r.Values = r.Values.Clone()
			out.Parameters[i] = r
		}
	}
	if len(h.Recommendations) > 0 {
		out.Recommendations = make([]RecommendationRecord, len(h.Recommendations))
		for i, r := range h.Recommendations {
			r.Values = r.Values.Clone()
			out.Recommendations[i] = r
		}
	}
	return out
}

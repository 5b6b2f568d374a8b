package model

// HistoryEventKind distinguishes the payloads flowing through ingestion.
type HistoryEventKind int

const (
	// KindReading carries a ParameterReading.
	KindReading HistoryEventKind = iota
	// KindRecommendation carries a RecommendationRecord.
	KindRecommendation
)

// String returns the kind's name for logs and metrics.
func (k HistoryEventKind) String() string {
	switch k {
	case KindReading:
		return "reading"
	case KindRecommendation:
		return "recommendation"
	default:
		return "unknown"
	}
}

// HistoryEvent is a pending write to a user's history.
type HistoryEvent struct {
	ID             string
	Kind           HistoryEventKind
	Reading        ParameterReading
	Recommendation RecommendationRecord
}

// UserID returns the owner of the event's payload.
func (e HistoryEvent) UserID() string {
	if e.Kind == KindRecommendation {
		return e.Recommendation.UserID
	}
	return e.Reading.UserID
}

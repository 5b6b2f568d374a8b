package loadgen

import "time"

// Config holds configuration for a seeding run.
type Config struct {
	BaseURL    string        // Base URL of the service
	Users      int           // Number of synthetic users
	Threshold  int           // Content threshold the service runs with
	Records    int           // Recommendation records per experienced user
	Workers    int           // Number of concurrent workers
	Timeout    time.Duration // HTTP request timeout
	Settle     time.Duration // Upper bound on waiting for ingestion to drain
	Import     bool          // Use /history/import instead of per-entry posts
	Seed       uint64        // Generator seed; zero picks one from the clock
	OutputFile string        // Output file for generated histories
	LogFile    string        // Log file for run output
	Verbose    bool          // Enable verbose logging
}

// Reading is the wire shape of POST /history/readings.
type Reading struct {
	ReadingID  string `json:"reading_id"`
	UserID     string `json:"user_id"`
	RecordedAt string `json:"recorded_at"`
	Parameters
}

// Record is the wire shape of POST /history/recommendations.
type Record struct {
	RecommendationID   string `json:"recommendation_id"`
	UserID             string `json:"user_id"`
	Technique          string `json:"technique"`
	RecommendationDate string `json:"recommendation_date"`
	Parameters
}

// Parameters carries the nine tracked sensor values.
type Parameters struct {
	SnoringRange    float64 `json:"snoring_range"`
	RespirationRate float64 `json:"respiration_rate"`
	BodyTemperature float64 `json:"body_temperature"`
	LimbMovement    float64 `json:"limb_movement"`
	BloodOxygen     float64 `json:"blood_oxygen"`
	HeartRate       float64 `json:"heart_rate"`
	SleepDuration   float64 `json:"sleep_duration"`
	Age             float64 `json:"age"`
	Weight          float64 `json:"weight"`
}

// UserPlan is everything generated for one user.
type UserPlan struct {
	UserID          string     `json:"user_id"`
	Experienced     bool       `json:"experienced"`
	Readings        []Reading  `json:"parameters"`
	Recommendations []Record   `json:"recommendations"`
	Current         Parameters `json:"current"`
}

// storeCounts is the subset of GET /stats the run polls.
type storeCounts struct {
	Store struct {
		Readings        int `json:"readings"`
		Recommendations int `json:"recommendations"`
	} `json:"store"`
}

func (c storeCounts) total() int { return c.Store.Readings + c.Store.Recommendations }

// RecommendationResponse is the body of POST /recommendation.
type RecommendationResponse struct {
	Recommendations any     `json:"recommendations"`
	Strategy        string  `json:"strategy"`
	Score           float64 `json:"score"`
	FallbackReason  string  `json:"fallback_reason"`
	RequestID       string  `json:"request_id"`
}

// Outcome pairs a user with the recommendation they received.
type Outcome struct {
	UserID      string
	Experienced bool
	Response    RecommendationResponse
	Err         error
}

// Stats holds run statistics.
type Stats struct {
	UsersGenerated    int
	ReadingsGenerated int
	RecordsGenerated  int
	Submitted         int
	Successful        int
	Duplicate         int
	Failed            int
	ColdStart         int
	ContentBased      int
	Mismatched        int
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}

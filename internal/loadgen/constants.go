package loadgen

import "time"

// HTTP status codes the service answers with.
const (
	StatusOK              = 200
	StatusAccepted        = 202
	StatusTooManyRequests = 429
)

// Strategy names reported by POST /recommendation.
const (
	StrategyColdStart    = "cold_start"
	StrategyContentBased = "content_based"
)

// Polling and pacing.
const (
	PollInterval            = 100 * time.Millisecond
	WorkerChannelMultiplier = 2
	PercentageMultiplier    = 100.0
	progressInterval        = time.Second
)

// Generated history spacing.
const (
	readingSpacing = 24 * time.Hour
	recordSpacing  = 72 * time.Hour
)

// bound is the inclusive generation domain of one parameter.
type bound struct{ min, max float64 }

// Domains follow the advisory table so cold-start answers stay populated.
var (
	snoringBound     = bound{0, 99}
	respirationBound = bound{10, 24.5}
	temperatureBound = bound{35, 37.9}
	limbBound        = bound{0, 49}
	oxygenBound      = bound{80, 99.5}
	heartBound       = bound{40, 119}
	sleepBound       = bound{3, 11}
	ageBound         = bound{18, 80}
	weightBound      = bound{45, 150}
)

// Techniques recorded for experienced users.
var techniques = []string{
	"Deep breathing",
	"Progressive muscle relaxation",
	"Guided imagery",
	"Body scan meditation",
	"Mindfulness meditation",
	"Yoga nidra",
}

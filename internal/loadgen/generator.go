package loadgen

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/okian/restwell/pkg/logger"
)

// jitterFraction bounds how far a reading strays from the user's baseline,
// as a share of the parameter's domain.
const jitterFraction = 0.05

// generatePlans builds one history per user. Even-indexed users get exactly
// Threshold readings and are routed to the content-based recommender; the
// rest stay one reading short and get cold-start advisories.
func generatePlans(ctx context.Context, config *Config, stats *Stats) ([]UserPlan, error) {
	logger.Get().Info(ctx, "generating user histories",
		logger.Int("users", config.Users),
		logger.Int("threshold", config.Threshold))

	seed := config.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	now := time.Now().UTC().Truncate(time.Second)

	plans := make([]UserPlan, config.Users)
	for i := range plans {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during generation: %w", err)
		}
		plans[i] = generatePlan(rng, config, i, now)
		stats.ReadingsGenerated += len(plans[i].Readings)
		stats.RecordsGenerated += len(plans[i].Recommendations)
	}
	stats.UsersGenerated = len(plans)

	logger.Get().Info(ctx, "generated user histories",
		logger.Int("users", stats.UsersGenerated),
		logger.Int("readings", stats.ReadingsGenerated),
		logger.Int("recommendations", stats.RecordsGenerated),
		logger.Any("seed", seed))
	return plans, nil
}

func generatePlan(rng *rand.Rand, config *Config, index int, now time.Time) UserPlan {
	plan := UserPlan{
		UserID:      "seed-" + uuid.NewString(),
		Experienced: index%2 == 0,
	}

	readings := config.Threshold
	records := config.Records
	if !plan.Experienced {
		readings = max(config.Threshold-1, 0)
		records = 0
	}

	baseline := randomParameters(rng)
	start := now.Add(-time.Duration(readings) * readingSpacing)
	for i := range readings {
		plan.Readings = append(plan.Readings, Reading{
			ReadingID:  uuid.NewString(),
			UserID:     plan.UserID,
			RecordedAt: start.Add(time.Duration(i) * readingSpacing).Format(time.RFC3339),
			Parameters: jitter(rng, baseline),
		})
	}

	start = now.Add(-time.Duration(records) * recordSpacing)
	for i := range records {
		plan.Recommendations = append(plan.Recommendations, Record{
			RecommendationID:   uuid.NewString(),
			UserID:             plan.UserID,
			Technique:          techniques[(index+i)%len(techniques)],
			RecommendationDate: start.Add(time.Duration(i) * recordSpacing).Format(time.RFC3339),
			Parameters:         jitter(rng, baseline),
		})
	}

	plan.Current = jitter(rng, baseline)
	return plan
}

func randomParameters(rng *rand.Rand) Parameters {
	return Parameters{
		SnoringRange:    snoringBound.draw(rng),
		RespirationRate: respirationBound.draw(rng),
		BodyTemperature: temperatureBound.draw(rng),
		LimbMovement:    limbBound.draw(rng),
		BloodOxygen:     oxygenBound.draw(rng),
		HeartRate:       heartBound.draw(rng),
		SleepDuration:   sleepBound.draw(rng),
		Age:             float64(int(ageBound.draw(rng))),
		Weight:          weightBound.draw(rng),
	}
}

func jitter(rng *rand.Rand, p Parameters) Parameters {
	return Parameters{
		SnoringRange:    snoringBound.near(rng, p.SnoringRange),
		RespirationRate: respirationBound.near(rng, p.RespirationRate),
		BodyTemperature: temperatureBound.near(rng, p.BodyTemperature),
		LimbMovement:    limbBound.near(rng, p.LimbMovement),
		BloodOxygen:     oxygenBound.near(rng, p.BloodOxygen),
		HeartRate:       heartBound.near(rng, p.HeartRate),
		SleepDuration:   sleepBound.near(rng, p.SleepDuration),
		Age:             p.Age,
		Weight:          weightBound.near(rng, p.Weight),
	}
}

func (b bound) draw(rng *rand.Rand) float64 {
	return round2(b.min + rng.Float64()*(b.max-b.min))
}

// near returns v moved by at most jitterFraction of the domain, clamped.
func (b bound) near(rng *rand.Rand, v float64) float64 {
	spread := (b.max - b.min) * jitterFraction
	return round2(min(max(v+(rng.Float64()*2-1)*spread, b.min), b.max))
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

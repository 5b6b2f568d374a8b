package dispatch_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/restwell/internal/domain/coldstart"
	"github.com/okian/restwell/internal/domain/dispatch"
	"github.com/okian/restwell/internal/domain/model"
	"github.com/okian/restwell/internal/domain/rules"
	"github.com/okian/restwell/internal/domain/scoring"
	"github.com/okian/restwell/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func readings(n int) []model.ParameterReading {
	out := make([]model.ParameterReading, n)
	for i := range out {
		out[i] = model.ParameterReading{
			ID:         fmt.Sprintf("r%d", i),
			UserID:     "u1",
			RecordedAt: start.Add(time.Duration(i) * time.Hour),
			Values:     model.Values{model.SnoringRange: 0.4, model.HeartRate: 0.5},
		}
	}
	return out
}

func records() []model.RecommendationRecord {
	return []model.RecommendationRecord{
		{ID: "a", UserID: "u1", Technique: "Guided imagery", RecommendationDate: start,
			Values: model.Values{model.SnoringRange: 0.9, model.HeartRate: 0.9}},
		{ID: "b", UserID: "u1", Technique: "Deep breathing", RecommendationDate: start.Add(24 * time.Hour),
			Values: model.Values{model.SnoringRange: 0.4, model.HeartRate: 0.5}},
	}
}

func current() model.ParameterReading {
	return model.ParameterReading{
		UserID: "u1",
		Values: model.Values{model.SnoringRange: 12, model.RespirationRate: 30, model.SleepDuration: 8},
	}
}

func TestRecommend(t *testing.T) {
	Convey("Given a dispatcher over the built-in table", t, func() {
		table, err := rules.Default()
		So(err, ShouldBeNil)
		d := dispatch.New(table)
		ctx := context.Background()

		Convey("When the current reading has no user", func() {
			_, err := d.Recommend(ctx, dispatch.Request{Current: model.ParameterReading{Values: model.Values{model.Age: 30}}})

			Convey("Then it fails with a missing field error", func() {
				So(errors.Is(err, dispatch.ErrMissingField), ShouldBeTrue)
			})
		})

		Convey("When the user has 49 readings", func() {
			res, err := d.Recommend(ctx, dispatch.Request{
				Current: current(),
				History: model.UserHistory{UserID: "u1", Parameters: readings(49), Recommendations: records()},
			})

			Convey("Then cold-start answers", func() {
				So(err, ShouldBeNil)
				So(res.Strategy, ShouldEqual, dispatch.StrategyColdStart)
				So(res.FallbackReason, ShouldBeEmpty)
				So(len(res.Advisories), ShouldEqual, 3)
			})

			Convey("And the payload is the advisory list", func() {
				msgs, ok := res.Payload().([]string)
				So(ok, ShouldBeTrue)
				So(msgs[0], ShouldEqual, "Minimal snoring observed. Regular exercise can help maintain this level.")
				So(msgs[1], ShouldContainSubstring, "30")
				So(msgs[2], ShouldEqual, "Ideal sleep duration. Maintain this habit for overall well-being.")
			})
		})

		Convey("When the user has 50 readings", func() {
			res, err := d.Recommend(ctx, dispatch.Request{
				Current: model.ParameterReading{UserID: "u1", Values: model.Values{model.SnoringRange: 0.4, model.HeartRate: 0.5}},
				History: model.UserHistory{UserID: "u1", Parameters: readings(50), Recommendations: records()},
			})

			Convey("Then the content-based ranker answers with the closest technique", func() {
				So(err, ShouldBeNil)
				So(res.Strategy, ShouldEqual, dispatch.StrategyContentBased)
				So(res.Technique, ShouldEqual, "Deep breathing")
				So(res.Record.ID, ShouldEqual, "b")
				So(res.Payload(), ShouldEqual, "Deep breathing")
			})
		})

		Convey("When the user has no readings at all", func() {
			res, err := d.Recommend(ctx, dispatch.Request{Current: current()})

			Convey("Then cold-start answers", func() {
				So(err, ShouldBeNil)
				So(res.Strategy, ShouldEqual, dispatch.StrategyColdStart)
			})
		})
	})
}

func TestFallback(t *testing.T) {
	Convey("Given a user past the threshold without recommendation records", t, func() {
		table, err := rules.Default()
		So(err, ShouldBeNil)
		So(logger.Init(), ShouldBeNil)
		var buf bytes.Buffer
		log, err := logger.New(logger.WithFormat(logger.FormatJSON), logger.WithWriter(&buf))
		So(err, ShouldBeNil)
		req := dispatch.Request{
			Current: current(),
			History: model.UserHistory{UserID: "u1", Parameters: readings(60)},
		}

		Convey("When fallback is enabled", func() {
			d := dispatch.New(table, dispatch.WithLogger(log))
			res, err := d.Recommend(context.Background(), req)

			Convey("Then cold-start answers and the reason is reported", func() {
				So(err, ShouldBeNil)
				So(res.Strategy, ShouldEqual, dispatch.StrategyColdStart)
				So(res.FallbackReason, ShouldEqual, dispatch.ReasonEmptyHistory)
				So(len(res.Advisories), ShouldEqual, 3)
			})

			Convey("And the fallback is logged", func() {
				So(buf.String(), ShouldContainSubstring, "falling back to cold-start")
				So(buf.String(), ShouldContainSubstring, dispatch.ReasonEmptyHistory)
			})
		})

		Convey("When fallback is disabled", func() {
			d := dispatch.New(table, dispatch.WithFallback(false), dispatch.WithLogger(log))
			_, err := d.Recommend(context.Background(), req)

			Convey("Then the ranker error is surfaced", func() {
				So(errors.Is(err, scoring.ErrEmptyHistory), ShouldBeTrue)
				So(buf.Len(), ShouldEqual, 0)
			})
		})

		Convey("When a historical reading is missing its timestamp", func() {
			bad := readings(50)
			bad[7].RecordedAt = time.Time{}
			d := dispatch.New(table, dispatch.WithLogger(log))
			res, err := d.Recommend(context.Background(), dispatch.Request{
				Current: current(),
				History: model.UserHistory{UserID: "u1", Parameters: bad, Recommendations: records()},
			})

			Convey("Then the malformed history triggers the fallback", func() {
				So(err, ShouldBeNil)
				So(res.FallbackReason, ShouldEqual, dispatch.ReasonMalformedHistory)
			})
		})
	})
}

type failingRanker struct{ err error }

func (f failingRanker) Best(model.Values, []model.RecommendationRecord) (scoring.Ranked, error) {
	return scoring.Ranked{}, f.err
}

func TestUnrecoverableRankerError(t *testing.T) {
	Convey("Given a ranker failing for an unrelated reason", t, func() {
		table, err := rules.Default()
		So(err, ShouldBeNil)
		boom := errors.New("boom")
		d := dispatch.New(table, dispatch.WithRanker(failingRanker{err: boom}))

		Convey("Then the error is surfaced even with fallback enabled", func() {
			_, err := d.Recommend(context.Background(), dispatch.Request{
				Current: current(),
				History: model.UserHistory{Parameters: readings(50), Recommendations: records()},
			})
			So(errors.Is(err, boom), ShouldBeTrue)
		})
	})
}

func TestRoute(t *testing.T) {
	Convey("Given the default and a custom threshold", t, func() {
		table, err := rules.Default()
		So(err, ShouldBeNil)

		Convey("Then the default boundary is inclusive at 50", func() {
			d := dispatch.New(table)
			So(d.Threshold(), ShouldEqual, dispatch.DefaultThreshold)
			So(d.Route(0), ShouldEqual, dispatch.StrategyColdStart)
			So(d.Route(49), ShouldEqual, dispatch.StrategyColdStart)
			So(d.Route(50), ShouldEqual, dispatch.StrategyContentBased)
		})

		Convey("Then a custom threshold moves the boundary", func() {
			d := dispatch.New(table, dispatch.WithThreshold(3))
			So(d.Route(2), ShouldEqual, dispatch.StrategyColdStart)
			So(d.Route(3), ShouldEqual, dispatch.StrategyContentBased)
		})

		Convey("Then a non-positive threshold is ignored", func() {
			d := dispatch.New(table, dispatch.WithThreshold(0))
			So(d.Threshold(), ShouldEqual, dispatch.DefaultThreshold)
		})
	})
}

func TestPayload(t *testing.T) {
	Convey("Given a cold-start result without advisories", t, func() {
		res := dispatch.Result{Strategy: dispatch.StrategyColdStart, Advisories: []coldstart.Advisory{}}

		Convey("Then the payload is an empty list, not null", func() {
			msgs, ok := res.Payload().([]string)
			So(ok, ShouldBeTrue)
			So(msgs, ShouldNotBeNil)
			So(msgs, ShouldBeEmpty)
		})
	})
}

package aggregate_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/restwell/internal/domain/aggregate"
	"github.com/okian/restwell/internal/domain/model"
	"github.com/okian/restwell/internal/domain/rules"
	. "github.com/smartystreets/goconvey/convey"
)

var base = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func TestReference(t *testing.T) {
	weights := rules.Weights{
		model.SnoringRange: 0.5,
		model.HeartRate:    0.3,
		model.Age:          0.2,
	}

	Convey("Given a current reading", t, func() {
		current := model.ParameterReading{
			UserID: "u1",
			Values: model.Values{model.SnoringRange: 0.6, model.HeartRate: 0.4, model.BloodOxygen: 0.9},
		}

		Convey("When there is no history", func() {
			ref, err := aggregate.Reference(current, nil, weights)

			Convey("Then the current values are used verbatim for weighted parameters", func() {
				So(err, ShouldBeNil)
				So(ref, ShouldResemble, model.Values{
					model.SnoringRange: 0.6,
					model.HeartRate:    0.4,
					model.Age:          0,
				})
			})
		})

		Convey("When there are several historical readings", func() {
			history := []model.ParameterReading{
				{ID: "old", RecordedAt: base, Values: model.Values{model.SnoringRange: 0, model.HeartRate: 0}},
				{ID: "new", RecordedAt: base.Add(48 * time.Hour), Values: model.Values{model.SnoringRange: 0.2, model.Age: 0.5}},
				{ID: "mid", RecordedAt: base.Add(24 * time.Hour), Values: model.Values{model.SnoringRange: 1, model.HeartRate: 1}},
			}
			ref, err := aggregate.Reference(current, history, weights)

			Convey("Then only the most recent one is averaged in, missing values counting as zero", func() {
				So(err, ShouldBeNil)
				So(ref[model.SnoringRange], ShouldAlmostEqual, 0.4)
				So(ref[model.HeartRate], ShouldAlmostEqual, 0.2)
				So(ref[model.Age], ShouldAlmostEqual, 0.25)
			})

			Convey("And the keys are exactly the weighted parameters", func() {
				So(len(ref), ShouldEqual, len(weights))
				_, hasOxygen := ref[model.BloodOxygen]
				So(hasOxygen, ShouldBeFalse)
			})
		})

		Convey("When the latest historical reading equals the current one", func() {
			history := []model.ParameterReading{
				{ID: "same", RecordedAt: base, Values: current.Values.Clone()},
			}
			ref, err := aggregate.Reference(current, history, weights)

			Convey("Then the reference is the current reading unchanged", func() {
				So(err, ShouldBeNil)
				for _, p := range weights.Parameters() {
					So(ref[p], ShouldEqual, current.ValueOrZero(p))
				}
			})
		})

		Convey("When a historical reading has no timestamp", func() {
			history := []model.ParameterReading{
				{ID: "ok", RecordedAt: base},
				{ID: "bad"},
			}
			_, err := aggregate.Reference(current, history, weights)

			Convey("Then it is reported as malformed", func() {
				So(errors.Is(err, aggregate.ErrMalformedHistoryRecord), ShouldBeTrue)
				So(errors.Is(err, model.ErrMalformedHistoryRecord), ShouldBeTrue)
			})
		})
	})
}

func TestLatest(t *testing.T) {
	Convey("Given readings sharing the same timestamp", t, func() {
		history := []model.ParameterReading{
			{ID: "first", RecordedAt: base},
			{ID: "second", RecordedAt: base},
		}

		Convey("Then the first one is selected", func() {
			latest, ok, err := aggregate.Latest(history)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(latest.ID, ShouldEqual, "first")
		})
	})

	Convey("Given no readings", t, func() {
		_, ok, err := aggregate.Latest(nil)

		Convey("Then nothing is selected", func() {
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})
	})
}

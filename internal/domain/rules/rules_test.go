package rules_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/restwell/internal/domain/model"
	"github.com/okian/restwell/internal/domain/rules"
	. "github.com/smartystreets/goconvey/convey"
)

const minimalTable = `
version: 1
weights:
  snoring_range: 0.5
  heart_rate: 0.5
ranges:
  - parameter: snoring_range
    intervals:
      - {low: 0, high: 50, message: "quiet"}
      - {low: 50, high: 100, message: "loud"}
  - parameter: heart_rate
    intervals:
      - {low: 40, high: 80, message: "calm"}
      - {low: 80, high: 120, message: "fast"}
`

func TestDefaultTable(t *testing.T) {
	Convey("Given the built-in rule table", t, func() {
		table, err := rules.Default()
		So(err, ShouldBeNil)
		So(table, ShouldNotBeNil)

		Convey("Then ranged parameters keep their declaration order", func() {
			So(table.RangedParameters(), ShouldResemble, []model.Parameter{
				model.SnoringRange,
				model.RespirationRate,
				model.BodyTemperature,
				model.LimbMovement,
				model.BloodOxygen,
				model.HeartRate,
				model.SleepDuration,
				model.Weight,
			})
		})

		Convey("Then every tracked parameter carries a non-negative weight", func() {
			So(len(table.Weights), ShouldEqual, 9)
			for _, p := range model.Parameters() {
				w, ok := table.Weights[p]
				So(ok, ShouldBeTrue)
				So(w, ShouldBeGreaterThanOrEqualTo, 0)
			}
			So(table.Weights[model.LimbMovement], ShouldEqual, 0.29742103)
		})

		Convey("Then age is weighted but never ranged", func() {
			_, ok := table.RangesFor(model.Age)
			So(ok, ShouldBeFalse)
			So(table.Unranged, ShouldContain, model.Age)
		})

		Convey("Then each parameter covers its documented domain with twenty buckets", func() {
			domains := map[model.Parameter][2]float64{
				model.SnoringRange:    {0, 100},
				model.RespirationRate: {10, 25},
				model.BodyTemperature: {35, 38},
				model.LimbMovement:    {0, 50},
				model.BloodOxygen:     {80, 100},
				model.HeartRate:       {40, 120},
				model.SleepDuration:   {1, 18},
				model.Weight:          {40, 180},
			}
			for p, d := range domains {
				r, ok := table.RangesFor(p)
				So(ok, ShouldBeTrue)
				So(r.Min(), ShouldEqual, d[0])
				So(r.Max(), ShouldEqual, d[1])
				So(len(r.Intervals), ShouldEqual, 20)
			}
		})

		Convey("Then intervals within a parameter are contiguous", func() {
			for _, r := range table.Ranges {
				for i := 1; i < len(r.Intervals); i++ {
					So(r.Intervals[i].Low, ShouldEqual, r.Intervals[i-1].High)
					So(r.Intervals[i].Low, ShouldBeLessThan, r.Intervals[i].High)
				}
			}
		})
	})
}

func TestWeightsParameters(t *testing.T) {
	Convey("Given a weight map", t, func() {
		w := rules.Weights{model.Weight: 1, model.SnoringRange: 2, model.Age: 3}

		Convey("Then parameters come back in model declaration order", func() {
			So(w.Parameters(), ShouldResemble, []model.Parameter{model.SnoringRange, model.Age, model.Weight})
		})
	})
}

func TestParse(t *testing.T) {
	Convey("Given a minimal valid table", t, func() {
		table, err := rules.Parse([]byte(minimalTable))

		Convey("Then it should decode and validate", func() {
			So(err, ShouldBeNil)
			So(table.Version, ShouldEqual, 1)
			So(len(table.Ranges), ShouldEqual, 2)
			So(table.Ranges[0].Intervals[1].Message, ShouldEqual, "loud")
		})
	})

	Convey("Given tables that break an invariant", t, func() {
		cases := []struct {
			name string
			doc  string
		}{
			{"overlapping intervals", `
version: 1
weights: {snoring_range: 1}
ranges:
  - parameter: snoring_range
    intervals:
      - {low: 0, high: 60, message: "a"}
      - {low: 50, high: 100, message: "b"}
`},
			{"a gap between intervals", `
version: 1
weights: {snoring_range: 1}
ranges:
  - parameter: snoring_range
    intervals:
      - {low: 0, high: 40, message: "a"}
      - {low: 50, high: 100, message: "b"}
`},
			{"an empty interval", `
version: 1
weights: {snoring_range: 1}
ranges:
  - parameter: snoring_range
    intervals:
      - {low: 10, high: 10, message: "a"}
`},
			{"a negative weight", `
version: 1
weights: {snoring_range: -0.1}
ranges:
  - parameter: snoring_range
    intervals:
      - {low: 0, high: 10, message: "a"}
`},
			{"an unknown parameter", `
version: 1
weights: {snoring_range: 1, pulse: 1}
ranges:
  - parameter: snoring_range
    intervals:
      - {low: 0, high: 10, message: "a"}
`},
			{"a ranged parameter without weight", `
version: 1
weights: {snoring_range: 1}
unranged: [heart_rate]
ranges:
  - parameter: snoring_range
    intervals:
      - {low: 0, high: 10, message: "a"}
  - parameter: weight
    intervals:
      - {low: 40, high: 180, message: "w"}
`},
			{"a weighted parameter without ranges", `
version: 1
weights: {snoring_range: 1, heart_rate: 1}
ranges:
  - parameter: snoring_range
    intervals:
      - {low: 0, high: 10, message: "a"}
`},
			{"a missing message", `
version: 1
weights: {snoring_range: 1}
ranges:
  - parameter: snoring_range
    intervals:
      - {low: 0, high: 10}
`},
		}

		for _, tc := range cases {
			Convey("When the table has "+tc.name, func() {
				_, err := rules.Parse([]byte(tc.doc))

				Convey("Then it should be rejected as invalid", func() {
					So(err, ShouldNotBeNil)
					So(errors.Is(err, rules.ErrInvalidTable), ShouldBeTrue)
				})
			})
		}
	})

	Convey("Given a document that is not YAML", t, func() {
		_, err := rules.Parse([]byte("version: [1"))

		Convey("Then it should fail to load", func() {
			So(errors.Is(err, rules.ErrLoadTable), ShouldBeTrue)
		})
	})
}

func TestLoad(t *testing.T) {
	Convey("Given a rule table on disk", t, func() {
		path := filepath.Join(t.TempDir(), "rules.yaml")
		So(os.WriteFile(path, []byte(minimalTable), 0o600), ShouldBeNil)

		Convey("When loading it by path", func() {
			table, err := rules.Load(context.Background(), path)

			Convey("Then the file replaces the built-in table", func() {
				So(err, ShouldBeNil)
				So(table.RangedParameters(), ShouldResemble, []model.Parameter{model.SnoringRange, model.HeartRate})
			})
		})

		Convey("When loading with an empty path", func() {
			table, err := rules.Load(context.Background(), "")

			Convey("Then the built-in table is used", func() {
				So(err, ShouldBeNil)
				So(len(table.Ranges), ShouldEqual, 8)
			})
		})

		Convey("When the same document is parsed from memory", func() {
			fromFile, err := rules.Load(context.Background(), path)
			So(err, ShouldBeNil)
			fromBytes, err := rules.Parse([]byte(minimalTable))
			So(err, ShouldBeNil)

			Convey("Then both sources decode to the same table", func() {
				So(fromBytes, ShouldResemble, fromFile)
			})
		})

		Convey("When the path does not exist", func() {
			_, err := rules.Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))

			Convey("Then loading fails", func() {
				So(errors.Is(err, rules.ErrLoadTable), ShouldBeTrue)
			})
		})
	})
}

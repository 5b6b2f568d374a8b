package coldstart_test

import (
	"testing"

	"github.com/okian/restwell/internal/domain/coldstart"
	"github.com/okian/restwell/internal/domain/model"
	"github.com/okian/restwell/internal/domain/rules"
	. "github.com/smartystreets/goconvey/convey"
)

func reading(values model.Values) model.ParameterReading {
	return model.ParameterReading{UserID: "u1", Values: values}
}

func TestEvaluate(t *testing.T) {
	Convey("Given a cold-start engine over the built-in table", t, func() {
		table, err := rules.Default()
		So(err, ShouldBeNil)
		engine := coldstart.New(table)

		Convey("When snoring and sleep are in range and respiration is not", func() {
			out := engine.Evaluate(reading(model.Values{
				model.SnoringRange:    12,
				model.RespirationRate: 30,
				model.SleepDuration:   8,
			}))

			Convey("Then one advisory per supplied parameter is returned in table order", func() {
				So(len(out), ShouldEqual, 3)
				So(out[0].Parameter, ShouldEqual, model.SnoringRange)
				So(out[1].Parameter, ShouldEqual, model.RespirationRate)
				So(out[2].Parameter, ShouldEqual, model.SleepDuration)
			})

			Convey("And snoring matches the 10-15 bucket", func() {
				So(out[0].InRange, ShouldBeTrue)
				So(out[0].Message, ShouldEqual, "Minimal snoring observed. Regular exercise can help maintain this level.")
			})

			Convey("And respiration degrades to an out-of-range advisory naming the value", func() {
				So(out[1].InRange, ShouldBeFalse)
				So(out[1].Message, ShouldContainSubstring, "Value 30 ")
				So(out[1].Message, ShouldContainSubstring, "respiration_rate")
			})

			Convey("And sleep duration of 8 hours falls in the 7.8-8.65 bucket", func() {
				So(out[2].Message, ShouldEqual, "Ideal sleep duration. Maintain this habit for overall well-being.")
			})
		})

		Convey("When sleep duration sits in the optimal bucket", func() {
			out := engine.Evaluate(reading(model.Values{model.SleepDuration: 7}))

			Convey("Then the optimal message is returned", func() {
				So(coldstart.Messages(out), ShouldResemble, []string{"Optimal sleep duration. Your sleep quality is on point."})
			})
		})

		Convey("When the reading carries no ranged parameters", func() {
			out := engine.Evaluate(reading(model.Values{model.Age: 40}))

			Convey("Then nothing is emitted", func() {
				So(out, ShouldBeEmpty)
			})
		})

		Convey("When every ranged parameter is supplied", func() {
			out := engine.Evaluate(reading(model.Values{
				model.Weight:          70,
				model.HeartRate:       65,
				model.SleepDuration:   7,
				model.BloodOxygen:     97,
				model.LimbMovement:    4,
				model.BodyTemperature: 36.6,
				model.RespirationRate: 14,
				model.SnoringRange:    3,
				model.Age:             33,
			}))

			Convey("Then advisories follow table order regardless of input order", func() {
				got := make([]model.Parameter, len(out))
				for i, a := range out {
					got[i] = a.Parameter
				}
				So(got, ShouldResemble, table.RangedParameters())
				So(coldstart.OutOfRange(out), ShouldBeEmpty)
			})
		})
	})
}

func TestMatchBoundaries(t *testing.T) {
	Convey("Given every interval of the built-in table", t, func() {
		table, err := rules.Default()
		So(err, ShouldBeNil)

		Convey("Then the low bound and midpoint return that interval's message", func() {
			for _, r := range table.Ranges {
				for _, iv := range r.Intervals {
					So(coldstart.Match(r, iv.Low).Message, ShouldEqual, iv.Message)
					So(coldstart.Match(r, (iv.Low+iv.High)/2).Message, ShouldEqual, iv.Message)
				}
			}
		})

		Convey("Then a value equal to High belongs to the next interval", func() {
			for _, r := range table.Ranges {
				for i := 0; i < len(r.Intervals)-1; i++ {
					a := coldstart.Match(r, r.Intervals[i].High)
					So(a.InRange, ShouldBeTrue)
					So(a.Message, ShouldEqual, r.Intervals[i+1].Message)
				}
			}
		})

		Convey("Then values below the minimum or at the maximum are out of range", func() {
			for _, r := range table.Ranges {
				below := coldstart.Match(r, r.Min()-0.5)
				So(below.InRange, ShouldBeFalse)
				So(below.Message, ShouldContainSubstring, coldstart.FormatValue(r.Min()-0.5))

				atMax := coldstart.Match(r, r.Max())
				So(atMax.InRange, ShouldBeFalse)
				So(atMax.Message, ShouldContainSubstring, coldstart.FormatValue(r.Max()))
			}
		})
	})
}

func TestFormatValue(t *testing.T) {
	Convey("Given numeric values", t, func() {
		Convey("Then whole numbers print without a fraction", func() {
			So(coldstart.FormatValue(30), ShouldEqual, "30")
		})
		Convey("Then fractions print in shortest form", func() {
			So(coldstart.FormatValue(37.25), ShouldEqual, "37.25")
			So(coldstart.FormatValue(-0.5), ShouldEqual, "-0.5")
		})
	})
}

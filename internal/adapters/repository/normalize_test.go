package repository_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/restwell/internal/adapters/repository"
	"github.com/okian/restwell/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDecodeHistory(t *testing.T) {
	Convey("Given a canonical history document", t, func() {
		doc := `{
			"user_id": "u1",
			"parameters": [
				{"id": "r1", "recorded_at": "2024-01-02T08:00:00Z", "values": {"heart_rate": 0.4, "unknown": 3}}
			],
			"recommendations": [
				{"id": "c1", "recommendation_date": "2024-02-01", "technique": "Box breathing", "values": {"snoring_range": 0.2}}
			]
		}`
		h, err := repository.DecodeHistory([]byte(doc), "")

		Convey("Then it decodes verbatim and drops unknown parameters", func() {
			So(err, ShouldBeNil)
			So(h.UserID, ShouldEqual, "u1")
			So(h.Parameters, ShouldResemble, []model.ParameterReading{{
				ID: "r1", UserID: "u1",
				RecordedAt: time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC),
				Values:     model.Values{model.HeartRate: 0.4},
			}})
			So(h.Recommendations[0].ID, ShouldEqual, "c1")
			So(h.Recommendations[0].Technique, ShouldEqual, "Box breathing")
			So(h.Recommendations[0].RecommendationDate, ShouldEqual, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
			So(h.Recommendations[0].Values, ShouldResemble, model.Values{model.SnoringRange: 0.2})
		})
	})

	Convey("Given a legacy nested-envelope document", t, func() {
		doc := `{
			"parameters": [{"parameters": [
				{"_id": {"$oid": "65a1"}, "recordedAt": {"$date": "2024-01-05T10:00:00Z"}, "heart_rate": 72, "sleep_duration": 6.5, "deviceInfo": "band"},
				{"recordedAt": "2024-01-06T10:00:00Z", "heart_rate": 70}
			]}],
			"recommendations": [{"recommendations": [
				{"recommendationDate": "2024-01-06T11:00:00Z", "recommendationText": "Progressive muscle relaxation", "heart_rate": 0.5}
			]}]
		}`
		h, err := repository.DecodeHistory([]byte(doc), "legacy-user")

		Convey("Then it is normalised into the canonical shape", func() {
			So(err, ShouldBeNil)
			So(h.UserID, ShouldEqual, "legacy-user")
			So(len(h.Parameters), ShouldEqual, 2)
			So(h.Parameters[0].ID, ShouldEqual, "65a1")
			So(h.Parameters[0].RecordedAt, ShouldEqual, time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC))
			So(h.Parameters[0].Values, ShouldResemble, model.Values{model.HeartRate: 72, model.SleepDuration: 6.5})
			So(h.Parameters[1].ID, ShouldNotBeEmpty)
			So(h.Recommendations[0].Technique, ShouldEqual, "Progressive muscle relaxation")
			So(h.Recommendations[0].Values, ShouldResemble, model.Values{model.HeartRate: 0.5})
		})

		Convey("Then derived IDs are stable across decodes", func() {
			again, err := repository.DecodeHistory([]byte(doc), "legacy-user")
			So(err, ShouldBeNil)
			So(again.Parameters[1].ID, ShouldEqual, h.Parameters[1].ID)
			So(again.Recommendations[0].ID, ShouldEqual, h.Recommendations[0].ID)
		})
	})

	Convey("Given a flat legacy list without an envelope", t, func() {
		doc := `{"user_id": "u1", "recommendations": [
			{"recommendationDate": "2024-01-01", "Technique": "Yoga", "weight": 0.7}
		]}`
		h, err := repository.DecodeHistory([]byte(doc), "")

		Convey("Then the rows are read directly", func() {
			So(err, ShouldBeNil)
			So(h.Parameters, ShouldBeEmpty)
			So(h.Recommendations[0].Technique, ShouldEqual, "Yoga")
			So(h.Recommendations[0].Values, ShouldResemble, model.Values{model.Weight: 0.7})
		})
	})

	Convey("Given a row without a timestamp", t, func() {
		doc := `{"user_id": "u1", "parameters": [{"id": "r1", "values": {}}]}`
		h, err := repository.DecodeHistory([]byte(doc), "")

		Convey("Then it is kept with a zero time for the engine to reject", func() {
			So(err, ShouldBeNil)
			So(h.Parameters[0].RecordedAt.IsZero(), ShouldBeTrue)
		})
	})

	Convey("Given invalid documents", t, func() {
		cases := []struct {
			name string
			doc  string
		}{
			{"malformed JSON", `{"user_id": `},
			{"no user", `{"parameters": []}`},
			{"a non-list parameters field", `{"user_id": "u", "parameters": {"a": 1}}`},
			{"a non-numeric value", `{"user_id": "u", "parameters": [{"recordedAt": "2024-01-01", "heart_rate": "fast"}]}`},
			{"an unparseable timestamp", `{"user_id": "u", "parameters": [{"recorded_at": "yesterday"}]}`},
			{"a recommendation without technique", `{"user_id": "u", "recommendations": [{"recommendation_date": "2024-01-01"}]}`},
			{"a row owned by another user", `{"user_id": "u", "parameters": [{"user_id": "v", "recorded_at": "2024-01-01"}]}`},
		}
		for _, tc := range cases {
			Convey("When decoding "+tc.name, func() {
				_, err := repository.DecodeHistory([]byte(tc.doc), "")

				Convey("Then ErrInvalidHistory is returned", func() {
					So(errors.Is(err, repository.ErrInvalidHistory), ShouldBeTrue)
				})
			})
		}
	})
}

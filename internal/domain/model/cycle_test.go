package model_test

import (
	"testing"
	"time"

	"github.com/okian/aiweather/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTruncateToHour(t *testing.T) {
	Convey("Given a timestamp in the middle of an hour", t, func() {
		ts := time.Date(2024, 5, 1, 10, 42, 17, 999, time.UTC)

		Convey("When truncating to the hour", func() {
			got := model.TruncateToHour(ts)

			Convey("Then minutes and below should be cleared", func() {
				So(got.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)), ShouldBeTrue)
			})
		})
	})

	Convey("Given a timestamp in a half-hour offset zone", t, func() {
		loc := time.FixedZone("IST", 5*3600+30*60)
		ts := time.Date(2024, 5, 1, 10, 42, 0, 0, loc)

		Convey("Then truncation should follow the wall clock of that zone", func() {
			got := model.TruncateToHour(ts)
			So(got.Hour(), ShouldEqual, 10)
			So(got.Minute(), ShouldEqual, 0)
			So(got.Location(), ShouldEqual, loc)
		})
	})
}

func TestStatus(t *testing.T) {
	Convey("Given the visualization statuses", t, func() {
		Convey("Then the wire values should be stable", func() {
			So(string(model.StatusOutdated), ShouldEqual, "outdated")
			So(string(model.StatusGenerating), ShouldEqual, "generating")
			So(string(model.StatusUpToDate), ShouldEqual, "up_to_date")
		})

		Convey("Then only known statuses should be valid", func() {
			So(model.StatusGenerating.Valid(), ShouldBeTrue)
			So(model.Status("done").Valid(), ShouldBeFalse)
		})
	})
}

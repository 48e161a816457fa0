package state_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/okian/aiweather/internal/adapters/archive"
	"github.com/okian/aiweather/internal/domain/model"
	"github.com/okian/aiweather/internal/state"
	"github.com/okian/aiweather/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type fakeLoader struct {
	cycle *archive.Cycle
	err   error
	asked []string
}

func (f *fakeLoader) LoadLatest(_ context.Context, workers []string) (*archive.Cycle, error) {
	f.asked = workers
	return f.cycle, f.err
}

func TestCacheMutations(t *testing.T) {
	Convey("Given a cache for workers A and B", t, func() {
		c := state.New([]string{"A", "B"}, nil)

		Convey("Then every worker should start outdated with no data", func() {
			So(c.Status("A"), ShouldEqual, model.StatusOutdated)
			So(c.Status("B"), ShouldEqual, model.StatusOutdated)
			_, ok := c.Timestamp()
			So(ok, ShouldBeFalse)
			So(c.RawData(), ShouldBeNil)
		})

		Convey("When fields are replaced", func() {
			ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
			c.SetTimestamp(ts)
			c.SetRawData(json.RawMessage(`{"t":1}`))
			So(c.SetWorkerResult("A", "<p>A</p>"), ShouldBeNil)
			So(c.SetWorkerStatus("A", model.StatusUpToDate), ShouldBeNil)

			Convey("Then reads should reflect them", func() {
				got, ok := c.Timestamp()
				So(ok, ShouldBeTrue)
				So(got.Equal(ts), ShouldBeTrue)
				So(string(c.RawData()), ShouldEqual, `{"t":1}`)
				out, ok := c.Result("A")
				So(ok, ShouldBeTrue)
				So(out, ShouldEqual, "<p>A</p>")
				So(c.Status("A"), ShouldEqual, model.StatusUpToDate)
			})

			Convey("Then MarkAllOutdated should reset statuses but keep results", func() {
				c.MarkAllOutdated()
				So(c.Status("A"), ShouldEqual, model.StatusOutdated)
				_, ok := c.Result("A")
				So(ok, ShouldBeTrue)
			})
		})

		Convey("When writing an unknown worker", func() {
			err := c.SetWorkerResult("Z", "x")
			statusErr := c.SetWorkerStatus("Z", model.StatusGenerating)

			Convey("Then it should be rejected and not stored", func() {
				So(errors.Is(err, state.ErrUnknownWorker), ShouldBeTrue)
				So(errors.Is(statusErr, state.ErrUnknownWorker), ShouldBeTrue)
				snap := c.Snapshot()
				So(snap.Results, ShouldNotContainKey, "Z")
				So(snap.Statuses, ShouldNotContainKey, "Z")
			})
		})

		Convey("When writing an invalid status", func() {
			err := c.SetWorkerStatus("A", model.Status("done"))

			Convey("Then it should be rejected", func() {
				So(errors.Is(err, state.ErrInvalidStatus), ShouldBeTrue)
			})
		})
	})
}

func TestLoadFromArchive(t *testing.T) {
	Convey("Given a cache and an empty archive", t, func() {
		c := state.New([]string{"A"}, nil)
		loaded, err := c.LoadFromArchive(context.Background(), &fakeLoader{err: archive.ErrNoCycle})

		Convey("Then nothing should be loaded and no error returned", func() {
			So(err, ShouldBeNil)
			So(loaded, ShouldBeFalse)
			_, ok := c.Timestamp()
			So(ok, ShouldBeFalse)
		})
	})

	Convey("Given an archive whose latest cycle lacks worker B", t, func() {
		ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		loader := &fakeLoader{cycle: &archive.Cycle{
			Timestamp: ts,
			RawData:   json.RawMessage(`{"temp":3}`),
			Results:   map[string]string{"A": "<p>A</p>"},
			Missing:   []string{"B"},
		}}
		c := state.New([]string{"A", "B"}, nil)

		Convey("When loading from it", func() {
			loaded, err := c.LoadFromArchive(context.Background(), loader)

			Convey("Then present results should be up to date and missing ones outdated", func() {
				So(err, ShouldBeNil)
				So(loaded, ShouldBeTrue)
				So(loader.asked, ShouldResemble, []string{"A", "B"})
				So(c.Status("A"), ShouldEqual, model.StatusUpToDate)
				So(c.Status("B"), ShouldEqual, model.StatusOutdated)
				So(string(c.RawData()), ShouldEqual, `{"temp":3}`)
				got, _ := c.Timestamp()
				So(got.Equal(ts), ShouldBeTrue)
			})
		})
	})

	Convey("Given an archive that fails to read", t, func() {
		c := state.New([]string{"A"}, nil)
		_, err := c.LoadFromArchive(context.Background(), &fakeLoader{err: archive.ErrArchiveRead})

		Convey("Then the error should propagate", func() {
			So(errors.Is(err, archive.ErrArchiveRead), ShouldBeTrue)
		})
	})
}

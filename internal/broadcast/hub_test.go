package broadcast_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/aiweather/internal/broadcast"
	"github.com/okian/aiweather/internal/domain/model"
	"github.com/okian/aiweather/internal/domain/types"
	"github.com/okian/aiweather/internal/state"
	"github.com/okian/aiweather/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// fakeConn records messages and can be told to fail.
type fakeConn struct {
	mu     sync.Mutex
	msgs   []any
	fail   bool
	closed bool
}

func (f *fakeConn) Send(_ context.Context, msg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broken pipe")
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) messages() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.msgs...)
}

func (f *fakeConn) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func typesOf(msgs []any) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.(types.Message).MessageType())
	}
	return out
}

func TestConnect(t *testing.T) {
	Convey("Given a hub over an empty cache", t, func() {
		ctx := context.Background()
		cache := state.New([]string{"A", "B"}, nil)
		hub := broadcast.New(cache, []string{"A", "B"}, "T {weather_json}")
		conn := &fakeConn{}

		Convey("When an observer connects", func() {
			id, err := hub.Connect(ctx, conn)

			Convey("Then config and one visualization per worker should arrive, without weather", func() {
				So(err, ShouldBeNil)
				So(id, ShouldNotBeEmpty)
				So(typesOf(conn.messages()), ShouldResemble, []string{
					types.TypeConfigInfo, types.TypeVisualizationUpdate, types.TypeVisualizationUpdate,
				})
				cfg := conn.messages()[0].(types.ConfigInfo)
				So(cfg.Models, ShouldResemble, []string{"A", "B"})
				So(cfg.PromptTemplate, ShouldEqual, "T {weather_json}")

				viz := conn.messages()[1].(types.VisualizationUpdate)
				So(viz.ModelName, ShouldEqual, "A")
				So(viz.HTML, ShouldBeNil)
				So(viz.RawHTML, ShouldBeNil)
				So(viz.Status, ShouldEqual, model.StatusOutdated)
				So(hub.Len(), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a hub over a populated cache", t, func() {
		ctx := context.Background()
		cache := state.New([]string{"A"}, nil)
		cache.SetTimestamp(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
		cache.SetRawData(json.RawMessage(`{"temp":21}`))
		So(cache.SetWorkerResult("A", "```html\n<p>A</p>\n```"), ShouldBeNil)
		So(cache.SetWorkerStatus("A", model.StatusUpToDate), ShouldBeNil)
		hub := broadcast.New(cache, []string{"A"}, "T")
		conn := &fakeConn{}

		Convey("When an observer connects", func() {
			_, err := hub.Connect(ctx, conn)
			msgs := conn.messages()

			Convey("Then config, weather and visualization should arrive in order", func() {
				So(err, ShouldBeNil)
				So(typesOf(msgs), ShouldResemble, []string{
					types.TypeConfigInfo, types.TypeWeatherData, types.TypeVisualizationUpdate,
				})
				weather := msgs[1].(types.WeatherData)
				So(weather.Timestamp, ShouldEqual, "2024-05-01T10:00:00Z")
				So(string(weather.Weather), ShouldEqual, `{"temp":21}`)
			})

			Convey("Then html should be the normalized form of raw_html", func() {
				viz := msgs[2].(types.VisualizationUpdate)
				So(*viz.RawHTML, ShouldEqual, "```html\n<p>A</p>\n```")
				So(*viz.HTML, ShouldEqual, "<p>A</p>")
				So(viz.Status, ShouldEqual, model.StatusUpToDate)
			})
		})
	})

	Convey("Given an observer that fails during the initial push", t, func() {
		hub := broadcast.New(state.New(nil, nil), nil, "T")
		conn := &fakeConn{fail: true}

		Convey("Then it should be rejected and not tracked", func() {
			_, err := hub.Connect(context.Background(), conn)
			So(errors.Is(err, broadcast.ErrObserverClosed), ShouldBeTrue)
			So(hub.Len(), ShouldEqual, 0)
			So(conn.closed, ShouldBeTrue)
		})
	})
}

func TestBroadcastEviction(t *testing.T) {
	Convey("Given three connected observers", t, func() {
		ctx := context.Background()
		cache := state.New([]string{"A"}, nil)
		hub := broadcast.New(cache, []string{"A"}, "T")
		a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{}
		for _, conn := range []*fakeConn{a, b, c} {
			_, err := hub.Connect(ctx, conn)
			So(err, ShouldBeNil)
		}

		Convey("When one observer fails during a broadcast", func() {
			b.setFail(true)
			delivered := hub.BroadcastVisualization(ctx, "A")

			Convey("Then only that observer should be evicted", func() {
				So(delivered, ShouldEqual, 2)
				So(hub.Len(), ShouldEqual, 2)
				So(b.closed, ShouldBeTrue)
			})

			Convey("Then a later broadcast should reach the rest", func() {
				before := len(a.messages())
				So(hub.BroadcastVisualization(ctx, "A"), ShouldEqual, 2)
				So(len(a.messages()), ShouldEqual, before+1)
				So(len(c.messages()), ShouldEqual, before+1)
			})
		})

		Convey("When broadcasting weather with nothing cached", func() {
			before := len(a.messages())

			Convey("Then no message should be sent", func() {
				So(hub.BroadcastWeather(ctx), ShouldEqual, 0)
				So(len(a.messages()), ShouldEqual, before)
			})
		})

		Convey("When an observer disconnects normally", func() {
			hub.Disconnect(ctx, a)

			Convey("Then it should no longer receive broadcasts", func() {
				before := len(a.messages())
				So(hub.BroadcastVisualization(ctx, "A"), ShouldEqual, 2)
				So(len(a.messages()), ShouldEqual, before)
				So(a.closed, ShouldBeFalse)
			})
		})

		Convey("When the hub is closed", func() {
			hub.CloseAll(ctx)

			Convey("Then every observer should be closed and new ones rejected", func() {
				So(hub.Len(), ShouldEqual, 0)
				So(a.closed && b.closed && c.closed, ShouldBeTrue)
				_, err := hub.Connect(ctx, &fakeConn{})
				So(err, ShouldEqual, broadcast.ErrHubClosed)
			})
		})
	})
}

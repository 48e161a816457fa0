package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created with the service namespace", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "aiweather")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("sub"),
				WithMetricPrefix("pfx"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.cyclesTotal.WithLabelValues(CycleSuccess).Inc()

			Convey("Then metric names should carry namespace, subsystem and prefix", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_sub_pfx_cycles_total")
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording cycle results", func() {
			before := testutil.ToFloat64(globalManager.cyclesTotal.WithLabelValues(CycleFetchFailed))
			RecordCycle(CycleFetchFailed)

			Convey("Then the labelled counter should increase by one", func() {
				after := testutil.ToFloat64(globalManager.cyclesTotal.WithLabelValues(CycleFetchFailed))
				So(after-before, ShouldEqual, 1)
			})
		})

		Convey("When tracking in-flight generations", func() {
			IncGenerationInFlight()
			IncGenerationInFlight()
			DecGenerationInFlight()

			Convey("Then the gauge should reflect the balance", func() {
				So(testutil.ToFloat64(globalManager.generationInFlight), ShouldEqual, 1)
				DecGenerationInFlight()
			})
		})

		Convey("When recording observer activity", func() {
			UpdateObserversConnected(3)
			RecordObserverEviction()

			Convey("Then gauges and counters should be updated", func() {
				So(testutil.ToFloat64(globalManager.observersConnected), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.observerEvictions), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When recording the remaining helpers", func() {
			Convey("Then none of them should panic", func() {
				So(func() {
					RecordCycleDuration(2 * time.Second)
					MarkCycleSuccess(time.Now())
					SetCycleInFlight(true)
					SetCycleInFlight(false)
					RecordGenerationDuration("llama", time.Second)
					RecordGenerationFailure("llama", "timeout")
					RecordProgressUpdate("llama")
					RecordArchiveWrite("metadata")
					RecordArchiveError("metadata")
					RecordBroadcastMessage("weather_data")
					RecordHTTPRequest("health", "GET", "200")
					RecordHTTPRequestDuration("health", "GET", "200", 1.5)
					UpdateSystemMemoryUsage(1024)
					UpdateSystemGoroutineCount(10)
					RecordSystemGCPauseTime(0.5)
				}, ShouldNotPanic)
			})
		})

		Convey("When fetching the registry", func() {
			Convey("Then it should be the custom registry", func() {
				So(GetRegistry(), ShouldEqual, customRegistry)
			})
		})
	})
}

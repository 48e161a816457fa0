package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	app "github.com/okian/aiweather/internal/app"
	"github.com/okian/aiweather/internal/config"
	"github.com/okian/aiweather/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type staticFetcher struct{}

func (staticFetcher) Fetch(context.Context) (string, error) { return `{"temp":1}`, nil }

type staticGenerator struct{}

func (staticGenerator) Generate(_ context.Context, _, _ string, _ float64, onChunk func(string)) (string, error) {
	onChunk("<p>x</p>")
	return "<p>x</p>", nil
}

func (staticGenerator) IsAvailable(context.Context) bool { return true }

func TestMainFunction(t *testing.T) {
	convey.Convey("Given a service built from config", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.Weather.APIKey = "key"
		cfg.Storage.DataDir = t.TempDir()
		m := config.DefaultModel()
		m.Name, m.ModelID = "llama", "llama3.2"
		cfg.Models = []config.ModelConfig{m}

		svc, err := app.New(cfg, app.WithFetcher(staticFetcher{}), app.WithGenerator(staticGenerator{}))
		convey.So(err, convey.ShouldBeNil)
		mux := newMux(ctx, svc)

		convey.Convey("When requesting each registered route", func() {
			cases := map[string]int{
				"/":             http.StatusOK,
				"/health":       http.StatusOK,
				"/stats":        http.StatusOK,
				"/metrics":      http.StatusOK,
				"/openapi.yaml": http.StatusOK,
				"/api-docs":     http.StatusOK,
				"/missing.css":  http.StatusNotFound,
			}

			convey.Convey("Then every route answers as expected", func() {
				for path, want := range cases {
					w := httptest.NewRecorder()
					mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
					convey.So(w.Code, convey.ShouldEqual, want)
				}
			})
		})

		convey.Convey("When the system metrics are updated", func() {
			convey.Convey("Then it should not panic", func() {
				convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			})
		})
	})
}

package types_test

import (
	"encoding/json"
	"testing"

	"github.com/okian/aiweather/internal/domain/model"
	types "github.com/okian/aiweather/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestConfigInfo(t *testing.T) {
	Convey("Given a config_info message", t, func() {
		msg := types.NewConfigInfo("Render {weather_json}", []string{"A", "B"})

		Convey("When encoding it", func() {
			raw, err := json.Marshal(msg)
			So(err, ShouldBeNil)

			Convey("Then it should carry the discriminator and fields", func() {
				So(string(raw), ShouldEqual, `{"type":"config_info","prompt_template":"Render {weather_json}","models":["A","B"]}`)
				So(msg.MessageType(), ShouldEqual, types.TypeConfigInfo)
			})
		})

		Convey("When no models are configured", func() {
			raw, _ := json.Marshal(types.NewConfigInfo("t", nil))

			Convey("Then models should be an empty list, not null", func() {
				So(string(raw), ShouldContainSubstring, `"models":[]`)
			})
		})
	})
}

func TestWeatherData(t *testing.T) {
	Convey("Given a weather_data message", t, func() {
		msg := types.NewWeatherData("2024-05-01T10:00:00Z", json.RawMessage(`{"temp":21.5}`))

		Convey("Then the weather object should be embedded verbatim", func() {
			raw, err := json.Marshal(msg)
			So(err, ShouldBeNil)
			So(string(raw), ShouldEqual, `{"type":"weather_data","timestamp":"2024-05-01T10:00:00Z","weather":{"temp":21.5}}`)
		})
	})
}

func TestVisualizationUpdate(t *testing.T) {
	Convey("Given a visualization_update with no output yet", t, func() {
		msg := types.NewVisualizationUpdate("A", nil, nil, model.StatusOutdated)

		Convey("Then html and raw_html should encode as null", func() {
			raw, err := json.Marshal(msg)
			So(err, ShouldBeNil)
			So(string(raw), ShouldEqual, `{"type":"visualization_update","model_name":"A","html":null,"raw_html":null,"status":"outdated"}`)
		})
	})

	Convey("Given a visualization_update with output", t, func() {
		html, raw := "<p>x</p>", "```\n<p>x</p>\n```"
		msg := types.NewVisualizationUpdate("A", &html, &raw, model.StatusUpToDate)

		Convey("Then both forms should be present", func() {
			var env map[string]any
			b, _ := json.Marshal(msg)
			So(json.Unmarshal(b, &env), ShouldBeNil)
			So(env["html"], ShouldEqual, html)
			So(env["raw_html"], ShouldEqual, raw)
			So(env["status"], ShouldEqual, "up_to_date")
		})
	})
}

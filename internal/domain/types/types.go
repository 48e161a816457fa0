// Package types contains the wire messages pushed to observers.
package types

import (
	"encoding/json"

	"github.com/okian/aiweather/internal/domain/model"
)

// Message type discriminators.
const (
	TypeConfigInfo          = "config_info"
	TypeWeatherData         = "weather_data"
	TypeVisualizationUpdate = "visualization_update"
)

// Message is implemented by every broadcast shape.
type Message interface {
	MessageType() string
}

// ConfigInfo tells a new observer which models exist and how they are prompted.
type ConfigInfo struct {
	Type           string   `json:"type"`
	PromptTemplate string   `json:"prompt_template"`
	Models         []string `json:"models"`
}

// MessageType implements Message.
func (ConfigInfo) MessageType() string { return TypeConfigInfo }

// WeatherData carries the current cycle's payload.
type WeatherData struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Weather   json.RawMessage `json:"weather"`
}

// MessageType implements Message.
func (WeatherData) MessageType() string { return TypeWeatherData }

// VisualizationUpdate carries one model's output and status. HTML and RawHTML
// are both nil until the model has produced something.
type VisualizationUpdate struct {
	Type      string       `json:"type"`
	ModelName string       `json:"model_name"`
	HTML      *string      `json:"html"`
	RawHTML   *string      `json:"raw_html"`
	Status    model.Status `json:"status"`
}

// MessageType implements Message.
func (VisualizationUpdate) MessageType() string { return TypeVisualizationUpdate }

// NewConfigInfo builds a config_info message.
func NewConfigInfo(promptTemplate string, models []string) ConfigInfo {
	if models == nil {
		models = []string{}
	}
	return ConfigInfo{Type: TypeConfigInfo, PromptTemplate: promptTemplate, Models: models}
}

// NewWeatherData builds a weather_data message.
func NewWeatherData(timestamp string, weather json.RawMessage) WeatherData {
	return WeatherData{Type: TypeWeatherData, Timestamp: timestamp, Weather: weather}
}

// NewVisualizationUpdate builds a visualization_update message. An empty raw
// pointer yields null html and raw_html.
func NewVisualizationUpdate(modelName string, html, raw *string, status model.Status) VisualizationUpdate {
	return VisualizationUpdate{
		Type:      TypeVisualizationUpdate,
		ModelName: modelName,
		HTML:      html,
		RawHTML:   raw,
		Status:    status,
	}
}

// Envelope decodes just the discriminator of an incoming message.
type Envelope struct {
	Type string `json:"type"`
}

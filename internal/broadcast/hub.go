// Package broadcast fans state changes out to connected observers.
// Delivery is best effort: an observer whose send fails is evicted.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/aiweather/internal/domain/model"
	"github.com/okian/aiweather/internal/domain/normalize"
	"github.com/okian/aiweather/internal/domain/types"
	"github.com/okian/aiweather/pkg/logger"
	"github.com/okian/aiweather/pkg/metrics"
)

const defaultSendTimeout = 10 * time.Second

// Conn is one observer connection.
type Conn interface {
	Send(ctx context.Context, msg any) error
	Close() error
}

// Source is the read side of the state cache.
type Source interface {
	Timestamp() (time.Time, bool)
	RawData() json.RawMessage
	Result(worker string) (string, bool)
	Status(worker string) model.Status
}

// Hub owns the observer set. Deliveries are serialized so every observer
// sees messages in the order they were broadcast.
type Hub struct {
	mu     sync.Mutex
	conns  map[Conn]string
	closed bool

	sendMu sync.Mutex

	source         Source
	workers        []string
	promptTemplate string
	normalizer     *normalize.Normalizer
	sendTimeout    time.Duration
	log            logger.Logger
}

// New creates a Hub reading from source for the given enabled workers.
func New(source Source, workers []string, promptTemplate string, opts ...Option) *Hub {
	h := &Hub{
		conns:          make(map[Conn]string),
		source:         source,
		workers:        slices.Clone(workers),
		promptTemplate: promptTemplate,
		normalizer:     normalize.New(),
		sendTimeout:    defaultSendTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = logger.Named("broadcast")
	}
	return h
}

// Connect registers c and pushes config_info, weather_data when cached, and
// one visualization_update per worker. It returns the observer id.
func (h *Hub) Connect(ctx context.Context, c Conn) (string, error) {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	id := uuid.NewString()
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return "", ErrHubClosed
	}
	h.conns[c] = id
	total := len(h.conns)
	h.mu.Unlock()
	metrics.UpdateObserversConnected(total)
	h.log.Info(ctx, "client connected", logger.String("observer", id), logger.Int("total", total))

	initial := []types.Message{h.ConfigMessage()}
	if msg, ok := h.WeatherMessage(); ok {
		initial = append(initial, msg)
	}
	for _, w := range h.workers {
		initial = append(initial, h.VisualizationMessage(w))
	}
	for _, msg := range initial {
		if err := h.send(ctx, c, msg); err != nil {
			h.evict(ctx, c, err)
			return id, fmt.Errorf("%w: initial %s: %w", ErrObserverClosed, msg.MessageType(), err)
		}
	}
	return id, nil
}

// Disconnect removes c after a normal close by the observer.
func (h *Hub) Disconnect(ctx context.Context, c Conn) {
	h.mu.Lock()
	id, ok := h.conns[c]
	delete(h.conns, c)
	total := len(h.conns)
	h.mu.Unlock()
	if !ok {
		return
	}
	metrics.UpdateObserversConnected(total)
	h.log.Info(ctx, "client disconnected", logger.String("observer", id), logger.Int("total", total))
}

// Broadcast delivers msg to every observer and evicts those that fail.
// It returns the number of successful deliveries.
func (h *Hub) Broadcast(ctx context.Context, msg types.Message) int {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	h.mu.Lock()
	targets := make([]Conn, 0, len(h.conns))
	for c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	delivered := 0
	for _, c := range targets {
		if err := h.send(ctx, c, msg); err != nil {
			h.evict(ctx, c, err)
			continue
		}
		delivered++
	}
	metrics.RecordBroadcastMessage(msg.MessageType())
	h.log.Debug(ctx, "broadcast sent",
		logger.String("type", msg.MessageType()),
		logger.Int("recipients", delivered),
	)
	return delivered
}

// BroadcastWeather sends the cached payload; nothing is sent when none is cached.
func (h *Hub) BroadcastWeather(ctx context.Context) int {
	msg, ok := h.WeatherMessage()
	if !ok {
		return 0
	}
	return h.Broadcast(ctx, msg)
}

// BroadcastVisualization sends the cached state of one worker.
func (h *Hub) BroadcastVisualization(ctx context.Context, worker string) int {
	return h.Broadcast(ctx, h.VisualizationMessage(worker))
}

// ConfigMessage builds config_info.
func (h *Hub) ConfigMessage() types.ConfigInfo {
	return types.NewConfigInfo(h.promptTemplate, slices.Clone(h.workers))
}

// WeatherMessage builds weather_data; ok is false when nothing is cached.
func (h *Hub) WeatherMessage() (types.WeatherData, bool) {
	raw := h.source.RawData()
	if raw == nil {
		return types.WeatherData{}, false
	}
	ts, _ := h.source.Timestamp()
	return types.NewWeatherData(ts.Format(time.RFC3339), raw), true
}

// VisualizationMessage builds visualization_update from the cache.
func (h *Hub) VisualizationMessage(worker string) types.VisualizationUpdate {
	var html, raw *string
	if out, ok := h.source.Result(worker); ok {
		normalized := h.normalizer.Normalize(out)
		html, raw = &normalized, &out
	}
	return types.NewVisualizationUpdate(worker, html, raw, h.source.Status(worker))
}

// Len returns the number of live observers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// CloseAll closes every observer and rejects new ones.
func (h *Hub) CloseAll(ctx context.Context) {
	h.mu.Lock()
	h.closed = true
	conns := h.conns
	h.conns = make(map[Conn]string)
	h.mu.Unlock()

	for c := range conns {
		if err := c.Close(); err != nil {
			h.log.Debug(ctx, "close observer", logger.Error(err))
		}
	}
	metrics.UpdateObserversConnected(0)
	h.log.Info(ctx, "observers closed", logger.Int("count", len(conns)))
}

func (h *Hub) send(ctx context.Context, c Conn, msg types.Message) error {
	sctx, cancel := context.WithTimeout(ctx, h.sendTimeout)
	defer cancel()
	return c.Send(sctx, msg)
}

func (h *Hub) evict(ctx context.Context, c Conn, cause error) {
	h.mu.Lock()
	id, ok := h.conns[c]
	delete(h.conns, c)
	total := len(h.conns)
	h.mu.Unlock()
	if !ok {
		return
	}
	_ = c.Close()
	metrics.RecordObserverEviction()
	metrics.UpdateObserversConnected(total)
	h.log.Warn(ctx, "send failed, observer evicted",
		logger.String("observer", id),
		logger.Int("total", total),
		logger.Error(cause),
	)
}

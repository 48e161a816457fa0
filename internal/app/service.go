// Package service assembles the application: archive, state cache,
// broadcast hub, orchestrator and scheduler, and exposes what the HTTP
// layer needs.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/aiweather/internal/adapters/archive"
	"github.com/okian/aiweather/internal/adapters/llm/ollama"
	"github.com/okian/aiweather/internal/adapters/weather"
	"github.com/okian/aiweather/internal/broadcast"
	"github.com/okian/aiweather/internal/config"
	"github.com/okian/aiweather/internal/domain/model"
	"github.com/okian/aiweather/internal/orchestrator"
	"github.com/okian/aiweather/internal/scheduler"
	"github.com/okian/aiweather/internal/state"
	"github.com/okian/aiweather/pkg/logger"
	"github.com/okian/aiweather/pkg/metrics"
)

// ErrRefreshInFlight is returned by TriggerRefresh while a cycle runs.
var ErrRefreshInFlight = scheduler.ErrCycleInFlight

// ErrStopped is returned by TriggerRefresh after Stop.
var ErrStopped = scheduler.ErrStopped

// Service owns every long-lived component of the process.
type Service struct {
	mu sync.RWMutex

	cfg     *config.Config
	workers []orchestrator.Worker

	archive   *archive.Store
	cache     *state.Cache
	hub       *broadcast.Hub
	orch      *orchestrator.Orchestrator
	scheduler *scheduler.Scheduler

	// Replaceable collaborators
	fetcher   scheduler.Fetcher
	generator orchestrator.Generator
	clock     clockwork.Clock

	started   bool
	startedAt time.Time

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithFetcher replaces the OpenWeather client.
func WithFetcher(f scheduler.Fetcher) Option {
	return func(s *Service) {
		if f != nil {
			s.fetcher = f
		}
	}
}

// WithGenerator replaces the Ollama backend.
func WithGenerator(g orchestrator.Generator) Option {
	return func(s *Service) {
		if g != nil {
			s.generator = g
		}
	}
}

// WithClock sets the clock used for cycle timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// New builds all components from cfg. Nothing is started.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	s := &Service{cfg: cfg, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("scheduler timezone: %w", err)
	}

	s.archive, err = archive.New(cfg.Storage.DataDir,
		archive.WithLocation(loc),
		archive.WithLogger(logger.Named("archive")),
	)
	if err != nil {
		return nil, err
	}

	if s.fetcher == nil {
		s.fetcher = weather.New(weather.Config{
			APIKey:  cfg.Weather.APIKey,
			Lat:     cfg.Weather.Lat,
			Lon:     cfg.Weather.Lon,
			Units:   cfg.Weather.Units,
			BaseURL: cfg.Weather.BaseURL,
			Timeout: cfg.Weather.Timeout,
		}, weather.WithLogger(logger.Named("weather")))
	}
	if s.generator == nil {
		client, err := ollama.New(ollama.Config{
			BaseURL:   cfg.Ollama.BaseURL,
			Timeout:   cfg.Ollama.Timeout,
			KeepAlive: cfg.Ollama.KeepAlive,
		}, logger.Named("ollama"))
		if err != nil {
			return nil, err
		}
		s.generator = client
	}

	models := cfg.EnabledModels()
	s.workers = make([]orchestrator.Worker, len(models))
	for i, m := range models {
		s.workers[i] = orchestrator.Worker{
			Name:        m.Name,
			Provider:    m.Provider,
			ModelID:     m.ModelID,
			Timeout:     m.Timeout,
			Temperature: m.Temperature,
		}
	}
	names := cfg.EnabledModelNames()

	s.cache = state.New(names, logger.Named("state"))
	s.hub = broadcast.New(s.cache, names, cfg.Prompt.Template,
		broadcast.WithLogger(logger.Named("broadcast")),
	)
	s.orch = orchestrator.New(
		orchestrator.WithProvider(config.ProviderOllama, s.generator),
		orchestrator.WithMaxConcurrent(cfg.AI.MaxConcurrent),
		orchestrator.WithThrottleInterval(cfg.AI.ThrottleInterval),
		orchestrator.WithLogger(logger.Named("orchestrator")),
	)
	s.scheduler, err = scheduler.New(scheduler.Dependencies{
		Fetcher:     s.fetcher,
		Archive:     s.archive,
		Cache:       s.cache,
		Broadcaster: s.hub,
		Generator:   s.orch,
	},
		scheduler.WithWorkers(s.workers),
		scheduler.WithPromptTemplate(cfg.Prompt.Template),
		scheduler.WithLocation(loc),
		scheduler.WithRefreshMinute(cfg.Scheduler.RefreshMinute),
		scheduler.WithClock(s.clock),
		scheduler.WithLogger(logger.Named("scheduler")),
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Start restores the newest archived cycle into the cache and starts the
// scheduler. A restore failure is logged, not fatal.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting weather service...",
		logger.Strings("models", s.cache.Workers()),
		logger.String("data_dir", s.archive.Root()),
	)

	loaded, err := s.cache.LoadFromArchive(ctx, s.archive)
	switch {
	case err != nil:
		s.logger.Error(ctx, "failed to restore cached cycle", logger.Error(err))
	case loaded:
		ts, _ := s.cache.Timestamp()
		s.logger.Info(ctx, "restored cached cycle", logger.Time("timestamp", ts))
	default:
		s.logger.Info(ctx, "no archived cycle found")
	}

	if err := s.scheduler.Start(ctx); err != nil {
		return err
	}

	s.started = true
	s.startedAt = s.clock.Now()
	s.logger.Info(ctx, "weather service started",
		logger.Int("models", len(s.workers)),
		logger.Int("max_concurrent", s.cfg.AI.MaxConcurrent),
	)
	return nil
}

// Stop stops the trigger, waits for an in-flight cycle within ctx and
// disconnects all observers.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info(ctx, "stopping weather service...")
	err := s.scheduler.Stop(ctx)
	if err != nil {
		s.logger.Warn(ctx, "scheduler did not stop cleanly", logger.Error(err))
	}
	s.hub.CloseAll(ctx)

	s.started = false
	s.logger.Info(ctx, "weather service stopped")
	return err
}

// Connect registers an observer and sends it the current state.
func (s *Service) Connect(ctx context.Context, c broadcast.Conn) (string, error) {
	return s.hub.Connect(ctx, c)
}

// Disconnect forgets an observer that closed its connection.
func (s *Service) Disconnect(ctx context.Context, c broadcast.Conn) {
	s.hub.Disconnect(ctx, c)
}

// Cache returns the state cache.
func (s *Service) Cache() *state.Cache { return s.cache }

// TriggerRefresh starts a cycle in the background. It returns
// ErrRefreshInFlight when one is already running and ErrStopped once the
// service is shutting down.
func (s *Service) TriggerRefresh(ctx context.Context) error {
	return s.scheduler.Trigger(ctx)
}

// Observers returns the number of connected observers and refreshes the
// observers gauge.
func (s *Service) Observers() int {
	n := s.hub.Len()
	metrics.UpdateObserversConnected(n)
	return n
}

// Stats is the service snapshot served on /stats.
type Stats struct {
	Started   bool                    `json:"started"`
	Uptime    string                  `json:"uptime"`
	Observers int                     `json:"observers"`
	Timestamp *time.Time              `json:"timestamp,omitempty"`
	Models    map[string]model.Status `json:"models"`
	Providers map[string]bool         `json:"providers"`
	Scheduler scheduler.Stats         `json:"scheduler"`
}

// Stats returns service statistics for monitoring. Each provider is probed
// for availability under ctx.
func (s *Service) Stats(ctx context.Context) Stats {
	providers := s.orch.Availability(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.cache.Snapshot()
	st := Stats{
		Started:   s.started,
		Observers: s.Observers(),
		Models:    snap.Statuses,
		Providers: providers,
		Scheduler: s.scheduler.Stats(),
	}
	if s.started {
		st.Uptime = s.clock.Since(s.startedAt).Round(time.Second).String()
	}
	if !snap.Timestamp.IsZero() {
		ts := snap.Timestamp
		st.Timestamp = &ts
	}

	return st
}

// Package scheduler decides when a cycle runs and drives it end to end:
// fetch, persist, publish, then generate with per-worker persistence and
// broadcast. At most one cycle runs at a time.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/okian/aiweather/internal/domain/model"
	"github.com/okian/aiweather/internal/domain/prompt"
	"github.com/okian/aiweather/internal/orchestrator"
	"github.com/okian/aiweather/pkg/logger"
	"github.com/okian/aiweather/pkg/metrics"
)

const (
	refreshKey  = "refresh"
	maxCycleAge = time.Hour
)

// Fetcher returns the serialized weather payload.
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// Archive is the persistence the cycle needs.
type Archive interface {
	SaveSnapshot(ctx context.Context, snap model.CycleSnapshot) (string, error)
	SaveWorkerResult(ctx context.Context, ts time.Time, worker, output string) error
	MissingWorkers(ctx context.Context, ts time.Time, workers []string) ([]string, error)
}

// Cache is the write side of the state cache.
type Cache interface {
	Timestamp() (time.Time, bool)
	SetTimestamp(ts time.Time)
	SetRawData(data json.RawMessage)
	SetWorkerResult(worker, output string) error
	SetWorkerStatus(worker string, status model.Status) error
}

// Broadcaster tells observers about cache changes.
type Broadcaster interface {
	BroadcastWeather(ctx context.Context) int
	BroadcastVisualization(ctx context.Context, worker string) int
}

// Generator runs one generation pass.
type Generator interface {
	GenerateAll(ctx context.Context, prompt string, workers []orchestrator.Worker, onUpdate orchestrator.UpdateFunc) (map[string]string, error)
}

// Dependencies are the collaborators a Scheduler drives.
type Dependencies struct {
	Fetcher     Fetcher
	Archive     Archive
	Cache       Cache
	Broadcaster Broadcaster
	Generator   Generator
}

// Phase is the cycle state.
type Phase int32

// Cycle phases.
const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhasePersisting
	PhaseGenerating
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetching:
		return "fetching"
	case PhasePersisting:
		return "persisting"
	case PhaseGenerating:
		return "generating"
	default:
		return "unknown"
	}
}

// Stats describes the scheduler for /stats.
type Stats struct {
	Phase       string    `json:"phase"`
	NextRun     time.Time `json:"next_run"`
	LastStarted time.Time `json:"last_started"`
	LastResult  string    `json:"last_result,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Scheduler owns the cron trigger and the single-flight cycle.
type Scheduler struct {
	deps           Dependencies
	workers        []orchestrator.Worker
	promptTemplate string
	loc            *time.Location
	minute         int
	clock          clockwork.Clock
	log            logger.Logger

	cron    *cron.Cron
	entry   cron.EntryID
	group   singleflight.Group
	phase   atomic.Int32
	running atomic.Bool
	pending atomic.Bool
	wg      sync.WaitGroup

	lifeMu  sync.Mutex
	stopped bool

	mu   sync.Mutex
	last Stats
}

// New creates a Scheduler. It does not start anything.
func New(deps Dependencies, opts ...Option) (*Scheduler, error) {
	if deps.Fetcher == nil || deps.Archive == nil || deps.Cache == nil || deps.Broadcaster == nil || deps.Generator == nil {
		return nil, ErrMissingDep
	}
	s := &Scheduler{
		deps:           deps,
		promptTemplate: prompt.Placeholder,
		loc:            time.UTC,
		clock:          clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.minute < 0 || s.minute > 59 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMinute, s.minute)
	}
	if s.log == nil {
		s.log = logger.Named("scheduler")
	}
	cl := cronLogger{log: s.log}
	s.cron = cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return s, nil
}

// Start registers the hourly trigger, runs the startup check and, when a
// cycle is due, starts one immediately without waiting for the next tick.
func (s *Scheduler) Start(ctx context.Context) error {
	base := context.WithoutCancel(ctx)
	spec := fmt.Sprintf("%d * * * *", s.minute)
	id, err := s.cron.AddFunc(spec, func() {
		_ = s.TryRefresh(base)
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	s.entry = id

	due, err := s.NeedsRefresh(ctx)
	if err != nil {
		s.log.Warn(ctx, "startup check failed, refreshing", logger.Error(err))
		due = true
	}
	s.cron.Start()
	s.log.Info(ctx, "scheduler started",
		logger.String("spec", spec),
		logger.String("timezone", s.loc.String()),
		logger.Time("next_run", s.cron.Entry(id).Next),
	)

	if due {
		s.log.Info(ctx, "refresh immediately")
		if err := s.spawn(base, nil); err != nil {
			return err
		}
	}
	return nil
}

// Stop halts the trigger and waits for an in-flight cycle until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.lifeMu.Lock()
	s.stopped = true
	s.lifeMu.Unlock()

	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info(ctx, "scheduler stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn(ctx, "abandoning in-flight cycle")
		return fmt.Errorf("%w: %w", ErrStopTimeout, ctx.Err())
	}
}

// Trigger starts a cycle in the background unless one is in flight or
// already triggered. It returns ErrStopped once Stop has been called.
func (s *Scheduler) Trigger(ctx context.Context) error {
	if s.running.Load() || !s.pending.CompareAndSwap(false, true) {
		metrics.RecordCycle(metrics.CycleSkipped)
		return ErrCycleInFlight
	}
	// pending is only cleared by the goroutine that set it.
	release := func() { s.pending.Store(false) }
	if err := s.spawn(context.WithoutCancel(ctx), release); err != nil {
		release()
		return err
	}
	return nil
}

// InFlight reports whether a cycle is running or about to start.
func (s *Scheduler) InFlight() bool {
	return s.running.Load() || s.pending.Load()
}

// Phase returns the current cycle phase.
func (s *Scheduler) Phase() Phase {
	return Phase(s.phase.Load())
}

// Stats returns the scheduler status.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	st := s.last
	s.mu.Unlock()
	st.Phase = s.Phase().String()
	if s.entry != 0 {
		st.NextRun = s.cron.Entry(s.entry).Next
	}
	return st
}

// spawn runs TryRefresh in the background, then done when it is non-nil.
func (s *Scheduler) spawn(ctx context.Context, done func()) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if done != nil {
			defer done()
		}
		_ = s.TryRefresh(ctx)
	}()
	return nil
}

// TryRefresh runs a cycle. Callers arriving while one is in flight wait for
// it and share its result instead of starting another.
func (s *Scheduler) TryRefresh(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	res := <-s.group.DoChan(refreshKey, func() (any, error) {
		s.running.Store(true)
		metrics.SetCycleInFlight(true)
		defer func() {
			metrics.SetCycleInFlight(false)
			s.running.Store(false)
		}()
		return nil, s.Refresh(ctx)
	})
	if res.Shared {
		s.log.Debug(ctx, "joined in-flight refresh")
	}
	if res.Err != nil {
		s.log.Error(ctx, "refresh failed", logger.Error(res.Err))
	}
	return res.Err
}

// NeedsRefresh is true when nothing is cached, the cached cycle is older
// than an hour, or any enabled worker's result is missing on disk.
func (s *Scheduler) NeedsRefresh(ctx context.Context) (bool, error) {
	ts, ok := s.deps.Cache.Timestamp()
	if !ok {
		s.log.Info(ctx, "no cached data found")
		return true, nil
	}

	age := s.clock.Since(ts)
	s.log.Info(ctx, "cached data age", logger.Float64("age_hours", age.Hours()))
	if age > maxCycleAge {
		s.log.Info(ctx, "cached data too old")
		return true, nil
	}

	missing, err := s.deps.Archive.MissingWorkers(ctx, ts, s.workerNames())
	if err != nil {
		return false, fmt.Errorf("check missing workers: %w", err)
	}
	if len(missing) > 0 {
		s.log.Info(ctx, "cached data missing models", logger.Strings("models", missing))
		return true, nil
	}
	return false, nil
}

// Refresh runs one cycle directly. Use TryRefresh for single-flight.
func (s *Scheduler) Refresh(ctx context.Context) error {
	started := s.clock.Now()
	ts := model.TruncateToHour(started.In(s.loc))
	log := s.log.With(
		logger.String("cycle", ts.Format(time.RFC3339)),
		logger.String("run", uuid.NewString()),
	)
	log.Info(ctx, "refresh started")
	s.record(Stats{LastStarted: started})
	defer s.phase.Store(int32(PhaseIdle))

	result, err := s.refresh(ctx, log, ts)
	metrics.RecordCycle(result)
	metrics.RecordCycleDuration(s.clock.Since(started))
	st := Stats{LastStarted: started, LastResult: result}
	if err != nil {
		st.LastError = err.Error()
	} else {
		metrics.MarkCycleSuccess(s.clock.Now())
	}
	s.record(st)
	return err
}

func (s *Scheduler) refresh(ctx context.Context, log logger.Logger, ts time.Time) (string, error) {
	s.phase.Store(int32(PhaseFetching))
	payload, err := s.deps.Fetcher.Fetch(ctx)
	if err != nil {
		return metrics.CycleFetchFailed, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	if !json.Valid([]byte(payload)) {
		return metrics.CycleFetchFailed, ErrInvalidPayload
	}

	rendered, formatted := prompt.Render(s.promptTemplate, payload)
	if !formatted {
		log.Warn(ctx, "payload not formatted, using raw text")
	}
	snap := model.CycleSnapshot{
		Timestamp:   ts,
		RawData:     payload,
		WorkerNames: s.workerNames(),
		Prompt:      rendered,
	}

	s.phase.Store(int32(PhasePersisting))
	if _, err := s.deps.Archive.SaveSnapshot(ctx, snap); err != nil {
		return metrics.CyclePersistFailed, fmt.Errorf("%w: %w", ErrPersist, err)
	}

	s.deps.Cache.SetTimestamp(ts)
	s.deps.Cache.SetRawData(json.RawMessage(payload))
	s.deps.Broadcaster.BroadcastWeather(ctx)

	s.phase.Store(int32(PhaseGenerating))
	for _, name := range snap.WorkerNames {
		if err := s.deps.Cache.SetWorkerStatus(name, model.StatusGenerating); err != nil {
			log.Warn(ctx, "status not updated", logger.String("model", name), logger.Error(err))
		}
		s.deps.Broadcaster.BroadcastVisualization(ctx, name)
	}

	onUpdate := func(ctx context.Context, worker, output string) error {
		if err := s.deps.Archive.SaveWorkerResult(ctx, ts, worker, output); err != nil {
			return err
		}
		if err := s.deps.Cache.SetWorkerResult(worker, output); err != nil {
			return err
		}
		if err := s.deps.Cache.SetWorkerStatus(worker, model.StatusUpToDate); err != nil {
			return err
		}
		s.deps.Broadcaster.BroadcastVisualization(ctx, worker)
		return nil
	}

	results, err := s.deps.Generator.GenerateAll(ctx, rendered, s.workers, onUpdate)
	if err != nil {
		return metrics.CyclePersistFailed, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	log.Info(ctx, "refresh complete", logger.Int("models", len(results)))
	return metrics.CycleSuccess, nil
}

func (s *Scheduler) record(st Stats) {
	s.mu.Lock()
	s.last = st
	s.mu.Unlock()
}

func (s *Scheduler) workerNames() []string {
	names := make([]string, len(s.workers))
	for i, w := range s.workers {
		names[i] = w.Name
	}
	return names
}

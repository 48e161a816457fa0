// Package orchestrator fans one prompt out to every enabled worker with a
// concurrency bound, per-worker timeouts and throttled progress updates.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/okian/aiweather/pkg/logger"
	"github.com/okian/aiweather/pkg/metrics"
)

const defaultThrottleInterval = 5 * time.Second

// Generator is a generation backend.
type Generator interface {
	// Generate returns the final text. onChunk, when non-nil, receives the
	// accumulated text after every chunk.
	Generate(ctx context.Context, prompt, modelID string, temperature float64, onChunk func(accumulated string)) (string, error)
	// IsAvailable is a liveness probe.
	IsAvailable(ctx context.Context) bool
}

// Worker is one enabled model configuration.
type Worker struct {
	Name        string
	Provider    string
	ModelID     string
	Timeout     time.Duration
	Temperature float64
}

// UpdateFunc receives progress and final output for a worker. Calls for one
// worker never overlap.
type UpdateFunc func(ctx context.Context, worker, output string) error

// Orchestrator runs generation passes.
type Orchestrator struct {
	providers     map[string]Generator
	maxConcurrent int
	throttle      time.Duration
	log           logger.Logger
}

// New creates an Orchestrator.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		providers: make(map[string]Generator),
		throttle:  defaultThrottleInterval,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logger.Named("orchestrator")
	}
	return o
}

// Providers returns the registered provider names, sorted.
func (o *Orchestrator) Providers() []string {
	return slices.Sorted(maps.Keys(o.providers))
}

// Availability probes every registered provider.
func (o *Orchestrator) Availability(ctx context.Context) map[string]bool {
	out := make(map[string]bool, len(o.providers))
	for name, g := range o.providers {
		out[name] = g.IsAvailable(ctx)
	}
	return out
}

// GenerateAll runs every worker and returns exactly one entry per worker,
// failed workers included. It returns after all workers finish. The error
// is the first one returned by onUpdate; it never stops other workers.
func (o *Orchestrator) GenerateAll(ctx context.Context, prompt string, workers []Worker, onUpdate UpdateFunc) (map[string]string, error) {
	var (
		mu      sync.Mutex
		results = make(map[string]string, len(workers))
		sem     *semaphore.Weighted
		g       errgroup.Group
	)
	if o.maxConcurrent > 0 {
		sem = semaphore.NewWeighted(int64(o.maxConcurrent))
	}

	o.log.Info(ctx, "generation started",
		logger.Int("workers", len(workers)),
		logger.Int("max_concurrent", o.maxConcurrent),
	)
	for _, w := range workers {
		g.Go(func() error {
			out, err := o.runWorker(ctx, prompt, w, sem, onUpdate)
			mu.Lock()
			results[w.Name] = out
			mu.Unlock()
			return err
		})
	}
	err := g.Wait()
	o.log.Info(ctx, "generation finished", logger.Int("results", len(results)))
	return results, err
}

// runWorker never fails the batch: every failure becomes a rendered page.
// The returned error only reports onUpdate failures.
func (o *Orchestrator) runWorker(ctx context.Context, prompt string, w Worker, sem *semaphore.Weighted, onUpdate UpdateFunc) (string, error) {
	log := o.log.With(logger.String("model", w.Name))

	var outcome Outcome
	var progressErr error
	switch gen, ok := o.providers[w.Provider]; {
	case !ok:
		outcome = Failed(KindProviderNotFound, fmt.Errorf("%w: %q", ErrProviderNotFound, w.Provider))
	case sem != nil && sem.Acquire(ctx, 1) != nil:
		outcome = Failed(KindCanceled, fmt.Errorf("%w: waiting for a slot: %w", ErrCanceled, ctx.Err()))
	default:
		outcome, progressErr = o.generate(ctx, log, gen, prompt, w, onUpdate)
		if sem != nil {
			sem.Release(1)
		}
	}

	if outcome.Failure != nil {
		metrics.RecordGenerationFailure(w.Name, string(outcome.Failure.Kind))
		log.Error(ctx, "model failed",
			logger.String("kind", string(outcome.Failure.Kind)),
			logger.String("error", outcome.Failure.Detail),
		)
	}

	out := outcome.Render(w.Name)
	if onUpdate != nil {
		if err := onUpdate(ctx, w.Name, out); err != nil {
			log.Error(ctx, "final update failed", logger.Error(err))
			return out, fmt.Errorf("update %s: %w", w.Name, err)
		}
	}
	if progressErr != nil {
		return out, fmt.Errorf("progress update %s: %w", w.Name, progressErr)
	}
	return out, nil
}

type generation struct {
	output string
	err    error
}

// generate calls the backend under the worker timeout while a consumer
// goroutine forwards throttled progress.
func (o *Orchestrator) generate(ctx context.Context, log logger.Logger, gen Generator, prompt string, w Worker, onUpdate UpdateFunc) (Outcome, error) {
	tctx, cancel := ctx, context.CancelFunc(func() {})
	if w.Timeout > 0 {
		tctx, cancel = context.WithTimeout(ctx, w.Timeout)
	}
	defer cancel()

	var onChunk func(string)
	stopProgress := func() error { return nil }
	if onUpdate != nil {
		p := newProgress(ctx, w.Name, o.throttle, onUpdate)
		onChunk = p.offer
		stopProgress = p.stop
	}

	metrics.IncGenerationInFlight()
	start := time.Now()
	done := make(chan generation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- generation{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		out, err := gen.Generate(tctx, prompt, w.ModelID, w.Temperature, onChunk)
		done <- generation{output: out, err: err}
	}()

	var res generation
	select {
	case res = <-done:
	case <-tctx.Done():
		res = generation{err: tctx.Err()}
	}
	took := time.Since(start)
	metrics.DecGenerationInFlight()
	metrics.RecordGenerationDuration(w.Name, took)

	progressErr := stopProgress()

	if res.err == nil {
		log.Info(ctx, "model finished",
			logger.Duration("took", took),
			logger.Int("length", len(res.output)),
		)
		return Succeeded(res.output), progressErr
	}
	return classify(ctx, tctx, w, res.err), progressErr
}

func classify(ctx, tctx context.Context, w Worker, err error) Outcome {
	switch {
	case ctx.Err() != nil:
		return Failed(KindCanceled, fmt.Errorf("%w: %w", ErrCanceled, err))
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(tctx.Err(), context.DeadlineExceeded):
		return Failed(KindTimeout, fmt.Errorf("%w after %s", ErrGenerationTimeout, w.Timeout))
	default:
		return Failed(KindBackend, fmt.Errorf("%w: %w", ErrBackend, err))
	}
}

// progress carries accumulated text from the backend to onUpdate. The
// channel holds only the latest value; the consumer spends one limiter token
// per forwarded update, and the first token is spent at start.
type progress struct {
	updates chan string
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

func newProgress(ctx context.Context, worker string, interval time.Duration, onUpdate UpdateFunc) *progress {
	cctx, cancel := context.WithCancel(ctx)
	p := &progress{
		updates: make(chan string, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	limiter.Allow()

	go func() {
		defer close(p.done)
		for {
			var text string
			select {
			case <-cctx.Done():
				return
			case text = <-p.updates:
			}
			if err := limiter.Wait(cctx); err != nil {
				return
			}
			select {
			case text = <-p.updates:
			default:
			}
			if err := onUpdate(ctx, worker, text); err != nil && p.err == nil {
				p.err = err
			}
			metrics.RecordProgressUpdate(worker)
		}
	}()
	return p
}

// offer replaces any pending value with text. It never blocks.
func (p *progress) offer(text string) {
	for {
		select {
		case p.updates <- text:
			return
		default:
		}
		select {
		case <-p.updates:
		default:
		}
	}
}

// stop ends the consumer and waits for an in-progress update to finish.
func (p *progress) stop() error {
	p.cancel()
	<-p.done
	return p.err
}

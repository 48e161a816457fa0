// Package state holds the current cycle snapshot read by the broadcast hub.
// It never notifies anyone; callers broadcast after they mutate it.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/okian/aiweather/internal/adapters/archive"
	"github.com/okian/aiweather/internal/domain/model"
	"github.com/okian/aiweather/pkg/logger"
)

// Loader reads the latest archived cycle.
type Loader interface {
	LoadLatest(ctx context.Context, workers []string) (*archive.Cycle, error)
}

// Snapshot is a point-in-time copy of the cache.
type Snapshot struct {
	Timestamp time.Time
	RawData   json.RawMessage
	Results   map[string]string
	Statuses  map[string]model.Status
}

// Cache is the process-wide current-cycle state. Result and status keys are
// always a subset of the workers it was created with.
type Cache struct {
	mu        sync.RWMutex
	workers   []string
	enabled   map[string]struct{}
	timestamp time.Time
	rawData   json.RawMessage
	results   map[string]string
	statuses  map[string]model.Status
	log       logger.Logger
}

// New returns an empty cache for the given enabled workers, all outdated.
func New(workers []string, l logger.Logger) *Cache {
	if l == nil {
		l = logger.Named("state")
	}
	c := &Cache{
		workers:  slices.Clone(workers),
		enabled:  make(map[string]struct{}, len(workers)),
		results:  make(map[string]string, len(workers)),
		statuses: make(map[string]model.Status, len(workers)),
		log:      l,
	}
	for _, w := range workers {
		c.enabled[w] = struct{}{}
		c.statuses[w] = model.StatusOutdated
	}
	return c
}

// Workers returns the enabled workers in configuration order.
func (c *Cache) Workers() []string {
	return slices.Clone(c.workers)
}

// SetTimestamp replaces the current cycle timestamp.
func (c *Cache) SetTimestamp(ts time.Time) {
	c.mu.Lock()
	c.timestamp = ts
	c.mu.Unlock()
}

// SetRawData replaces the current payload.
func (c *Cache) SetRawData(data json.RawMessage) {
	c.mu.Lock()
	c.rawData = slices.Clone(data)
	c.mu.Unlock()
}

// SetWorkerResult stores output for an enabled worker.
func (c *Cache) SetWorkerResult(worker, output string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.enabled[worker]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWorker, worker)
	}
	c.results[worker] = output
	return nil
}

// SetWorkerStatus stores the status for an enabled worker.
func (c *Cache) SetWorkerStatus(worker string, status model.Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.enabled[worker]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWorker, worker)
	}
	c.statuses[worker] = status
	return nil
}

// MarkAllOutdated resets every worker to outdated.
func (c *Cache) MarkAllOutdated() {
	c.mu.Lock()
	for _, w := range c.workers {
		c.statuses[w] = model.StatusOutdated
	}
	c.mu.Unlock()
}

// LoadFromArchive populates the cache from the latest archived cycle. It
// reports false and leaves the cache untouched when the archive is empty.
func (c *Cache) LoadFromArchive(ctx context.Context, l Loader) (bool, error) {
	cycle, err := l.LoadLatest(ctx, c.Workers())
	if errors.Is(err, archive.ErrNoCycle) {
		c.log.Info(ctx, "no archived cycle, starting with empty state")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load latest cycle: %w", err)
	}

	c.mu.Lock()
	c.timestamp = cycle.Timestamp
	c.rawData = slices.Clone(cycle.RawData)
	for _, w := range c.workers {
		if out, ok := cycle.Results[w]; ok {
			c.results[w] = out
			c.statuses[w] = model.StatusUpToDate
			continue
		}
		delete(c.results, w)
		c.statuses[w] = model.StatusOutdated
	}
	c.mu.Unlock()

	c.log.Info(ctx, "state loaded from archive",
		logger.Time("timestamp", cycle.Timestamp),
		logger.Bool("has_raw_data", cycle.RawData != nil),
		logger.Int("results", len(cycle.Results)),
		logger.Strings("missing", cycle.Missing),
	)
	return true, nil
}

// Timestamp returns the current cycle timestamp, if any.
func (c *Cache) Timestamp() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timestamp, !c.timestamp.IsZero()
}

// RawData returns a copy of the current payload or nil.
func (c *Cache) RawData() json.RawMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.rawData)
}

// Result returns the stored output for worker.
func (c *Cache) Result(worker string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out, ok := c.results[worker]
	return out, ok
}

// Status returns the worker's status; unknown workers are outdated.
func (c *Cache) Status(worker string) model.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.statuses[worker]; ok {
		return s
	}
	return model.StatusOutdated
}

// Snapshot copies the whole cache.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Timestamp: c.timestamp,
		RawData:   slices.Clone(c.rawData),
		Results:   maps.Clone(c.results),
		Statuses:  maps.Clone(c.statuses),
	}
}

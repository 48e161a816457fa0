package scheduler

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/aiweather/internal/orchestrator"
	"github.com/okian/aiweather/pkg/logger"
)

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithWorkers sets the enabled workers, in configuration order.
func WithWorkers(workers []orchestrator.Worker) Option {
	return func(s *Scheduler) {
		s.workers = workers
	}
}

// WithPromptTemplate sets the template containing {weather_json}.
func WithPromptTemplate(tmpl string) Option {
	return func(s *Scheduler) {
		s.promptTemplate = tmpl
	}
}

// WithLocation sets the zone for the cron trigger and cycle timestamps.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithRefreshMinute sets the minute of the hour at which cycles run.
func WithRefreshMinute(minute int) Option {
	return func(s *Scheduler) {
		s.minute = minute
	}
}

// WithClock sets the clock used for cycle timestamps and staleness checks.
func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets a custom logger for the scheduler.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

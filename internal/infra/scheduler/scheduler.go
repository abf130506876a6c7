// Package scheduler runs small periodic jobs next to the main workers.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ObraztsovOleg/consultant-bot/internal/infra/logging"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/metrics"
)

// Job is one unit of periodic work. A failed run is logged and counted; the
// next tick runs regardless.
type Job func(ctx context.Context) error

type Option func(*Scheduler)

// Immediately runs the job once before the first tick.
func Immediately() Option { return func(s *Scheduler) { s.immediate = true } }

// Scheduler runs a job every interval until its context ends. Runs never
// overlap: a slow run delays the next tick.
type Scheduler struct {
	name      string
	interval  time.Duration
	timeout   time.Duration
	immediate bool
	job       Job
	log       *zerolog.Logger
}

// NewScheduler defaults a non-positive interval to one minute and a
// non-positive timeout to half the interval.
func NewScheduler(name string, interval, timeout time.Duration, job Job, logger *zerolog.Logger, opts ...Option) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if timeout <= 0 {
		timeout = interval / 2
	}
	l := logging.Component(logger, "scheduler").With().Str("job", name).Logger()
	s := &Scheduler{name: name, interval: interval, timeout: timeout, job: job, log: &l}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run blocks until ctx is cancelled and returns nil then.
func (s *Scheduler) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	s.log.Debug().Dur("interval", s.interval).Msg("scheduler started")
	if s.immediate {
		s.runOnce(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			s.log.Debug().Msg("scheduler stopped")
			return nil
		case <-t.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	start := time.Now()
	err := s.job(ctx)
	metrics.ObserveSweeperTick(s.name, time.Since(start).Seconds())
	if err != nil {
		metrics.IncSweeperRun(s.name, "failed")
		s.log.Warn().Err(err).Msg("scheduled job failed")
		return
	}
	metrics.IncSweeperRun(s.name, "ok")
}

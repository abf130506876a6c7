package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ObraztsovOleg/consultant-bot/internal/infra/metrics"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/redis"
	"github.com/ObraztsovOleg/consultant-bot/internal/usecase"
)

const (
	sweepJob     = "session_sweep"
	sweepLockKey = "lock:session_sweep"
)

// Sweeper is the part of the session use case the worker drives.
type Sweeper interface {
	Sweep(ctx context.Context) (usecase.SweepReport, error)
}

// Locker takes a short exclusive lease shared between replicas.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

// SessionSweeper periodically expires holds and moves sessions through their
// paid windows.
type SessionSweeper struct {
	interval time.Duration
	timeout  time.Duration
	uc       Sweeper
	lock     Locker
	log      *zerolog.Logger
}

type SweeperOption func(*SessionSweeper)

// WithLock makes the sweeper skip ticks while another replica holds the lease.
func WithLock(l Locker) SweeperOption {
	return func(w *SessionSweeper) { w.lock = l }
}

// NewSessionSweeper bounds every pass by timeout; non-positive values fall back
// to one minute and thirty seconds.
func NewSessionSweeper(interval, timeout time.Duration, uc Sweeper, logger *zerolog.Logger, opts ...SweeperOption) *SessionSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	compLog := logger.With().Str("component", "SessionSweeper").Logger()
	w := &SessionSweeper{
		interval: interval,
		timeout:  timeout,
		uc:       uc,
		log:      &compLog,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks until ctx is cancelled. The first pass runs immediately.
func (w *SessionSweeper) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting session sweeper")
	w.tick(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping session sweeper")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *SessionSweeper) tick(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, w.timeout)
	defer cancel()

	if w.lock != nil {
		token, err := w.lock.TryLock(ctx, sweepLockKey, w.timeout)
		if err != nil {
			result := "failed"
			if errors.Is(err, redis.ErrLockHeld) {
				result = "skipped"
			} else {
				w.log.Warn().Err(err).Msg("sweep lock unavailable")
			}
			metrics.IncSweeperRun(sweepJob, result)
			return
		}
		defer func() {
			// release with a fresh context; the tick one may be spent
			uctx, ucancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer ucancel()
			if err := w.lock.Unlock(uctx, sweepLockKey, token); err != nil {
				w.log.Warn().Err(err).Msg("sweep lock release failed")
			}
		}()
	}

	start := time.Now()
	rep, err := w.uc.Sweep(ctx)
	metrics.ObserveSweeperTick(sweepJob, time.Since(start).Seconds())

	if err != nil {
		metrics.IncSweeperRun(sweepJob, "failed")
		w.log.Error().Err(err).Msg("session sweep error")
	} else {
		metrics.IncSweeperRun(sweepJob, "ok")
	}
	if rep.Expired > 0 || rep.Activated > 0 || rep.Ended > 0 || rep.Failed > 0 {
		w.log.Info().
			Int64("expired", rep.Expired).
			Int("scanned", rep.Scanned).
			Int("activated", rep.Activated).
			Int("ended", rep.Ended).
			Int("completed", rep.Completed).
			Int("failed", rep.Failed).
			Msg("session sweep finished")
	}
}

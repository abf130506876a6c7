//go:build !integration

package sched_test

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ObraztsovOleg/consultant-bot/internal/infra/redis"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/sched"
	"github.com/ObraztsovOleg/consultant-bot/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

type stubSweeper struct {
	calls       atomic.Int32
	hadDeadline atomic.Bool
	err         error
}

func (s *stubSweeper) Sweep(ctx context.Context) (usecase.SweepReport, error) {
	s.calls.Add(1)
	if _, ok := ctx.Deadline(); ok {
		s.hadDeadline.Store(true)
	}
	return usecase.SweepReport{Scanned: 1, Ended: 1}, s.err
}

type stubEvicter struct{ calls atomic.Int32 }

func (s *stubEvicter) EvictStale() int {
	s.calls.Add(1)
	return 2
}

type stubLocker struct {
	held     atomic.Bool
	attempts atomic.Int32
	unlocks  atomic.Int32
}

func (l *stubLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.attempts.Add(1)
	if l.held.Load() {
		return "", redis.ErrLockHeld
	}
	return "tok", nil
}

func (l *stubLocker) Unlock(ctx context.Context, key, token string) error {
	l.unlocks.Add(1)
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionSweeper_Run(t *testing.T) {
	t.Parallel()
	uc := &stubSweeper{err: errors.New("list failed")}
	w := sched.NewSessionSweeper(10*time.Millisecond, time.Second, uc, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// first pass is immediate, later ones keep coming despite errors
	waitFor(t, func() bool { return uc.calls.Load() >= 3 })
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
	if !uc.hadDeadline.Load() {
		t.Fatal("each pass should run under a deadline")
	}
}

func TestCacheJanitor_Run(t *testing.T) {
	t.Parallel()
	ev := &stubEvicter{}
	w := sched.NewCacheJanitor(10*time.Millisecond, ev, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, func() bool { return ev.calls.Load() >= 2 })
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSessionSweeper_Lock(t *testing.T) {
	t.Parallel()

	t.Run("skips ticks while another replica holds the lease", func(t *testing.T) {
		uc := &stubSweeper{}
		lock := &stubLocker{}
		lock.held.Store(true)
		w := sched.NewSessionSweeper(5*time.Millisecond, time.Second, uc, newTestLogger(), sched.WithLock(lock))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- w.Run(ctx) }()
		waitFor(t, func() bool { return lock.attempts.Load() >= 3 })
		cancel()
		<-done

		if n := uc.calls.Load(); n != 0 {
			t.Fatalf("sweep ran %d times without the lease", n)
		}
	})

	t.Run("releases the lease after each pass", func(t *testing.T) {
		uc := &stubSweeper{}
		lock := &stubLocker{}
		w := sched.NewSessionSweeper(5*time.Millisecond, time.Second, uc, newTestLogger(), sched.WithLock(lock))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- w.Run(ctx) }()
		waitFor(t, func() bool { return uc.calls.Load() >= 2 })
		cancel()
		<-done

		if lock.unlocks.Load() < uc.calls.Load() {
			t.Fatalf("unlocks %d < passes %d", lock.unlocks.Load(), uc.calls.Load())
		}
	})
}

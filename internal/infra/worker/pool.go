// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("worker pool stopped")

type Task func(ctx context.Context) error

// Pool runs tasks on a fixed set of workers. Tasks submitted with the same key
// always land on the same worker, so they run one at a time in order.
type Pool struct {
	wg     sync.WaitGroup
	queues []chan Task
	quit   chan struct{}
	once   sync.Once
	log    *zerolog.Logger
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	l := logger.With().Str("component", "worker_pool").Logger()
	p := &Pool{queues: make([]chan Task, workers), quit: make(chan struct{}), log: &l}
	for i := range p.queues {
		p.queues[i] = make(chan Task, 16)
	}
	return p
}

func (p *Pool) Start(ctx context.Context) {
	for i := range p.queues {
		p.wg.Add(1)
		go func(id int, jobs <-chan Task) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case task := <-jobs:
					p.run(ctx, id, task)
				}
			}
		}(i, p.queues[i])
	}
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Int("worker", id).Interface("panic", r).Msg("task panicked")
		}
	}()
	if err := task(ctx); err != nil {
		p.log.Warn().Int("worker", id).Err(err).Msg("task error")
	}
}

// Stop stops accepting work and waits for running tasks. Queued tasks that
// have not started are dropped.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.quit) })
	p.wg.Wait()
}

// Submit queues task on the worker owning key, blocking while that worker's
// queue is full.
func (p *Pool) Submit(ctx context.Context, key int64, task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	q := p.queues[shard(key, len(p.queues))]
	select {
	case <-p.quit:
		return ErrStopped
	default:
	}
	select {
	case q <- task:
		return nil
	case <-p.quit:
		return ErrStopped
	case <-ctx.Done():
		return fmt.Errorf("submit task: %w", ctx.Err())
	}
}

func shard(key int64, n int) int {
	if key < 0 {
		key = -key
	}
	return int(key % int64(n))
}

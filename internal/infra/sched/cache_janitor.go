package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ObraztsovOleg/consultant-bot/internal/infra/metrics"
)

const evictJob = "cache_evict"

// Evicter drops expired entries and reports how many went.
type Evicter interface {
	EvictStale() int
}

// CacheJanitor drops expired state cache entries that are never read again.
type CacheJanitor struct {
	interval time.Duration
	cache    Evicter
	log      *zerolog.Logger
}

func NewCacheJanitor(interval time.Duration, cache Evicter, logger *zerolog.Logger) *CacheJanitor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	compLog := logger.With().Str("component", "CacheJanitor").Logger()
	return &CacheJanitor{
		interval: interval,
		cache:    cache,
		log:      &compLog,
	}
}

func (w *CacheJanitor) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting cache janitor")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping cache janitor")
			return ctx.Err()
		case <-ticker.C:
			w.runEvict()
		}
	}
}

func (w *CacheJanitor) runEvict() {
	start := time.Now()
	n := w.cache.EvictStale()
	metrics.ObserveSweeperTick(evictJob, time.Since(start).Seconds())
	metrics.IncSweeperRun(evictJob, "ok")
	if n > 0 {
		w.log.Debug().Int("count", n).Msg("stale cache entries evicted")
	}
}

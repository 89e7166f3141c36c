package maintenance

import (
	"context"
	"time"

	"newsdesk/internal/workers"
)

// Sweeper drops stale entries from a store
type Sweeper interface {
	Sweep() int
	Len() int
}

// CacheSweeper evicts expired reserve entries on an interval
type CacheSweeper struct {
	*workers.BaseWorker
	cache Sweeper
}

// NewCacheSweeper creates the worker. A zero interval disables it.
func NewCacheSweeper(cache Sweeper, interval time.Duration) *CacheSweeper {
	return &CacheSweeper{
		BaseWorker: workers.NewBaseWorker("cache_sweeper", interval, cache != nil),
		cache:      cache,
	}
}

// Run performs one sweep
func (w *CacheSweeper) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return nil
	}

	removed := w.cache.Sweep()
	if removed > 0 {
		w.Log().Infow("Swept expired reserves", "removed", removed, "remaining", w.cache.Len())
	}
	return nil
}

package bootstrap

import (
	"newsdesk/internal/adapters/config"
	"newsdesk/internal/council"
	"newsdesk/internal/domain/persistence"
	"newsdesk/internal/intelligence"
	"newsdesk/internal/services/reserve"
	"newsdesk/internal/workers"
	"newsdesk/internal/workers/maintenance"
	"newsdesk/pkg/logger"
)

// provideScheduler registers the maintenance workers
func provideScheduler(
	cfg *config.Config,
	cache *reserve.Cache,
	chair *council.Chair,
	tracker *intelligence.CredibilityTracker,
	kv persistence.KV,
) *workers.Scheduler {
	scheduler := workers.NewScheduler(workers.WithSchedulerLogger(logger.Component("scheduler")))

	scheduler.RegisterWorker(maintenance.NewCacheSweeper(cache, cfg.Workers.CacheSweepInterval))
	scheduler.RegisterWorker(maintenance.NewInfluenceWorker(chair, kv, cfg.Workers.InfluenceAdjustInterval))
	scheduler.RegisterWorker(maintenance.NewCredibilityWorker(tracker, cfg.Workers.CredibilityAdjustInterval))

	return scheduler
}

package bootstrap

import (
	"context"
	"net/http"
	"sync"
	"time"

	"newsdesk/internal/adapters/kafka"
	redisclient "newsdesk/internal/adapters/redis"
	"newsdesk/internal/council"
	"newsdesk/internal/domain/persistence"
	"newsdesk/internal/workers"
	"newsdesk/pkg/errors"
	"newsdesk/pkg/logger"
)

// Lifecycle manages graceful shutdown of components
type Lifecycle struct {
	shutdownTimeout time.Duration
}

// NewLifecycle creates a new lifecycle manager
func NewLifecycle() *Lifecycle {
	return &Lifecycle{shutdownTimeout: 30 * time.Second}
}

// Shutdown performs coordinated cleanup in order:
//  1. workers stop, so no adjustment races the final snapshot
//  2. metrics endpoint closes
//  3. pending influence outcomes are applied and persisted
//  4. kafka producer flushes and closes
//  5. redis closes
//  6. error tracker flushes and logs sync
func (l *Lifecycle) Shutdown(
	wg *sync.WaitGroup,
	scheduler *workers.Scheduler,
	metricsServer *http.Server,
	chair *council.Chair,
	kv persistence.KV,
	kafkaProducer *kafka.Producer,
	redisClient *redisclient.Client,
	errorTracker errors.Tracker,
	log *logger.Logger,
) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer shutdownCancel()

	log.Info("[1/6] Stopping background workers...")
	if scheduler != nil && scheduler.IsRunning() {
		if err := scheduler.Stop(); err != nil {
			log.Errorw("Workers shutdown failed", "error", err)
		} else {
			log.Info("✓ Workers stopped")
		}
	}

	log.Info("[2/6] Stopping metrics server...")
	if metricsServer != nil {
		httpCtx, httpCancel := context.WithTimeout(shutdownCtx, 5*time.Second)
		if err := metricsServer.Shutdown(httpCtx); err != nil {
			log.Errorw("Metrics server shutdown failed", "error", err)
		} else {
			log.Info("✓ Metrics server stopped")
		}
		httpCancel()
	}
	l.waitForGoroutines(wg, 5*time.Second, log)

	log.Info("[3/6] Saving expert influence...")
	l.saveInfluence(shutdownCtx, chair, kv, log)

	log.Info("[4/6] Closing Kafka producer...")
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Errorw("Kafka producer close failed", "error", err)
		} else {
			log.Info("✓ Kafka producer closed")
		}
	}

	log.Info("[5/6] Closing Redis...")
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Errorw("Redis close failed", "error", err)
		} else {
			log.Info("✓ Redis closed")
		}
	}

	log.Info("[6/6] Flushing error tracker and logs...")
	l.flushErrorTracker(shutdownCtx, errorTracker, log)
	if err := logger.Sync(); err != nil {
		log.Debugw("Log sync completed with warnings", "error", err)
	}

	log.Info("✅ Graceful shutdown complete")
}

func (l *Lifecycle) saveInfluence(ctx context.Context, chair *council.Chair, kv persistence.KV, log *logger.Logger) {
	if chair == nil {
		return
	}
	applied := chair.Adjust()
	if kv == nil {
		return
	}
	if err := chair.Save(ctx, kv); err != nil {
		log.Errorw("Influence snapshot failed", "error", err)
		return
	}
	log.Infow("✓ Influence saved", "applied", applied)
}

// waitForGoroutines waits for all goroutines with a timeout
func (l *Lifecycle) waitForGoroutines(wg *sync.WaitGroup, timeout time.Duration, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		log.Warnw("⚠ Some goroutines did not finish within timeout", "timeout", timeout)
	}
}

// flushErrorTracker flushes the error tracker (Sentry, etc.)
func (l *Lifecycle) flushErrorTracker(ctx context.Context, tracker errors.Tracker, log *logger.Logger) {
	if tracker == nil {
		return
	}

	flushCtx, flushCancel := context.WithTimeout(ctx, 3*time.Second)
	defer flushCancel()

	if err := tracker.Flush(flushCtx); err != nil {
		log.Warnw("Error tracker flush failed", "error", err)
	}
}

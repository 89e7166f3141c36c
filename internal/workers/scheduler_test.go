package workers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsdesk/pkg/errors"
	"newsdesk/pkg/logger"
)

type countingWorker struct {
	*BaseWorker
	runs  int32
	runFn func(ctx context.Context) error
}

func newCountingWorker(name string, interval time.Duration, enabled bool) *countingWorker {
	return &countingWorker{BaseWorker: NewBaseWorker(name, interval, enabled)}
}

func (w *countingWorker) Run(ctx context.Context) error {
	atomic.AddInt32(&w.runs, 1)
	if w.runFn != nil {
		return w.runFn(ctx)
	}
	return nil
}

func (w *countingWorker) Runs() int {
	return int(atomic.LoadInt32(&w.runs))
}

func newTestScheduler(opts ...SchedulerOption) *Scheduler {
	return NewScheduler(append([]SchedulerOption{WithSchedulerLogger(logger.NewNop())}, opts...)...)
}

func TestScheduler_RunsImmediatelyThenOnTicks(t *testing.T) {
	s := newTestScheduler()
	w := newCountingWorker("cache_sweeper", 50*time.Millisecond, true)
	s.RegisterWorker(w)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())

	time.Sleep(130 * time.Millisecond)
	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())

	assert.GreaterOrEqual(t, w.Runs(), 2)
	health := w.Health()
	assert.Equal(t, int64(w.Runs()), health.RunCount)
	assert.Zero(t, health.ErrorCount)
	assert.False(t, health.LastRun.IsZero())
}

func TestScheduler_SkipsDisabledWorkers(t *testing.T) {
	s := newTestScheduler()
	on := newCountingWorker("on", 50*time.Millisecond, true)
	off := newCountingWorker("off", 50*time.Millisecond, false)
	zero := newCountingWorker("zero_interval", 0, true)
	s.RegisterWorker(on)
	s.RegisterWorker(off)
	s.RegisterWorker(zero)

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(80 * time.Millisecond)
	require.NoError(t, s.Stop())

	assert.Positive(t, on.Runs())
	assert.Zero(t, off.Runs())
	assert.Zero(t, zero.Runs(), "a zero interval disables the worker")
}

func TestScheduler_RecordsErrorsAndPanics(t *testing.T) {
	s := newTestScheduler()

	failing := newCountingWorker("failing", time.Hour, true)
	failing.runFn = func(context.Context) error { return errors.ErrUnavailable }
	panicking := newCountingWorker("panicking", time.Hour, true)
	panicking.runFn = func(context.Context) error { panic("boom") }

	s.RegisterWorker(failing)
	s.RegisterWorker(panicking)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool {
		return failing.Health().ErrorCount == 1 && panicking.Health().ErrorCount == 1
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop())

	assert.ErrorIs(t, failing.Health().LastError, errors.ErrUnavailable)
	assert.ErrorIs(t, panicking.Health().LastError, errors.ErrInternal)
	assert.Contains(t, panicking.Health().LastError.Error(), "boom")
}

func TestScheduler_StopWaitsForInFlightRun(t *testing.T) {
	s := newTestScheduler()
	var finished atomic.Bool
	w := newCountingWorker("slow", time.Hour, true)
	w.runFn = func(context.Context) error {
		time.Sleep(60 * time.Millisecond)
		finished.Store(true)
		return nil
	}
	s.RegisterWorker(w)

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, s.Stop())
	assert.True(t, finished.Load())
}

func TestScheduler_StopTimeout(t *testing.T) {
	s := newTestScheduler(WithStopTimeout(20 * time.Millisecond))
	release := make(chan struct{})
	w := newCountingWorker("stuck", time.Hour, true)
	w.runFn = func(context.Context) error {
		<-release
		return nil
	}
	s.RegisterWorker(w)

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(10 * time.Millisecond)

	err := s.Stop()
	assert.ErrorIs(t, err, errors.ErrTimeout)
	close(release)
}

func TestScheduler_ParentCancellation(t *testing.T) {
	s := newTestScheduler()
	s.RegisterWorker(newCountingWorker("w", 50*time.Millisecond, true))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, s.Stop())
}

func TestScheduler_Lifecycle(t *testing.T) {
	s := newTestScheduler()
	assert.Error(t, s.Stop(), "stop before start")

	s.RegisterWorker(newCountingWorker("a", time.Hour, true))
	s.RegisterWorker(newCountingWorker("b", time.Hour, false))

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))

	s.RegisterWorker(newCountingWorker("late", time.Hour, true))
	workers := s.GetWorkers()
	require.Len(t, workers, 2)
	assert.Equal(t, "a", workers[0].Name())
	assert.Equal(t, "b", workers[1].Name())

	require.NoError(t, s.Stop())
}

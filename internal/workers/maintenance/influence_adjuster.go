package maintenance

import (
	"context"
	"time"

	"newsdesk/internal/domain/persistence"
	"newsdesk/internal/workers"
	"newsdesk/pkg/errors"
)

// InfluenceAdjuster is the part of the debate chair the worker drives
type InfluenceAdjuster interface {
	Pending() int
	Adjust() int
	Save(ctx context.Context, kv persistence.KV) error
}

// InfluenceWorker applies queued debate outcomes to expert influence and
// snapshots the result when a KV store is configured.
type InfluenceWorker struct {
	*workers.BaseWorker
	chair InfluenceAdjuster
	kv    persistence.KV
}

// NewInfluenceWorker creates the worker. kv may be nil.
func NewInfluenceWorker(chair InfluenceAdjuster, kv persistence.KV, interval time.Duration) *InfluenceWorker {
	return &InfluenceWorker{
		BaseWorker: workers.NewBaseWorker("influence_adjuster", interval, chair != nil),
		chair:      chair,
		kv:         kv,
	}
}

// Run applies pending outcomes. Nothing is persisted when nothing changed.
func (w *InfluenceWorker) Run(ctx context.Context) error {
	if w.chair.Pending() == 0 {
		return nil
	}

	applied := w.chair.Adjust()
	w.Log().Debugw("Applied debate outcomes", "outcomes", applied)

	if w.kv == nil || applied == 0 {
		return nil
	}
	if err := w.chair.Save(ctx, w.kv); err != nil {
		return errors.Wrap(err, "persist influence snapshot")
	}
	return nil
}

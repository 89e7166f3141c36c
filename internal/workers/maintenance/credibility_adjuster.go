package maintenance

import (
	"context"
	"time"

	"newsdesk/internal/workers"
)

// SourceHistory is the part of the credibility tracker the worker drives
type SourceHistory interface {
	Pending() int
	Adjust() int
	Len() int
}

// CredibilityWorker folds queued source observations into source history
// between requests
type CredibilityWorker struct {
	*workers.BaseWorker
	history SourceHistory
}

func NewCredibilityWorker(history SourceHistory, interval time.Duration) *CredibilityWorker {
	return &CredibilityWorker{
		BaseWorker: workers.NewBaseWorker("credibility_adjuster", interval, history != nil),
		history:    history,
	}
}

func (w *CredibilityWorker) Run(context.Context) error {
	if w.history.Pending() == 0 {
		return nil
	}
	applied := w.history.Adjust()
	w.Log().Debugw("Applied source observations", "observations", applied, "sources", w.history.Len())
	return nil
}

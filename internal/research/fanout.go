package research

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"newsdesk/internal/domain/candidate"
	"newsdesk/internal/domain/selection"
	"newsdesk/internal/metrics"
	"newsdesk/pkg/errors"
	"newsdesk/pkg/logger"
)

// Config bounds the fanout
type Config struct {
	Workers      int
	AgentTimeout time.Duration
	RateLimit    float64 // agent calls per second, 0 disables
	RateBurst    int
}

// Fanout calls research agents on a bounded worker pool
type Fanout struct {
	cfg     Config
	limiter *rate.Limiter
	log     *logger.Logger
}

// Option configures a Fanout
type Option func(*Fanout)

// WithLogger overrides the logger
func WithLogger(log *logger.Logger) Option {
	return func(f *Fanout) { f.log = log }
}

// NewFanout creates a fanout
func NewFanout(cfg Config, opts ...Option) *Fanout {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.AgentTimeout <= 0 {
		cfg.AgentTimeout = 5 * time.Second
	}

	f := &Fanout{cfg: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.log == nil {
		f.log = logger.Component("research_fanout")
	}
	return f
}

type outcome struct {
	raws []candidate.Raw
	err  error
}

// Gather invokes every agent concurrently, each under its own timeout.
// Failed agents are reported and excluded; they never abort the gather.
// Each agent's output is truncated to topK, then the merged set is sorted
// by (source_id, title) with agent order as the stable base.
func (f *Fanout) Gather(ctx context.Context, bc BriefContext, agents []Agent, topK int) ([]candidate.Raw, []selection.AgentFailure) {
	if len(agents) == 0 {
		return nil, nil
	}

	start := time.Now()
	outputs := make([][]candidate.Raw, len(agents))
	failures := make([]error, len(agents))

	// Plain Group: one agent failing must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(f.cfg.Workers)

	for i, ag := range agents {
		g.Go(func() error {
			raws, err := f.invoke(ctx, ag, bc, topK)
			if err != nil {
				failures[i] = err
				return nil
			}
			outputs[i] = raws
			return nil
		})
	}
	_ = g.Wait()

	var merged []candidate.Raw
	var failed []selection.AgentFailure
	for i, ag := range agents {
		if failures[i] != nil {
			failed = append(failed, selection.AgentFailure{AgentID: ag.ID(), Reason: failures[i].Error()})
			continue
		}
		merged = append(merged, outputs[i]...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].SourceID != merged[j].SourceID {
			return merged[i].SourceID < merged[j].SourceID
		}
		return merged[i].Title < merged[j].Title
	})

	f.log.Infow("Research fanout complete",
		"request_id", bc.RequestID,
		"agents", len(agents),
		"failed", len(failed),
		"candidates", len(merged),
		"duration", time.Since(start),
	)

	return merged, failed
}

func (f *Fanout) invoke(ctx context.Context, ag Agent, bc BriefContext, topK int) ([]candidate.Raw, error) {
	id := ag.ID()
	start := time.Now()

	if err := ctx.Err(); err != nil {
		metrics.RecordAgentCall(id, "canceled", 0)
		return nil, errors.Wrapf(errors.ErrTimeout, "canceled before start: %v", err)
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			metrics.RecordAgentCall(id, "canceled", time.Since(start))
			return nil, errors.Wrapf(errors.ErrTimeout, "canceled waiting for rate limiter: %v", err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, f.cfg.AgentTimeout)
	defer cancel()

	// Buffered so an abandoned call can still deliver and exit.
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: errors.Wrapf(errors.ErrAgentFailed, "panic: %v", r)}
			}
		}()
		raws, err := ag.Invoke(callCtx, bc, topK)
		done <- outcome{raws: raws, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-callCtx.Done():
		out = outcome{err: callCtx.Err()}
	}

	elapsed := time.Since(start)
	if out.err != nil {
		err, status := f.classify(ctx, id, out.err)
		metrics.RecordAgentCall(id, status, elapsed)
		f.log.Warnw("Research agent failed",
			"request_id", bc.RequestID,
			"agent", id,
			"status", status,
			"duration", elapsed,
			"error", out.err,
		)
		return nil, err
	}

	raws := sanitize(id, out.raws, topK)
	metrics.RecordAgentCall(id, "success", elapsed)
	f.log.Debugw("Research agent completed", "request_id", bc.RequestID, "agent", id, "candidates", len(raws), "duration", elapsed)

	return raws, nil
}

// classify maps an agent error onto the failure taxonomy. A context error
// is a per-agent timeout unless the parent request itself ended.
func (f *Fanout) classify(parent context.Context, id string, err error) (error, string) {
	switch {
	case parent.Err() != nil:
		return errors.Wrapf(errors.ErrTimeout, "request deadline reached while waiting for %s", id), "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Wrapf(errors.ErrAgentTimeout, "%s exceeded %s", id, f.cfg.AgentTimeout), "timeout"
	default:
		return errors.Wrapf(errors.ErrAgentFailed, "%s: %v", id, err), "error"
	}
}

// sanitize truncates to topK, drops entries without source or title and
// copies the rest so later stages never alias agent memory
func sanitize(agentID string, raws []candidate.Raw, topK int) []candidate.Raw {
	if topK > 0 && len(raws) > topK {
		raws = raws[:topK]
	}

	out := make([]candidate.Raw, 0, len(raws))
	for _, r := range raws {
		if r.SourceID == "" || r.Title == "" {
			continue
		}
		cp := r
		cp.Regions = append([]string(nil), r.Regions...)
		if cp.AgentID == "" {
			cp.AgentID = agentID
		}
		out = append(out, cp)
	}
	return out
}

// FailureIDs returns agent ids from failures
func FailureIDs(failures []selection.AgentFailure) []string {
	out := make([]string, len(failures))
	for i, f := range failures {
		out[i] = f.AgentID
	}
	sort.Strings(out)
	return out
}

// String makes Config readable in startup logs
func (c Config) String() string {
	return fmt.Sprintf("workers=%d agent_timeout=%s rate=%.2f/s burst=%d", c.Workers, c.AgentTimeout, c.RateLimit, c.RateBurst)
}

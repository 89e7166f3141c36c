package intelligence

import (
	"fmt"
	"sort"
	"time"

	"newsdesk/internal/domain/candidate"
	"newsdesk/internal/metrics"
	"newsdesk/pkg/errors"
	"newsdesk/pkg/logger"
)

// Stage names, in execution order
const (
	StageCluster       = "cluster"
	StageCredibility   = "credibility"
	StageCorroboration = "corroboration"
	StageUrgency       = "urgency"
	StageGeoRisk       = "geo_risk"
	StageTrend         = "trend"
	StageDiversity     = "diversity"
)

// StageContext carries request-wide inputs and per-request stage state.
// One StageContext is created per Annotate call, so stages stay safe to
// share across concurrent requests.
type StageContext struct {
	Now   time.Time
	Items []*candidate.Annotated

	values map[string]any
}

// Set stores per-request state for a stage
func (sc *StageContext) Set(key string, v any) {
	if sc.values == nil {
		sc.values = make(map[string]any)
	}
	sc.values[key] = v
}

// Value returns per-request state stored by Set
func (sc *StageContext) Value(key string) any {
	return sc.values[key]
}

// Stage is one annotation step. Prepare runs once per request over the
// whole set; Apply runs per candidate. Any error or panic degrades the
// stage for the affected candidates and Neutral resets their fields.
type Stage interface {
	Name() string
	Prepare(sc *StageContext) error
	Apply(sc *StageContext, item *candidate.Annotated) error
	Neutral(item *candidate.Annotated)
}

// Result is the outcome of one Annotate call
type Result struct {
	Candidates     []*candidate.Annotated
	DegradedStages []string // sorted
	UniqueCount    int
}

// Annotator runs dedupe and then every stage in fixed order
type Annotator struct {
	stages  []Stage
	tracker *CredibilityTracker
	log     *logger.Logger
}

// Option configures an Annotator
type Option func(*Annotator)

// WithStage replaces the stage with the same name
func WithStage(st Stage) Option {
	return func(a *Annotator) {
		for i, cur := range a.stages {
			if cur.Name() == st.Name() {
				a.stages[i] = st
				return
			}
		}
	}
}

// WithLogger overrides the logger
func WithLogger(log *logger.Logger) Option {
	return func(a *Annotator) { a.log = log }
}

// New builds the default pipeline. The trend detector and the credibility
// tracker keep state across calls; pass the same Annotator to every request.
func New(cfg Config, risk RiskSource, opts ...Option) *Annotator {
	tracker := NewCredibilityTracker(cfg.Credibility)
	a := &Annotator{
		tracker: tracker,
		stages: []Stage{
			NewClusterStage(cfg.Cluster),
			NewCredibilityStage(cfg.Credibility).WithTracker(tracker),
			NewCorroborationStage(cfg.Corroboration),
			NewUrgencyStage(cfg.Urgency),
			NewGeoRiskStage(cfg.GeoRisk, risk),
			NewTrendStage(NewTrendDetector(cfg.Trend)),
			DiversityStage{},
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = logger.Component("annotator")
	}
	return a
}

// Tracker returns the source history fed by every Annotate call. Its
// queued observations take effect on Adjust.
func (a *Annotator) Tracker() *CredibilityTracker { return a.tracker }

// Stages lists stage names in execution order
func (a *Annotator) Stages() []string {
	out := make([]string, len(a.stages))
	for i, st := range a.stages {
		out[i] = st.Name()
	}
	return out
}

// Annotate dedupes raws and enriches the resulting candidates. It never
// fails: a broken stage is recorded per candidate and the pipeline moves on.
func (a *Annotator) Annotate(raws []candidate.Raw, now time.Time) Result {
	merged := Dedupe(raws)
	items := make([]*candidate.Annotated, len(merged))
	for i, c := range merged {
		items[i] = candidate.NewAnnotated(c)
	}

	sc := &StageContext{Now: now, Items: items}
	degraded := make(map[string]struct{})

	for _, st := range a.stages {
		if a.runStage(sc, st) {
			degraded[st.Name()] = struct{}{}
		}
	}

	a.tracker.Observe(items)

	out := make([]string, 0, len(degraded))
	for name := range degraded {
		out = append(out, name)
	}
	sort.Strings(out)

	return Result{Candidates: items, DegradedStages: out, UniqueCount: len(items)}
}

// runStage reports whether any candidate degraded
func (a *Annotator) runStage(sc *StageContext, st Stage) bool {
	name := st.Name()
	prepErr := guard(name, func() error { return st.Prepare(sc) })

	failed := 0
	var firstErr error
	for _, item := range sc.Items {
		err := prepErr
		if err == nil {
			err = guard(name, func() error { return st.Apply(sc, item) })
		}
		if err != nil {
			st.Neutral(item)
			item.MarkStage(name, candidate.StageDegraded)
			metrics.RecordStageDegraded(name)
			failed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		item.MarkStage(name, candidate.StageOK)
	}

	if failed > 0 {
		a.log.Warnw("Annotation stage degraded", "stage", name, "candidates", failed, "error", firstErr)
	}
	return failed > 0
}

func guard(stage string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(errors.ErrStageDegraded, "%s panicked: %v", stage, r)
		}
	}()
	if e := fn(); e != nil {
		return errors.Wrapf(errors.ErrStageDegraded, "%s: %v", stage, e)
	}
	return nil
}

// Describe renders the stage order for startup logs
func (a *Annotator) Describe() string {
	return fmt.Sprintf("%v", a.Stages())
}

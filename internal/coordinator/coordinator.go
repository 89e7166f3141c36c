package coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"newsdesk/internal/council"
	"newsdesk/internal/domain/brief"
	"newsdesk/internal/domain/candidate"
	"newsdesk/internal/domain/debate"
	"newsdesk/internal/domain/profile"
	"newsdesk/internal/domain/selection"
	"newsdesk/internal/intelligence"
	"newsdesk/internal/metrics"
	"newsdesk/internal/research"
	"newsdesk/internal/services/reserve"
	"newsdesk/pkg/errors"
	"newsdesk/pkg/logger"
)

// ProfileSource hands out profile snapshots
type ProfileSource interface {
	Snapshot(ctx context.Context, userID string) profile.UserProfile
}

// AgentSource picks the agents for a brief
type AgentSource interface {
	ForBrief(b brief.Brief) []research.Agent
}

// Gatherer runs agents concurrently
type Gatherer interface {
	Gather(ctx context.Context, bc research.BriefContext, agents []research.Agent, topK int) ([]candidate.Raw, []selection.AgentFailure)
}

// Annotator enriches raw candidates
type Annotator interface {
	Annotate(raws []candidate.Raw, now time.Time) intelligence.Result
}

// ReserveCache holds the unserved ranked candidates per (user, topic).
// PutRanked refuses a reserve whose generation predates an invalidation.
type ReserveCache interface {
	Generation(userID string) uint64
	PutRanked(userID, topic string, r reserve.Ranked, ttl time.Duration, generation uint64) bool
	TakeRanked(userID, topic string, n int) (reserve.Ranked, bool)
}

// EventSink is told about every delivered selection
type EventSink interface {
	SelectionDelivered(ctx context.Context, sel selection.Selection)
}

// Config bounds a request
type Config struct {
	RequestTimeout time.Duration
	TopK           int
	MaxRequested   int
	CacheTTL       time.Duration
}

// Coordinator drives a brief through research, annotation, council and
// cache update
type Coordinator struct {
	cfg       Config
	profiles  ProfileSource
	agents    AgentSource
	fanout    Gatherer
	annotator Annotator
	council   *council.Council
	cache     ReserveCache
	events    EventSink

	now   func() time.Time
	newID func() string
	log   *logger.Logger
}

type Option func(*Coordinator)

func WithEvents(sink EventSink) Option {
	return func(c *Coordinator) { c.events = sink }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithRequestIDs overrides the uuid request id generator
func WithRequestIDs(next func() string) Option {
	return func(c *Coordinator) { c.newID = next }
}

func WithLogger(log *logger.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

func New(
	cfg Config,
	profiles ProfileSource,
	agents AgentSource,
	fanout Gatherer,
	annotator Annotator,
	council *council.Council,
	cache ReserveCache,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		cfg:       cfg,
		profiles:  profiles,
		agents:    agents,
		fanout:    fanout,
		annotator: annotator,
		council:   council,
		cache:     cache,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Component("coordinator")
	}
	return c
}

// Handle answers a brief. It fails only with ErrInvalidBrief for malformed
// input or ErrTimeout when the global deadline passed before any agent
// produced a candidate. Every other failure is absorbed into the
// Selection's degradation fields.
func (c *Coordinator) Handle(ctx context.Context, b brief.Brief) (selection.Selection, error) {
	start := c.now()
	requestID := c.newID()
	life := newLifecycle(c.now)
	log := c.log.WithRequest(requestID, b.UserID)

	if err := b.Validate(c.cfg.MaxRequested); err != nil {
		return c.fail(life, requestID, b, start, errors.Wrap(err, "invalid brief")), err
	}
	b = b.Clone()
	topic := b.DominantTopic()
	ctx = errors.WithRequestScope(ctx, errors.RequestScope{RequestID: requestID, UserID: b.UserID})

	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	// The snapshot is the only profile this request sees. The generation is
	// read first so a preference change committed after it voids the reserve.
	generation := c.cache.Generation(b.UserID)
	prof := c.profiles.Snapshot(ctx, b.UserID).WithFallback(b.TopicWeights)

	c.must(life.advance(selection.StateResearching), log)
	agents := c.agents.ForBrief(b)
	raws, failures := c.fanout.Gather(ctx, research.ContextFromBrief(requestID, b), agents, c.cfg.TopK)
	deadlineHit := ctx.Err() != nil

	if len(raws) == 0 && deadlineHit {
		err := errors.Wrapf(errors.ErrTimeout, "request %s: deadline passed with no candidates", requestID)
		sel := c.fail(life, requestID, b, start, err)
		sel.AgentFailures = failures
		sel.DegradedAgents = research.FailureIDs(failures)
		sel.DeadlineExceeded = true
		return sel, err
	}
	raws = c.applyConstraints(b, raws)

	c.must(life.advance(selection.StateAnnotating), log)
	annotated := c.annotator.Annotate(raws, c.now())

	c.must(life.advance(selection.StateCouncil), log)
	records := c.council.Evaluate(annotated.Candidates, prof)
	outcome := c.council.Select(annotated.Candidates, records, b.RequestedCount)
	c.council.Chair().Observe(records, council.Selected(outcome.Items))

	c.must(life.advance(selection.StateCacheUpdate), log)
	queue := council.ReserveQueue(outcome)
	if !c.cache.PutRanked(b.UserID, topic, rankedReserve(queue, annotated.DegradedStages), c.cfg.CacheTTL, generation) {
		log.Infow("Reserve discarded, preferences changed during the request", "topic", topic)
	}

	sel := selection.Selection{
		RequestID:        requestID,
		UserID:           b.UserID,
		Topic:            topic,
		Items:            outcome.Items,
		Reserve:          outcome.Reserve,
		Deferred:         outcome.Deferred,
		DegradedStages:   annotated.DegradedStages,
		DegradedAgents:   research.FailureIDs(failures),
		AgentFailures:    failures,
		DeadlineExceeded: deadlineHit,
	}
	return c.deliver(ctx, life, sel, start, log, len(agents), annotated.UniqueCount), nil
}

// More serves the next slice of the reserve for the brief's dominant topic.
// A stale or missing reserve falls back to a full Handle.
func (c *Coordinator) More(ctx context.Context, b brief.Brief) (selection.Selection, error) {
	if err := b.Validate(c.cfg.MaxRequested); err != nil {
		return c.fail(newLifecycle(c.now), c.newID(), b, c.now(), err), err
	}
	topic := b.DominantTopic()

	cached, fresh := c.cache.TakeRanked(b.UserID, topic, b.RequestedCount)
	if !fresh {
		return c.Handle(ctx, b)
	}

	start := c.now()
	requestID := c.newID()
	life := newLifecycle(c.now)
	log := c.log.WithRequest(requestID, b.UserID)
	c.must(life.advance(selection.StateCacheUpdate), log)

	items := make([]selection.Item, len(cached.Candidates))
	for i, a := range cached.Candidates {
		rec := debate.Record{CandidateKey: a.Key}
		if cached.Records != nil {
			rec = cached.Records[i]
		}
		items[i] = selection.Item{Candidate: a, Record: rec}
	}
	sel := selection.Selection{
		RequestID:      requestID,
		UserID:         b.UserID,
		Topic:          topic,
		Items:          items,
		DegradedStages: cached.DegradedStages,
		FromCache:      true,
	}
	return c.deliver(ctx, life, sel, start, log, 0, len(items)), nil
}

// rankedReserve keeps each queued candidate with its council record
func rankedReserve(queue []selection.Item, degraded []string) reserve.Ranked {
	r := reserve.Ranked{
		Candidates:     make([]candidate.Annotated, len(queue)),
		Records:        make([]debate.Record, len(queue)),
		DegradedStages: degraded,
	}
	for i, it := range queue {
		r.Candidates[i] = it.Candidate
		r.Records[i] = it.Record
	}
	return r
}

// applyConstraints drops excluded sources and candidates older than MaxAge.
// Undated candidates pass the age filter.
func (c *Coordinator) applyConstraints(b brief.Brief, raws []candidate.Raw) []candidate.Raw {
	cutoff := time.Time{}
	if b.Constraints.MaxAge > 0 {
		cutoff = c.now().Add(-b.Constraints.MaxAge)
	}
	out := raws[:0:0]
	for _, r := range raws {
		if b.Excludes(r.SourceID) {
			continue
		}
		if !cutoff.IsZero() && !r.PublishedAt.IsZero() && r.PublishedAt.Before(cutoff) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (c *Coordinator) deliver(
	ctx context.Context,
	life *lifecycle,
	sel selection.Selection,
	start time.Time,
	log *logger.Logger,
	agents, unique int,
) selection.Selection {
	final := selection.StateDelivered
	if sel.Degraded() {
		final = selection.StateDegradedDelivered
	}
	c.must(life.advance(final), log)

	sel.State = final
	sel.Transitions = life.trail()
	sel.GeneratedAt = c.now()
	if sel.DegradedStages == nil {
		sel.DegradedStages = []string{}
	}
	if sel.DegradedAgents == nil {
		sel.DegradedAgents = []string{}
	}

	elapsed := c.now().Sub(start)
	metrics.RecordRequest(string(final), elapsed)
	log.Infow("Selection delivered",
		"state", final,
		"topic", sel.Topic,
		"agents", agents,
		"failed_agents", len(sel.DegradedAgents),
		"unique_candidates", unique,
		"items", len(sel.Items),
		"reserve", len(sel.Reserve)+len(sel.Deferred),
		"degraded_stages", sel.DegradedStages,
		"from_cache", sel.FromCache,
		"duration", elapsed,
	)

	if c.events != nil {
		c.events.SelectionDelivered(ctx, sel)
	}
	return sel
}

func (c *Coordinator) fail(life *lifecycle, requestID string, b brief.Brief, start time.Time, err error) selection.Selection {
	c.must(life.advance(selection.StateFailed), c.log)
	metrics.RecordRequest(string(selection.StateFailed), c.now().Sub(start))
	c.log.WithRequest(requestID, b.UserID).Warnw("Request failed", "error", err)

	return selection.Selection{
		RequestID:   requestID,
		UserID:      b.UserID,
		Topic:       b.DominantTopic(),
		State:       selection.StateFailed,
		Transitions: life.trail(),
		GeneratedAt: c.now(),
	}
}

// must logs a rejected transition; the fixed call order makes it a bug
func (c *Coordinator) must(err error, log *logger.Logger) {
	if err != nil {
		log.Errorw("Invalid state transition", "error", err)
	}
}

package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsdesk/internal/council"
	"newsdesk/internal/domain/brief"
	"newsdesk/internal/domain/candidate"
	"newsdesk/internal/domain/debate"
	"newsdesk/internal/domain/profile"
	"newsdesk/internal/domain/selection"
	"newsdesk/internal/intelligence"
	"newsdesk/internal/research"
	"newsdesk/internal/services/preference"
	"newsdesk/internal/services/reserve"
	"newsdesk/pkg/errors"
	"newsdesk/pkg/logger"
)

// keepAllExpert keeps everything and remembers the profiles it saw
type keepAllExpert struct {
	mu   sync.Mutex
	seen []profile.UserProfile
}

func (e *keepAllExpert) ID() string { return "keep_all" }

func (e *keepAllExpert) Vote(item *candidate.Annotated, p profile.UserProfile) debate.Vote {
	e.mu.Lock()
	e.seen = append(e.seen, p.Clone())
	e.mu.Unlock()
	return debate.Vote{ExpertID: e.ID(), CandidateKey: item.Key, Decision: debate.Keep, Confidence: 0.9}
}

func (e *keepAllExpert) lastWeight(topic string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.seen) == 0 {
		return -1
	}
	return e.seen[len(e.seen)-1].TopicWeights[topic]
}

type recordingSink struct {
	mu   sync.Mutex
	sels []selection.Selection
}

func (r *recordingSink) SelectionDelivered(_ context.Context, sel selection.Selection) {
	r.mu.Lock()
	r.sels = append(r.sels, sel)
	r.mu.Unlock()
}

type harness struct {
	coord    *Coordinator
	registry *research.Registry
	profiles *preference.Store
	cache    *reserve.Cache
	expert   *keepAllExpert
	events   *recordingSink
}

func newHarness(t *testing.T, cfg Config, agentTimeout time.Duration) *harness {
	t.Helper()
	nop := logger.NewNop()
	cache := reserve.NewCache(reserve.Config{DefaultTTL: time.Hour, MaxPerUser: 8, MaxTotal: 100}, reserve.WithLogger(nop))
	h := &harness{
		registry: research.NewRegistry(),
		profiles: preference.NewStore(
			preference.WithLogger(nop),
			preference.WithListener(func(_ context.Context, p profile.UserProfile) { cache.InvalidateUser(p.UserID) }),
		),
		cache:  cache,
		expert: &keepAllExpert{},
		events: &recordingSink{},
	}
	fanout := research.NewFanout(research.Config{Workers: 4, AgentTimeout: agentTimeout}, research.WithLogger(nop))
	annotator := intelligence.New(intelligence.DefaultConfig(), nil, intelligence.WithLogger(nop))
	cncl := council.New(council.DefaultConfig(), []council.Expert{h.expert}, nil, council.WithLogger(nop))

	var seq atomic.Int64
	h.coord = New(cfg, h.profiles, h.registry, fanout, annotator, cncl, h.cache,
		WithEvents(h.events),
		WithLogger(nop),
		WithRequestIDs(func() string { return fmt.Sprintf("req-%d", seq.Add(1)) }),
	)
	return h
}

func defaultConfig() Config {
	return Config{RequestTimeout: 2 * time.Second, TopK: 5, MaxRequested: 50, CacheTTL: time.Hour}
}

var (
	storyVerbs = []string{"questions", "approves", "delays", "rejects", "expands"}
	storyNouns = []string{"chip exports", "model audits", "data centers", "copyright claims", "safety boards"}
)

// storyAgent returns n distinct headlines that never cluster with each other
func storyAgent(id, source string, n int) research.Agent {
	return research.Func{Name: id, Fn: func(_ context.Context, bc research.BriefContext, topK int) ([]candidate.Raw, error) {
		out := make([]candidate.Raw, 0, n)
		for i := 0; i < n && i < topK; i++ {
			out = append(out, candidate.Raw{
				SourceID:    source,
				Title:       fmt.Sprintf("%s %s %s", source, storyVerbs[i], storyNouns[(i+len(source))%len(storyNouns)]),
				PublishedAt: time.Now().Add(-time.Duration(i) * time.Minute),
				TopicHint:   bc.Topics[0],
			})
		}
		return out, nil
	}}
}

func blockingAgent(id string) research.Agent {
	return research.Func{Name: id, Fn: func(ctx context.Context, _ research.BriefContext, _ int) ([]candidate.Raw, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
}

func aiBrief(count int) brief.Brief {
	return brief.Brief{UserID: "42", TopicWeights: map[string]float64{"ai_policy": 0.9}, RequestedCount: count}
}

func TestHandle_Delivers(t *testing.T) {
	h := newHarness(t, defaultConfig(), time.Second)
	require.NoError(t, h.registry.Register(storyAgent("wire", "reuters", 3)))
	require.NoError(t, h.registry.Register(storyAgent("broadcast", "bbc", 3)))

	sel, err := h.coord.Handle(context.Background(), aiBrief(4))

	require.NoError(t, err)
	assert.Equal(t, selection.StateDelivered, sel.State)
	assert.Equal(t, "req-1", sel.RequestID)
	assert.Equal(t, "ai_policy", sel.Topic)
	assert.Len(t, sel.Items, 4)
	assert.Empty(t, sel.DegradedAgents)
	assert.Empty(t, sel.DegradedStages)

	states := make([]selection.State, len(sel.Transitions))
	for i, tr := range sel.Transitions {
		states[i] = tr.State
	}
	assert.Equal(t, []selection.State{
		selection.StateQueued, selection.StateResearching, selection.StateAnnotating,
		selection.StateCouncil, selection.StateCacheUpdate, selection.StateDelivered,
	}, states)

	require.Len(t, h.events.sels, 1)
	assert.Equal(t, sel.RequestID, h.events.sels[0].RequestID)
	assert.Equal(t, 1, h.cache.Len(), "the unserved remainder is cached")
}

func TestHandle_AgentTimeoutDegrades(t *testing.T) {
	h := newHarness(t, defaultConfig(), 50*time.Millisecond)
	require.NoError(t, h.registry.Register(storyAgent("wire", "reuters", 3)))
	require.NoError(t, h.registry.Register(storyAgent("broadcast", "bbc", 3)))
	require.NoError(t, h.registry.Register(blockingAgent("slow")))

	sel, err := h.coord.Handle(context.Background(), aiBrief(3))

	require.NoError(t, err)
	assert.Equal(t, selection.StateDegradedDelivered, sel.State)
	assert.Equal(t, []string{"slow"}, sel.DegradedAgents)
	require.Len(t, sel.AgentFailures, 1)
	assert.NotEmpty(t, sel.AgentFailures[0].Reason)
	assert.NotEmpty(t, sel.Items)
	assert.False(t, sel.DeadlineExceeded)
}

func TestHandle_InvalidBrief(t *testing.T) {
	h := newHarness(t, defaultConfig(), time.Second)

	sel, err := h.coord.Handle(context.Background(), brief.Brief{RequestedCount: 0})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidBrief))
	assert.Equal(t, selection.StateFailed, sel.State)
	assert.Empty(t, h.events.sels)
}

func TestHandle_TimeoutWithoutResults(t *testing.T) {
	cfg := defaultConfig()
	cfg.RequestTimeout = 40 * time.Millisecond
	h := newHarness(t, cfg, time.Second)
	require.NoError(t, h.registry.Register(blockingAgent("slow-a")))
	require.NoError(t, h.registry.Register(blockingAgent("slow-b")))

	sel, err := h.coord.Handle(context.Background(), aiBrief(3))

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTimeout))
	assert.Equal(t, selection.StateFailed, sel.State)
	assert.True(t, sel.DeadlineExceeded)
	assert.Equal(t, []string{"slow-a", "slow-b"}, sel.DegradedAgents)
}

func TestHandle_DeadlineKeepsPartialResults(t *testing.T) {
	cfg := defaultConfig()
	cfg.RequestTimeout = 60 * time.Millisecond
	h := newHarness(t, cfg, time.Second)
	require.NoError(t, h.registry.Register(storyAgent("wire", "reuters", 2)))
	require.NoError(t, h.registry.Register(blockingAgent("slow")))

	sel, err := h.coord.Handle(context.Background(), aiBrief(2))

	require.NoError(t, err)
	assert.Equal(t, selection.StateDegradedDelivered, sel.State)
	assert.True(t, sel.DeadlineExceeded)
	assert.Len(t, sel.Items, 1, "one source may hold half of two slots")
	assert.Len(t, sel.Deferred, 1)
}

func TestHandle_AllAgentsFailWithoutDeadline(t *testing.T) {
	h := newHarness(t, defaultConfig(), time.Second)
	broken := research.Func{Name: "broken", Fn: func(context.Context, research.BriefContext, int) ([]candidate.Raw, error) {
		return nil, errors.New("upstream 503")
	}}
	require.NoError(t, h.registry.Register(broken))

	sel, err := h.coord.Handle(context.Background(), aiBrief(3))

	require.NoError(t, err)
	assert.Equal(t, selection.StateDegradedDelivered, sel.State)
	assert.Empty(t, sel.Items)
	assert.Equal(t, []string{"broken"}, sel.DegradedAgents)
}

func TestHandle_SessionConstraints(t *testing.T) {
	h := newHarness(t, defaultConfig(), time.Second)
	old := research.Func{Name: "archive", Fn: func(context.Context, research.BriefContext, int) ([]candidate.Raw, error) {
		return []candidate.Raw{{SourceID: "ap", Title: "Archive piece from last month", PublishedAt: time.Now().Add(-30 * 24 * time.Hour)}}, nil
	}}
	require.NoError(t, h.registry.Register(storyAgent("wire", "reuters", 2)))
	require.NoError(t, h.registry.Register(storyAgent("broadcast", "bbc", 2)))
	require.NoError(t, h.registry.Register(old))

	b := aiBrief(5)
	b.Constraints = brief.Constraints{ExcludeSources: []string{"bbc"}, MaxAge: 24 * time.Hour}
	sel, err := h.coord.Handle(context.Background(), b)

	require.NoError(t, err)
	for _, it := range append(append([]selection.Item{}, sel.Items...), sel.Deferred...) {
		assert.Equal(t, "reuters", it.Candidate.SourceID)
	}
}

func TestMore_ServesFreshReserve(t *testing.T) {
	h := newHarness(t, defaultConfig(), time.Second)
	var calls atomic.Int32
	counting := research.Func{Name: "counting", Fn: func(context.Context, research.BriefContext, int) ([]candidate.Raw, error) {
		calls.Add(1)
		return nil, nil
	}}
	require.NoError(t, h.registry.Register(counting))

	reserved := make([]candidate.Annotated, 5)
	for i := range reserved {
		reserved[i] = *candidate.NewAnnotated(candidate.FromRaw(candidate.Raw{SourceID: "ap", Title: fmt.Sprintf("held story %d", i)}))
	}
	h.cache.Put("42", "ai_policy", reserved, time.Hour)

	sel, err := h.coord.More(context.Background(), aiBrief(5))

	require.NoError(t, err)
	assert.Zero(t, calls.Load(), "a fresh reserve never reaches the agents")
	assert.True(t, sel.FromCache)
	assert.Equal(t, selection.StateDelivered, sel.State)
	require.Len(t, sel.Items, 5)
	for i, it := range sel.Items {
		assert.Equal(t, reserved[i].Key, it.Candidate.Key)
	}

	// the reserve is spent, so the next request runs the pipeline
	_, err = h.coord.More(context.Background(), aiBrief(5))
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMore_KeepsCouncilRecords(t *testing.T) {
	h := newHarness(t, defaultConfig(), time.Second)
	require.NoError(t, h.registry.Register(storyAgent("wire", "reuters", 3)))
	require.NoError(t, h.registry.Register(storyAgent("broadcast", "bbc", 3)))

	first, err := h.coord.Handle(context.Background(), aiBrief(2))
	require.NoError(t, err)
	require.Len(t, first.Items, 2)

	more, err := h.coord.More(context.Background(), aiBrief(2))
	require.NoError(t, err)
	require.True(t, more.FromCache)
	require.Len(t, more.Items, 2)
	for _, it := range more.Items {
		assert.Equal(t, it.Candidate.Key, it.Record.CandidateKey)
		assert.Len(t, it.Record.Votes, 1)
		assert.Positive(t, it.Record.Aggregate)
		assert.Equal(t, it.Record.Weighted, it.Record.Aggregate)
	}
}

func TestMore_CarriesDegradedStages(t *testing.T) {
	h := newHarness(t, defaultConfig(), time.Second)
	a := *candidate.NewAnnotated(candidate.FromRaw(candidate.Raw{SourceID: "ap", Title: "held story"}))
	r := reserve.Ranked{
		Candidates:     []candidate.Annotated{a},
		Records:        []debate.Record{{CandidateKey: a.Key, Weighted: 0.6, Aggregate: 0.6}},
		DegradedStages: []string{intelligence.StageTrend},
	}
	require.True(t, h.cache.PutRanked("42", "ai_policy", r, time.Hour, h.cache.Generation("42")))

	sel, err := h.coord.More(context.Background(), aiBrief(3))

	require.NoError(t, err)
	assert.Equal(t, selection.StateDegradedDelivered, sel.State)
	assert.Equal(t, []string{intelligence.StageTrend}, sel.DegradedStages)
	require.Len(t, sel.Items, 1)
	assert.InDelta(t, 0.6, sel.Items[0].Record.Aggregate, 1e-9)
}

func TestHandle_PreferenceChangeVoidsInFlightReserve(t *testing.T) {
	h := newHarness(t, defaultConfig(), time.Second)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	stories := storyAgent("wire", "reuters", 4)
	gated := research.Func{Name: "gated", Fn: func(ctx context.Context, bc research.BriefContext, topK int) ([]candidate.Raw, error) {
		once.Do(func() { close(started) })
		<-release
		return stories.Invoke(ctx, bc, topK)
	}}
	require.NoError(t, h.registry.Register(gated))

	done := make(chan error, 1)
	go func() {
		_, err := h.coord.Handle(context.Background(), aiBrief(1))
		done <- err
	}()

	<-started
	_, err := h.profiles.Update(context.Background(), "42", preference.SetWeight("ai_policy", 0.1))
	require.NoError(t, err)
	close(release)
	require.NoError(t, <-done)

	_, fresh := h.cache.Get("42", "ai_policy")
	assert.False(t, fresh, "a reserve ranked under the old weights is not cached")

	_, err = h.coord.Handle(context.Background(), aiBrief(1))
	require.NoError(t, err)
	_, fresh = h.cache.Get("42", "ai_policy")
	assert.True(t, fresh)
}

func TestHandle_ProfileSnapshotIsolation(t *testing.T) {
	h := newHarness(t, defaultConfig(), time.Second)
	_, err := h.profiles.Update(context.Background(), "42", preference.SetWeight("ai_policy", 0.9))
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	gated := research.Func{Name: "gated", Fn: func(ctx context.Context, bc research.BriefContext, topK int) ([]candidate.Raw, error) {
		once.Do(func() { close(started) })
		<-release
		return []candidate.Raw{{SourceID: "ap", Title: "Regulators publish model audit rules", PublishedAt: time.Now()}}, nil
	}}
	require.NoError(t, h.registry.Register(gated))

	done := make(chan error, 1)
	go func() {
		_, err := h.coord.Handle(context.Background(), aiBrief(1))
		done <- err
	}()

	<-started
	_, err = h.profiles.Update(context.Background(), "42", preference.SetWeight("ai_policy", 0.1))
	require.NoError(t, err)
	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, 0.9, h.expert.lastWeight("ai_policy"), "in-flight request keeps its snapshot")

	_, err = h.coord.Handle(context.Background(), aiBrief(1))
	require.NoError(t, err)
	assert.Equal(t, 0.1, h.expert.lastWeight("ai_policy"))
}

func TestHandle_ConcurrentRequests(t *testing.T) {
	h := newHarness(t, defaultConfig(), time.Second)
	require.NoError(t, h.registry.Register(storyAgent("wire", "reuters", 5)))
	require.NoError(t, h.registry.Register(storyAgent("broadcast", "bbc", 5)))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b := aiBrief(3)
			b.UserID = fmt.Sprintf("user-%d", i)
			sel, err := h.coord.Handle(context.Background(), b)
			assert.NoError(t, err)
			assert.LessOrEqual(t, len(sel.Items), 3)
		}(i)
	}
	wg.Wait()
	assert.Len(t, h.events.sels, 8)
}

func TestLifecycle_OneDirectional(t *testing.T) {
	now := func() time.Time { return time.Unix(0, 0) }
	l := newLifecycle(now)

	require.NoError(t, l.advance(selection.StateResearching))
	require.NoError(t, l.advance(selection.StateCouncil))
	assert.Error(t, l.advance(selection.StateAnnotating))
	require.NoError(t, l.advance(selection.StateDegradedDelivered))
	assert.Error(t, l.advance(selection.StateFailed))
	assert.Len(t, l.trail(), 4)
}

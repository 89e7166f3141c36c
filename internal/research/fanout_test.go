package research

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"newsdesk/internal/domain/candidate"
	"newsdesk/pkg/errors"
	"newsdesk/pkg/logger"
)

func newTestFanout(cfg Config) *Fanout {
	return NewFanout(cfg, WithLogger(logger.NewNop()))
}

func staticAgent(id string, raws ...candidate.Raw) Agent {
	return Func{Name: id, Fn: func(context.Context, BriefContext, int) ([]candidate.Raw, error) {
		return raws, nil
	}}
}

func blockingAgent(id string) Agent {
	return Func{Name: id, Fn: func(ctx context.Context, _ BriefContext, _ int) ([]candidate.Raw, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
}

func raws(source string, n int) []candidate.Raw {
	out := make([]candidate.Raw, n)
	for i := range out {
		out[i] = candidate.Raw{SourceID: source, Title: fmt.Sprintf("%s story %d", source, i)}
	}
	return out
}

func TestGatherMergesAndSorts(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newTestFanout(Config{Workers: 2, AgentTimeout: time.Second})
	agents := []Agent{
		staticAgent("b", candidate.Raw{SourceID: "reuters", Title: "Zeta"}, candidate.Raw{SourceID: "ap", Title: "Beta"}),
		staticAgent("a", candidate.Raw{SourceID: "ap", Title: "Alpha"}),
	}

	got, failed := f.Gather(context.Background(), BriefContext{RequestID: "r1"}, agents, 5)

	assert.Empty(t, failed)
	require.Len(t, got, 3)
	assert.Equal(t, "Alpha", got[0].Title)
	assert.Equal(t, "Beta", got[1].Title)
	assert.Equal(t, "Zeta", got[2].Title)
	assert.Equal(t, "a", got[0].AgentID)
}

func TestGatherTruncatesPerAgent(t *testing.T) {
	f := newTestFanout(Config{Workers: 4, AgentTimeout: time.Second})
	agents := []Agent{staticAgent("a", raws("ap", 8)...), staticAgent("b", raws("bbc", 2)...)}

	got, _ := f.Gather(context.Background(), BriefContext{}, agents, 3)

	counts := map[string]int{}
	for _, r := range got {
		counts[r.SourceID]++
	}
	assert.Equal(t, 3, counts["ap"])
	assert.Equal(t, 2, counts["bbc"])
	assert.Equal(t, "ap story 0", got[0].Title, "agent's own ranking is kept when truncating")
}

func TestGatherIsolatesTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newTestFanout(Config{Workers: 3, AgentTimeout: 50 * time.Millisecond})
	agents := []Agent{
		staticAgent("a", raws("ap", 5)...),
		blockingAgent("slow"),
		staticAgent("b", raws("bbc", 5)...),
	}

	got, failed := f.Gather(context.Background(), BriefContext{}, agents, 5)

	assert.Len(t, got, 10)
	require.Len(t, failed, 1)
	assert.Equal(t, "slow", failed[0].AgentID)
	assert.Contains(t, failed[0].Reason, "exceeded")
}

func TestGatherAbandonsAgentIgnoringContext(t *testing.T) {
	release := make(chan struct{})
	stubborn := Func{Name: "stubborn", Fn: func(context.Context, BriefContext, int) ([]candidate.Raw, error) {
		<-release
		return raws("x", 1), nil
	}}

	f := newTestFanout(Config{Workers: 2, AgentTimeout: 20 * time.Millisecond})
	start := time.Now()
	got, failed := f.Gather(context.Background(), BriefContext{}, []Agent{stubborn, staticAgent("a", raws("ap", 1)...)}, 5)

	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, got, 1)
	require.Len(t, failed, 1)
	assert.Equal(t, "stubborn", failed[0].AgentID)

	close(release)
	goleak.VerifyNone(t)
}

func TestGatherRecordsErrorsAndPanics(t *testing.T) {
	defer goleak.VerifyNone(t)

	failing := Func{Name: "broken", Fn: func(context.Context, BriefContext, int) ([]candidate.Raw, error) {
		return nil, errors.New("upstream 500")
	}}
	panicking := Func{Name: "panics", Fn: func(context.Context, BriefContext, int) ([]candidate.Raw, error) {
		panic("nil map")
	}}

	f := newTestFanout(Config{Workers: 2, AgentTimeout: time.Second})
	got, failed := f.Gather(context.Background(), BriefContext{}, []Agent{failing, panicking, staticAgent("ok", raws("ap", 2)...)}, 5)

	assert.Len(t, got, 2)
	require.Len(t, failed, 2)
	assert.Equal(t, []string{"broken", "panics"}, FailureIDs(failed))
	assert.Contains(t, failed[0].Reason, "upstream 500")
	assert.Contains(t, failed[1].Reason, "panic")
}

func TestGatherRespectsWorkerLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	mk := func(id string) Agent {
		return Func{Name: id, Fn: func(ctx context.Context, _ BriefContext, _ int) ([]candidate.Raw, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			return raws(id, 1), nil
		}}
	}

	agents := make([]Agent, 8)
	for i := range agents {
		agents[i] = mk(fmt.Sprintf("a%d", i))
	}

	f := newTestFanout(Config{Workers: 3, AgentTimeout: time.Second})
	got, failed := f.Gather(context.Background(), BriefContext{}, agents, 1)

	assert.Empty(t, failed)
	assert.Len(t, got, 8)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Greater(t, peak.Load(), int32(1), "agents must actually run in parallel")
}

func TestGatherParentDeadline(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newTestFanout(Config{Workers: 2, AgentTimeout: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	got, failed := f.Gather(ctx, BriefContext{}, []Agent{blockingAgent("a"), blockingAgent("b"), blockingAgent("c")}, 5)

	assert.Empty(t, got)
	require.Len(t, failed, 3)
	for _, fl := range failed {
		assert.Contains(t, fl.Reason, "deadline")
	}
}

func TestGatherRateLimited(t *testing.T) {
	f := newTestFanout(Config{Workers: 4, AgentTimeout: time.Second, RateLimit: 1000, RateBurst: 1})
	agents := []Agent{staticAgent("a", raws("ap", 1)...), staticAgent("b", raws("bbc", 1)...)}

	got, failed := f.Gather(context.Background(), BriefContext{}, agents, 5)
	assert.Empty(t, failed)
	assert.Len(t, got, 2)
}

func TestGatherDropsInvalidRaws(t *testing.T) {
	f := newTestFanout(Config{Workers: 1, AgentTimeout: time.Second})
	agents := []Agent{staticAgent("a", candidate.Raw{Title: "no source"}, candidate.Raw{SourceID: "ap"}, candidate.Raw{SourceID: "ap", Title: "ok"})}

	got, _ := f.Gather(context.Background(), BriefContext{}, agents, 5)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].Title)
}

func TestGatherNoAgents(t *testing.T) {
	got, failed := newTestFanout(Config{}).Gather(context.Background(), BriefContext{}, nil, 5)
	assert.Nil(t, got)
	assert.Nil(t, failed)
}

package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsdesk/internal/adapters/config"
	"newsdesk/internal/bootstrap"
	"newsdesk/internal/domain/candidate"
	"newsdesk/internal/domain/debate"
	"newsdesk/internal/domain/selection"
	"newsdesk/pkg/logger"
)

func TestParseFlagsAndBrief(t *testing.T) {
	opts, err := parseFlags([]string{
		"-user", "42", "-topics", "ai_policy=0.9, markets=0.4,technology",
		"-count", "3", "-exclude", "x,reddit", "-max-age", "6h",
	})
	require.NoError(t, err)

	b, err := buildBrief(opts)
	require.NoError(t, err)
	assert.Equal(t, "42", b.UserID)
	assert.Equal(t, map[string]float64{"ai_policy": 0.9, "markets": 0.4, "technology": 1}, b.TopicWeights)
	assert.Equal(t, 3, b.RequestedCount)
	assert.Equal(t, []string{"x", "reddit"}, b.Constraints.ExcludeSources)
	assert.Equal(t, 6*time.Hour, b.Constraints.MaxAge)
	assert.Empty(t, b.Constraints.Regions)
}

func TestParseFlagsRejects(t *testing.T) {
	_, err := parseFlags([]string{"-format", "yaml"})
	assert.Error(t, err)

	opts, err := parseFlags([]string{"-topics", "ai_policy=high"})
	require.NoError(t, err)
	_, err = buildBrief(opts)
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	item := candidate.NewAnnotated(candidate.FromRaw(candidate.Raw{
		SourceID:    "reuters",
		Title:       "Central bank holds rates steady",
		PublishedAt: now.Add(-2 * time.Hour),
	}))

	sel := selection.Selection{
		RequestID: "r-1",
		UserID:    "42",
		Topic:     "markets",
		State:     selection.StateDegradedDelivered,
		Items: []selection.Item{{
			Candidate:     *item,
			Record:        debate.Record{CandidateKey: item.Key, Aggregate: 0.61},
			LowConfidence: true,
		}},
		DegradedAgents: []string{"social_pulse"},
		Transitions: []selection.Transition{
			{State: selection.StateQueued, At: now},
			{State: selection.StateDegradedDelivered, At: now.Add(120 * time.Millisecond)},
		},
	}

	out := summarize(sel, now)
	assert.Contains(t, out, "state=degraded_delivered")
	assert.Contains(t, out, " 1. Central bank holds rates steady [low confidence]")
	assert.Contains(t, out, "2 hours ago")
	assert.Contains(t, out, "score 0.61")
	assert.Contains(t, out, "degraded agents: social_pulse")
	assert.Contains(t, out, "handled in 120ms")
	assert.False(t, strings.Contains(out, "degraded stages"))
}

func newTestContainer(t *testing.T) *bootstrap.Container {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	c := bootstrap.NewContainer(bootstrap.WithContainerLogger(logger.NewNop()), bootstrap.WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, c.Init(cfg, nil))
	return c
}

func TestExecuteReturnsSetupErrors(t *testing.T) {
	c := newTestContainer(t)
	opts := options{count: 3, format: "json", feedPath: filepath.Join(t.TempDir(), "missing.xml")}
	b, err := buildBrief(options{userID: "42", topics: "ai_policy=1", count: 3})
	require.NoError(t, err)

	var out bytes.Buffer
	err = execute(c, b, opts, &out)

	assert.ErrorContains(t, err, "register feed agent")
	assert.False(t, c.Scheduler.IsRunning(), "nothing starts after a setup failure")
	assert.Zero(t, out.Len())
	c.Shutdown()
}

func TestExecuteAnswersBrief(t *testing.T) {
	c := newTestContainer(t)
	opts, err := parseFlags([]string{"-user", "42", "-topics", "ai_policy=0.9", "-count", "2", "-format", "text"})
	require.NoError(t, err)
	b, err := buildBrief(opts)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, execute(c, b, opts, &out))
	c.Shutdown()

	assert.Contains(t, out.String(), "user=42")
}

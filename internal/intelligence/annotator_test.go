package intelligence

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsdesk/internal/domain/candidate"
	"newsdesk/pkg/errors"
	"newsdesk/pkg/logger"
)

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func newTestAnnotator(opts ...Option) *Annotator {
	opts = append([]Option{WithLogger(logger.NewNop())}, opts...)
	return New(DefaultConfig(), StaticRisk{"middle_east": 0.8, "europe": 0.4}, opts...)
}

// threeAgentRaws returns 15 raws from three agents; the first story of
// reuters and ap is the same headline
func threeAgentRaws() []candidate.Raw {
	subjects := map[string][]string{
		"reuters": {"Central bank holds rates steady", "Copper mines report record output", "Airline strike grounds flights", "Vaccine trial posts results", "Chip export rules tighten"},
		"ap":      {"Central bank holds rates steady", "Wildfire season starts early", "Stadium vote passes council", "Rail freight volumes slump", "Museum returns looted statues"},
		"bbc":     {"Glacier melt accelerates sharply", "Parliament debates housing bill", "Orchestra tours southern towns", "Satellite launch delayed again", "Fishing quotas renegotiated"},
	}
	var raws []candidate.Raw
	for _, src := range []string{"reuters", "ap", "bbc"} {
		for i, title := range subjects[src] {
			raws = append(raws, candidate.Raw{
				SourceID:    src,
				Title:       title,
				URL:         fmt.Sprintf("https://%s.example/%d", src, i),
				PublishedAt: testNow.Add(-time.Duration(i+1) * time.Hour),
				AgentID:     src + "-agent",
			})
		}
	}
	return raws
}

func findByTitle(t *testing.T, items []*candidate.Annotated, title string) *candidate.Annotated {
	t.Helper()
	for _, it := range items {
		if it.Title == title {
			return it
		}
	}
	t.Fatalf("no candidate titled %q", title)
	return nil
}

func TestAnnotate_MergesSharedStory(t *testing.T) {
	a := newTestAnnotator()

	res := a.Annotate(threeAgentRaws(), testNow)

	require.Equal(t, 14, res.UniqueCount)
	assert.Empty(t, res.DegradedStages)

	shared := findByTitle(t, res.Candidates, "Central bank holds rates steady")
	assert.Equal(t, []string{"ap", "reuters"}, shared.CorroboratingSources)
	assert.Greater(t, shared.CorroborationBonus, 0.0)
	assert.InDelta(t, 0.85, shared.Credibility, 1e-9)

	single := findByTitle(t, res.Candidates, "Glacier melt accelerates sharply")
	assert.Zero(t, single.CorroborationBonus)
	assert.Equal(t, []string{"bbc"}, single.CorroboratingSources)
}

func TestAnnotate_AllStagesRecorded(t *testing.T) {
	a := newTestAnnotator()
	res := a.Annotate(threeAgentRaws(), testNow)

	for _, it := range res.Candidates {
		for _, stage := range a.Stages() {
			assert.Equal(t, candidate.StageOK, it.StageStatus[stage], "%s/%s", it.Key, stage)
		}
		assert.NotEqual(t, candidate.ClusterUnknown, it.ClusterID)
	}
}

func TestAnnotate_EmptyInput(t *testing.T) {
	res := newTestAnnotator().Annotate(nil, testNow)
	assert.Zero(t, res.UniqueCount)
	assert.Empty(t, res.Candidates)
	assert.Empty(t, res.DegradedStages)
}

type failingStage struct {
	name    string
	prepare bool
	panics  bool
}

func (s failingStage) Name() string { return s.name }

func (s failingStage) Prepare(*StageContext) error {
	if s.prepare {
		return errors.New("upstream unavailable")
	}
	return nil
}

func (s failingStage) Apply(*StageContext, *candidate.Annotated) error {
	if s.panics {
		panic("boom")
	}
	return errors.New("cannot score")
}

func (s failingStage) Neutral(item *candidate.Annotated) { item.SetCredibility(0) }

func TestAnnotate_DegradedStageDoesNotStopPipeline(t *testing.T) {
	cases := map[string]failingStage{
		"prepare error": {name: StageCredibility, prepare: true},
		"apply error":   {name: StageCredibility},
		"apply panic":   {name: StageCredibility, panics: true},
	}
	for name, stage := range cases {
		t.Run(name, func(t *testing.T) {
			a := newTestAnnotator(WithStage(stage))

			res := a.Annotate(threeAgentRaws(), testNow)

			require.Equal(t, []string{StageCredibility}, res.DegradedStages)
			for _, it := range res.Candidates {
				assert.Zero(t, it.Credibility)
				assert.Equal(t, candidate.StageDegraded, it.StageStatus[StageCredibility])
				assert.Equal(t, candidate.StageOK, it.StageStatus[StageUrgency])
				assert.Equal(t, candidate.StageOK, it.StageStatus[StageDiversity])
				assert.Equal(t, []string{StageCredibility}, it.DegradedStages())
			}
		})
	}
}

func TestGuard_WrapsStageDegraded(t *testing.T) {
	err := guard("trend", func() error { panic("nil map") })
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStageDegraded))
	assert.Contains(t, err.Error(), "trend panicked")

	assert.NoError(t, guard("trend", func() error { return nil }))
}

func TestAnnotate_GeoRiskSourceFailure(t *testing.T) {
	a := New(DefaultConfig(), brokenRisk{}, WithLogger(logger.NewNop()))

	res := a.Annotate([]candidate.Raw{{SourceID: "bbc", Title: "Gaza ceasefire talks resume", PublishedAt: testNow}}, testNow)

	require.Equal(t, []string{StageGeoRisk}, res.DegradedStages)
	assert.Zero(t, res.Candidates[0].GeoRisk)
	assert.Nil(t, res.Candidates[0].ResolvedRegions)
}

type brokenRisk struct{}

func (brokenRisk) RegionalRisk() (map[string]float64, error) {
	return nil, errors.ErrUnavailable
}

func TestStages_Order(t *testing.T) {
	assert.Equal(t, []string{
		StageCluster, StageCredibility, StageCorroboration, StageUrgency,
		StageGeoRisk, StageTrend, StageDiversity,
	}, newTestAnnotator().Stages())
}

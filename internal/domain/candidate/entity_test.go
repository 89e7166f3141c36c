package candidate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "eu passes ai act", NormalizeTitle("  EU passes AI-Act!!  "))
	assert.Equal(t, "eu passes ai act", NormalizeTitle("eu: passes, ai act"))
	assert.Equal(t, "", NormalizeTitle("?!"))
}

func TestKeyForSameDayBucket(t *testing.T) {
	morning := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	nextDay := morning.Add(24 * time.Hour)

	a := KeyFor(Raw{Title: "Rates Rise", PublishedAt: morning})
	b := KeyFor(Raw{Title: "rates rise.", PublishedAt: evening})
	c := KeyFor(Raw{Title: "rates rise", PublishedAt: nextDay})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, "rates rise|undated", KeyFor(Raw{Title: "Rates rise"}))
}

func TestAddSourcesSortedUnique(t *testing.T) {
	c := FromRaw(Raw{SourceID: "reuters", Title: "x"})
	c.AddSources("ap", "reuters", "", "bbc")
	assert.Equal(t, []string{"ap", "bbc", "reuters"}, c.CorroboratingSources)
	assert.Equal(t, 3, c.IndependentSources())
}

func TestSettersClamp(t *testing.T) {
	a := NewAnnotated(FromRaw(Raw{SourceID: "ap", Title: "x"}))
	assert.Equal(t, ClusterUnknown, a.ClusterID)

	a.SetCredibility(1.4)
	a.SetUrgency(-0.2)
	a.SetGeoRisk(math.NaN())
	a.SetTrendScore(0.3)
	a.SetCorroborationBonus(0.5, 0.20)

	assert.Equal(t, 1.0, a.Credibility)
	assert.Equal(t, 0.0, a.Urgency)
	assert.Equal(t, 0.0, a.GeoRisk)
	assert.Equal(t, 0.3, a.TrendScore)
	assert.Equal(t, 0.20, a.CorroborationBonus)
}

func TestCloneIsDeep(t *testing.T) {
	a := NewAnnotated(FromRaw(Raw{SourceID: "ap", Title: "x", Regions: []string{"europe"}}))
	a.MarkStage("trend", StageDegraded)

	b := a.Clone()
	b.CorroboratingSources[0] = "changed"
	b.Regions[0] = "changed"
	b.MarkStage("trend", StageOK)

	assert.Equal(t, "ap", a.CorroboratingSources[0])
	assert.Equal(t, "europe", a.Regions[0])
	assert.Equal(t, []string{"trend"}, a.DegradedStages())
	assert.Empty(t, b.DegradedStages())
}

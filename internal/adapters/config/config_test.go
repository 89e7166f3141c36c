package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsdesk/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "newsdesk", cfg.App.Name)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.RequestTimeout)
	assert.Equal(t, 5, cfg.Pipeline.TopK)
	assert.Equal(t, "strict", cfg.Council.ShortfallPolicy)
	assert.Equal(t, 3*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PIPELINE_FANOUT_WORKERS", "8")
	t.Setenv("COUNCIL_SHORTFALL_POLICY", "pad")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Pipeline.FanoutWorkers)
	assert.Equal(t, "pad", cfg.Council.ShortfallPolicy)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("COUNCIL_RESERVE_MIN", "0.9")
	t.Setenv("COUNCIL_SHORTFALL_POLICY", "guess")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
	assert.Contains(t, err.Error(), "invalid config")
}

func TestLoadTuning(t *testing.T) {
	doc := `
source_tiers:
  - name: wire
    reliability: 0.9
    sources: [reuters, ap]
regional_risk:
  middle_east: 0.7
urgency:
  recency_half_life: 2h
  breaking: [breaking]
cluster:
  similarity_threshold: 0.55
experts:
  - id: quality
    weights: {credibility: 0.7, corroboration: 0.3}
`
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	tuning, err := LoadTuning(path)
	require.NoError(t, err)
	require.Len(t, tuning.SourceTiers, 1)
	assert.Equal(t, []string{"reuters", "ap"}, tuning.SourceTiers[0].Sources)
	assert.Equal(t, 0.7, tuning.RegionalRisk["middle_east"])
	assert.Equal(t, 2*time.Hour, tuning.Urgency.RecencyHalfLife)
	assert.Equal(t, 0.55, tuning.Cluster.SimilarityThreshold)
	assert.Equal(t, 0.7, tuning.Experts[0].Weights["credibility"])
}

func TestLoadTuningEmptyPath(t *testing.T) {
	tuning, err := LoadTuning("")
	require.NoError(t, err)
	assert.Empty(t, tuning.SourceTiers)
}

func TestLoadTuningRejectsOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte("regional_risk:\n  arctic: 1.5\n"), 0o600))

	_, err := LoadTuning(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "regional_risk.arctic")
}

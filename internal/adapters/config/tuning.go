package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"newsdesk/pkg/errors"
)

// Tuning holds scoring parameters that are too structured for env vars.
// Zero values mean "keep the built-in default".
type Tuning struct {
	SourceTiers        []SourceTier        `yaml:"source_tiers"`
	UnknownReliability float64             `yaml:"unknown_reliability"`
	Urgency            UrgencyTuning       `yaml:"urgency"`
	Regions            map[string][]string `yaml:"regions"`
	RegionalRisk       map[string]float64  `yaml:"regional_risk"`
	Cluster            ClusterTuning       `yaml:"cluster"`
	Trend              TrendTuning         `yaml:"trend"`
	Experts            []ExpertTuning      `yaml:"experts"`
}

type SourceTier struct {
	Name        string   `yaml:"name"`
	Reliability float64  `yaml:"reliability"`
	Sources     []string `yaml:"sources"`
}

type UrgencyTuning struct {
	Breaking        []string      `yaml:"breaking"`
	Elevated        []string      `yaml:"elevated"`
	BreakingWeight  float64       `yaml:"breaking_weight"`
	ElevatedWeight  float64       `yaml:"elevated_weight"`
	RecencyWeight   float64       `yaml:"recency_weight"`
	RecencyHalfLife time.Duration `yaml:"recency_half_life"`
}

type ClusterTuning struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

type TrendTuning struct {
	Multiplier      float64       `yaml:"multiplier"`
	Decay           float64       `yaml:"decay"`
	InitialBaseline float64       `yaml:"initial_baseline"`
	Window          time.Duration `yaml:"window"`
	MaxTopics       int           `yaml:"max_topics"`
}

type ExpertTuning struct {
	ID            string             `yaml:"id"`
	Weights       map[string]float64 `yaml:"weights"`
	KeepThreshold float64            `yaml:"keep_threshold"`
}

// LoadTuning reads a YAML tuning document. An empty path yields an empty Tuning.
func LoadTuning(path string) (*Tuning, error) {
	var t Tuning
	if path == "" {
		return &t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read tuning file %s", path)
	}

	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "parse tuning file %s: %v", path, err)
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}

	return &t, nil
}

// Validate checks ranges of the supplied overrides
func (t *Tuning) Validate() error {
	var errs errors.MultiError

	for _, tier := range t.SourceTiers {
		if tier.Name == "" {
			errs.Add(errors.NewValidationError("source_tiers.name", "required", tier.Name))
		}
		if tier.Reliability < 0 || tier.Reliability > 1 {
			errs.Add(errors.NewValidationError("source_tiers."+tier.Name+".reliability", "must be in [0,1]", tier.Reliability))
		}
	}
	for region, level := range t.RegionalRisk {
		if level < 0 || level > 1 {
			errs.Add(errors.NewValidationError("regional_risk."+region, "must be in [0,1]", level))
		}
	}
	if th := t.Cluster.SimilarityThreshold; th < 0 || th > 1 {
		errs.Add(errors.NewValidationError("cluster.similarity_threshold", "must be in [0,1]", th))
	}
	if t.Trend.Decay < 0 || t.Trend.Decay >= 1 {
		errs.Add(errors.NewValidationError("trend.decay", "must be in [0,1)", t.Trend.Decay))
	}
	for _, e := range t.Experts {
		if e.ID == "" {
			errs.Add(errors.NewValidationError("experts.id", "required", e.ID))
		}
	}

	return errors.Wrap(errs.ToError(), "invalid tuning")
}

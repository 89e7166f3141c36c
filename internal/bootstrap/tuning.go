package bootstrap

import (
	"newsdesk/internal/adapters/config"
	"newsdesk/internal/council"
	"newsdesk/internal/intelligence"
)

// defaultRegionalRisk is used when the tuning file supplies no risk table
var defaultRegionalRisk = intelligence.StaticRisk{
	"middle_east":    0.75,
	"europe":         0.45,
	"east_asia":      0.55,
	"south_asia":     0.50,
	"africa":         0.50,
	"southeast_asia": 0.40,
	"central_asia":   0.40,
	"americas":       0.30,
	"arctic":         0.20,
}

// intelligenceConfig overlays non-zero tuning values on the built-in defaults
func intelligenceConfig(t *config.Tuning) intelligence.Config {
	cfg := intelligence.DefaultConfig()

	if len(t.SourceTiers) > 0 {
		cfg.Credibility.Tiers = make([]intelligence.SourceTier, len(t.SourceTiers))
		for i, tier := range t.SourceTiers {
			cfg.Credibility.Tiers[i] = intelligence.SourceTier{
				Name:        tier.Name,
				Reliability: tier.Reliability,
				Sources:     append([]string(nil), tier.Sources...),
			}
		}
	}
	if t.UnknownReliability > 0 {
		cfg.Credibility.Unknown = t.UnknownReliability
	}

	u := t.Urgency
	if len(u.Breaking) > 0 {
		cfg.Urgency.Breaking = u.Breaking
	}
	if len(u.Elevated) > 0 {
		cfg.Urgency.Elevated = u.Elevated
	}
	setPositive(&cfg.Urgency.BreakingWeight, u.BreakingWeight)
	setPositive(&cfg.Urgency.ElevatedWeight, u.ElevatedWeight)
	setPositive(&cfg.Urgency.RecencyWeight, u.RecencyWeight)
	if u.RecencyHalfLife > 0 {
		cfg.Urgency.RecencyHalfLife = u.RecencyHalfLife
	}

	if len(t.Regions) > 0 {
		cfg.GeoRisk.RegionKeywords = t.Regions
	}
	setPositive(&cfg.Cluster.SimilarityThreshold, t.Cluster.SimilarityThreshold)

	tr := t.Trend
	setPositive(&cfg.Trend.Multiplier, tr.Multiplier)
	setPositive(&cfg.Trend.Decay, tr.Decay)
	setPositive(&cfg.Trend.InitialBaseline, tr.InitialBaseline)
	if tr.Window > 0 {
		cfg.Trend.Window = tr.Window
	}
	if tr.MaxTopics > 0 {
		cfg.Trend.MaxTopics = tr.MaxTopics
	}

	return cfg
}

func regionalRisk(t *config.Tuning) intelligence.RiskSource {
	if len(t.RegionalRisk) == 0 {
		return defaultRegionalRisk
	}
	return intelligence.StaticRisk(t.RegionalRisk)
}

// expertSpecs returns the configured experts, or the default council
func expertSpecs(t *config.Tuning) []council.ExpertSpec {
	if len(t.Experts) == 0 {
		return council.DefaultExperts()
	}
	out := make([]council.ExpertSpec, len(t.Experts))
	for i, e := range t.Experts {
		out[i] = council.ExpertSpec{ID: e.ID, Weights: e.Weights, KeepThreshold: e.KeepThreshold}
	}
	return out
}

func expertIDs(specs []council.ExpertSpec) []string {
	ids := make([]string, len(specs))
	for i, s := range specs {
		ids[i] = s.ID
	}
	return ids
}

func councilConfig(c config.CouncilConfig) council.Config {
	cfg := council.Config{
		MinAggregate:    c.MinAggregate,
		ReserveMin:      c.ReserveMin,
		TieEpsilon:      c.TieEpsilon,
		DropPenalty:     c.DropPenalty,
		MaxClusterShare: c.MaxClusterShare,
		MaxSourceShare:  c.MaxSourceShare,
		ShortfallPolicy: council.ShortfallStrict,
	}
	if c.ShortfallPolicy == "pad" {
		cfg.ShortfallPolicy = council.ShortfallPad
	}
	return cfg
}

func setPositive(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}

package intelligence

import "time"

// SourceTier maps sources to a base reliability
type SourceTier struct {
	Name        string
	Reliability float64
	Sources     []string
}

type ClusterConfig struct {
	SimilarityThreshold float64 // token Jaccard at or above joins a cluster
}

// CredibilityConfig sets tier reliabilities and the history blend. A
// source's credibility moves by TrustWeight times its corroboration rate's
// distance from InitialRate.
type CredibilityConfig struct {
	Tiers   []SourceTier
	Unknown float64

	TrustWeight       float64
	InitialRate       float64
	CorroborationStep float64
	MaxTrackedSources int
}

type CorroborationConfig struct {
	PerSource float64
	Cap       float64
}

type UrgencyConfig struct {
	Breaking        []string
	Elevated        []string
	BreakingWeight  float64
	ElevatedWeight  float64
	RecencyWeight   float64
	RecencyHalfLife time.Duration

	// A story reported by SourceThreshold distinct sources inside
	// SourceWindow is at least SourceElevated; one more source makes it
	// SourceBreaking.
	SourceThreshold int
	SourceWindow    time.Duration
	SourceElevated  float64
	SourceBreaking  float64
}

type GeoRiskConfig struct {
	RegionKeywords map[string][]string
}

type TrendConfig struct {
	Multiplier      float64
	Decay           float64
	InitialBaseline float64
	Window          time.Duration
	MaxTopics       int
}

// Config collects the tunables of every stage
type Config struct {
	Cluster       ClusterConfig
	Credibility   CredibilityConfig
	Corroboration CorroborationConfig
	Urgency       UrgencyConfig
	GeoRisk       GeoRiskConfig
	Trend         TrendConfig
}

// DefaultConfig returns the built-in tuning
func DefaultConfig() Config {
	return Config{
		Cluster: ClusterConfig{SimilarityThreshold: 0.6},
		Credibility: CredibilityConfig{
			Tiers: []SourceTier{
				{Name: "tier_1", Reliability: 0.85, Sources: []string{"reuters", "ap", "bbc", "guardian", "ft"}},
				{Name: "tier_1b", Reliability: 0.78, Sources: []string{"aljazeera"}},
				{Name: "tier_academic", Reliability: 0.72, Sources: []string{"arxiv"}},
				{Name: "tier_2", Reliability: 0.55, Sources: []string{"x", "reddit", "web", "hackernews", "gdelt"}},
			},
			Unknown:           0.50,
			TrustWeight:       0.20,
			InitialRate:       0.50,
			CorroborationStep: 0.02,
			MaxTrackedSources: 500,
		},
		Corroboration: CorroborationConfig{PerSource: 0.08, Cap: 0.20},
		Urgency: UrgencyConfig{
			Breaking: []string{
				"breaking", "crisis", "war", "attack", "emergency", "collapse", "invasion", "coup",
				"assassination", "catastrophe", "pandemic", "shutdown", "explosion", "sanctions", "ceasefire",
			},
			Elevated: []string{
				"escalation", "tension", "warning", "alert", "surge", "protest", "election", "summit",
				"treaty", "regulation", "volatility", "disruption", "shortage", "scandal", "indictment",
			},
			BreakingWeight:  0.30,
			ElevatedWeight:  0.15,
			RecencyWeight:   0.60,
			RecencyHalfLife: 6 * time.Hour,
			SourceThreshold: 3,
			SourceWindow:    30 * time.Minute,
			SourceElevated:  0.6,
			SourceBreaking:  0.9,
		},
		GeoRisk: GeoRiskConfig{
			RegionKeywords: map[string][]string{
				"east_asia":      {"china", "taiwan", "japan", "korea", "beijing", "tokyo", "seoul", "taiwan strait"},
				"south_asia":     {"india", "pakistan", "bangladesh", "sri lanka", "kashmir"},
				"middle_east":    {"israel", "iran", "gaza", "saudi", "syria", "iraq", "yemen", "lebanon"},
				"europe":         {"eu", "european", "ukraine", "russia", "germany", "france", "brussels", "nato"},
				"africa":         {"nigeria", "ethiopia", "sudan", "kenya", "sahel", "congo"},
				"americas":       {"united states", "us", "canada", "mexico", "brazil", "venezuela", "washington"},
				"southeast_asia": {"vietnam", "philippines", "indonesia", "myanmar", "south china sea"},
				"central_asia":   {"kazakhstan", "uzbekistan", "afghanistan"},
				"arctic":         {"arctic", "greenland", "svalbard"},
			},
		},
		Trend: TrendConfig{
			Multiplier:      2.0,
			Decay:           0.8,
			InitialBaseline: 1.0,
			Window:          60 * time.Minute,
			MaxTopics:       200,
		},
	}
}

package intelligence

import (
	"math"
	"sort"

	"newsdesk/internal/domain/candidate"
	"newsdesk/pkg/errors"
)

var errMissingState = errors.New("stage state missing for candidate")

// CredibilityStage scores a candidate by its primary source's tier,
// shifted by the source's corroboration history when a tracker is set
type CredibilityStage struct {
	bySource map[string]float64
	unknown  float64
	cfg      CredibilityConfig
	tracker  *CredibilityTracker
}

func NewCredibilityStage(cfg CredibilityConfig) *CredibilityStage {
	s := &CredibilityStage{bySource: make(map[string]float64), unknown: cfg.Unknown, cfg: cfg}
	for _, tier := range cfg.Tiers {
		for _, src := range tier.Sources {
			s.bySource[src] = tier.Reliability
		}
	}
	return s
}

// WithTracker makes the stage read source history from t
func (s *CredibilityStage) WithTracker(t *CredibilityTracker) *CredibilityStage {
	s.tracker = t
	return s
}

func (s *CredibilityStage) Name() string { return StageCredibility }

// Prepare snapshots the tracked rates for the whole request
func (s *CredibilityStage) Prepare(sc *StageContext) error {
	if len(s.bySource) == 0 {
		return errors.Wrap(errors.ErrUnavailable, "no source tier table configured")
	}
	if s.tracker != nil {
		sc.Set(StageCredibility, s.tracker.Rates())
	}
	return nil
}

func (s *CredibilityStage) Apply(sc *StageContext, item *candidate.Annotated) error {
	score := s.Reliability(item.SourceID)
	if rates, ok := sc.Value(StageCredibility).(map[string]float64); ok {
		if rate, tracked := rates[item.SourceID]; tracked {
			score += s.cfg.TrustWeight * (rate - s.cfg.InitialRate)
		}
	}
	item.SetCredibility(score)
	return nil
}

func (s *CredibilityStage) Neutral(item *candidate.Annotated) { item.SetCredibility(0) }

// Reliability returns the base reliability of a source id
func (s *CredibilityStage) Reliability(sourceID string) float64 {
	if r, ok := s.bySource[sourceID]; ok {
		return r
	}
	return s.unknown
}

// CorroborationStage rewards independent sources behind the same story.
// Sources merged by dedupe and sources of other cluster members count,
// each distinct source id once.
type CorroborationStage struct {
	cfg CorroborationConfig
}

func NewCorroborationStage(cfg CorroborationConfig) *CorroborationStage {
	return &CorroborationStage{cfg: cfg}
}

func (s *CorroborationStage) Name() string { return StageCorroboration }

func (s *CorroborationStage) Prepare(sc *StageContext) error {
	sc.Set(StageCorroboration, clusterSources(sc.Items, nil))
	return nil
}

func (s *CorroborationStage) Apply(sc *StageContext, item *candidate.Annotated) error {
	byCluster, _ := sc.Value(StageCorroboration).(map[string]map[string]struct{})

	sources := len(item.CorroboratingSources)
	if set, ok := byCluster[item.ClusterID]; ok && item.ClusterID != candidate.ClusterUnknown {
		sources = len(set)
	}
	item.SetCorroborationBonus(s.Bonus(sources), s.cfg.Cap)
	return nil
}

func (s *CorroborationStage) Neutral(item *candidate.Annotated) { item.SetCorroborationBonus(0, s.cfg.Cap) }

// Bonus is PerSource for every source beyond the first, capped
func (s *CorroborationStage) Bonus(sources int) float64 {
	if sources <= 1 {
		return 0
	}
	return math.Min(s.cfg.Cap, s.cfg.PerSource*float64(sources-1))
}

// UrgencyStage combines recency decay with keyword hits, raised to a floor
// when many sources report the same story at once
type UrgencyStage struct {
	cfg UrgencyConfig
}

func NewUrgencyStage(cfg UrgencyConfig) *UrgencyStage {
	return &UrgencyStage{cfg: cfg}
}

func (s *UrgencyStage) Name() string { return StageUrgency }

// Prepare counts the sources per cluster among items inside the window
func (s *UrgencyStage) Prepare(sc *StageContext) error {
	sc.Set(StageUrgency, clusterSources(sc.Items, func(it *candidate.Annotated) bool {
		return s.inWindow(sc, it)
	}))
	return nil
}

func (s *UrgencyStage) Apply(sc *StageContext, item *candidate.Annotated) error {
	text := itemText(item)
	keywords := float64(countPhrases(text, s.cfg.Breaking))*s.cfg.BreakingWeight +
		float64(countPhrases(text, s.cfg.Elevated))*s.cfg.ElevatedWeight

	score := s.cfg.RecencyWeight*s.recency(sc, item) + math.Min(1, keywords)
	item.SetUrgency(math.Max(score, s.sourceFloor(sc, item)))
	return nil
}

// sourceFloor is the urgency implied by concurrent reporting
func (s *UrgencyStage) sourceFloor(sc *StageContext, item *candidate.Annotated) float64 {
	if s.cfg.SourceThreshold <= 0 || !s.inWindow(sc, item) {
		return 0
	}
	sources := len(item.CorroboratingSources)
	byCluster, _ := sc.Value(StageUrgency).(map[string]map[string]struct{})
	if set, ok := byCluster[item.ClusterID]; ok {
		sources = max(sources, len(set))
	}
	switch {
	case sources > s.cfg.SourceThreshold:
		return s.cfg.SourceBreaking
	case sources == s.cfg.SourceThreshold:
		return s.cfg.SourceElevated
	}
	return 0
}

// inWindow reports a dated item published within SourceWindow of now
func (s *UrgencyStage) inWindow(sc *StageContext, item *candidate.Annotated) bool {
	if item.PublishedAt.IsZero() {
		return false
	}
	return s.cfg.SourceWindow <= 0 || sc.Now.Sub(item.PublishedAt) <= s.cfg.SourceWindow
}

func (s *UrgencyStage) Neutral(item *candidate.Annotated) { item.SetUrgency(0) }

// recency halves every half-life; undated items score 0 and items dated
// in the future score 1
func (s *UrgencyStage) recency(sc *StageContext, item *candidate.Annotated) float64 {
	if item.PublishedAt.IsZero() || s.cfg.RecencyHalfLife <= 0 {
		return 0
	}
	age := sc.Now.Sub(item.PublishedAt)
	if age <= 0 {
		return 1
	}
	return math.Pow(0.5, age.Hours()/s.cfg.RecencyHalfLife.Hours())
}

func countPhrases(text string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		if containsPhrase(text, p) {
			n++
		}
	}
	return n
}

// RiskSource supplies regional risk levels in [0,1]
type RiskSource interface {
	RegionalRisk() (map[string]float64, error)
}

// StaticRisk is a fixed risk table
type StaticRisk map[string]float64

func (s StaticRisk) RegionalRisk() (map[string]float64, error) { return s, nil }

// GeoRiskStage averages the risk levels of a candidate's regions. Agent
// supplied region tags win over keyword detection.
type GeoRiskStage struct {
	cfg  GeoRiskConfig
	risk RiskSource
}

func NewGeoRiskStage(cfg GeoRiskConfig, risk RiskSource) *GeoRiskStage {
	return &GeoRiskStage{cfg: cfg, risk: risk}
}

func (s *GeoRiskStage) Name() string { return StageGeoRisk }

func (s *GeoRiskStage) Prepare(sc *StageContext) error {
	levels := map[string]float64{}
	if s.risk != nil {
		got, err := s.risk.RegionalRisk()
		if err != nil {
			return errors.Wrap(err, "regional risk unavailable")
		}
		levels = got
	}
	sc.Set(StageGeoRisk, levels)
	return nil
}

func (s *GeoRiskStage) Apply(sc *StageContext, item *candidate.Annotated) error {
	levels, _ := sc.Value(StageGeoRisk).(map[string]float64)

	regions := item.Regions
	if len(regions) == 0 {
		regions = s.detect(itemText(item))
	}
	item.ResolvedRegions = unionStrings(regions, nil)

	if len(item.ResolvedRegions) == 0 {
		item.SetGeoRisk(0)
		return nil
	}
	sum := 0.0
	for _, r := range item.ResolvedRegions {
		sum += candidate.Clamp01(levels[r])
	}
	item.SetGeoRisk(sum / float64(len(item.ResolvedRegions)))
	return nil
}

func (s *GeoRiskStage) Neutral(item *candidate.Annotated) {
	item.SetGeoRisk(0)
	item.ResolvedRegions = nil
}

func (s *GeoRiskStage) detect(text string) []string {
	var out []string
	for region, keywords := range s.cfg.RegionKeywords {
		for _, kw := range keywords {
			if containsPhrase(text, kw) {
				out = append(out, region)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// DiversityStage notes how many candidates share each source and cluster.
// The cap itself is applied at selection time.
type DiversityStage struct{}

type diversityCounts struct {
	sources  map[string]int
	clusters map[string]int
}

func (DiversityStage) Name() string { return StageDiversity }

func (DiversityStage) Prepare(sc *StageContext) error {
	c := diversityCounts{sources: map[string]int{}, clusters: map[string]int{}}
	for _, it := range sc.Items {
		c.sources[it.SourceID]++
		c.clusters[it.ClusterID]++
	}
	sc.Set(StageDiversity, c)
	return nil
}

func (DiversityStage) Apply(sc *StageContext, item *candidate.Annotated) error {
	c, ok := sc.Value(StageDiversity).(diversityCounts)
	if !ok {
		return errMissingState
	}
	item.Diversity = candidate.DiversityNote{
		SourcePeers:  c.sources[item.SourceID] - 1,
		ClusterPeers: c.clusters[item.ClusterID] - 1,
	}
	return nil
}

func (DiversityStage) Neutral(item *candidate.Annotated) { item.Diversity = candidate.DiversityNote{} }

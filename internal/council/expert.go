package council

import (
	"fmt"
	"sort"
	"strings"

	"newsdesk/internal/domain/candidate"
	"newsdesk/internal/domain/debate"
	"newsdesk/internal/domain/profile"
)

// Expert votes keep or drop on one candidate. Implementations must be
// deterministic and safe for concurrent use.
type Expert interface {
	ID() string
	Vote(item *candidate.Annotated, p profile.UserProfile) debate.Vote
}

// Scoring dimensions an expert can weight
const (
	DimCredibility   = "credibility"
	DimCorroboration = "corroboration"
	DimUrgency       = "urgency"
	DimGeoRisk       = "geo_risk"
	DimTrend         = "trend"
	DimPreference    = "preference_fit"
	DimDiversity     = "diversity"
)

const (
	confidenceMin = 0.51
	confidenceMax = 0.99

	defaultKeepThreshold = 0.5
)

// HeuristicExpert scores a weighted mean of annotation dimensions
type HeuristicExpert struct {
	id            string
	weights       map[string]float64
	keepThreshold float64
	corrobCap     float64
}

// NewHeuristicExpert builds an expert. corroborationCap scales the
// corroboration bonus to [0,1]; zero uses 0.20.
func NewHeuristicExpert(id string, weights map[string]float64, keepThreshold, corroborationCap float64) *HeuristicExpert {
	if keepThreshold <= 0 {
		keepThreshold = defaultKeepThreshold
	}
	if corroborationCap <= 0 {
		corroborationCap = 0.20
	}
	w := make(map[string]float64, len(weights))
	for k, v := range weights {
		w[k] = v
	}
	return &HeuristicExpert{id: id, weights: w, keepThreshold: keepThreshold, corrobCap: corroborationCap}
}

func (e *HeuristicExpert) ID() string { return e.id }

func (e *HeuristicExpert) Vote(item *candidate.Annotated, p profile.UserProfile) debate.Vote {
	score := e.Score(item, p)
	vote := debate.Vote{
		ExpertID:     e.id,
		CandidateKey: item.Key,
		Decision:     debate.Drop,
		Confidence:   candidate.ClampRange(1-score, confidenceMin, confidenceMax),
	}
	if score >= e.keepThreshold {
		vote.Decision = debate.Keep
		vote.Confidence = candidate.ClampRange(score, confidenceMin, confidenceMax)
	}
	vote.Rationale = e.rationale(item, p, score)
	vote.RiskNote = riskNote(item, score)
	return vote
}

// Score is the weighted mean of the expert's dimensions in [0,1]
func (e *HeuristicExpert) Score(item *candidate.Annotated, p profile.UserProfile) float64 {
	var sum, total float64
	for _, dim := range e.dimensions() {
		w := e.weights[dim]
		if w <= 0 {
			continue
		}
		sum += w * e.dimension(dim, item, p)
		total += w
	}
	if total == 0 {
		return 0
	}
	return candidate.Clamp01(sum / total)
}

func (e *HeuristicExpert) dimension(dim string, item *candidate.Annotated, p profile.UserProfile) float64 {
	switch dim {
	case DimCredibility:
		return item.Credibility
	case DimCorroboration:
		return candidate.Clamp01(item.CorroborationBonus / e.corrobCap)
	case DimUrgency:
		return item.Urgency
	case DimGeoRisk:
		return item.GeoRisk
	case DimTrend:
		return item.TrendScore
	case DimPreference:
		return PreferenceFit(item, p)
	case DimDiversity:
		return 1 / float64(1+item.Diversity.SourcePeers+item.Diversity.ClusterPeers)
	default:
		return 0
	}
}

func (e *HeuristicExpert) dimensions() []string {
	out := make([]string, 0, len(e.weights))
	for dim := range e.weights {
		out = append(out, dim)
	}
	sort.Strings(out)
	return out
}

func (e *HeuristicExpert) rationale(item *candidate.Annotated, p profile.UserProfile, score float64) string {
	parts := make([]string, 0, len(e.weights))
	for _, dim := range e.dimensions() {
		parts = append(parts, fmt.Sprintf("%s=%.2f", dim, e.dimension(dim, item, p)))
	}
	return fmt.Sprintf("%s scored %.2f (%s)", e.id, score, strings.Join(parts, ", "))
}

// PreferenceFit is the user's weight for the candidate's topic, falling
// back to the best weighted topic named in the headline
func PreferenceFit(item *candidate.Annotated, p profile.UserProfile) float64 {
	if item.TopicHint != "" {
		if w, ok := p.Weight(item.TopicHint); ok {
			return candidate.Clamp01(w)
		}
	}
	text := " " + candidate.NormalizeTitle(item.Title+" "+item.Summary) + " "
	best := 0.0
	for topic, w := range p.TopicWeights {
		phrase := candidate.NormalizeTitle(strings.ReplaceAll(topic, "_", " "))
		if phrase != "" && strings.Contains(text, " "+phrase+" ") && w > best {
			best = w
		}
	}
	return candidate.Clamp01(best)
}

func riskNote(item *candidate.Annotated, score float64) string {
	switch {
	case score < 0.4:
		return "low confidence, verify before inclusion"
	case item.IndependentSources() <= 1:
		return "single-source reporting"
	case item.Urgency >= 0.8:
		return "fast-moving story"
	default:
		return ""
	}
}

// Default expert ids
const (
	ExpertQuality          = "quality"
	ExpertRelevance        = "relevance"
	ExpertPreferenceFit    = "preference_fit"
	ExpertGeopoliticalRisk = "geopolitical_risk"
	ExpertMarketSignal     = "market_signal"
)

// ExpertSpec describes one configured expert
type ExpertSpec struct {
	ID            string
	Weights       map[string]float64
	KeepThreshold float64
}

// DefaultExperts returns the built-in five member council
func DefaultExperts() []ExpertSpec {
	return []ExpertSpec{
		{ID: ExpertQuality, Weights: map[string]float64{DimCredibility: 0.5, DimCorroboration: 0.3, DimUrgency: 0.2}},
		{ID: ExpertRelevance, Weights: map[string]float64{DimPreference: 0.5, DimTrend: 0.3, DimDiversity: 0.2}},
		{ID: ExpertPreferenceFit, Weights: map[string]float64{DimPreference: 0.7, DimUrgency: 0.15, DimCredibility: 0.15}},
		{ID: ExpertGeopoliticalRisk, Weights: map[string]float64{DimGeoRisk: 0.45, DimUrgency: 0.35, DimCredibility: 0.2}},
		{ID: ExpertMarketSignal, Weights: map[string]float64{DimTrend: 0.4, DimCredibility: 0.3, DimCorroboration: 0.3}},
	}
}

// BuildExperts turns specs into heuristic experts
func BuildExperts(specs []ExpertSpec, corroborationCap float64) []Expert {
	out := make([]Expert, len(specs))
	for i, s := range specs {
		out[i] = NewHeuristicExpert(s.ID, s.Weights, s.KeepThreshold, corroborationCap)
	}
	return out
}

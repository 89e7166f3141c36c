package candidate

import "sort"

// StageStatus reports how an annotation stage finished for one candidate
type StageStatus string

const (
	StageOK       StageStatus = "ok"
	StageDegraded StageStatus = "degraded"
)

// ClusterUnknown is the neutral cluster id of a degraded clustering stage
const ClusterUnknown = "unknown"

// DiversityNote records how crowded a candidate's source and cluster are
// in the request. Selection enforces the cap, the note only informs it.
type DiversityNote struct {
	SourcePeers  int `json:"source_peers"`
	ClusterPeers int `json:"cluster_peers"`
}

// Annotated is a Candidate enriched by the intelligence stages.
// Score fields are written through setters so they stay clamped.
type Annotated struct {
	Candidate
	Credibility        float64                `json:"credibility"`
	CorroborationBonus float64                `json:"corroboration_bonus"`
	Urgency            float64                `json:"urgency"`
	ClusterID          string                 `json:"cluster_id"`
	GeoRisk            float64                `json:"geo_risk"`
	TrendScore         float64                `json:"trend_score"`
	ResolvedRegions    []string               `json:"resolved_regions,omitempty"`
	Diversity          DiversityNote          `json:"diversity"`
	StageStatus        map[string]StageStatus `json:"stage_status"`
}

// NewAnnotated starts every score at its neutral value
func NewAnnotated(c Candidate) *Annotated {
	return &Annotated{
		Candidate:   c.Clone(),
		ClusterID:   ClusterUnknown,
		StageStatus: make(map[string]StageStatus),
	}
}

func (a *Annotated) SetCredibility(v float64) { a.Credibility = Clamp01(v) }
func (a *Annotated) SetUrgency(v float64)     { a.Urgency = Clamp01(v) }
func (a *Annotated) SetGeoRisk(v float64)     { a.GeoRisk = Clamp01(v) }
func (a *Annotated) SetTrendScore(v float64)  { a.TrendScore = Clamp01(v) }

// SetCorroborationBonus clamps to [0, limit] with limit itself capped at 1
func (a *Annotated) SetCorroborationBonus(v, limit float64) {
	a.CorroborationBonus = ClampRange(v, 0, Clamp01(limit))
}

// MarkStage records the outcome of a stage
func (a *Annotated) MarkStage(stage string, status StageStatus) {
	if a.StageStatus == nil {
		a.StageStatus = make(map[string]StageStatus)
	}
	a.StageStatus[stage] = status
}

// DegradedStages lists stages that fell back to neutral values, sorted
func (a *Annotated) DegradedStages() []string {
	var out []string
	for stage, status := range a.StageStatus {
		if status == StageDegraded {
			out = append(out, stage)
		}
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy
func (a Annotated) Clone() Annotated {
	out := a
	out.Candidate = a.Candidate.Clone()
	out.ResolvedRegions = append([]string(nil), a.ResolvedRegions...)
	out.StageStatus = make(map[string]StageStatus, len(a.StageStatus))
	for k, v := range a.StageStatus {
		out.StageStatus[k] = v
	}
	return out
}

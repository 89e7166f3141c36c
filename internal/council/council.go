package council

import (
	"math"
	"sort"

	"newsdesk/internal/domain/candidate"
	"newsdesk/internal/domain/debate"
	"newsdesk/internal/domain/profile"
	"newsdesk/internal/domain/selection"
	"newsdesk/internal/metrics"
	"newsdesk/pkg/errors"
	"newsdesk/pkg/logger"
)

// Shortfall policies for selections that fall short of the request
const (
	ShortfallStrict = "strict"
	ShortfallPad    = "pad"
)

// Config holds the thresholds of evaluation and selection
type Config struct {
	MinAggregate    float64
	ReserveMin      float64
	TieEpsilon      float64
	DropPenalty     float64
	MaxClusterShare float64
	MaxSourceShare  float64
	ShortfallPolicy string
}

func DefaultConfig() Config {
	return Config{
		MinAggregate:    0.35,
		ReserveMin:      0.20,
		TieEpsilon:      0.02,
		DropPenalty:     0.5,
		MaxClusterShare: 0.4,
		MaxSourceShare:  0.5,
		ShortfallPolicy: ShortfallStrict,
	}
}

// Council runs every expert over every candidate and ranks the results
type Council struct {
	cfg     Config
	experts []Expert
	chair   *Chair
	log     *logger.Logger
}

type Option func(*Council)

func WithLogger(log *logger.Logger) Option {
	return func(c *Council) { c.log = log }
}

// New builds a council. A nil chair gets a fresh one over the experts.
func New(cfg Config, experts []Expert, chair *Chair, opts ...Option) *Council {
	c := &Council{cfg: cfg, experts: experts, chair: chair}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Component("council")
	}
	if c.chair == nil {
		c.chair = NewChair(c.ExpertIDs(), c.log)
	}
	return c
}

func (c *Council) Chair() *Chair { return c.chair }

// ExpertIDs lists experts in voting order
func (c *Council) ExpertIDs() []string {
	out := make([]string, len(c.experts))
	for i, e := range c.experts {
		out[i] = e.ID()
	}
	return out
}

// Evaluate collects votes for every candidate and returns the records
// ranked by aggregate score, highest first, after arbitration
func (c *Council) Evaluate(items []*candidate.Annotated, p profile.UserProfile) []debate.Record {
	weights := make([]float64, len(c.experts))
	for i, e := range c.experts {
		weights[i] = c.chair.Weight(e.ID())
	}

	byKey := make(map[string]*candidate.Annotated, len(items))
	records := make([]debate.Record, len(items))
	for i, item := range items {
		byKey[item.Key] = item
		votes := make([]debate.Vote, len(c.experts))
		for j, e := range c.experts {
			votes[j] = e.Vote(item, p)
			votes[j].CandidateKey = item.Key
		}
		score := c.aggregate(votes, weights)
		records[i] = debate.Record{
			CandidateKey: item.Key,
			Votes:        votes,
			Weighted:     score,
			Aggregate:    score,
		}
	}

	n := c.arbitrate(records, byKey)
	if n > 0 {
		metrics.RecordArbitrations(n)
	}
	return records
}

// aggregate is the influence weighted keep confidence minus a penalty for
// drop confidence, normalized by total influence
func (c *Council) aggregate(votes []debate.Vote, weights []float64) float64 {
	var keep, drop, total float64
	for i, v := range votes {
		w := weights[i]
		total += w
		if v.Decision == debate.Keep {
			keep += w * v.Confidence
		} else {
			drop += w * v.Confidence
		}
	}
	if total == 0 {
		return 0
	}
	return candidate.Clamp01((keep - c.cfg.DropPenalty*drop) / total)
}

// arbitrate sorts records in place and resolves contested ranks. Records
// within TieEpsilon of a block's leader, and records with evenly split
// votes, are ordered by corroboration, then credibility, then earlier
// publication. Block scores are redistributed in the new order so ranks
// stay monotonic. A block never spans the MinAggregate or ReserveMin
// boundary, so arbitration cannot move a record across a threshold its
// weighted score does not meet. Returns the number of records arbitrated.
func (c *Council) arbitrate(records []debate.Record, byKey map[string]*candidate.Annotated) int {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Aggregate != records[j].Aggregate {
			return records[i].Aggregate > records[j].Aggregate
		}
		return records[i].CandidateKey < records[j].CandidateKey
	})

	arbitrated := 0
	for start := 0; start < len(records); {
		end := start + 1
		band := c.band(records[start].Aggregate)
		for end < len(records) &&
			records[start].Aggregate-records[end].Aggregate < c.cfg.TieEpsilon &&
			c.band(records[end].Aggregate) == band {
			end++
		}
		block := records[start:end]

		if len(block) > 1 {
			scores := make([]float64, len(block))
			for i, r := range block {
				scores[i] = r.Aggregate
			}
			sort.SliceStable(block, func(i, j int) bool {
				return c.secondaryLess(byKey[block[i].CandidateKey], byKey[block[j].CandidateKey])
			})
			for i := range block {
				block[i].Aggregate = scores[i]
				block[i].ArbitrationApplied = true
			}
			arbitrated += len(block)
		}
		for i := range block {
			if !block[i].ArbitrationApplied && block[i].EvenSplit() {
				block[i].ArbitrationApplied = true
				arbitrated++
			}
		}
		start = end
	}
	return arbitrated
}

// band is 2 at or above MinAggregate, 1 at or above ReserveMin, else 0
func (c *Council) band(score float64) int {
	switch {
	case score >= c.cfg.MinAggregate:
		return 2
	case score >= c.cfg.ReserveMin:
		return 1
	}
	return 0
}

func (c *Council) secondaryLess(a, b *candidate.Annotated) bool {
	if a == nil || b == nil {
		return a != nil
	}
	switch {
	case a.CorroborationBonus != b.CorroborationBonus:
		return a.CorroborationBonus > b.CorroborationBonus
	case a.Credibility != b.Credibility:
		return a.Credibility > b.Credibility
	case !a.PublishedAt.Equal(b.PublishedAt):
		return publishedBefore(a, b)
	}
	c.log.Debugw("Arbitration fell back to key order",
		"a", a.Key, "b", b.Key, "reason", errors.ErrCouncilTieUnresolved)
	return a.Key < b.Key
}

// publishedBefore orders undated candidates last
func publishedBefore(a, b *candidate.Annotated) bool {
	if a.PublishedAt.IsZero() != b.PublishedAt.IsZero() {
		return !a.PublishedAt.IsZero()
	}
	return a.PublishedAt.Before(b.PublishedAt)
}

// Outcome partitions ranked records into the delivered slate and the rest
type Outcome struct {
	Items    []selection.Item
	Reserve  []selection.Item
	Deferred []selection.Item // over the diversity cap, in rank order
}

// Select walks records in rank order. Records above MinAggregate fill the
// slate up to requested unless their cluster or source already holds its
// share; those are deferred. Remaining records at or above ReserveMin
// become the reserve.
func (c *Council) Select(items []*candidate.Annotated, records []debate.Record, requested int) Outcome {
	byKey := make(map[string]*candidate.Annotated, len(items))
	for _, it := range items {
		byKey[it.Key] = it
	}

	clusterLimit := shareLimit(c.cfg.MaxClusterShare, requested)
	sourceLimit := shareLimit(c.cfg.MaxSourceShare, requested)
	clusters := make(map[string]int)
	sources := make(map[string]int)

	fits := func(a *candidate.Annotated) bool {
		if a.ClusterID != candidate.ClusterUnknown && clusters[a.ClusterID] >= clusterLimit {
			return false
		}
		return sources[a.SourceID] < sourceLimit
	}
	take := func(a *candidate.Annotated) {
		clusters[a.ClusterID]++
		sources[a.SourceID]++
	}

	var out Outcome
	var belowMin []selection.Item
	for _, r := range records {
		a, ok := byKey[r.CandidateKey]
		if !ok {
			continue
		}
		item := selection.Item{Candidate: a.Clone(), Record: r.Clone()}

		switch {
		case r.Aggregate >= c.cfg.MinAggregate && len(out.Items) < requested:
			if fits(a) {
				take(a)
				out.Items = append(out.Items, item)
			} else {
				out.Deferred = append(out.Deferred, item)
			}
		case r.Aggregate >= c.cfg.MinAggregate:
			out.Reserve = append(out.Reserve, item)
		case r.Aggregate >= c.cfg.ReserveMin:
			belowMin = append(belowMin, item)
		}
	}

	if c.cfg.ShortfallPolicy == ShortfallPad && len(out.Items) < requested {
		// the slate is short, so the above-min reserve is empty
		var rest []selection.Item
		for _, item := range belowMin {
			a := byKey[item.Candidate.Key]
			if len(out.Items) < requested && fits(a) {
				take(a)
				item.LowConfidence = true
				out.Items = append(out.Items, item)
				continue
			}
			if len(out.Items) < requested {
				out.Deferred = append(out.Deferred, item)
				continue
			}
			rest = append(rest, item)
		}
		belowMin = rest
	}
	out.Reserve = append(out.Reserve, belowMin...)
	return out
}

// shareLimit is the most items one cluster or source may hold in a slate
func shareLimit(share float64, requested int) int {
	if share <= 0 || share >= 1 {
		return math.MaxInt
	}
	return max(1, int(math.Floor(share*float64(requested))))
}

// Selected returns the keys of delivered items
func Selected(items []selection.Item) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		out[it.Candidate.Key] = true
	}
	return out
}

// ReserveQueue merges reserve and deferred items by aggregate score for
// caching
func ReserveQueue(o Outcome) []selection.Item {
	out := make([]selection.Item, 0, len(o.Reserve)+len(o.Deferred))
	out = append(out, o.Reserve...)
	out = append(out, o.Deferred...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Record.Aggregate > out[j].Record.Aggregate
	})
	return out
}

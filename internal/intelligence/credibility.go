package intelligence

import (
	"sort"
	"sync"

	"newsdesk/internal/domain/candidate"
)

// SourceStats is the history kept for one source
type SourceStats struct {
	Seen              int     `json:"seen"`
	CorroborationRate float64 `json:"corroboration_rate"`
}

type sourceObservation struct {
	source       string
	corroborated bool
}

// CredibilityTracker keeps per-source history across requests. Requests
// only queue observations; Adjust applies them between requests, so a
// request reads the same rates from start to end.
type CredibilityTracker struct {
	mu      sync.RWMutex
	cfg     CredibilityConfig
	tiered  map[string]struct{}
	sources map[string]*SourceStats
	pending []sourceObservation
}

// NewCredibilityTracker creates an empty tracker. Sources listed in a tier
// are never evicted.
func NewCredibilityTracker(cfg CredibilityConfig) *CredibilityTracker {
	t := &CredibilityTracker{
		cfg:     cfg,
		tiered:  make(map[string]struct{}),
		sources: make(map[string]*SourceStats),
	}
	for _, tier := range cfg.Tiers {
		for _, src := range tier.Sources {
			t.tiered[src] = struct{}{}
		}
	}
	return t
}

// Observe queues one observation per source behind each annotated item,
// merged duplicates included. Every source of a story covered by two or
// more distinct sources counts as corroborated.
func (t *CredibilityTracker) Observe(items []*candidate.Annotated) {
	if len(items) == 0 {
		return
	}
	byCluster := clusterSources(items, nil)

	batch := make([]sourceObservation, 0, len(items))
	for _, it := range items {
		sources := len(it.CorroboratingSources)
		if set, ok := byCluster[it.ClusterID]; ok {
			sources = len(set)
		}
		for _, src := range it.CorroboratingSources {
			batch = append(batch, sourceObservation{source: src, corroborated: sources >= 2})
		}
	}

	t.mu.Lock()
	t.pending = append(t.pending, batch...)
	t.mu.Unlock()
}

// Pending returns the number of queued observations
func (t *CredibilityTracker) Pending() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pending)
}

// Adjust applies queued observations and returns how many were applied
func (t *CredibilityTracker) Adjust() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.pending)
	for _, o := range t.pending {
		st := t.sourceLocked(o.source)
		st.Seen++
		if o.corroborated {
			st.CorroborationRate = min(1, st.CorroborationRate+t.cfg.CorroborationStep)
		}
	}
	t.pending = t.pending[:0]
	return n
}

// Rates returns a copy of every tracked corroboration rate
func (t *CredibilityTracker) Rates() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]float64, len(t.sources))
	for id, st := range t.sources {
		out[id] = st.CorroborationRate
	}
	return out
}

// Stats returns the history of one source
func (t *CredibilityTracker) Stats(sourceID string) (SourceStats, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.sources[sourceID]
	if !ok {
		return SourceStats{}, false
	}
	return *st, true
}

// Len returns the number of tracked sources
func (t *CredibilityTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sources)
}

func (t *CredibilityTracker) sourceLocked(id string) *SourceStats {
	if st, ok := t.sources[id]; ok {
		return st
	}
	if t.cfg.MaxTrackedSources > 0 && len(t.sources) >= t.cfg.MaxTrackedSources {
		t.evictLocked()
	}
	st := &SourceStats{CorroborationRate: t.cfg.InitialRate}
	t.sources[id] = st
	return st
}

// evictLocked drops the least seen untiered source, ties by id
func (t *CredibilityTracker) evictLocked() {
	ids := make([]string, 0, len(t.sources))
	for id := range t.sources {
		if _, tiered := t.tiered[id]; !tiered {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := t.sources[ids[i]], t.sources[ids[j]]
		if a.Seen != b.Seen {
			return a.Seen < b.Seen
		}
		return ids[i] < ids[j]
	})
	delete(t.sources, ids[0])
}

// clusterSources unions the sources of every known cluster. include, when
// set, filters the contributing items.
func clusterSources(items []*candidate.Annotated, include func(*candidate.Annotated) bool) map[string]map[string]struct{} {
	byCluster := make(map[string]map[string]struct{})
	for _, it := range items {
		if it.ClusterID == candidate.ClusterUnknown {
			continue
		}
		if include != nil && !include(it) {
			continue
		}
		set := byCluster[it.ClusterID]
		if set == nil {
			set = make(map[string]struct{})
			byCluster[it.ClusterID] = set
		}
		for _, src := range it.CorroboratingSources {
			set[src] = struct{}{}
		}
	}
	return byCluster
}

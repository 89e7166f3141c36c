package intelligence

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"newsdesk/internal/domain/candidate"
)

// Dedupe merges raws sharing a normalized key into single candidates
func Dedupe(raws []candidate.Raw) []candidate.Candidate {
	cands := make([]candidate.Candidate, len(raws))
	for i, r := range raws {
		cands[i] = candidate.FromRaw(r)
	}
	return Merge(cands)
}

// Merge collapses candidates with equal keys, keeping first-seen order.
// The earliest published entry becomes primary and sources are unioned.
// Merge is idempotent.
func Merge(cands []candidate.Candidate) []candidate.Candidate {
	index := make(map[string]int, len(cands))
	out := make([]candidate.Candidate, 0, len(cands))

	for _, c := range cands {
		i, seen := index[c.Key]
		if !seen {
			index[c.Key] = len(out)
			out = append(out, c.Clone())
			continue
		}

		cur := out[i]
		merged := cur
		if preferPrimary(c, cur) {
			merged = c.Clone()
		}
		merged.AddSources(cur.CorroboratingSources...)
		merged.AddSources(c.CorroboratingSources...)
		merged.Regions = unionStrings(cur.Regions, c.Regions)
		out[i] = merged
	}
	return out
}

// preferPrimary reports whether a should replace b as the primary entry
func preferPrimary(a, b candidate.Candidate) bool {
	switch {
	case a.PublishedAt.IsZero() != b.PublishedAt.IsZero():
		return !a.PublishedAt.IsZero()
	case !a.PublishedAt.Equal(b.PublishedAt):
		return a.PublishedAt.Before(b.PublishedAt)
	default:
		return a.SourceID < b.SourceID
	}
}

func unionStrings(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(a)+len(b))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ClusterStage groups near-duplicate candidates whose title tokens overlap
// at or above the threshold. Members share a cluster id derived from the
// smallest key in the group.
type ClusterStage struct {
	cfg ClusterConfig
}

func NewClusterStage(cfg ClusterConfig) *ClusterStage {
	return &ClusterStage{cfg: cfg}
}

func (s *ClusterStage) Name() string { return StageCluster }

func (s *ClusterStage) Prepare(sc *StageContext) error {
	n := len(sc.Items)
	tokens := make([]map[string]struct{}, n)
	for i, it := range sc.Items {
		tokens[i] = significantTokens(it.Title)
	}

	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if jaccard(tokens[i], tokens[j]) >= s.cfg.SimilarityThreshold {
				ri, rj := find(i), find(j)
				if ri != rj {
					parent[rj] = ri
				}
			}
		}
	}

	rootKey := make(map[int]string)
	for i, it := range sc.Items {
		r := find(i)
		if k, ok := rootKey[r]; !ok || it.Key < k {
			rootKey[r] = it.Key
		}
	}

	ids := make(map[string]string, n)
	for i, it := range sc.Items {
		ids[it.Key] = clusterID(rootKey[find(i)])
	}
	sc.Set(StageCluster, ids)
	return nil
}

func (s *ClusterStage) Apply(sc *StageContext, item *candidate.Annotated) error {
	ids, _ := sc.Value(StageCluster).(map[string]string)
	id, ok := ids[item.Key]
	if !ok {
		return errMissingState
	}
	item.ClusterID = id
	return nil
}

func (s *ClusterStage) Neutral(item *candidate.Annotated) {
	item.ClusterID = candidate.ClusterUnknown
}

func clusterID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "c-" + hex.EncodeToString(sum[:6])
}

package candidate

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode"
)

// Raw is one story as emitted by a research agent. Never mutated after emission.
type Raw struct {
	SourceID    string    `json:"source_id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	TopicHint   string    `json:"topic_hint"`
	Regions     []string  `json:"regions,omitempty"` // optional tags supplied by the agent
	AgentID     string    `json:"agent_id,omitempty"`
}

// Candidate is a deduplicated story merged from one or more Raw entries
type Candidate struct {
	Raw
	Key                  string   `json:"normalized_key"`
	CorroboratingSources []string `json:"corroborating_sources"` // sorted, unique
}

// undatedBucket groups candidates without a publish time
const undatedBucket = "undated"

// NormalizeTitle lowercases, strips punctuation and collapses whitespace
func NormalizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	space := true
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// DayBucket returns the UTC calendar day of t, the coarse dedupe window
func DayBucket(t time.Time) string {
	if t.IsZero() {
		return undatedBucket
	}
	return t.UTC().Format("2006-01-02")
}

// KeyFor derives the normalized key of a raw candidate
func KeyFor(r Raw) string {
	return NormalizeTitle(r.Title) + "|" + DayBucket(r.PublishedAt)
}

// FromRaw wraps a single raw candidate
func FromRaw(r Raw) Candidate {
	c := Candidate{Raw: r, Key: KeyFor(r)}
	c.Regions = append([]string(nil), r.Regions...)
	if r.SourceID != "" {
		c.CorroboratingSources = []string{r.SourceID}
	}
	return c
}

// AddSources merges source ids, keeping the set sorted and unique
func (c *Candidate) AddSources(ids ...string) {
	set := make(map[string]struct{}, len(c.CorroboratingSources)+len(ids))
	for _, id := range c.CorroboratingSources {
		set[id] = struct{}{}
	}
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	c.CorroboratingSources = out
}

// IndependentSources is the number of distinct source ids behind the story
func (c Candidate) IndependentSources() int {
	return len(c.CorroboratingSources)
}

// Clone returns a copy that shares no slices with c
func (c Candidate) Clone() Candidate {
	out := c
	out.Regions = append([]string(nil), c.Regions...)
	out.CorroboratingSources = append([]string(nil), c.CorroboratingSources...)
	return out
}

// Clamp01 bounds v to [0,1]; NaN becomes 0
func Clamp01(v float64) float64 {
	return ClampRange(v, 0, 1)
}

// ClampRange bounds v to [lo,hi]; NaN becomes lo
func ClampRange(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

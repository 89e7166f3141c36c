package intelligence

import (
	"math"
	"sort"
	"sync"
	"time"

	"newsdesk/internal/domain/candidate"
)

type topicState struct {
	baseline float64
	events   []time.Time
	lastSeen time.Time
}

// TrendDetector tracks how often each topic shows up against an
// exponentially weighted baseline. It is shared across requests.
type TrendDetector struct {
	cfg TrendConfig

	mu     sync.Mutex
	topics map[string]*topicState
}

func NewTrendDetector(cfg TrendConfig) *TrendDetector {
	if cfg.MaxTopics <= 0 {
		cfg.MaxTopics = 200
	}
	return &TrendDetector{cfg: cfg, topics: make(map[string]*topicState)}
}

// Observe records counts[topic] sightings at now and returns the trend
// score of every observed topic. The baseline moves after scoring, so a
// sudden burst is visible on the request that carried it.
func (d *TrendDetector) Observe(counts map[string]int, now time.Time) map[string]float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	scores := make(map[string]float64, len(counts))
	for topic, n := range counts {
		st := d.topics[topic]
		if st == nil {
			st = &topicState{baseline: d.cfg.InitialBaseline}
			d.topics[topic] = st
		}
		for i := 0; i < n; i++ {
			st.events = append(st.events, now)
		}
		st.events = pruneBefore(st.events, now.Add(-d.cfg.Window))
		st.lastSeen = now

		rate := float64(len(st.events))
		scores[topic] = d.score(rate, st.baseline)
		st.baseline = d.cfg.Decay*st.baseline + (1-d.cfg.Decay)*rate
	}
	d.trim()
	return scores
}

func (d *TrendDetector) score(rate, baseline float64) float64 {
	if d.cfg.Multiplier <= 0 {
		return 0
	}
	ratio := rate / math.Max(baseline, 0.01)
	if ratio < d.cfg.Multiplier {
		return 0
	}
	return math.Min(1, ratio/(2*d.cfg.Multiplier))
}

// trim drops least recently seen topics above the limit
func (d *TrendDetector) trim() {
	excess := len(d.topics) - d.cfg.MaxTopics
	if excess <= 0 {
		return
	}
	names := make([]string, 0, len(d.topics))
	for name := range d.topics {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := d.topics[names[i]], d.topics[names[j]]
		if !a.lastSeen.Equal(b.lastSeen) {
			return a.lastSeen.Before(b.lastSeen)
		}
		return names[i] < names[j]
	})
	for _, name := range names[:excess] {
		delete(d.topics, name)
	}
}

// Len returns the number of tracked topics
func (d *TrendDetector) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.topics)
}

func pruneBefore(events []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(events) && events[i].Before(cutoff) {
		i++
	}
	return append(events[:0], events[i:]...)
}

// TrendStage scores candidates by the burstiness of their topic
type TrendStage struct {
	detector *TrendDetector
}

func NewTrendStage(d *TrendDetector) *TrendStage {
	return &TrendStage{detector: d}
}

func (s *TrendStage) Name() string { return StageTrend }

func (s *TrendStage) Prepare(sc *StageContext) error {
	counts := make(map[string]int)
	for _, it := range sc.Items {
		counts[trendTopic(it)]++
	}
	sc.Set(StageTrend, s.detector.Observe(counts, sc.Now))
	return nil
}

func (s *TrendStage) Apply(sc *StageContext, item *candidate.Annotated) error {
	scores, ok := sc.Value(StageTrend).(map[string]float64)
	if !ok {
		return errMissingState
	}
	item.SetTrendScore(scores[trendTopic(item)])
	return nil
}

func (s *TrendStage) Neutral(item *candidate.Annotated) { item.SetTrendScore(0) }

func trendTopic(a *candidate.Annotated) string {
	if a.TopicHint != "" {
		return "topic:" + candidate.NormalizeTitle(a.TopicHint)
	}
	if a.ClusterID != candidate.ClusterUnknown {
		return "cluster:" + a.ClusterID
	}
	return "key:" + a.Key
}

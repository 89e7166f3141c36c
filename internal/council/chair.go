package council

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"sync"

	"newsdesk/internal/domain/debate"
	"newsdesk/internal/domain/persistence"
	"newsdesk/pkg/errors"
	"newsdesk/pkg/logger"
)

// Influence bounds and adjustment factors
const (
	InfluenceMin     = 0.5
	InfluenceMax     = 2.0
	InfluenceDefault = 1.0

	rewardFactor  = 1.02
	penaltyFactor = 0.97
	decayRetain   = 0.95
)

type outcome struct {
	expertID  string
	votedKeep bool
	selected  bool
}

// Chair tracks expert influence. Voting only reads influence; outcomes
// queue up through Observe and are applied by an explicit Adjust call
// between requests.
type Chair struct {
	mu        sync.RWMutex
	influence map[string]float64
	total     map[string]int
	correct   map[string]int
	pending   []outcome
	revision  int64
	log       *logger.Logger
}

func NewChair(expertIDs []string, log *logger.Logger) *Chair {
	if log == nil {
		log = logger.Component("debate_chair")
	}
	c := &Chair{
		influence: make(map[string]float64, len(expertIDs)),
		total:     make(map[string]int),
		correct:   make(map[string]int),
		log:       log,
	}
	for _, id := range expertIDs {
		c.influence[id] = InfluenceDefault
	}
	return c
}

// Weight returns an expert's current influence
func (c *Chair) Weight(expertID string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if w, ok := c.influence[expertID]; ok {
		return w
	}
	return InfluenceDefault
}

// Influence returns a copy of every expert's influence
func (c *Chair) Influence() map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]float64, len(c.influence))
	for id, w := range c.influence {
		out[id] = w
	}
	return out
}

// Observe queues the outcome of every vote in records. selected holds the
// keys that made the delivered slate.
func (c *Chair) Observe(records []debate.Record, selected map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range records {
		for _, v := range r.Votes {
			c.pending = append(c.pending, outcome{
				expertID:  v.ExpertID,
				votedKeep: v.Decision == debate.Keep,
				selected:  selected[r.CandidateKey],
			})
		}
	}
}

// Pending returns the number of queued outcomes
func (c *Chair) Pending() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pending)
}

// Adjust applies queued outcomes and returns how many were applied
func (c *Chair) Adjust() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.pending)
	for _, o := range c.pending {
		c.total[o.expertID]++
		agreed := o.votedKeep == o.selected
		cur, ok := c.influence[o.expertID]
		if !ok {
			cur = InfluenceDefault
		}
		if agreed {
			c.correct[o.expertID]++
			cur *= rewardFactor
		} else {
			cur *= penaltyFactor
		}
		cur = cur*decayRetain + InfluenceDefault*(1-decayRetain)
		c.influence[o.expertID] = clampInfluence(cur)
	}
	c.pending = c.pending[:0]
	if n > 0 {
		c.revision++
	}
	return n
}

// Accuracy is the share of an expert's votes that agreed with the outcome
func (c *Chair) Accuracy(expertID string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accuracy(expertID)
}

func (c *Chair) accuracy(expertID string) float64 {
	total := c.total[expertID]
	if total == 0 {
		return 0
	}
	return float64(c.correct[expertID]) / float64(total)
}

// Standing is one row of the influence ranking
type Standing struct {
	ExpertID  string  `json:"expert_id"`
	Influence float64 `json:"influence"`
	Accuracy  float64 `json:"accuracy"`
}

// Rankings orders experts by influence, highest first
func (c *Chair) Rankings() []Standing {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Standing, 0, len(c.influence))
	for id, w := range c.influence {
		out = append(out, Standing{ExpertID: id, Influence: w, Accuracy: c.accuracy(id)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Influence != out[j].Influence {
			return out[i].Influence > out[j].Influence
		}
		return out[i].ExpertID < out[j].ExpertID
	})
	return out
}

// Snapshot is the persisted chair state
type Snapshot struct {
	Revision  int64              `json:"revision"`
	Influence map[string]float64 `json:"influence"`
	Total     map[string]int     `json:"total_votes"`
	Correct   map[string]int     `json:"correct_votes"`
}

func (c *Chair) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Snapshot{
		Revision:  c.revision,
		Influence: make(map[string]float64, len(c.influence)),
		Total:     make(map[string]int, len(c.total)),
		Correct:   make(map[string]int, len(c.correct)),
	}
	for k, v := range c.influence {
		s.Influence[k] = v
	}
	for k, v := range c.total {
		s.Total[k] = v
	}
	for k, v := range c.correct {
		s.Correct[k] = v
	}
	return s
}

// Restore replaces influence and statistics; unknown experts keep defaults
func (c *Chair) Restore(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, w := range s.Influence {
		c.influence[id] = clampInfluence(w)
	}
	for id, n := range s.Total {
		c.total[id] = n
	}
	for id, n := range s.Correct {
		c.correct[id] = n
	}
	if s.Revision > c.revision {
		c.revision = s.Revision
	}
}

// Save writes a snapshot. Stores of an older revision are ignored by the KV.
func (c *Chair) Save(ctx context.Context, kv persistence.KV) error {
	s := c.Snapshot()
	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "marshal influence snapshot")
	}
	if err := kv.Store(ctx, persistence.InfluenceKey(), data, persistence.StoreOptions{Version: s.Revision}); err != nil {
		return errors.Wrap(err, "store influence snapshot")
	}
	return nil
}

// Load restores a previously saved snapshot, if any
func (c *Chair) Load(ctx context.Context, kv persistence.KV) error {
	data, ok, err := kv.Load(ctx, persistence.InfluenceKey())
	if err != nil {
		return errors.Wrap(err, "load influence snapshot")
	}
	if !ok {
		return nil
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "decode influence snapshot")
	}
	c.Restore(s)
	c.log.Infow("Restored expert influence", "revision", s.Revision, "experts", len(s.Influence))
	return nil
}

func clampInfluence(w float64) float64 {
	switch {
	case math.IsNaN(w):
		return InfluenceDefault
	case w < InfluenceMin:
		return InfluenceMin
	case w > InfluenceMax:
		return InfluenceMax
	default:
		return w
	}
}

package selection

import (
	"time"

	"newsdesk/internal/domain/candidate"
	"newsdesk/internal/domain/debate"
)

// State is a request lifecycle state
type State string

const (
	StateQueued            State = "queued"
	StateResearching       State = "researching"
	StateAnnotating        State = "annotating"
	StateCouncil           State = "council"
	StateCacheUpdate       State = "cache_update"
	StateDelivered         State = "delivered"
	StateDegradedDelivered State = "degraded_delivered"
	StateFailed            State = "failed"
)

// Terminal reports whether no further transition is allowed
func (s State) Terminal() bool {
	return s == StateDelivered || s == StateDegradedDelivered || s == StateFailed
}

// Transition is one step of a request's lifecycle
type Transition struct {
	State State     `json:"state"`
	At    time.Time `json:"at"`
}

// AgentFailure records a research agent excluded from a request
type AgentFailure struct {
	AgentID string `json:"agent_id"`
	Reason  string `json:"reason"`
}

// Item pairs a candidate with the council's record for it
type Item struct {
	Candidate     candidate.Annotated `json:"candidate"`
	Record        debate.Record       `json:"record"`
	LowConfidence bool                `json:"low_confidence,omitempty"` // padded below the threshold
}

// Clone deep-copies the item
func (i Item) Clone() Item {
	return Item{Candidate: i.Candidate.Clone(), Record: i.Record.Clone(), LowConfidence: i.LowConfidence}
}

// Selection is the immutable result of one request
type Selection struct {
	RequestID        string         `json:"request_id"`
	UserID           string         `json:"user_id"`
	Topic            string         `json:"topic"`
	State            State          `json:"state"`
	Items            []Item         `json:"items"`
	Reserve          []Item         `json:"reserve"`
	Deferred         []Item         `json:"deferred,omitempty"` // held back by the diversity cap
	DegradedStages   []string       `json:"degraded_stages"`
	DegradedAgents   []string       `json:"degraded_agents"`
	AgentFailures    []AgentFailure `json:"agent_failures,omitempty"`
	DeadlineExceeded bool           `json:"deadline_exceeded,omitempty"`
	FromCache        bool           `json:"from_cache,omitempty"`
	Transitions      []Transition   `json:"transitions"`
	GeneratedAt      time.Time      `json:"generated_at"`
}

// Degraded reports whether any part of the request failed
func (s Selection) Degraded() bool {
	return len(s.DegradedStages) > 0 || len(s.DegradedAgents) > 0 || s.DeadlineExceeded
}

// CandidateKeys lists item keys in rank order
func (s Selection) CandidateKeys() []string {
	out := make([]string, len(s.Items))
	for i, it := range s.Items {
		out[i] = it.Candidate.Key
	}
	return out
}

// CloneItems deep-copies a slice of items
func CloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}

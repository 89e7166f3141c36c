package events

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"newsdesk/internal/domain/profile"
	"newsdesk/internal/domain/selection"
	"newsdesk/internal/metrics"
	"newsdesk/pkg/logger"
)

// Default topics
const (
	TopicSelectionDelivered = "newsdesk.selection.delivered"
	TopicPreferenceChanged  = "newsdesk.preference.changed"
)

const (
	eventVersion   = "1.0"
	publishTimeout = 2 * time.Second
)

// Producer is the transport behind the publisher; kafka.Producer implements it
type Producer interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
}

// Topics names the destination of each event kind
type Topics struct {
	Selection  string
	Preference string
}

// BaseEvent is embedded in every event
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	UserID    string    `json:"user_id"`
	Version   string    `json:"version"`
}

// NewBaseEvent creates a new base event with defaults
func NewBaseEvent(eventType, source, userID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    source,
		UserID:    userID,
		Version:   eventVersion,
	}
}

// DeliveredItem summarizes one delivered candidate
type DeliveredItem struct {
	Key            string  `json:"key"`
	Title          string  `json:"title"`
	SourceID       string  `json:"source_id"`
	URL            string  `json:"url"`
	AggregateScore float64 `json:"aggregate_score"`
	LowConfidence  bool    `json:"low_confidence,omitempty"`
}

// SelectionDeliveredEvent is emitted for every delivered selection
type SelectionDeliveredEvent struct {
	BaseEvent
	RequestID      string          `json:"request_id"`
	Topic          string          `json:"topic"`
	State          string          `json:"state"`
	Items          []DeliveredItem `json:"items"`
	ReserveSize    int             `json:"reserve_size"`
	DegradedStages []string        `json:"degraded_stages,omitempty"`
	DegradedAgents []string        `json:"degraded_agents,omitempty"`
	FromCache      bool            `json:"from_cache,omitempty"`
}

// PreferenceChangedEvent is emitted after a committed profile update
type PreferenceChangedEvent struct {
	BaseEvent
	ProfileVersion int64              `json:"profile_version"`
	TopicWeights   map[string]float64 `json:"topic_weights"`
}

// Publisher emits pipeline events. Publishing is best-effort: failures are
// logged and counted, never returned.
type Publisher struct {
	producer Producer
	topics   Topics
	log      *logger.Logger
}

// NewPublisher creates an event publisher. A nil producer makes every
// publish a no-op.
func NewPublisher(producer Producer, topics Topics, log *logger.Logger) *Publisher {
	if topics.Selection == "" {
		topics.Selection = TopicSelectionDelivered
	}
	if topics.Preference == "" {
		topics.Preference = TopicPreferenceChanged
	}
	if log == nil {
		log = logger.Component("events")
	}
	return &Publisher{producer: producer, topics: topics, log: log}
}

// Enabled reports whether events leave the process
func (p *Publisher) Enabled() bool { return p != nil && p.producer != nil }

// SelectionDelivered publishes a delivered selection keyed by user
func (p *Publisher) SelectionDelivered(ctx context.Context, sel selection.Selection) {
	if !p.Enabled() {
		return
	}
	event := SelectionDeliveredEvent{
		BaseEvent:      NewBaseEvent("selection.delivered", "coordinator", sel.UserID),
		RequestID:      sel.RequestID,
		Topic:          sel.Topic,
		State:          string(sel.State),
		Items:          make([]DeliveredItem, len(sel.Items)),
		ReserveSize:    len(sel.Reserve) + len(sel.Deferred),
		DegradedStages: sel.DegradedStages,
		DegradedAgents: sel.DegradedAgents,
		FromCache:      sel.FromCache,
	}
	for i, it := range sel.Items {
		event.Items[i] = DeliveredItem{
			Key:            it.Candidate.Key,
			Title:          SanitizeUTF8(it.Candidate.Title),
			SourceID:       it.Candidate.SourceID,
			URL:            it.Candidate.URL,
			AggregateScore: it.Record.Aggregate,
			LowConfidence:  it.LowConfidence,
		}
	}
	p.publish(ctx, p.topics.Selection, sel.UserID, event)
}

// PreferenceChanged publishes a committed profile
func (p *Publisher) PreferenceChanged(ctx context.Context, prof profile.UserProfile) {
	if !p.Enabled() {
		return
	}
	p.publish(ctx, p.topics.Preference, prof.UserID, PreferenceChangedEvent{
		BaseEvent:      NewBaseEvent("preference.changed", "preference_store", prof.UserID),
		ProfileVersion: prof.Version,
		TopicWeights:   prof.TopicWeights,
	})
}

// publish detaches from the caller's cancellation so a request that just
// hit its deadline still reports its outcome
func (p *Publisher) publish(ctx context.Context, topic, key string, event interface{}) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err := p.producer.Publish(ctx, topic, key, event)
	metrics.RecordEventPublished(topic, err)
	if err != nil {
		p.log.Warnw("Failed to publish event", "topic", topic, "key", key, "error", err)
	}
}

// SanitizeUTF8 drops invalid UTF-8 sequences so feed text encodes cleanly
func SanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}

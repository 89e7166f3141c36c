package profile

import (
	"math"
	"time"

	"newsdesk/pkg/errors"
)

// UserProfile is owned by the preference store and changes only through
// its compare-and-swap update
type UserProfile struct {
	UserID       string             `json:"user_id"`
	TopicWeights map[string]float64 `json:"topic_weights"`
	Version      int64              `json:"version"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// New returns an empty profile at version 0
func New(userID string) UserProfile {
	return UserProfile{UserID: userID, TopicWeights: make(map[string]float64)}
}

// Clone returns a deep copy
func (p UserProfile) Clone() UserProfile {
	out := p
	out.TopicWeights = make(map[string]float64, len(p.TopicWeights))
	for k, v := range p.TopicWeights {
		out.TopicWeights[k] = v
	}
	return out
}

// Weight returns the user's weight for a topic
func (p UserProfile) Weight(topic string) (float64, bool) {
	w, ok := p.TopicWeights[topic]
	return w, ok
}

// WithFallback fills topics missing from the profile with the given weights.
// Weights already in the profile win.
func (p UserProfile) WithFallback(weights map[string]float64) UserProfile {
	out := p.Clone()
	for topic, w := range weights {
		if _, ok := out.TopicWeights[topic]; !ok {
			out.TopicWeights[topic] = w
		}
	}
	return out
}

// Validate checks every weight is in [0,1]
func (p UserProfile) Validate() error {
	if p.UserID == "" {
		return errors.NewValidationError("user_id", "required", p.UserID)
	}
	for topic, w := range p.TopicWeights {
		if math.IsNaN(w) || w < 0 || w > 1 {
			return errors.NewValidationError("topic_weights."+topic, "weight must be in [0,1]", w)
		}
	}
	return nil
}

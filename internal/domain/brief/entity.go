package brief

import (
	"math"
	"sort"
	"time"

	"newsdesk/pkg/errors"
)

// Constraints narrow a single request
type Constraints struct {
	ExcludeSources []string      `json:"exclude_sources,omitempty"`
	Regions        []string      `json:"regions,omitempty"`
	MaxAge         time.Duration `json:"max_age,omitempty"` // 0 means no limit
}

// Brief is one user request. Treat it as immutable once built; the
// coordinator works on a Clone.
type Brief struct {
	UserID         string             `json:"user_id"`
	TopicWeights   map[string]float64 `json:"topic_weights"`
	RequestedCount int                `json:"requested_count"`
	Constraints    Constraints        `json:"session_constraints"`
}

// Clone returns a copy that shares no maps or slices with b
func (b Brief) Clone() Brief {
	out := b
	out.TopicWeights = make(map[string]float64, len(b.TopicWeights))
	for k, v := range b.TopicWeights {
		out.TopicWeights[k] = v
	}
	out.Constraints.ExcludeSources = append([]string(nil), b.Constraints.ExcludeSources...)
	out.Constraints.Regions = append([]string(nil), b.Constraints.Regions...)
	return out
}

// Validate reports every malformed field; the result unwraps to ErrInvalidBrief
func (b Brief) Validate(maxRequested int) error {
	var errs errors.MultiError

	if b.UserID == "" {
		errs.Add(invalid("user_id", "required", b.UserID))
	}
	if b.RequestedCount < 1 {
		errs.Add(invalid("requested_count", "must be at least 1", b.RequestedCount))
	} else if maxRequested > 0 && b.RequestedCount > maxRequested {
		errs.Add(invalid("requested_count", "exceeds the maximum", b.RequestedCount))
	}
	if len(b.TopicWeights) == 0 {
		errs.Add(invalid("topic_weights", "at least one topic is required", nil))
	}
	for topic, w := range b.TopicWeights {
		if topic == "" {
			errs.Add(invalid("topic_weights", "empty topic name", w))
		}
		if math.IsNaN(w) || w < 0 || w > 1 {
			errs.Add(invalid("topic_weights."+topic, "weight must be in [0,1]", w))
		}
	}
	if b.Constraints.MaxAge < 0 {
		errs.Add(invalid("session_constraints.max_age", "must not be negative", b.Constraints.MaxAge))
	}

	return errs.ToError()
}

func invalid(field, msg string, value interface{}) error {
	return errors.NewValidationError(field, msg, value).WithKind(errors.ErrInvalidBrief)
}

// Topics returns topic names by descending weight, ties by name
func (b Brief) Topics() []string {
	out := make([]string, 0, len(b.TopicWeights))
	for t := range b.TopicWeights {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		wi, wj := b.TopicWeights[out[i]], b.TopicWeights[out[j]]
		if wi != wj {
			return wi > wj
		}
		return out[i] < out[j]
	})
	return out
}

// DominantTopic is the topic the reserve cache is keyed by
func (b Brief) DominantTopic() string {
	topics := b.Topics()
	if len(topics) == 0 {
		return ""
	}
	return topics[0]
}

// Excludes reports whether a source is excluded for this request
func (b Brief) Excludes(sourceID string) bool {
	for _, s := range b.Constraints.ExcludeSources {
		if s == sourceID {
			return true
		}
	}
	return false
}

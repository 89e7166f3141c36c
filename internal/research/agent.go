package research

import (
	"context"

	"newsdesk/internal/domain/brief"
	"newsdesk/internal/domain/candidate"
)

// BriefContext is the read-only view of a request handed to agents
type BriefContext struct {
	RequestID      string
	UserID         string
	Topics         []string // by descending weight
	TopicWeights   map[string]float64
	Regions        []string
	ExcludeSources []string
}

// ContextFromBrief builds the agent view of a brief
func ContextFromBrief(requestID string, b brief.Brief) BriefContext {
	c := b.Clone()
	return BriefContext{
		RequestID:      requestID,
		UserID:         c.UserID,
		Topics:         c.Topics(),
		TopicWeights:   c.TopicWeights,
		Regions:        c.Constraints.Regions,
		ExcludeSources: c.Constraints.ExcludeSources,
	}
}

// Agent is an opaque research collaborator. Implementations pre-rank their
// own output and should honor ctx; the fanout abandons calls that do not.
type Agent interface {
	ID() string
	Invoke(ctx context.Context, bc BriefContext, topK int) ([]candidate.Raw, error)
}

// Func adapts a function to the Agent interface
type Func struct {
	Name string
	Fn   func(ctx context.Context, bc BriefContext, topK int) ([]candidate.Raw, error)
}

func (f Func) ID() string { return f.Name }

func (f Func) Invoke(ctx context.Context, bc BriefContext, topK int) ([]candidate.Raw, error) {
	return f.Fn(ctx, bc, topK)
}

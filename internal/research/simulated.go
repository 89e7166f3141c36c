package research

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"newsdesk/internal/domain/candidate"
)

var headlineTemplates = []string{
	"%s talks stall as deadline nears",
	"New report warns of %s disruption",
	"Officials outline next steps on %s",
	"Analysts split over %s outlook",
	"%s escalation prompts emergency summit",
	"Breaking: %s regulation vote scheduled",
}

var topicSubjects = map[string][]string{
	"ai_policy":   {"AI safety bill", "model licensing", "compute export rules"},
	"geopolitics": {"border ceasefire", "sanctions package", "Taiwan strait tension"},
	"markets":     {"bond yields", "oil supply", "chip stocks"},
	"technology":  {"cloud outage", "chip fabrication", "open source licensing"},
}

// SimulatedAgent generates deterministic candidates from a hash of the
// request, topic and rank. Agents sharing a story index emit the same
// headline under their own sources, which exercises corroboration.
type SimulatedAgent struct {
	id      string
	sources []string
	latency time.Duration
	now     func() time.Time
}

// NewSimulatedAgent creates a simulated agent reporting through sources
func NewSimulatedAgent(id string, sources []string, latency time.Duration) *SimulatedAgent {
	if len(sources) == 0 {
		sources = []string{"web"}
	}
	return &SimulatedAgent{id: id, sources: sources, latency: latency, now: time.Now}
}

func (a *SimulatedAgent) ID() string { return a.id }

func (a *SimulatedAgent) Invoke(ctx context.Context, bc BriefContext, topK int) ([]candidate.Raw, error) {
	if a.latency > 0 {
		select {
		case <-time.After(a.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	now := a.now()
	out := make([]candidate.Raw, 0, topK)
	for rank := 0; rank < topK && len(bc.Topics) > 0; rank++ {
		topic := bc.Topics[rank%len(bc.Topics)]
		story := seed(bc.RequestID, topic, strconv.Itoa(rank/len(bc.Topics)))
		pick := seed(a.id, bc.RequestID, topic, strconv.Itoa(rank))

		subjects := topicSubjects[topic]
		if len(subjects) == 0 {
			subjects = []string{topic}
		}
		subject := subjects[story%uint64(len(subjects))]
		title := fmt.Sprintf(headlineTemplates[(story>>8)%uint64(len(headlineTemplates))], subject)
		source := a.sources[pick%uint64(len(a.sources))]

		out = append(out, candidate.Raw{
			SourceID:    source,
			Title:       title,
			Summary:     fmt.Sprintf("%s coverage of %s from %s.", topic, subject, source),
			URL:         fmt.Sprintf("https://%s.example/%x", source, story&0xffffff),
			PublishedAt: now.Add(-time.Duration((story>>16)%180) * time.Minute),
			TopicHint:   topic,
			Regions:     bc.Regions,
		})
	}
	return out, nil
}

func seed(parts ...string) uint64 {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{':'})
	}
	return binary.BigEndian.Uint64(h.Sum(nil)[:8])
}

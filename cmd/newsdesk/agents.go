package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"newsdesk/internal/bootstrap"
	"newsdesk/internal/domain/brief"
	"newsdesk/internal/research"
	"newsdesk/pkg/errors"
)

// demoAgent is a simulated research desk
type demoAgent struct {
	id      string
	sources []string
	latency time.Duration
	topics  []string
}

var demoAgents = []demoAgent{
	{id: "wire_desk", sources: []string{"reuters", "ap", "bbc"}, latency: 40 * time.Millisecond},
	{id: "social_pulse", sources: []string{"x", "reddit", "hackernews"}, latency: 25 * time.Millisecond},
	{id: "policy_desk", sources: []string{"ft", "guardian", "arxiv"}, latency: 60 * time.Millisecond, topics: []string{"ai_policy", "technology"}},
	{id: "world_desk", sources: []string{"aljazeera", "bbc", "gdelt"}, latency: 50 * time.Millisecond, topics: []string{"geopolitics"}},
	{id: "markets_desk", sources: []string{"ft", "reuters"}, latency: 30 * time.Millisecond, topics: []string{"markets"}},
}

func registerDemoAgents(c *bootstrap.Container) error {
	for _, a := range demoAgents {
		if err := c.RegisterAgent(research.NewSimulatedAgent(a.id, a.sources, a.latency), a.topics...); err != nil {
			return err
		}
	}
	return nil
}

// registerFeedAgent serves one feed file as a specialist for topic
func registerFeedAgent(c *bootstrap.Container, path, topic, fallback string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read feed %s", path)
	}
	if topic == "" {
		topic = fallback
	}
	source := research.StaticFeedSource{
		topic: {{SourceID: "feed", Topic: topic, Body: body}},
	}
	return c.RegisterAgent(research.NewFeedAgent("feed_reader", source), topic)
}

func buildBrief(o options) (brief.Brief, error) {
	weights, err := parseWeights(o.topics)
	if err != nil {
		return brief.Brief{}, err
	}
	return brief.Brief{
		UserID:         o.userID,
		TopicWeights:   weights,
		RequestedCount: o.count,
		Constraints: brief.Constraints{
			ExcludeSources: splitList(o.exclude),
			Regions:        splitList(o.regions),
			MaxAge:         o.maxAge,
		},
	}, nil
}

func parseWeights(s string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, pair := range splitList(s) {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			out[strings.TrimSpace(name)] = 1
			continue
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, errors.NewValidationError("topics", "weight is not a number", pair)
		}
		out[strings.TrimSpace(name)] = w
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

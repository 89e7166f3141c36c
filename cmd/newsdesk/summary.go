package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"newsdesk/internal/domain/selection"
)

// summarize renders a selection for a terminal
func summarize(sel selection.Selection, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "request %s  user=%s  topic=%s  state=%s", sel.RequestID, sel.UserID, sel.Topic, sel.State)
	if sel.FromCache {
		b.WriteString("  (from reserve)")
	}
	b.WriteByte('\n')

	for i, it := range sel.Items {
		c := it.Candidate
		age := "undated"
		if !c.PublishedAt.IsZero() {
			age = humanize.RelTime(c.PublishedAt, now, "ago", "from now")
		}
		flag := ""
		if it.LowConfidence {
			flag = " [low confidence]"
		}
		fmt.Fprintf(&b, "%2d. %s%s\n    %s, %s, score %.2f, sources %s\n",
			i+1, c.Title, flag, c.SourceID, age, it.Record.Aggregate, strings.Join(c.CorroboratingSources, "/"))
	}

	fmt.Fprintf(&b, "reserve %s, deferred %s\n",
		humanize.Comma(int64(len(sel.Reserve))), humanize.Comma(int64(len(sel.Deferred))))
	if len(sel.DegradedAgents) > 0 {
		fmt.Fprintf(&b, "degraded agents: %s\n", strings.Join(sel.DegradedAgents, ", "))
	}
	if len(sel.DegradedStages) > 0 {
		fmt.Fprintf(&b, "degraded stages: %s\n", strings.Join(sel.DegradedStages, ", "))
	}
	if n := len(sel.Transitions); n > 1 {
		took := sel.Transitions[n-1].At.Sub(sel.Transitions[0].At)
		fmt.Fprintf(&b, "handled in %s\n", took.Round(time.Millisecond))
	}
	return b.String()
}

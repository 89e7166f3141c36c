package coordinator

import (
	"time"

	"newsdesk/internal/domain/selection"
	"newsdesk/pkg/errors"
)

// stateOrder ranks non-terminal states; a request only moves forward
var stateOrder = map[selection.State]int{
	selection.StateQueued:      0,
	selection.StateResearching: 1,
	selection.StateAnnotating:  2,
	selection.StateCouncil:     3,
	selection.StateCacheUpdate: 4,
}

// lifecycle records one request's walk through the states
type lifecycle struct {
	state       selection.State
	transitions []selection.Transition
	now         func() time.Time
}

func newLifecycle(now func() time.Time) *lifecycle {
	l := &lifecycle{state: selection.StateQueued, now: now}
	l.transitions = append(l.transitions, selection.Transition{State: selection.StateQueued, At: now()})
	return l
}

// advance moves to next. Terminal states accept no transition and
// non-terminal targets must rank after the current state.
func (l *lifecycle) advance(next selection.State) error {
	if l.state.Terminal() {
		return errors.Wrapf(errors.ErrInternal, "transition %s -> %s after terminal state", l.state, next)
	}
	if !next.Terminal() && stateOrder[next] <= stateOrder[l.state] {
		return errors.Wrapf(errors.ErrInternal, "transition %s -> %s goes backwards", l.state, next)
	}
	l.state = next
	l.transitions = append(l.transitions, selection.Transition{State: next, At: l.now()})
	return nil
}

func (l *lifecycle) trail() []selection.Transition {
	return append([]selection.Transition(nil), l.transitions...)
}

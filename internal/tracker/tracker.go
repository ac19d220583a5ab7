// Package tracker turns a stream of reachability observations into discrete
// online/offline transitions.
package tracker

import (
	"sort"
	"sync"
	"time"

	"github.com/HerbHall/amrwatch/internal/probe"
)

// State is the last known reachability of a target.
type State int

const (
	Unknown State = iota
	Online
	Offline
)

// String returns the event name used in logs and status updates.
func (s State) String() string {
	switch s {
	case Online:
		return "Online"
	case Offline:
		return "Offline"
	default:
		return "Unknown"
	}
}

// StateOf maps a reachability bit onto a State.
func StateOf(reachable bool) State {
	if reachable {
		return Online
	}
	return Offline
}

// Target is a named address being monitored.
type Target struct {
	Name    string
	Address string
}

// Transition describes a loggable change in a target's state.
type Transition struct {
	Target    Target
	From      State
	To        State
	LatencyMs int
	At        time.Time
}

// Initial reports whether this transition records the first observation of
// the target.
func (t Transition) Initial() bool {
	return t.From == Unknown
}

// TargetState is a point-in-time view of one target.
type TargetState struct {
	Target    Target
	State     State
	ChangedAt time.Time
}

// Tracker holds the last known state per target. It is safe for concurrent
// use; observations of the same target are linearized.
type Tracker struct {
	mu    sync.Mutex
	state map[string]*TargetState
}

// New returns a tracker with every target in the Unknown state.
func New(targets []Target) *Tracker {
	t := &Tracker{state: make(map[string]*TargetState, len(targets))}
	for _, target := range targets {
		t.state[target.Name] = &TargetState{Target: target, State: Unknown}
	}
	return t
}

// Observe records a probe result. It returns a transition when the result
// is the first observation of the target or differs from the last known
// state; repeated identical observations return false. No smoothing is
// applied, so a flapping target transitions on every observation.
func (t *Tracker) Observe(target Target, result probe.Result, now time.Time) (Transition, bool) {
	next := StateOf(result.Reachable)

	t.mu.Lock()
	defer t.mu.Unlock()

	ts, ok := t.state[target.Name]
	if !ok {
		ts = &TargetState{Target: target, State: Unknown}
		t.state[target.Name] = ts
	}
	if ts.State == next {
		return Transition{}, false
	}

	tr := Transition{
		Target:    target,
		From:      ts.State,
		To:        next,
		LatencyMs: result.Latency(),
		At:        now,
	}
	ts.State = next
	ts.ChangedAt = now
	return tr, true
}

// Snapshot returns the state of every target, sorted by name.
func (t *Tracker) Snapshot() []TargetState {
	t.mu.Lock()
	out := make([]TargetState, 0, len(t.state))
	for _, ts := range t.state {
		out = append(out, *ts)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Target.Name < out[j].Target.Name })
	return out
}

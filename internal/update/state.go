package update

import "fmt"

// State is a step of a single update attempt
type State string

const (
	StateIdle        State = "idle"
	StateChecking    State = "checking"
	StateDownloading State = "downloading"
	StateVerifying   State = "verifying"
	StateBackingUp   State = "backing_up"
	StateApplying    State = "applying"
	StateSucceeded   State = "succeeded"
	StateFailed      State = "failed"
	StateRolledBack  State = "rolled_back"
)

func (s State) String() string {
	return string(s)
}

// IsTerminal returns true if no further transition is allowed
func (s State) IsTerminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateRolledBack:
		return true
	}
	return false
}

// transitions lists the allowed successors of every state.
// Checking may fall back to Idle (no update) or fail when the source is down.
var transitions = map[State][]State{
	StateIdle:        {StateChecking},
	StateChecking:    {StateIdle, StateDownloading, StateFailed},
	StateDownloading: {StateVerifying, StateFailed},
	StateVerifying:   {StateBackingUp, StateApplying, StateFailed},
	StateBackingUp:   {StateApplying, StateFailed},
	StateApplying:    {StateSucceeded, StateFailed},
	StateFailed:      {StateRolledBack},
}

// CanTransition reports whether from -> to is a legal step
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Attempt tracks the state of one PerformUpdate invocation.
// It is owned by that invocation and never shared.
type Attempt struct {
	state    State
	err      error
	history  []State
	observer func(from, to State)
}

func newAttempt(observer func(from, to State)) *Attempt {
	return &Attempt{
		state:    StateIdle,
		history:  []State{StateIdle},
		observer: observer,
	}
}

// State returns the current state
func (a *Attempt) State() State { return a.state }

// Err returns the failure recorded by fail, if any
func (a *Attempt) Err() error { return a.err }

// History returns every state visited, in order
func (a *Attempt) History() []State {
	out := make([]State, len(a.history))
	copy(out, a.history)
	return out
}

func (a *Attempt) to(next State) {
	if !CanTransition(a.state, next) {
		panic(fmt.Sprintf("update: illegal transition %s -> %s", a.state, next))
	}
	prev := a.state
	a.state = next
	a.history = append(a.history, next)
	if a.observer != nil {
		a.observer(prev, next)
	}
}

func (a *Attempt) fail(err error) {
	a.err = err
	a.to(StateFailed)
}

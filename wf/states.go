package wf

import (
	"encoding/json"
	"fmt"
)

// State is the lifecycle state of a workflow node.
type State int32

// Node lifecycle states.
//
// A node moves from Pending to Ready when all of its dependencies have
// completed, then to Dispatched when it has been handed to a backend,
// then Running, and finally one of the terminal states. NotRun is the
// terminal state of a node which was skipped because an upstream
// dependency failed or the workflow was stopped before dispatch.
// Unknown is not terminal; it marks a node whose backend status could
// not be determined after repeated attempts.
const (
	Pending State = iota
	Ready
	Dispatched
	Running
	Done
	Failed
	NotRun
	Killed
	Unknown
)

var stateName = map[State]string{
	Pending:    "PENDING",
	Ready:      "READY",
	Dispatched: "DISPATCHED",
	Running:    "RUNNING",
	Done:       "DONE",
	Failed:     "FAILED",
	NotRun:     "NOT_RUN",
	Killed:     "KILLED",
	Unknown:    "UNKNOWN",
}

// StateValue maps a state name to its State value.
var StateValue = map[string]State{
	"PENDING":    Pending,
	"READY":      Ready,
	"DISPATCHED": Dispatched,
	"RUNNING":    Running,
	"DONE":       Done,
	"FAILED":     Failed,
	"NOT_RUN":    NotRun,
	"KILLED":     Killed,
	"UNKNOWN":    Unknown,
}

// String returns the state name.
func (s State) String() string {
	if n, ok := stateName[s]; ok {
		return n
	}
	return fmt.Sprintf("STATE(%d)", int32(s))
}

// Terminal returns true if the state is terminal: Done, Failed,
// NotRun, or Killed.
func (s State) Terminal() bool {
	switch s {
	case Done, Failed, NotRun, Killed:
		return true
	}
	return false
}

// Active returns true if the state represents in-flight backend work.
func (s State) Active() bool {
	switch s {
	case Dispatched, Running, Unknown:
		return true
	}
	return false
}

// MarshalJSON marshals the state as its name string.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON unmarshals a state from its name string.
func (s *State) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	v, ok := StateValue[name]
	if !ok {
		return fmt.Errorf("unknown state %q", name)
	}
	*s = v
	return nil
}

// TransitionError describes an invalid state transition.
type TransitionError struct {
	From, To State
}

func (te *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s",
		te.From.String(), te.To.String())
}

// ValidateTransition validates a node state transition.
// Returns a TransitionError if the transition is not valid.
func ValidateTransition(from, to State) error {

	if from == to {
		return nil
	}

	switch from {
	case Pending:
		switch to {
		case Ready, NotRun, Killed:
			return nil
		}

	case Ready:
		// Ready -> Done covers barrier nodes, which complete without
		// ever being dispatched.
		switch to {
		case Dispatched, Done, NotRun, Killed:
			return nil
		}

	case Dispatched:
		switch to {
		case Running, Done, Failed, Killed, Unknown:
			return nil
		}

	case Running:
		switch to {
		case Done, Failed, Killed, Unknown:
			return nil
		}

	case Unknown:
		// A later successful status query may move the node anywhere.
		switch to {
		case Running, Done, Failed, Killed:
			return nil
		}

	case Done, Failed, NotRun, Killed:
		// May not transition out of a terminal state.
		return &TransitionError{from, to}
	}

	return &TransitionError{from, to}
}

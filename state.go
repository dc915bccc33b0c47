package rowflow

import (
	"fmt"
	"strings"
)

// State is the lifecycle phase of an executing step.
//
//	Created -> Initialized -> Running -> Finished | Stopped | Failed
type State int32

const (
	StateCreated State = iota
	StateInitialized
	StateRunning
	StateFinished
	StateStopped
	StateFailed
)

var stateNames = [...]string{
	StateCreated:     "created",
	StateInitialized: "initialized",
	StateRunning:     "running",
	StateFinished:    "finished",
	StateStopped:     "stopped",
	StateFailed:      "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateStopped || s == StateFailed
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	name := strings.ToLower(string(text))
	for i, n := range stateNames {
		if n == name {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

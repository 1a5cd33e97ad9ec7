package session

import (
	"fmt"

	"github.com/kucendro/g1/internal/glass"
)

// State is the logical state derived from both sides.
type State int

const (
	// Disconnected means no side is up.
	Disconnected State = iota
	// Degraded means exactly one side is up.
	Degraded
	// Ready means both sides are up; commands route anywhere.
	Ready
)

var stateNames = map[State]string{
	Disconnected: "disconnected",
	Degraded:     "degraded",
	Ready:        "ready",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Target selects the destination of a routed command.
type Target int

const (
	TargetLeft Target = iota
	TargetRight
	TargetBoth
)

// PartialFailure reports that one side failed terminally while the
// other keeps operating.
type PartialFailure struct {
	Side glass.Side
	Err  error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("side %s failed: %v", e.Side, e.Err)
}

func (e *PartialFailure) Unwrap() error { return e.Err }

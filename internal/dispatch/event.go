package dispatch

import (
	"time"

	"github.com/kucendro/g1/internal/glass"
	"github.com/kucendro/g1/internal/protocol"
)

// EventType discriminates bus events.
type EventType string

const (
	EventConnectionState EventType = "connection_state"
	EventSessionState    EventType = "session_state"
	EventInteraction     EventType = "interaction"
	EventStateChanged    EventType = "state_changed"
	EventPartialFailure  EventType = "partial_failure"
)

// Event is one bus message. Only the fields relevant to its Type are
// populated.
type Event struct {
	Type EventType
	Side glass.Side
	At   time.Time

	// EventConnectionState
	ConnState glass.ConnState

	// EventSessionState
	SessionState string

	// EventInteraction
	Interaction Interaction

	// EventStateChanged
	Snapshot Snapshot

	// EventPartialFailure
	Err error
}

// Interaction is a user gesture reported by one side.
type Interaction struct {
	Kind byte
	Side glass.Side
	At   time.Time
}

var interactionNames = map[byte]string{
	protocol.InteractionDoubleTap:           "double_tap",
	protocol.InteractionSingleTap:           "single_tap",
	protocol.InteractionDashboardOpenStart:  "dashboard_opening",
	protocol.InteractionDashboardCloseStart: "dashboard_closing",
	protocol.InteractionSilentModeOn:        "silent_mode_on",
	protocol.InteractionSilentModeOff:       "silent_mode_off",
	protocol.InteractionLongPress:           "long_press",
	protocol.InteractionDashboardOpen:       "dashboard_open",
	protocol.InteractionDashboardClose:      "dashboard_closed",
}

func (i Interaction) String() string {
	if name, ok := interactionNames[i.Kind]; ok {
		return name
	}
	return "unknown"
}

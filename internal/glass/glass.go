// Package glass holds the shared device model: the left/right side tag,
// the per-side connection states and the read-only device view exposed
// by the connection layer.
package glass

import "time"

// Side identifies one of the two physical units.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

// NameMarker returns the substring that distinguishes a side in the
// advertised device name ("G1_77_L_…" / "G1_77_R_…").
func (s Side) NameMarker() string {
	if s == Left {
		return "_L_"
	}
	return "_R_"
}

// ConnState is one state of the per-side connection machine.
type ConnState int

const (
	Disconnected ConnState = iota
	Scanning
	Connecting
	Handshaking
	Ready
	Reconnecting
	Failed
)

var connStateNames = map[ConnState]string{
	Disconnected: "disconnected",
	Scanning:     "scanning",
	Connecting:   "connecting",
	Handshaking:  "handshaking",
	Ready:        "ready",
	Reconnecting: "reconnecting",
	Failed:       "failed",
}

func (s ConnState) String() string {
	if name, ok := connStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether the state cannot be left without outside
// intervention.
func (s ConnState) Terminal() bool { return s == Failed }

// Device is the read-only view of one physical unit. The owning
// connection manager mutates its copy; everyone else receives value
// snapshots.
type Device struct {
	Side     Side
	Address  string
	Name     string
	State    ConnState
	RSSI     int
	LastSeen time.Time
}

// Identity is the advertised identity exchanged during handshake and
// persisted by the trust store.
type Identity struct {
	Side    Side
	Address string
	Name    string
}

package dispatch

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kucendro/g1/internal/glass"
	"github.com/kucendro/g1/internal/protocol"
)

// SideStatus is the per-side slice of the aggregate state. Battery is a
// percentage, -1 until the first battery packet arrives.
type SideStatus struct {
	Connected bool
	Battery   int
	Charging  bool
}

// Snapshot is the aggregate device state. Readers receive value copies;
// Revision increases by exactly one per actual change.
type Snapshot struct {
	Left            SideStatus
	Right           SideStatus
	Wearing         bool
	InCradle        bool
	SilentMode      bool
	DashboardOpen   bool
	LastInteraction Interaction
	Revision        uint64
}

func (s *Snapshot) side(side glass.Side) *SideStatus {
	if side == glass.Left {
		return &s.Left
	}
	return &s.Right
}

// Dispatcher is the single writer over the Snapshot. Packets arrive
// side-tagged from the connection managers; per-side arrival order is
// preserved, cross-side ordering is whatever the lock yields.
type Dispatcher struct {
	mu   sync.Mutex
	snap Snapshot
	bus  *Bus
	log  zerolog.Logger
}

// NewDispatcher creates a dispatcher publishing to bus.
func NewDispatcher(bus *Bus, log zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		bus: bus,
		log: log.With().Str("component", "dispatch").Logger(),
	}
	d.snap.Left.Battery = -1
	d.snap.Right.Battery = -1
	return d
}

// Snapshot returns a copy of the current aggregate state.
func (d *Dispatcher) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snap
}

// Dispatch routes one decoded packet. Unknown opcodes are logged and
// dropped; nothing here is fatal.
func (d *Dispatcher) Dispatch(side glass.Side, pkt protocol.Packet) {
	switch pkt.Opcode {
	case protocol.OpStateEvent:
		d.handleStateEvent(side, pkt)
	case protocol.OpBattery:
		d.handleBattery(side, pkt)
	case protocol.OpHeartbeat, protocol.RespSuccess, protocol.RespFailure:
		// Acks and command responses carry no aggregate state.
	case protocol.OpMicData:
		// Audio frames are not modeled in the snapshot.
	default:
		d.log.Debug().
			Str("side", side.String()).
			Uint8("opcode", pkt.Opcode).
			Msg("unknown opcode dropped")
	}
}

func (d *Dispatcher) handleStateEvent(side glass.Side, pkt protocol.Packet) {
	code, ok := protocol.StateCode(pkt)
	if !ok {
		d.log.Warn().Str("side", side.String()).Msg("empty state packet dropped")
		return
	}

	// Device codes are checked before battery codes: 0x09 is both, and
	// the firmware uses it as a device state.
	switch {
	case protocol.IsDeviceStateCode(code):
		d.log.Debug().
			Str("side", side.String()).
			Uint8("code", code).
			Msg("device state")
	case protocol.IsPhysicalStateCode(code):
		d.applyPhysicalState(code)
	case protocol.IsBatteryStateCode(code):
		d.applyBatteryState(side, code)
	case protocol.IsInteractionCode(code):
		d.applyInteraction(side, code)
	default:
		d.log.Debug().
			Str("side", side.String()).
			Uint8("code", code).
			Msg("unknown state code dropped")
	}
}

func (d *Dispatcher) applyPhysicalState(code byte) {
	wearing := code == protocol.StateWearing
	inCradle := code == protocol.StateCradle

	d.mu.Lock()
	if d.snap.Wearing == wearing && d.snap.InCradle == inCradle {
		d.mu.Unlock()
		return
	}
	d.snap.Wearing = wearing
	d.snap.InCradle = inCradle
	snap := d.bump()
	d.mu.Unlock()

	d.publishStateChanged(snap)
}

func (d *Dispatcher) applyBatteryState(side glass.Side, code byte) {
	charging := code == protocol.BatteryCharging

	d.mu.Lock()
	status := d.snap.side(side)
	if status.Charging == charging {
		d.mu.Unlock()
		return
	}
	status.Charging = charging
	snap := d.bump()
	d.mu.Unlock()

	d.publishStateChanged(snap)
}

func (d *Dispatcher) applyInteraction(side glass.Side, code byte) {
	interaction := Interaction{Kind: code, Side: side, At: time.Now()}

	d.mu.Lock()
	d.snap.LastInteraction = interaction

	flagChanged := false
	switch code {
	case protocol.InteractionSilentModeOn, protocol.InteractionSilentModeOff:
		on := code == protocol.InteractionSilentModeOn
		flagChanged = d.snap.SilentMode != on
		d.snap.SilentMode = on
	case protocol.InteractionDashboardOpen, protocol.InteractionDashboardClose:
		open := code == protocol.InteractionDashboardOpen
		flagChanged = d.snap.DashboardOpen != open
		d.snap.DashboardOpen = open
	}

	snap := d.bump()
	d.mu.Unlock()

	d.bus.Publish(Event{
		Type:        EventInteraction,
		Side:        side,
		At:          interaction.At,
		Interaction: interaction,
	})
	if flagChanged {
		d.publishStateChanged(snap)
	}
}

func (d *Dispatcher) handleBattery(side glass.Side, pkt protocol.Packet) {
	percent, ok := protocol.BatteryLevel(pkt)
	if !ok {
		d.log.Warn().Str("side", side.String()).Msg("malformed battery packet dropped")
		return
	}

	d.mu.Lock()
	status := d.snap.side(side)
	if status.Battery == percent {
		d.mu.Unlock()
		return
	}
	status.Battery = percent
	snap := d.bump()
	d.mu.Unlock()

	d.publishStateChanged(snap)
}

// ConnStateChanged records a per-side connection transition and
// publishes it. Connected in the snapshot means Ready.
func (d *Dispatcher) ConnStateChanged(side glass.Side, state glass.ConnState) {
	connected := state == glass.Ready

	d.mu.Lock()
	status := d.snap.side(side)
	changed := status.Connected != connected
	status.Connected = connected
	var snap Snapshot
	if changed {
		snap = d.bump()
	}
	d.mu.Unlock()

	d.bus.Publish(Event{
		Type:      EventConnectionState,
		Side:      side,
		At:        time.Now(),
		ConnState: state,
	})
	if changed {
		d.publishStateChanged(snap)
	}
}

// SessionStateChanged publishes a coordinator-level state transition.
func (d *Dispatcher) SessionStateChanged(state string) {
	d.bus.Publish(Event{
		Type:         EventSessionState,
		At:           time.Now(),
		SessionState: state,
	})
}

// ReportPartialFailure publishes a one-side terminal failure.
func (d *Dispatcher) ReportPartialFailure(side glass.Side, err error) {
	d.bus.Publish(Event{
		Type: EventPartialFailure,
		Side: side,
		At:   time.Now(),
		Err:  err,
	})
}

// bump increments the revision and returns a copy. Caller holds d.mu.
func (d *Dispatcher) bump() Snapshot {
	d.snap.Revision++
	return d.snap
}

func (d *Dispatcher) publishStateChanged(snap Snapshot) {
	d.bus.Publish(Event{
		Type:     EventStateChanged,
		At:       time.Now(),
		Snapshot: snap,
	})
}

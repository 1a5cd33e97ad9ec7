package protocol

// Opcodes (frame byte 0). Values match the device firmware.
const (
	OpHeartbeat  byte = 0x25 // keepalive command and its acknowledgment
	OpDashboard  byte = 0x22
	OpBattery    byte = 0x2C
	OpInit       byte = 0x4D // handshake/init exchange
	OpMicData    byte = 0xF1
	OpStateEvent byte = 0xF5 // state change notification, payload[0] = state code

	RespSuccess byte = 0xC9
	RespFailure byte = 0xCA
)

// Physical state codes carried in OpStateEvent payloads.
const (
	StateWearing       byte = 0x06
	StateTransitioning byte = 0x07
	StateCradle        byte = 0x08
)

// Device state codes. Most are undocumented; 0x11 is observed at the
// start of every connection.
const (
	DeviceConnected byte = 0x11
)

// Battery state codes. 0x09 collides with a device state code; device
// states take precedence during classification.
const (
	BatteryFull     byte = 0x09
	BatteryCharging byte = 0x0E
)

// Interaction codes carried in OpStateEvent payloads.
const (
	InteractionDoubleTap           byte = 0x00
	InteractionSingleTap           byte = 0x01
	InteractionDashboardOpenStart  byte = 0x02
	InteractionDashboardCloseStart byte = 0x03
	InteractionSilentModeOn        byte = 0x04
	InteractionSilentModeOff       byte = 0x05
	InteractionLongPress           byte = 0x17
	InteractionDashboardOpen       byte = 0x1E
	InteractionDashboardClose      byte = 0x1F
)

// deviceStateCodes are the observed but mostly unexplained device-level
// codes. They are recognized so the dispatcher does not report them as
// unknown traffic.
var deviceStateCodes = map[byte]bool{
	0x09: true,
	0x0A: true,
	0x0F: true,
	0x11: true,
	0x12: true,
	0x14: true,
	0x15: true,
}

// IsDeviceStateCode reports whether code is a known device-level state code.
func IsDeviceStateCode(code byte) bool {
	return deviceStateCodes[code]
}

// IsPhysicalStateCode reports whether code describes wear/cradle state.
func IsPhysicalStateCode(code byte) bool {
	return code == StateWearing || code == StateTransitioning || code == StateCradle
}

// IsBatteryStateCode reports whether code describes charge state.
func IsBatteryStateCode(code byte) bool {
	return code == BatteryFull || code == BatteryCharging
}

// IsInteractionCode reports whether code is a user interaction.
func IsInteractionCode(code byte) bool {
	switch code {
	case InteractionDoubleTap, InteractionSingleTap,
		InteractionDashboardOpenStart, InteractionDashboardCloseStart,
		InteractionSilentModeOn, InteractionSilentModeOff,
		InteractionLongPress,
		InteractionDashboardOpen, InteractionDashboardClose:
		return true
	}
	return false
}

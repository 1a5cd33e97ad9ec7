package protocol

// Handshake side markers carried in the init request payload.
const (
	HandshakeLeft  byte = 0x01
	HandshakeRight byte = 0x02
)

// heartbeatPayloadLen is the payload size of the fixed keepalive shape
// 25 06 00 <seq> 04 <seq>.
const heartbeatPayloadLen = 3

// Heartbeat returns the first keepalive command. Its encoding is the
// literal firmware sequence 25 06 00 01 04 01.
func Heartbeat() Command {
	return NewHeartbeat(0x01)
}

// NewHeartbeat returns a keepalive command carrying seq as correlation
// id. Keepalive frames echo the sequence byte as trailer instead of the
// modular-sum checksum; the firmware sends and expects exactly this
// shape.
func NewHeartbeat(seq byte) Command {
	return Command{
		Opcode:   OpHeartbeat,
		Seq:      seq,
		Payload:  []byte{0x00, seq, 0x04},
		Checksum: seq,
	}
}

// NewHandshake returns the init request sent after a raw link comes up.
// The peer answers with RespSuccess carrying its advertised identity, or
// RespFailure when it refuses to validate.
func NewHandshake(side byte) Command {
	return MustCommand(OpInit, []byte{side})
}

// NewBatteryQuery returns the battery level request.
func NewBatteryQuery() Command {
	return MustCommand(OpBattery, []byte{0x01})
}

// IsHeartbeatAck reports whether p acknowledges a heartbeat.
func IsHeartbeatAck(p Packet) bool {
	return p.Opcode == OpHeartbeat
}

// HandshakeIdentity extracts the peer identity from a handshake reply.
// ok is false when p is not a successful init reply.
func HandshakeIdentity(p Packet) (identity string, ok bool) {
	if p.Opcode != RespSuccess || len(p.Payload) < 1 || p.Payload[0] != OpInit {
		return "", false
	}
	return string(p.Payload[1:]), true
}

// IsHandshakeReject reports whether p is the peer refusing the init
// exchange.
func IsHandshakeReject(p Packet) bool {
	return p.Opcode == RespFailure && len(p.Payload) >= 1 && p.Payload[0] == OpInit
}

// BatteryLevel extracts the charge percentage from a battery packet.
func BatteryLevel(p Packet) (percent int, ok bool) {
	if p.Opcode != OpBattery || len(p.Payload) < 1 {
		return 0, false
	}
	level := p.Payload[len(p.Payload)-1]
	if level > 100 {
		return 0, false
	}
	return int(level), true
}

// StateCode extracts the state code from a state change packet.
func StateCode(p Packet) (code byte, ok bool) {
	if p.Opcode != OpStateEvent || len(p.Payload) < 1 {
		return 0, false
	}
	return p.Payload[0], true
}

package protocol

import "fmt"

// Frame layout, both directions:
//
//	[opcode:1][length:1][payload:length-3][checksum:1]
//
// length declares the total frame size including opcode, length byte and
// checksum trailer. The trailer satisfies
//
//	(sum(payload) + checksum) mod 256 == length
//
// a modular-sum variant fixed by the firmware. Keepalive frames (opcode
// 0x25) are the one exception: the firmware echoes the sequence byte as
// trailer, 25 06 00 <seq> 04 <seq>, in both directions. Neither
// algorithm is negotiable.
const (
	headerSize  = 2
	trailerSize = 1
	minFrame    = headerSize + trailerSize

	// MaxPayload is bounded by the one-byte total-length field.
	MaxPayload = 0xFF - minFrame
)

// Command is an outbound protocol unit. Immutable once constructed; one
// instance per send.
type Command struct {
	Opcode   byte
	Seq      byte // correlation id where the opcode requires one, else 0
	Payload  []byte
	Checksum byte
}

// Packet is an inbound protocol unit decoded from raw notification bytes.
// A Packet only exists for frames that passed length and checksum
// validation; it is discarded after dispatch.
type Packet struct {
	Opcode  byte
	Payload []byte
}

// checksum computes the modular-sum trailer for a frame with the given
// declared length and payload.
func checksum(length byte, payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum += b
	}
	return length - sum
}

// expectedTrailer returns the trailer a valid frame must carry.
// Keepalive frames echo their sequence byte; everything else uses the
// modular-sum checksum.
func expectedTrailer(opcode, length byte, payload []byte) byte {
	if opcode == OpHeartbeat && len(payload) == heartbeatPayloadLen {
		return payload[1]
	}
	return checksum(length, payload)
}

// NewCommand constructs a Command over opcode and payload, computing the
// checksum trailer. The payload is copied.
func NewCommand(opcode byte, payload []byte) (Command, error) {
	if len(payload) > MaxPayload {
		return Command{}, fmt.Errorf("payload %d bytes exceeds maximum %d", len(payload), MaxPayload)
	}
	p := make([]byte, len(payload))
	copy(p, payload)
	length := byte(minFrame + len(p))
	return Command{
		Opcode:   opcode,
		Payload:  p,
		Checksum: checksum(length, p),
	}, nil
}

// MustCommand is NewCommand for payloads known to fit, such as the fixed
// protocol constants.
func MustCommand(opcode byte, payload []byte) Command {
	cmd, err := NewCommand(opcode, payload)
	if err != nil {
		panic(err)
	}
	return cmd
}

// Encode serializes the command to its wire frame. Encoding never fails
// for commands built through NewCommand.
func (c Command) Encode() []byte {
	frame := make([]byte, 0, minFrame+len(c.Payload))
	frame = append(frame, c.Opcode, byte(minFrame+len(c.Payload)))
	frame = append(frame, c.Payload...)
	frame = append(frame, c.Checksum)
	return frame
}

// Decode validates a raw notification frame and returns the contained
// packet. It fails closed: any malformed frame is rejected with a
// *FramingError or *ChecksumError, never silently dropped.
func Decode(raw []byte) (Packet, error) {
	if len(raw) < minFrame {
		return Packet{}, &FramingError{Declared: minFrame, Actual: len(raw)}
	}
	declared := int(raw[1])
	if declared != len(raw) {
		return Packet{}, &FramingError{Declared: declared, Actual: len(raw)}
	}
	payload := raw[headerSize : len(raw)-trailerSize]
	want := expectedTrailer(raw[0], raw[1], payload)
	got := raw[len(raw)-1]
	if want != got {
		return Packet{}, &ChecksumError{Want: want, Got: got}
	}
	p := make([]byte, len(payload))
	copy(p, payload)
	return Packet{Opcode: raw[0], Payload: p}, nil
}

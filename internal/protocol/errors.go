package protocol

import "fmt"

// FramingError reports a frame whose declared length does not match the
// bytes actually received, or a frame too short to carry the header and
// trailer.
type FramingError struct {
	Declared int
	Actual   int
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("framing: declared length %d, got %d bytes", e.Declared, e.Actual)
}

// ChecksumError reports a frame whose trailer does not match the checksum
// recomputed over the received bytes.
type ChecksumError struct {
	Want byte
	Got  byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum: want 0x%02x, got 0x%02x", e.Want, e.Got)
}

// Package protocol implements the binary command codec for the glasses
// UART protocol: frame encoding/decoding with length and checksum
// validation, the opcode and state-code tables, and the fixed heartbeat
// and handshake frame shapes consumed by the connection layer.
//
// The package is a pure transformation layer: no I/O, no retries.
package protocol

// Package session coordinates both sides: concurrent connection
// attempts, the derived logical state (Ready only when both sides are
// Ready), command routing to either or both units, and the single
// pairing-record write after a successful dual handshake.
package session

package link

import "errors"

var (
	// ErrHandshakeTimeout means the peer never answered the init request
	// within the handshake deadline.
	ErrHandshakeTimeout = errors.New("HANDSHAKE_TIMEOUT")

	// ErrHandshakeRejected means the peer refused the init exchange.
	// Never auto-retried.
	ErrHandshakeRejected = errors.New("HANDSHAKE_REJECTED")

	// ErrHeartbeatTimeout means the configured number of consecutive
	// keepalive acknowledgments was missed.
	ErrHeartbeatTimeout = errors.New("HEARTBEAT_TIMEOUT")

	// ErrAttemptsExhausted means the reconnect budget ran out; the side
	// is terminally Failed until outside intervention.
	ErrAttemptsExhausted = errors.New("ATTEMPTS_EXHAUSTED")

	// ErrNotReady means Send was called outside the Ready state.
	ErrNotReady = errors.New("NOT_READY")
)

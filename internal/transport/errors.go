package transport

import "errors"

// Normalized link-layer errors. Implementations map vendor and stack
// specific failures onto these so the retry policy upstream stays
// deterministic.
var (
	ErrScanTimeout    = errors.New("SCAN_TIMEOUT")
	ErrConnectTimeout = errors.New("CONNECT_TIMEOUT")
	ErrConnectRefused = errors.New("CONNECT_REFUSED")
	ErrLinkClosed     = errors.New("LINK_CLOSED")
)

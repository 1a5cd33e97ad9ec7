package transport

import (
	"context"
	"time"
)

// UART service and characteristic UUIDs exposed by each unit.
const (
	UARTService = "6E400001-B5A3-F393-E0A9-E50E24DCCA9E"
	UARTTx      = "6E400002-B5A3-F393-E0A9-E50E24DCCA9E"
	UARTRx      = "6E400003-B5A3-F393-E0A9-E50E24DCCA9E"
)

// Advertisement is one scan result.
type Advertisement struct {
	Address string
	Name    string
	RSSI    int
	SeenAt  time.Time
}

// Transport is the BLE central role. Implementations must honor context
// cancellation on every blocking operation.
type Transport interface {
	// Scan emits candidate advertisements whose name contains filter.
	// The channel closes when the scan window ends or ctx is done; the
	// sequence is finite and lazy.
	Scan(ctx context.Context, filter string) (<-chan Advertisement, error)

	// Connect establishes a single physical link to address. The caller
	// owns the returned link and must Close it on every exit path.
	Connect(ctx context.Context, address string) (Link, error)
}

// Link is one established physical connection with UART notifications
// flowing.
type Link interface {
	// Write sends one encoded frame to the UART TX characteristic.
	Write(ctx context.Context, frame []byte) error

	// Notifications returns the stream of raw notification frames from
	// the UART RX characteristic. The channel closes when the link
	// drops or is closed.
	Notifications() <-chan []byte

	// RSSI returns the last known signal strength, 0 when unknown.
	RSSI() int

	// Close releases the underlying radio resource. Safe to call more
	// than once.
	Close() error
}

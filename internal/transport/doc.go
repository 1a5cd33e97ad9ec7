// Package transport defines the southbound BLE central contract: scan,
// connect, characteristic write and notification subscribe for the
// UART-style service each physical unit exposes. The core treats this as
// an injected capability; implementations live in subpackages.
package transport

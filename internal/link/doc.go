// Package link drives one side's connection machine: scan, connect,
// handshake, heartbeat-supervised Ready, reconnect with bounded backoff,
// terminal Failed when the attempt budget is exhausted. Decoded inbound
// packets are forwarded side-tagged to the dispatcher; heartbeat acks
// and handshake replies are consumed here.
package link

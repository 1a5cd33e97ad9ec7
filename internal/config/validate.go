package config

import "fmt"

// Validate enforces the configuration invariants the connection layer
// relies on.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if cfg.ReconnectAttempts < 0 {
		return fmt.Errorf("reconnect_attempts must be >= 0, got %d", cfg.ReconnectAttempts)
	}
	if cfg.ReconnectDelaySec < 0 {
		return fmt.Errorf("reconnect_delay must be >= 0, got %v", cfg.ReconnectDelaySec)
	}
	if cfg.BackoffFactor < 1.0 {
		return fmt.Errorf("backoff_factor must be >= 1.0, got %v", cfg.BackoffFactor)
	}
	if cfg.ConnectionTimeoutSec <= 0 {
		return fmt.Errorf("connection_timeout must be positive, got %v", cfg.ConnectionTimeoutSec)
	}
	if cfg.HandshakeTimeoutSec <= 0 {
		return fmt.Errorf("handshake_timeout must be positive, got %v", cfg.HandshakeTimeoutSec)
	}
	if cfg.ScanTimeoutSec <= 0 {
		return fmt.Errorf("scan_timeout must be positive, got %v", cfg.ScanTimeoutSec)
	}
	if cfg.HeartbeatIntervalSec <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive, got %v", cfg.HeartbeatIntervalSec)
	}
	if cfg.HeartbeatMisses < 1 {
		return fmt.Errorf("heartbeat_misses must be >= 1, got %d", cfg.HeartbeatMisses)
	}
	if cfg.ChecksumErrorThreshold < 1 {
		return fmt.Errorf("checksum_error_threshold must be >= 1, got %d", cfg.ChecksumErrorThreshold)
	}
	if cfg.PairingFile == "" {
		return fmt.Errorf("pairing_file must not be empty")
	}
	return nil
}

package config

import "time"

// Config holds every tunable of the connector. Durations are persisted
// as float seconds to stay compatible with existing g1_config files;
// accessor methods expose them as time.Duration.
type Config struct {
	// Connection configuration
	ReconnectAttempts    int     `yaml:"reconnect_attempts"`
	ReconnectDelaySec    float64 `yaml:"reconnect_delay"`
	BackoffFactor        float64 `yaml:"backoff_factor"` // 1.0 = fixed delay
	ConnectionTimeoutSec float64 `yaml:"connection_timeout"`
	HandshakeTimeoutSec  float64 `yaml:"handshake_timeout"`
	ScanTimeoutSec       float64 `yaml:"scan_timeout"`

	// Heartbeat configuration
	HeartbeatIntervalSec float64 `yaml:"heartbeat_interval"`
	HeartbeatMisses      int     `yaml:"heartbeat_misses"`

	// Link quality: single-packet integrity failures below this count
	// are dropped with a warning; at the threshold the link reconnects.
	ChecksumErrorThreshold int `yaml:"checksum_error_threshold"`

	// Device identity, populated once paired.
	LeftAddress  string `yaml:"left_address"`
	RightAddress string `yaml:"right_address"`
	LeftName     string `yaml:"left_name"`
	RightName    string `yaml:"right_name"`

	// PairingFile is where the trust record lives.
	PairingFile string `yaml:"pairing_file"`

	Log LogConfig `yaml:"log"`
}

// LogConfig controls structured log output.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	Console    bool   `yaml:"console"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		ReconnectAttempts:      3,
		ReconnectDelaySec:      1.0,
		BackoffFactor:          1.0,
		ConnectionTimeoutSec:   20.0,
		HandshakeTimeoutSec:    5.0,
		ScanTimeoutSec:         15.0,
		HeartbeatIntervalSec:   8.0,
		HeartbeatMisses:        3,
		ChecksumErrorThreshold: 5,
		PairingFile:            "g1_pairing.yaml",
		Log: LogConfig{
			Level:      "info",
			File:       "g1_connector.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Console:    true,
		},
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// ReconnectDelay returns the base backoff delay between attempts.
func (c *Config) ReconnectDelay() time.Duration { return seconds(c.ReconnectDelaySec) }

// ConnectionTimeout bounds a single physical connect.
func (c *Config) ConnectionTimeout() time.Duration { return seconds(c.ConnectionTimeoutSec) }

// HandshakeTimeout bounds the init exchange after a connect.
func (c *Config) HandshakeTimeout() time.Duration { return seconds(c.HandshakeTimeoutSec) }

// ScanTimeout bounds one discovery window.
func (c *Config) ScanTimeout() time.Duration { return seconds(c.ScanTimeoutSec) }

// HeartbeatInterval is the keepalive cadence; it also serves as the
// per-beat acknowledgment deadline.
func (c *Config) HeartbeatInterval() time.Duration { return seconds(c.HeartbeatIntervalSec) }

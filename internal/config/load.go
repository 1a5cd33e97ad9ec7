package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

// DefaultFile is consulted when no path and no G1_CONFIG are given.
const DefaultFile = "g1.yaml"

// Load merges Default() + optional YAML file + G1_* env overrides, then
// validates. An empty path falls back to $G1_CONFIG, then DefaultFile if
// it exists.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("G1_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides applies G1_* environment variables on top of cfg.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("G1_RECONNECT_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ReconnectAttempts = n
		}
	}
	if v := os.Getenv("G1_RECONNECT_DELAY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ReconnectDelaySec = f
		}
	}
	if v := os.Getenv("G1_BACKOFF_FACTOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.BackoffFactor = f
		}
	}
	if v := os.Getenv("G1_CONNECTION_TIMEOUT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ConnectionTimeoutSec = f
		}
	}
	if v := os.Getenv("G1_HANDSHAKE_TIMEOUT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.HandshakeTimeoutSec = f
		}
	}
	if v := os.Getenv("G1_SCAN_TIMEOUT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ScanTimeoutSec = f
		}
	}
	if v := os.Getenv("G1_HEARTBEAT_INTERVAL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.HeartbeatIntervalSec = f
		}
	}
	if v := os.Getenv("G1_HEARTBEAT_MISSES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HeartbeatMisses = n
		}
	}
	if v := os.Getenv("G1_CHECKSUM_ERROR_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ChecksumErrorThreshold = n
		}
	}
	if v := os.Getenv("G1_LEFT_ADDRESS"); v != "" {
		cfg.LeftAddress = v
	}
	if v := os.Getenv("G1_RIGHT_ADDRESS"); v != "" {
		cfg.RightAddress = v
	}
	if v := os.Getenv("G1_LEFT_NAME"); v != "" {
		cfg.LeftName = v
	}
	if v := os.Getenv("G1_RIGHT_NAME"); v != "" {
		cfg.RightName = v
	}
	if v := os.Getenv("G1_PAIRING_FILE"); v != "" {
		cfg.PairingFile = v
	}
	if v := os.Getenv("G1_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("G1_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
}

// Save writes cfg back to path, used after pairing populates addresses.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

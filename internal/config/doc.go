// Package config loads and validates the connector configuration.
// Precedence: built-in defaults, then an optional YAML file, then G1_*
// environment overrides. The resulting value is immutable for the
// lifetime of a session; nothing re-reads it mid-session.
package config

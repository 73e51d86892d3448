// Package config loads, normalizes, and validates barscan configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// BARSCAN_MQTT_PASSWORD. The Config type centralizes every knob the CLI and the
// scan session need: camera preferences, duplicate cooldown timing, the record
// store backend, and the optional API and MQTT integrations.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enum values, and clear validation errors.
package config

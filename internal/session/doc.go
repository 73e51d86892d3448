// Package session coordinates a single scanning session.
//
// A Session owns camera discovery results, the one live stream, and the decode
// loop bound to it. It turns raw decode events into accepted scan records using
// the record store as the authority on duplicates, and applies a cooldown so a
// code lingering in front of the lens is reported once. Failed is a transient
// state: discovery and acquisition failures are published and the session
// immediately returns to Idle with a user-facing message.
//
// Every state change, status change, and record mutation is published to an
// UpdateHub, which keeps a bounded history for long-polling clients and fans
// updates out to sinks such as MQTT forwarding.
package session

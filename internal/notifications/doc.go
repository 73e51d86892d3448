// Package notifications pushes scanner events to ntfy.
//
// NewService returns an ntfy-backed Service when notify.ntfy_topic is set and
// a no-op otherwise. Sink adapts a Service to the session update hub: camera
// errors are pushed once per distinct message, and accepted scans are pushed
// too when notify.scans is enabled.
package notifications

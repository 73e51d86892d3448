// Package app assembles a scanning process from configuration.
//
// Build connects the V4L2 camera backends, the stream controller, the decode
// loop, the record store and the session, then attaches the optional
// services: MQTT forwarding and ntfy notifications as update sinks, the
// hotplug monitor as a refresher, and the HTTP control API. Close tears them
// down in reverse so the camera is released before the store goes away.
package app

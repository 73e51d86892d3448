// Package forward publishes accepted scans to external systems. The MQTT sink
// registers with the session update hub and forwards record changes as JSON.
package forward

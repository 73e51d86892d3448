package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCamera(); err != nil {
		return err
	}
	if err := c.validateSession(); err != nil {
		return err
	}
	switch c.Store.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("store.backend must be memory or sqlite, got %q", c.Store.Backend)
	}
	if err := c.validateMQTT(); err != nil {
		return err
	}
	if c.Notify.NtfyTopic != "" && !strings.HasPrefix(c.Notify.NtfyTopic, "http://") && !strings.HasPrefix(c.Notify.NtfyTopic, "https://") {
		return fmt.Errorf("notify.ntfy_topic must be an http(s) URL, got %q", c.Notify.NtfyTopic)
	}
	return nil
}

func (c *Config) validateCamera() error {
	switch c.Camera.Facing {
	case "environment", "user":
	default:
		return fmt.Errorf("camera.facing must be environment or user, got %q", c.Camera.Facing)
	}
	if c.Camera.Device != "" && !strings.HasPrefix(c.Camera.Device, "/dev/") {
		return fmt.Errorf("camera.device must be a /dev path, got %q", c.Camera.Device)
	}
	if c.Camera.MinWidth > c.Camera.IdealWidth || c.Camera.MinHeight > c.Camera.IdealHeight {
		return errors.New("camera.min_width/min_height must not exceed ideal_width/ideal_height")
	}
	return nil
}

func (c *Config) validateSession() error {
	if c.Session.FeedbackMS > c.Session.CooldownMS {
		return fmt.Errorf("session.feedback_ms (%d) must not exceed session.cooldown_ms (%d)", c.Session.FeedbackMS, c.Session.CooldownMS)
	}
	return nil
}

func (c *Config) validateMQTT() error {
	if !c.MQTT.Enabled {
		return nil
	}
	if c.MQTT.Broker == "" {
		return errors.New("mqtt.broker is required when mqtt.enabled is true")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1, or 2, got %d", c.MQTT.QoS)
	}
	if strings.ContainsAny(c.MQTT.Topic, "+#") {
		return fmt.Errorf("mqtt.topic must not contain wildcards, got %q", c.MQTT.Topic)
	}
	return nil
}

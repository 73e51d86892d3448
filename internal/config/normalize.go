package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCamera()
	c.normalizeSession()
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = defaultStoreBackend
	}
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		c.API.Token = strings.TrimSpace(os.Getenv("BARSCAN_API_TOKEN"))
	}
	c.normalizeMQTT()
	c.Notify.NtfyTopic = strings.TrimSpace(c.Notify.NtfyTopic)
	if c.Notify.RequestTimeoutSeconds <= 0 {
		c.Notify.RequestTimeoutSeconds = defaultNotifyTimeout
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.RuntimeDir) == "" {
		c.Paths.RuntimeDir = defaultRuntimeDir()
	}
	if c.Paths.RuntimeDir, err = expandPath(c.Paths.RuntimeDir); err != nil {
		return fmt.Errorf("paths.runtime_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCamera() {
	c.Camera.Device = strings.TrimSpace(c.Camera.Device)
	c.Camera.Facing = strings.ToLower(strings.TrimSpace(c.Camera.Facing))
	if c.Camera.Facing == "" {
		c.Camera.Facing = defaultFacing
	}
	if c.Camera.IdealWidth <= 0 {
		c.Camera.IdealWidth = defaultIdealWidth
	}
	if c.Camera.IdealHeight <= 0 {
		c.Camera.IdealHeight = defaultIdealHeight
	}
	if c.Camera.MinWidth < 0 {
		c.Camera.MinWidth = 0
	}
	if c.Camera.MinHeight < 0 {
		c.Camera.MinHeight = 0
	}
	c.Camera.FFmpegBinary = strings.TrimSpace(c.Camera.FFmpegBinary)
	if c.Camera.FFmpegBinary == "" {
		c.Camera.FFmpegBinary = defaultFFmpegBinary
	}
	c.Camera.V4L2CtlBinary = strings.TrimSpace(c.Camera.V4L2CtlBinary)
	if c.Camera.V4L2CtlBinary == "" {
		c.Camera.V4L2CtlBinary = defaultV4L2CtlBinary
	}
	if c.Camera.ReadyTimeoutMS <= 0 {
		c.Camera.ReadyTimeoutMS = defaultReadyTimeoutMS
	}
	if c.Camera.ProbeTimeoutMS <= 0 {
		c.Camera.ProbeTimeoutMS = defaultProbeTimeoutMS
	}
}

func (c *Config) normalizeSession() {
	if c.Session.CooldownMS <= 0 {
		c.Session.CooldownMS = defaultCooldownMS
	}
	if c.Session.FeedbackMS <= 0 {
		c.Session.FeedbackMS = defaultFeedbackMS
	}
	if c.Session.EventBuffer <= 0 {
		c.Session.EventBuffer = defaultEventBuffer
	}
}

func (c *Config) normalizeMQTT() {
	c.MQTT.Broker = strings.TrimSpace(c.MQTT.Broker)
	c.MQTT.ClientID = strings.TrimSpace(c.MQTT.ClientID)
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = defaultMQTTClientID
	}
	c.MQTT.Topic = strings.Trim(strings.TrimSpace(c.MQTT.Topic), "/")
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = defaultMQTTTopic
	}
	c.MQTT.Username = strings.TrimSpace(c.MQTT.Username)
	if c.MQTT.Password == "" {
		if value, ok := os.LookupEnv("BARSCAN_MQTT_PASSWORD"); ok {
			c.MQTT.Password = value
		}
	}
	if c.MQTT.ConnectTimeoutSeconds <= 0 {
		c.MQTT.ConnectTimeoutSeconds = defaultMQTTTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "console", "json":
	default:
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

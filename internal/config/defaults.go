package config

const (
	defaultConfigPath     = "~/.config/barscan/config.toml"
	defaultLogDir         = "~/.local/state/barscan"
	defaultFacing         = "environment"
	defaultIdealWidth     = 1280
	defaultIdealHeight    = 720
	defaultMinWidth       = 640
	defaultMinHeight      = 480
	defaultFFmpegBinary   = "ffmpeg"
	defaultV4L2CtlBinary  = "v4l2-ctl"
	defaultReadyTimeoutMS = 3000
	defaultProbeTimeoutMS = 1500
	defaultCooldownMS     = 1500
	defaultFeedbackMS     = 900
	defaultEventBuffer    = 64
	defaultStoreBackend   = "memory"
	defaultMQTTClientID   = "barscan"
	defaultMQTTTopic      = "barscan/scans"
	defaultMQTTQoS        = 1
	defaultMQTTTimeout    = 10
	defaultNotifyTimeout  = 10
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RuntimeDir: defaultRuntimeDir(),
			LogDir:     defaultLogDir,
		},
		Camera: Camera{
			Facing:         defaultFacing,
			IdealWidth:     defaultIdealWidth,
			IdealHeight:    defaultIdealHeight,
			MinWidth:       defaultMinWidth,
			MinHeight:      defaultMinHeight,
			FFmpegBinary:   defaultFFmpegBinary,
			V4L2CtlBinary:  defaultV4L2CtlBinary,
			ReadyTimeoutMS: defaultReadyTimeoutMS,
			ProbeTimeoutMS: defaultProbeTimeoutMS,
		},
		Session: Session{
			CooldownMS:  defaultCooldownMS,
			FeedbackMS:  defaultFeedbackMS,
			EventBuffer: defaultEventBuffer,
		},
		Store: Store{
			Backend: defaultStoreBackend,
		},
		MQTT: MQTT{
			ClientID:              defaultMQTTClientID,
			Topic:                 defaultMQTTTopic,
			QoS:                   defaultMQTTQoS,
			ConnectTimeoutSeconds: defaultMQTTTimeout,
		},
		Notify: Notify{
			RequestTimeoutSeconds: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

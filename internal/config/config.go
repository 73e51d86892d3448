package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"barscan/internal/fileutil"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	RuntimeDir string `toml:"runtime_dir"`
	LogDir     string `toml:"log_dir"`
}

// Camera contains capture device preferences.
type Camera struct {
	// Device pins a device id (e.g. /dev/video2). Empty uses the discovery heuristic.
	Device         string `toml:"device"`
	Facing         string `toml:"facing"`
	IdealWidth     int    `toml:"ideal_width"`
	IdealHeight    int    `toml:"ideal_height"`
	MinWidth       int    `toml:"min_width"`
	MinHeight      int    `toml:"min_height"`
	FFmpegBinary   string `toml:"ffmpeg_binary"`
	V4L2CtlBinary  string `toml:"v4l2ctl_binary"`
	ReadyTimeoutMS int    `toml:"ready_timeout_ms"`
	ProbeTimeoutMS int    `toml:"probe_timeout_ms"`
}

// Session contains duplicate suppression and feedback timing.
type Session struct {
	CooldownMS  int `toml:"cooldown_ms"`
	FeedbackMS  int `toml:"feedback_ms"`
	EventBuffer int `toml:"event_buffer"`
}

// Store selects the scan record backend.
type Store struct {
	Backend string `toml:"backend"`
}

// API contains the control API listener configuration.
type API struct {
	Bind string `toml:"bind"`
	// Token, when set, is required as a bearer token on every request.
	Token string `toml:"token"`
}

// MQTT contains configuration for forwarding accepted scans to a broker.
type MQTT struct {
	Enabled               bool   `toml:"enabled"`
	Broker                string `toml:"broker"`
	ClientID              string `toml:"client_id"`
	Topic                 string `toml:"topic"`
	QoS                   int    `toml:"qos"`
	Username              string `toml:"username"`
	Password              string `toml:"password"`
	ConnectTimeoutSeconds int    `toml:"connect_timeout_seconds"`
}

// Notify contains ntfy push notification settings.
type Notify struct {
	// NtfyTopic is the full topic URL, e.g. https://ntfy.sh/my-scanner. Empty disables notifications.
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	// Scans also pushes every accepted scan, not only camera errors.
	Scans bool `toml:"scans"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for barscan.
//
// Configuration sections by subsystem:
//   - Paths: lock and log directories
//   - Camera: device override, facing hint, resolution and helper binaries
//   - Session: cooldown and feedback timing
//   - Store: in-memory record backend selection
//   - API: optional HTTP control surface
//   - MQTT: optional forwarding of accepted scans
//   - Notify: optional ntfy push notifications
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Camera  Camera  `toml:"camera"`
	Session Session `toml:"session"`
	Store   Store   `toml:"store"`
	API     API     `toml:"api"`
	MQTT    MQTT    `toml:"mqtt"`
	Notify  Notify  `toml:"notify"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("barscan.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the runtime and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.RuntimeDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ReadyTimeout bounds the wait for the first camera frame.
func (c *Config) ReadyTimeout() time.Duration {
	return time.Duration(c.Camera.ReadyTimeoutMS) * time.Millisecond
}

// ProbeTimeout bounds how long a stream start is observed for early failure.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Camera.ProbeTimeoutMS) * time.Millisecond
}

// Cooldown is the minimum gap before a repeated value earns "already scanned" feedback.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Session.CooldownMS) * time.Millisecond
}

// Feedback is how long transient status text stays up before reverting.
func (c *Config) Feedback() time.Duration {
	return time.Duration(c.Session.FeedbackMS) * time.Millisecond
}

// MQTTConnectTimeout bounds the initial broker connection.
func (c *Config) MQTTConnectTimeout() time.Duration {
	return time.Duration(c.MQTT.ConnectTimeoutSeconds) * time.Second
}

// NotifyTimeout bounds a single ntfy request.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notify.RequestTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultRuntimeDir() string {
	if base, ok := os.LookupEnv("XDG_RUNTIME_DIR"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "barscan")
	}
	return filepath.Join(os.TempDir(), "barscan")
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if err := fileutil.WriteFileAtomic(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Sample returns the embedded sample configuration text.
func Sample() string {
	return sampleConfig
}

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"barscan/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("XDG_RUNTIME_DIR", filepath.Join(tempHome, "run"))
	t.Chdir(tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	if want := filepath.Join(tempHome, ".local", "state", "barscan"); cfg.Paths.LogDir != want {
		t.Fatalf("unexpected log dir: got %q want %q", cfg.Paths.LogDir, want)
	}
	if want := filepath.Join(tempHome, "run", "barscan"); cfg.Paths.RuntimeDir != want {
		t.Fatalf("unexpected runtime dir: got %q want %q", cfg.Paths.RuntimeDir, want)
	}
	if cfg.Cooldown().Milliseconds() != 1500 {
		t.Fatalf("expected 1500ms cooldown, got %s", cfg.Cooldown())
	}
	if cfg.Feedback().Milliseconds() != 900 {
		t.Fatalf("expected 900ms feedback, got %s", cfg.Feedback())
	}
	if cfg.ReadyTimeout().Milliseconds() != 3000 {
		t.Fatalf("expected 3s ready timeout, got %s", cfg.ReadyTimeout())
	}
	if cfg.Store.Backend != "memory" {
		t.Fatalf("expected memory backend, got %q", cfg.Store.Backend)
	}
	if cfg.MQTT.Enabled {
		t.Fatal("expected MQTT disabled by default")
	}
	if cfg.API.Bind != "" {
		t.Fatalf("expected API disabled by default, got %q", cfg.API.Bind)
	}
}

func TestLoadCustomPathAndNormalization(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(tempHome, "config.toml")
	content := `
[paths]
log_dir = "~/logs"

[camera]
device = " /dev/video2 "
facing = " USER "

[session]
cooldown_ms = 2000
feedback_ms = 0

[store]
backend = "SQLite"

[mqtt]
topic = "/scans/dock-1/"

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Paths.LogDir != filepath.Join(tempHome, "logs") {
		t.Fatalf("unexpected log dir: %q", cfg.Paths.LogDir)
	}
	if cfg.Camera.Device != "/dev/video2" {
		t.Fatalf("expected trimmed device, got %q", cfg.Camera.Device)
	}
	if cfg.Camera.Facing != "user" {
		t.Fatalf("expected lowercased facing, got %q", cfg.Camera.Facing)
	}
	if cfg.Session.CooldownMS != 2000 || cfg.Session.FeedbackMS != 900 {
		t.Fatalf("unexpected session timing: %+v", cfg.Session)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Fatalf("expected sqlite backend, got %q", cfg.Store.Backend)
	}
	if cfg.MQTT.Topic != "scans/dock-1" {
		t.Fatalf("expected trimmed topic, got %q", cfg.MQTT.Topic)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(configPath, []byte("[camera]\nzoom = 3\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to fail parsing")
	}
}

func TestMQTTPasswordFromEnv(t *testing.T) {
	t.Setenv("BARSCAN_MQTT_PASSWORD", "s3cret")
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	content := "[mqtt]\nenabled = true\nbroker = \"tcp://127.0.0.1:1883\"\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.MQTT.Password != "s3cret" {
		t.Fatalf("expected password from env, got %q", cfg.MQTT.Password)
	}
}

func TestAPITokenFromEnv(t *testing.T) {
	t.Setenv("BARSCAN_API_TOKEN", " abc123 ")
	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.API.Token != "abc123" {
		t.Fatalf("expected token from env, got %q", cfg.API.Token)
	}
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "unknown facing",
			mutate:  func(c *config.Config) { c.Camera.Facing = "sideways" },
			wantErr: "camera.facing",
		},
		{
			name:    "device outside dev",
			mutate:  func(c *config.Config) { c.Camera.Device = "video0" },
			wantErr: "camera.device",
		},
		{
			name: "min above ideal",
			mutate: func(c *config.Config) {
				c.Camera.MinWidth = 4000
			},
			wantErr: "min_width",
		},
		{
			name: "feedback longer than cooldown",
			mutate: func(c *config.Config) {
				c.Session.FeedbackMS = 5000
			},
			wantErr: "session.feedback_ms",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *config.Config) { c.Store.Backend = "redis" },
			wantErr: "store.backend",
		},
		{
			name:    "mqtt without broker",
			mutate:  func(c *config.Config) { c.MQTT.Enabled = true },
			wantErr: "mqtt.broker",
		},
		{
			name: "mqtt wildcard topic",
			mutate: func(c *config.Config) {
				c.MQTT.Enabled = true
				c.MQTT.Broker = "tcp://localhost:1883"
				c.MQTT.Topic = "scans/#"
			},
			wantErr: "mqtt.topic",
		},
		{
			name:    "ntfy topic without scheme",
			mutate:  func(c *config.Config) { c.Notify.NtfyTopic = "ntfy.sh/scans" },
			wantErr: "notify.ntfy_topic",
		},
		{
			name: "mqtt qos out of range",
			mutate: func(c *config.Config) {
				c.MQTT.Enabled = true
				c.MQTT.Broker = "tcp://localhost:1883"
				c.MQTT.QoS = 3
			},
			wantErr: "mqtt.qos",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestCreateSampleMatchesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}

	var parsed config.Config
	if err := toml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	def := config.Default()
	if parsed.Session != def.Session {
		t.Fatalf("sample session section drifted from defaults: %+v vs %+v", parsed.Session, def.Session)
	}
	if parsed.Camera.ReadyTimeoutMS != def.Camera.ReadyTimeoutMS {
		t.Fatalf("sample ready timeout drifted: %d", parsed.Camera.ReadyTimeoutMS)
	}
	if parsed.Notify != def.Notify {
		t.Fatalf("sample notify section drifted from defaults: %+v vs %+v", parsed.Notify, def.Notify)
	}
	if parsed.Store.Backend != def.Store.Backend {
		t.Fatalf("sample store backend drifted: %q", parsed.Store.Backend)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.RuntimeDir = filepath.Join(base, "run")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.RuntimeDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}

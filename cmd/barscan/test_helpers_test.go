package main

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"barscan/internal/app"
	"barscan/internal/config"
	"barscan/internal/decode"
	"barscan/internal/testsupport"
)

type fixedDecoder struct{ text string }

func (d fixedDecoder) Decode(image.Image) (decode.Symbol, error) {
	return decode.Symbol{Text: d.text, Format: "QR_CODE"}, nil
}

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
	provider   *testsupport.FakeProvider
	labels     []string
}

func setupCLITestEnv(t *testing.T, labels ...string) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	base := testsupport.BaseDir(cfg)
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	configPath := filepath.Join(homeDir, ".config", "barscan", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		baseDir:    base,
		provider:   &testsupport.FakeProvider{},
		labels:     labels,
	}
}

func (e *cliTestEnv) configure(opts *app.Options) {
	opts.Permission = &testsupport.FakePermission{}
	opts.Enumerator = testsupport.NewFakeEnumerator(e.labels...)
	opts.Provider = e.provider
	opts.Decoder = fixedDecoder{text: "PKG-001"}
}

func runCLI(t *testing.T, env *cliTestEnv, args []string, stdin string) (string, error) {
	t.Helper()
	cmd := newRootCommandWith(env.configure)
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nruntime_dir = %q\nlog_dir = %q\n\n[camera]\nready_timeout_ms = %d\n\n[api]\nbind = %q\n\n[logging]\nlevel = \"error\"\n",
		cfg.Paths.RuntimeDir,
		cfg.Paths.LogDir,
		cfg.Camera.ReadyTimeoutMS,
		cfg.API.Bind,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// syncBuffer is a bytes.Buffer safe for a command writing while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

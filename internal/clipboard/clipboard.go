package clipboard

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"barscan/internal/logging"
)

const copyTimeout = 3 * time.Second

// ErrUnavailable means neither a clipboard tool nor the terminal fallback
// could take the text.
var ErrUnavailable = errors.New("clipboard unavailable")

// Method names how text reached the clipboard.
type Method string

const (
	MethodWlCopy Method = "wl-copy"
	MethodXclip  Method = "xclip"
	MethodXsel   Method = "xsel"
	MethodOSC52  Method = "osc52"
)

type tool struct {
	method Method
	args   []string
	// env must be set for the tool to be worth trying.
	env string
}

var tools = []tool{
	{method: MethodWlCopy, env: "WAYLAND_DISPLAY"},
	{method: MethodXclip, args: []string{"-selection", "clipboard"}, env: "DISPLAY"},
	{method: MethodXsel, args: []string{"--clipboard", "--input"}, env: "DISPLAY"},
}

type commandRunner interface {
	Run(ctx context.Context, stdin io.Reader, name string, args ...string) error
}

type execCommandRunner struct{}

func (execCommandRunner) Run(ctx context.Context, stdin io.Reader, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	cmd.Stdin = stdin
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

// Copier places text on the system clipboard.
type Copier struct {
	runner     commandRunner
	lookPath   func(string) (string, error)
	getenv     func(string) string
	terminal   io.Writer
	isTerminal func() bool
	logger     *slog.Logger
}

// New returns a copier that tries native clipboard tools and then an OSC 52
// escape written to terminal. A nil terminal disables the fallback.
func New(terminal *os.File, logger *slog.Logger) *Copier {
	c := &Copier{
		runner:   execCommandRunner{},
		lookPath: exec.LookPath,
		getenv:   os.Getenv,
		logger:   logging.NewComponentLogger(logger, "clipboard"),
	}
	if terminal != nil {
		c.terminal = terminal
		c.isTerminal = func() bool {
			fd := terminal.Fd()
			return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
		}
	}
	return c
}

// Copy places text on the clipboard and reports which method succeeded.
func (c *Copier) Copy(ctx context.Context, text string) (Method, error) {
	var failures []string
	for _, t := range tools {
		if c.getenv(t.env) == "" {
			continue
		}
		path, err := c.lookPath(string(t.method))
		if err != nil {
			continue
		}
		runCtx, cancel := context.WithTimeout(ctx, copyTimeout)
		err = c.runner.Run(runCtx, strings.NewReader(text), path, t.args...)
		cancel()
		if err == nil {
			c.logger.Debug("copied to clipboard", logging.String("method", string(t.method)), logging.Int("bytes", len(text)))
			return t.method, nil
		}
		failures = append(failures, fmt.Sprintf("%s: %v", t.method, err))
		c.logger.Debug("clipboard tool failed", logging.String("method", string(t.method)), logging.Error(err))
	}

	if c.terminal != nil && c.isTerminal != nil && c.isTerminal() {
		_, err := io.WriteString(c.terminal, osc52(text))
		if err == nil {
			return MethodOSC52, nil
		}
		failures = append(failures, fmt.Sprintf("%s: %v", MethodOSC52, err))
	}

	if len(failures) == 0 {
		return "", fmt.Errorf("%w: no clipboard tool or terminal available", ErrUnavailable)
	}
	return "", fmt.Errorf("%w: %s", ErrUnavailable, strings.Join(failures, "; "))
}

// osc52 wraps text in the terminal clipboard escape sequence.
func osc52(text string) string {
	return "\x1b]52;c;" + base64.StdEncoding.EncodeToString([]byte(text)) + "\a"
}

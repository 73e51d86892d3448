package v4l2

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"barscan/internal/camera"
)

const controlTimeout = 2 * time.Second

// Continuous autofocus control names across kernel versions.
var autofocusControls = []string{"focus_automatic_continuous", "focus_auto"}

var errFocusUnsupported = errors.New("continuous autofocus not supported")

// track is the single video track of an ffmpeg stream. Controls are driven
// through v4l2-ctl since ffmpeg holds the capture node.
type track struct {
	stream *ffmpegStream
	device string
	ctl    string
	runner commandRunner

	mu           sync.Mutex
	probed       bool
	caps         camera.Capabilities
	capsOK       bool
	focusControl string
}

func (t *track) ID() string { return t.device + "#video" }

func (t *track) Capabilities() (camera.Capabilities, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.probed {
		return t.caps, t.capsOK
	}
	t.probed = true

	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()
	out, err := t.runner.Output(ctx, t.ctl, "-d", t.device, "--list-ctrls")
	if err != nil {
		return camera.Capabilities{}, false
	}
	t.caps, t.focusControl = parseControls(out)
	t.capsOK = true
	return t.caps, true
}

func (t *track) ApplyConstraints(ctx context.Context, c camera.Constraints) error {
	if c.FocusMode != camera.FocusContinuous {
		return nil
	}
	if caps, ok := t.Capabilities(); !ok || !caps.Supports(camera.FocusContinuous) {
		return errFocusUnsupported
	}
	t.mu.Lock()
	control := t.focusControl
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, controlTimeout)
	defer cancel()
	if _, err := t.runner.Output(ctx, t.ctl, "-d", t.device, "--set-ctrl="+control+"=1"); err != nil {
		return fmt.Errorf("set %s: %w", control, err)
	}
	return nil
}

func (t *track) Stop() {
	t.stream.Stop()
}

// parseControls reads `v4l2-ctl --list-ctrls` output and reports the focus
// modes it implies along with the control that enables continuous focus.
func parseControls(out []byte) (camera.Capabilities, string) {
	var (
		caps    camera.Capabilities
		control string
	)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		name := fields[0]
		switch {
		case control == "" && slices.Contains(autofocusControls, name):
			control = name
			caps.FocusModes = append(caps.FocusModes, camera.FocusContinuous)
		case name == "focus_absolute":
			caps.FocusModes = append(caps.FocusModes, camera.FocusManual)
		}
	}
	return caps, control
}

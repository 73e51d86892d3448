package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"barscan/internal/deps"
	"barscan/internal/records"
	"barscan/internal/session"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Session", statusError, "Camera failed", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Session:", "[ERROR] Camera failed")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Scanned", statusOK, "ABC", true)
	if !strings.HasPrefix(got, ansiGreen) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected green line, got %q", got)
	}
}

func TestStateKind(t *testing.T) {
	tests := []struct {
		state, status, errMsg string
		want                  statusKind
	}{
		{state: "scanning", status: session.StatusReady, want: statusOK},
		{state: "scanning", status: session.StatusAlreadyScanned, want: statusWarn},
		{state: "idle", status: session.StatusIdle, errMsg: "No cameras found.", want: statusError},
		{state: "failed", want: statusError},
		{state: "starting", status: session.StatusStarting, want: statusInfo},
	}
	for _, tt := range tests {
		if got := stateKind(tt.state, tt.status, tt.errMsg); got != tt.want {
			t.Fatalf("stateKind(%q, %q, %q) = %v, want %v", tt.state, tt.status, tt.errMsg, got, tt.want)
		}
	}
}

func TestScanConsoleRenderDeduplicatesState(t *testing.T) {
	c := newScanConsole(io.Discard, false)
	steps := []struct {
		update session.Update
		shown  bool
	}{
		{session.Update{Kind: session.UpdateState, State: "scanning", Status: session.StatusReady}, true},
		{session.Update{Kind: session.UpdateState, State: "scanning", Status: session.StatusDetected}, false},
		{session.Update{Kind: session.UpdateRecord, Record: &records.Record{Text: "A", Format: "EAN_13"}}, true},
		{session.Update{Kind: session.UpdateState, State: "scanning", Status: session.StatusReady}, false},
		{session.Update{Kind: session.UpdateState, State: "scanning", Status: session.StatusAlreadyScanned}, true},
		{session.Update{Kind: session.UpdateState, State: "stopped", Status: session.StatusStopped}, true},
		{session.Update{Kind: session.UpdateDevices}, false},
	}
	for i, step := range steps {
		line, shown := c.render(step.update)
		if shown != step.shown {
			t.Fatalf("step %d: shown = %v (%q), want %v", i, shown, line, step.shown)
		}
	}
}

func TestDependencyLines(t *testing.T) {
	statuses := []deps.Status{
		{Requirement: deps.Requirement{Name: "FFmpeg", Command: "ffmpeg"}, Detail: `binary "ffmpeg" not found`},
		{Requirement: deps.Requirement{Name: "v4l2-ctl", Command: "v4l2-ctl"}, Available: true},
		{Requirement: deps.Requirement{Name: "xclip", Optional: true, Description: "Clipboard export on X11"}, Detail: "not installed"},
	}
	lines := dependencyLines(statuses, false)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	requireContains(t, lines[0], "[ERROR] binary \"ffmpeg\" not found")
	requireContains(t, lines[1], "[OK] Ready (command: v4l2-ctl)")
	requireContains(t, lines[2], "[WARN] not installed (optional: Clipboard export on X11)")
}

func TestDepsCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := runCLI(t, env, []string{"deps"}, "")
	if err != nil {
		t.Fatalf("deps: %v", err)
	}
	requireContains(t, out, "FFmpeg:")
	requireContains(t, out, "[OK]")
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}

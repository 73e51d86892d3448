package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"barscan/internal/config"
)

// Requirement defines an external binary barscan shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is a requirement plus the result of looking it up on PATH.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

// Requirements lists the helper binaries for cfg. Capture needs ffmpeg;
// the rest only enable autofocus or clipboard export.
func Requirements(cfg *config.Config) []Requirement {
	ffmpeg, ctl := "ffmpeg", "v4l2-ctl"
	if cfg != nil {
		ffmpeg = cfg.Camera.FFmpegBinary
		ctl = cfg.Camera.V4L2CtlBinary
	}
	return []Requirement{
		{Name: "FFmpeg", Command: ffmpeg, Description: "Captures MJPEG frames from the camera"},
		{Name: "v4l2-ctl", Command: ctl, Description: "Enables continuous autofocus", Optional: true},
		{Name: "wl-copy", Command: "wl-copy", Description: "Clipboard export on Wayland", Optional: true},
		{Name: "xclip", Command: "xclip", Description: "Clipboard export on X11", Optional: true},
	}
}

// CheckBinaries looks up every requirement on PATH.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, len(requirements))
	for i, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		req.Description = strings.TrimSpace(req.Description)
		results[i] = Status{Requirement: req}
		if req.Command == "" {
			results[i].Detail = "command not configured"
			continue
		}
		if _, err := exec.LookPath(req.Command); err != nil {
			results[i].Detail = fmt.Sprintf("binary %q not found", req.Command)
			continue
		}
		results[i].Available = true
	}
	return results
}

// MissingRequired returns the names of unavailable non-optional binaries.
func MissingRequired(statuses []Status) []string {
	var missing []string
	for _, s := range statuses {
		if !s.Optional && !s.Available {
			missing = append(missing, s.Name)
		}
	}
	return missing
}

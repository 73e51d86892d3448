package v4l2

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"barscan/internal/camera"
	"barscan/internal/logging"
)

const (
	defaultProbeTimeout = 1500 * time.Millisecond
	stopTimeout         = 3 * time.Second
	stderrTailBytes     = 2048
)

// Options configures the ffmpeg-backed stream provider.
type Options struct {
	FFmpegBinary  string
	V4L2CtlBinary string
	// ProbeTimeout bounds how long OpenStream watches for an early ffmpeg exit.
	ProbeTimeout time.Duration
	Logger       *slog.Logger
}

// Provider opens live streams by piping ffmpeg's MJPEG output.
type Provider struct {
	ffmpeg       string
	ctl          string
	probeTimeout time.Duration
	runner       commandRunner
	logger       *slog.Logger
}

// NewProvider constructs a stream provider.
func NewProvider(opts Options) *Provider {
	ffmpeg := strings.TrimSpace(opts.FFmpegBinary)
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	ctl := strings.TrimSpace(opts.V4L2CtlBinary)
	if ctl == "" {
		ctl = "v4l2-ctl"
	}
	probe := opts.ProbeTimeout
	if probe <= 0 {
		probe = defaultProbeTimeout
	}
	return &Provider{
		ffmpeg:       ffmpeg,
		ctl:          ctl,
		probeTimeout: probe,
		runner:       execCommandRunner{},
		logger:       logging.NewComponentLogger(opts.Logger, "v4l2-stream"),
	}
}

// OpenStream starts capture. It returns once the first frame arrives or the
// probe window passes without ffmpeg exiting. A first frame smaller than the
// requested lower bound fails the open so callers can retry with fewer
// constraints.
func (p *Provider) OpenStream(ctx context.Context, c camera.Constraints) (camera.Stream, error) {
	if strings.TrimSpace(c.DeviceID) == "" {
		return nil, fmt.Errorf("%w: device id required", camera.ErrStream)
	}

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, p.ffmpeg, ffmpegArgs(c)...) //nolint:gosec
	cmd.WaitDelay = time.Second
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", camera.ErrStream, err)
	}
	stderr := &tailBuffer{limit: stderrTailBytes}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: start %s: %w", camera.ErrStream, filepath.Base(p.ffmpeg), err)
	}

	s := &ffmpegStream{
		device: c.DeviceID,
		cancel: cancel,
		first:  make(chan struct{}),
		exited: make(chan struct{}),
		logger: p.logger.With(logging.String(logging.FieldDeviceID, c.DeviceID)),
	}
	s.tracks = []camera.Track{&track{stream: s, device: c.DeviceID, ctl: p.ctl, runner: p.runner}}
	go s.pump(cmd, stdout, stderr)

	timer := time.NewTimer(p.probeTimeout)
	defer timer.Stop()

	select {
	case <-s.first:
		if err := checkMinimum(c, s.firstBounds()); err != nil {
			s.Stop()
			return nil, err
		}
		return s, nil
	case <-s.exited:
		cancel()
		return nil, fmt.Errorf("%w: %s exited: %s", camera.ErrStream, filepath.Base(p.ffmpeg), stderr.Tail())
	case <-timer.C:
		p.logger.Debug("stream open probe elapsed without a frame",
			logging.String(logging.FieldDeviceID, c.DeviceID),
			logging.Duration("probe_timeout", p.probeTimeout),
		)
		return s, nil
	case <-ctx.Done():
		s.Stop()
		return nil, ctx.Err()
	}
}

func ffmpegArgs(c camera.Constraints) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-f", "v4l2"}
	if res := c.Resolution; res.IdealWidth > 0 && res.IdealHeight > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", res.IdealWidth, res.IdealHeight))
	}
	return append(args, "-i", c.DeviceID, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "pipe:1")
}

func checkMinimum(c camera.Constraints, bounds image.Rectangle) error {
	res := c.Resolution
	if res.MinWidth <= 0 && res.MinHeight <= 0 {
		return nil
	}
	if bounds.Dx() < res.MinWidth || bounds.Dy() < res.MinHeight {
		return fmt.Errorf("%w: frame %dx%d below minimum %dx%d",
			camera.ErrStream, bounds.Dx(), bounds.Dy(), res.MinWidth, res.MinHeight)
	}
	return nil
}

type ffmpegStream struct {
	device string
	cancel context.CancelFunc
	tracks []camera.Track
	logger *slog.Logger

	first     chan struct{}
	firstOnce sync.Once
	exited    chan struct{}
	stopOnce  sync.Once
	stopping  atomic.Bool

	mu      sync.Mutex
	sink    camera.FrameSink
	pending image.Image
	bounds  image.Rectangle
	exitErr error
}

func (s *ffmpegStream) Tracks() []camera.Track { return s.tracks }

// Attach routes frames to sink. The most recent frame decoded before
// attachment is delivered immediately.
func (s *ffmpegStream) Attach(sink camera.FrameSink) {
	s.mu.Lock()
	s.sink = sink
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	if sink != nil && pending != nil {
		sink.Publish(pending)
	}
}

func (s *ffmpegStream) Stop() {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		s.cancel()
		select {
		case <-s.exited:
		case <-time.After(stopTimeout):
			s.logger.Warn("ffmpeg did not exit after stop",
				logging.String(logging.FieldEventType, "stream_stop_timeout"),
				logging.String(logging.FieldErrorHint, "check for a stuck ffmpeg process holding the device"),
			)
		}
	})
}

func (s *ffmpegStream) Done() <-chan struct{} { return s.exited }

func (s *ffmpegStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitErr
}

func (s *ffmpegStream) firstBounds() image.Rectangle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bounds
}

func (s *ffmpegStream) pump(cmd *exec.Cmd, stdout io.Reader, stderr *tailBuffer) {
	defer close(s.exited)

	var badFrames int
	err := readFrames(stdout, func(frame []byte) {
		img, err := jpeg.Decode(bytes.NewReader(frame))
		if err != nil {
			badFrames++
			return
		}
		s.mu.Lock()
		if s.bounds.Empty() {
			s.bounds = img.Bounds()
		}
		sink := s.sink
		if sink == nil {
			s.pending = img
		}
		s.mu.Unlock()
		s.firstOnce.Do(func() { close(s.first) })
		if sink != nil {
			sink.Publish(img)
		}
	})
	if err != nil {
		s.logger.Debug("ffmpeg output read ended", logging.Error(err))
	}
	if badFrames > 0 {
		s.logger.Debug("discarded undecodable frames", logging.Int("count", badFrames))
	}
	waitErr := cmd.Wait()
	if !s.stopping.Load() {
		s.mu.Lock()
		s.exitErr = fmt.Errorf("%w: capture process exited: %s", camera.ErrStream, stderr.Tail())
		s.mu.Unlock()
		s.logger.Warn("capture process exited unexpectedly",
			logging.Error(waitErr),
			logging.String(logging.FieldEventType, "stream_process_exited"),
			logging.String(logging.FieldErrorHint, "camera may have been unplugged or claimed by another process"),
			logging.String(logging.FieldImpact, "scanning stops"),
		)
	}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) Tail() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	tail := strings.TrimSpace(string(t.buf))
	if tail == "" {
		return "no diagnostic output"
	}
	if idx := strings.LastIndexByte(tail, '\n'); idx >= 0 {
		return strings.TrimSpace(tail[idx+1:])
	}
	return tail
}

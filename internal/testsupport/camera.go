package testsupport

import (
	"context"
	"errors"
	"image"
	"strconv"
	"sync"

	"barscan/internal/camera"
)

// FrameImage returns a small blank frame for fakes to publish.
func FrameImage() image.Image {
	return image.NewGray(image.Rect(0, 0, 8, 8))
}

// FakeTrack records stop and constraint calls.
type FakeTrack struct {
	mu       sync.Mutex
	id       string
	caps     camera.Capabilities
	hasCaps  bool
	applyErr error
	applied  []camera.Constraints
	stopped  int
}

func (t *FakeTrack) ID() string { return t.id }

func (t *FakeTrack) Capabilities() (camera.Capabilities, bool) {
	return t.caps, t.hasCaps
}

func (t *FakeTrack) ApplyConstraints(_ context.Context, c camera.Constraints) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.applied = append(t.applied, c)
	return t.applyErr
}

func (t *FakeTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped++
}

// Applied returns the constraints passed to ApplyConstraints.
func (t *FakeTrack) Applied() []camera.Constraints {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]camera.Constraints(nil), t.applied...)
}

// Stopped reports whether Stop was called.
func (t *FakeTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped > 0
}

// FakeStream is a camera.Stream whose frames are pushed by the test.
type FakeStream struct {
	mu          sync.Mutex
	constraints camera.Constraints
	track       *FakeTrack
	sink        camera.FrameSink
	autoFrame   bool
	stopped     int
	done        chan struct{}
	ended       bool
	err         error
}

func newFakeStream(c camera.Constraints, track *FakeTrack, autoFrame bool) *FakeStream {
	return &FakeStream{constraints: c, track: track, autoFrame: autoFrame, done: make(chan struct{})}
}

func (s *FakeStream) Tracks() []camera.Track { return []camera.Track{s.track} }

func (s *FakeStream) Attach(sink camera.FrameSink) {
	s.mu.Lock()
	s.sink = sink
	auto := s.autoFrame
	s.mu.Unlock()
	if auto && sink != nil {
		sink.Publish(FrameImage())
	}
}

func (s *FakeStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped++
	s.endLocked()
}

func (s *FakeStream) Done() <-chan struct{} { return s.done }

func (s *FakeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Fail ends capture on its own with err, as an unplugged camera would.
func (s *FakeStream) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.err = err
	s.endLocked()
}

func (s *FakeStream) endLocked() {
	if !s.ended {
		s.ended = true
		close(s.done)
	}
}

// Publish pushes img to the attached sink. It reports false when the stream
// is stopped or unattached.
func (s *FakeStream) Publish(img image.Image) bool {
	s.mu.Lock()
	sink := s.sink
	stopped := s.stopped > 0
	s.mu.Unlock()
	if sink == nil || stopped {
		return false
	}
	sink.Publish(img)
	return true
}

// Constraints returns the constraints the stream was opened with.
func (s *FakeStream) Constraints() camera.Constraints { return s.constraints }

// Track returns the stream's only track.
func (s *FakeStream) Track() *FakeTrack { return s.track }

// Stopped reports whether Stop was called.
func (s *FakeStream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped > 0
}

// StopCount returns how many times Stop was called.
func (s *FakeStream) StopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// ErrFakeOpen is the default failure returned by FakeProvider.
var ErrFakeOpen = errors.New("fake: device busy")

// FakeProvider is a scriptable camera.StreamProvider.
type FakeProvider struct {
	mu sync.Mutex
	// FullErr and MinimalErr fail opens with and without resolution constraints.
	FullErr    error
	MinimalErr error
	// NoFrames keeps streams silent so readiness times out.
	NoFrames bool
	// Autofocus advertises continuous focus on every track; FocusErr fails applying it.
	Autofocus bool
	FocusErr  error
	// Gate, when set, blocks OpenStream until closed or ctx is done.
	Gate chan struct{}
	// Entered receives one value each time OpenStream is called.
	Entered chan struct{}

	calls   []camera.Constraints
	streams []*FakeStream
}

func (p *FakeProvider) OpenStream(ctx context.Context, c camera.Constraints) (camera.Stream, error) {
	p.mu.Lock()
	p.calls = append(p.calls, c)
	gate := p.Gate
	entered := p.Entered
	p.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c.Minimal() && p.MinimalErr != nil {
		return nil, p.MinimalErr
	}
	if !c.Minimal() && p.FullErr != nil {
		return nil, p.FullErr
	}
	track := &FakeTrack{id: c.DeviceID + "#video", applyErr: p.FocusErr}
	if p.Autofocus {
		track.caps = camera.Capabilities{FocusModes: []camera.FocusMode{camera.FocusContinuous}}
		track.hasCaps = true
	}
	stream := newFakeStream(c, track, !p.NoFrames)
	p.streams = append(p.streams, stream)
	return stream, nil
}

// Calls returns every constraint set passed to OpenStream.
func (p *FakeProvider) Calls() []camera.Constraints {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]camera.Constraints(nil), p.calls...)
}

// Streams returns every stream opened so far.
func (p *FakeProvider) Streams() []*FakeStream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*FakeStream(nil), p.streams...)
}

// LiveStreams counts opened streams not yet stopped.
func (p *FakeProvider) LiveStreams() int {
	live := 0
	for _, s := range p.Streams() {
		if !s.Stopped() {
			live++
		}
	}
	return live
}

// Latest returns the most recently opened stream, or nil.
func (p *FakeProvider) Latest() *FakeStream {
	streams := p.Streams()
	if len(streams) == 0 {
		return nil
	}
	return streams[len(streams)-1]
}

// FakePermission grants or denies access.
type FakePermission struct {
	mu     sync.Mutex
	Err    error
	probes int
}

func (p *FakePermission) RequestPermission(_ context.Context, c camera.Constraints) (camera.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	p.probes++
	return newFakeStream(c, &FakeTrack{id: "probe"}, false), nil
}

// SetErr changes the permission outcome.
func (p *FakePermission) SetErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Err = err
}

// FakeEnumerator returns a fixed, replaceable device list.
type FakeEnumerator struct {
	mu      sync.Mutex
	devices []camera.RawDevice
	calls   int
}

// NewFakeEnumerator returns an enumerator reporting one video input per label.
func NewFakeEnumerator(labels ...string) *FakeEnumerator {
	e := &FakeEnumerator{}
	e.SetLabels(labels...)
	return e
}

// SetLabels replaces the device list; ids are /dev/video0, /dev/video1, ...
func (e *FakeEnumerator) SetLabels(labels ...string) {
	devices := make([]camera.RawDevice, 0, len(labels))
	for i, label := range labels {
		devices = append(devices, camera.RawDevice{
			ID:    "/dev/video" + strconv.Itoa(i),
			Label: label,
			Kind:  camera.KindVideoInput,
		})
	}
	e.mu.Lock()
	e.devices = devices
	e.mu.Unlock()
}

func (e *FakeEnumerator) EnumerateVideoInputs(context.Context) ([]camera.RawDevice, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return append([]camera.RawDevice(nil), e.devices...), nil
}

// Calls returns how many enumerations ran.
func (e *FakeEnumerator) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

package camera

import (
	"context"
	"image"
	"sync"
	"time"
)

// Frame is one published image with its sequence number.
type Frame struct {
	Seq   uint64
	Image image.Image
	At    time.Time
}

// Surface holds the latest frame of a live stream. Readers never see a frame
// twice when they pass back the sequence they last consumed.
type Surface struct {
	mu      sync.Mutex
	latest  Frame
	seq     uint64
	changed chan struct{}
	ready   chan struct{}
	closed  bool
	now     func() time.Time
}

// NewSurface returns an empty, open surface.
func NewSurface() *Surface {
	return &Surface{
		changed: make(chan struct{}),
		ready:   make(chan struct{}),
		now:     time.Now,
	}
}

// Publish stores img as the latest frame. Publishing to a closed surface is ignored.
func (s *Surface) Publish(img image.Image) {
	if s == nil || img == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.seq++
	s.latest = Frame{Seq: s.seq, Image: img, At: s.now()}
	if s.seq == 1 {
		close(s.ready)
	}
	close(s.changed)
	s.changed = make(chan struct{})
}

// Ready is closed once the first frame arrives.
func (s *Surface) Ready() <-chan struct{} {
	return s.ready
}

// Latest returns the most recent frame, if any.
func (s *Surface) Latest() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.latest.Seq > 0
}

// Next blocks until a frame newer than after is available.
func (s *Surface) Next(ctx context.Context, after uint64) (Frame, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return Frame{}, ErrSurfaceClosed
		}
		if s.latest.Seq > after {
			frame := s.latest
			s.mu.Unlock()
			return frame, nil
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-changed:
		}
	}
}

// Close wakes all readers; subsequent reads fail with ErrSurfaceClosed.
func (s *Surface) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.latest = Frame{}
	close(s.changed)
}

// Closed reports whether Close was called.
func (s *Surface) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

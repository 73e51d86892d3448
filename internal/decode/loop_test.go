package decode_test

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"barscan/internal/camera"
	"barscan/internal/decode"
	"barscan/internal/testsupport"
)

// scriptDecoder returns results in order, then repeats the last one.
type scriptDecoder struct {
	mu      sync.Mutex
	results []result
	calls   atomic.Int64
}

type result struct {
	sym decode.Symbol
	err error
}

func (d *scriptDecoder) Decode(image.Image) (decode.Symbol, error) {
	d.calls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.results) == 0 {
		return decode.Symbol{}, decode.ErrNotFound
	}
	r := d.results[0]
	if len(d.results) > 1 {
		d.results = d.results[1:]
	}
	return r.sym, r.err
}

type eventLog struct {
	mu     sync.Mutex
	events []decode.Event
	signal chan struct{}
}

func newEventLog() *eventLog {
	return &eventLog{signal: make(chan struct{}, 256)}
}

func (l *eventLog) handle(ev decode.Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (l *eventLog) snapshot() []decode.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]decode.Event(nil), l.events...)
}

func (l *eventLog) waitFor(t *testing.T, n int) []decode.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if events := l.snapshot(); len(events) >= n {
			return events
		}
		select {
		case <-l.signal:
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, have %d", n, len(l.snapshot()))
		}
	}
}

func publishN(s *camera.Surface, n int) {
	for i := 0; i < n; i++ {
		s.Publish(testsupport.FrameImage())
		time.Sleep(2 * time.Millisecond)
	}
}

// publishUntil keeps publishing frames until n events have been handled.
func publishUntil(t *testing.T, s *camera.Surface, log *eventLog, n int) []decode.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if events := log.snapshot(); len(events) >= n {
			return events
		}
		s.Publish(testsupport.FrameImage())
		time.Sleep(2 * time.Millisecond)
	}
	return log.waitFor(t, n)
}

func TestLoopDeliversEventKinds(t *testing.T) {
	dec := &scriptDecoder{results: []result{
		{sym: decode.Symbol{Text: "A1", Format: "QR_CODE"}},
		{err: errors.New("bitmap too small")},
		{err: decode.ErrNotFound},
	}}
	loop := decode.New(decode.Options{Decoder: dec})
	surface := camera.NewSurface()
	log := newEventLog()

	sub, err := loop.Begin(context.Background(), "/dev/video0", surface, log.handle)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer sub.End()

	events := publishUntil(t, surface, log, 3)

	if events[0].Kind != decode.Found || events[0].Text != "A1" || events[0].Format != "QR_CODE" {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	if events[0].DeviceID != "/dev/video0" {
		t.Fatalf("device id = %q", events[0].DeviceID)
	}
	if events[1].Kind != decode.Error || events[1].Err == nil {
		t.Fatalf("expected error event, got %+v", events[1])
	}
	if events[2].Kind != decode.NotFound {
		t.Fatalf("expected not-found after a fault, got %+v", events[2])
	}
}

func TestLoopWaitsForFirstFrame(t *testing.T) {
	dec := &scriptDecoder{}
	loop := decode.New(decode.Options{Decoder: dec})
	surface := camera.NewSurface()

	sub, err := loop.Begin(context.Background(), "/dev/video0", surface, func(decode.Event) {})
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if dec.calls.Load() != 0 {
		t.Fatal("decoder invoked before any frame was available")
	}
	sub.End()
}

func TestEndStopsHandlerInvocations(t *testing.T) {
	dec := &scriptDecoder{results: []result{{sym: decode.Symbol{Text: "same"}}}}
	loop := decode.New(decode.Options{Decoder: dec})
	surface := camera.NewSurface()
	var calls atomic.Int64

	sub, err := loop.Begin(context.Background(), "/dev/video0", surface, func(decode.Event) {
		calls.Add(1)
	})
	if err != nil {
		t.Fatal(err)
	}
	publishN(surface, 5)
	sub.End()
	sub.End()
	after := calls.Load()

	publishN(surface, 5)
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != after {
		t.Fatalf("handler invoked after End: %d -> %d", after, calls.Load())
	}
	loop.End()
	if loop.Active() {
		t.Fatal("loop still active after End")
	}
}

func TestLoopEndWithoutBeginIsNoop(t *testing.T) {
	loop := decode.New(decode.Options{Decoder: &scriptDecoder{}})
	loop.End()
	loop.End()
	if loop.Active() {
		t.Fatal("loop reported active without Begin")
	}
}

func TestBeginEndsPreviousSubscription(t *testing.T) {
	dec := &scriptDecoder{results: []result{{sym: decode.Symbol{Text: "x"}}}}
	loop := decode.New(decode.Options{Decoder: dec})
	first := camera.NewSurface()
	second := camera.NewSurface()
	var firstCalls, secondCalls atomic.Int64

	if _, err := loop.Begin(context.Background(), "/dev/video0", first, func(decode.Event) { firstCalls.Add(1) }); err != nil {
		t.Fatal(err)
	}
	sub, err := loop.Begin(context.Background(), "/dev/video1", second, func(decode.Event) { secondCalls.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	defer loop.End()

	publishN(first, 3)
	publishN(second, 3)
	time.Sleep(20 * time.Millisecond)
	if firstCalls.Load() != 0 {
		t.Fatal("previous subscription still delivering")
	}
	if secondCalls.Load() == 0 {
		t.Fatal("new subscription not delivering")
	}
	if sub.DeviceID() != "/dev/video1" {
		t.Fatalf("device = %q", sub.DeviceID())
	}
}

func TestSlowHandlerDoesNotBlockDecoding(t *testing.T) {
	dec := &scriptDecoder{results: []result{{sym: decode.Symbol{Text: "busy"}}}}
	loop := decode.New(decode.Options{Decoder: dec, Buffer: 1})
	surface := camera.NewSurface()
	release := make(chan struct{})

	sub, err := loop.Begin(context.Background(), "/dev/video0", surface, func(decode.Event) {
		<-release
	})
	if err != nil {
		t.Fatal(err)
	}

	publishN(surface, 20)
	deadline := time.Now().Add(time.Second)
	for dec.calls.Load() < 10 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if dec.calls.Load() < 10 {
		t.Fatalf("decoding stalled behind the handler: %d calls", dec.calls.Load())
	}
	if sub.Dropped() == 0 {
		t.Fatal("expected dropped events while the handler was blocked")
	}
	close(release)
	sub.End()
}

func TestSurfaceCloseEndsDecoding(t *testing.T) {
	loop := decode.New(decode.Options{Decoder: &scriptDecoder{}})
	surface := camera.NewSurface()
	sub, err := loop.Begin(context.Background(), "/dev/video0", surface, func(decode.Event) {})
	if err != nil {
		t.Fatal(err)
	}
	surface.Close()

	done := make(chan struct{})
	go func() {
		sub.End()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("End hung after surface close")
	}
}

func TestBeginValidatesArguments(t *testing.T) {
	loop := decode.New(decode.Options{Decoder: &scriptDecoder{}})
	if _, err := loop.Begin(context.Background(), "d", nil, func(decode.Event) {}); err == nil {
		t.Fatal("expected error for nil surface")
	}
	if _, err := loop.Begin(context.Background(), "d", camera.NewSurface(), nil); err == nil {
		t.Fatal("expected error for nil handler")
	}
	if _, err := decode.New(decode.Options{}).Begin(context.Background(), "d", camera.NewSurface(), func(decode.Event) {}); err == nil {
		t.Fatal("expected error without decoder")
	}
}

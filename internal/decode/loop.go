package decode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"barscan/internal/camera"
	"barscan/internal/logging"
	"barscan/internal/metrics"
)

const (
	defaultBuffer    = 64
	faultLogInterval = time.Second
)

// Kind classifies a decode event.
type Kind int

const (
	// Found carries a decoded symbol.
	Found Kind = iota + 1
	// NotFound means the frame held no symbol.
	NotFound
	// Error is a decoder fault other than not-found.
	Error
)

func (k Kind) String() string {
	switch k {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one per-frame decode outcome.
type Event struct {
	Kind     Kind
	Text     string
	Format   string
	Err      error
	DeviceID string
	At       time.Time
}

// Handler receives decode events on the dispatcher goroutine. It must not
// call End on its own subscription.
type Handler func(Event)

// Options configures a Loop.
type Options struct {
	Decoder Decoder
	// Buffer is the dispatch queue length; full queues drop events.
	Buffer  int
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// Loop owns at most one active subscription.
type Loop struct {
	decoder Decoder
	buffer  int
	metrics *metrics.Collector
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	active *Subscription
}

// New constructs a decode loop.
func New(opts Options) *Loop {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Loop{
		decoder: opts.Decoder,
		buffer:  buffer,
		metrics: opts.Metrics,
		logger:  logging.NewComponentLogger(opts.Logger, "decode"),
		now:     time.Now,
	}
}

// Subscription is the handle of one Begin call.
type Subscription struct {
	deviceID string
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	endOnce  sync.Once
	dropped  int
	mu       sync.Mutex
}

// End stops decoding and waits for both goroutines. After End returns the
// handler is never invoked again. Safe to call repeatedly.
func (s *Subscription) End() {
	if s == nil {
		return
	}
	s.endOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
}

// DeviceID returns the device the subscription decodes from.
func (s *Subscription) DeviceID() string { return s.deviceID }

// Dropped returns how many Found or Error events were dropped.
func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Begin starts decoding frames from surface, ending any previous subscription.
func (l *Loop) Begin(ctx context.Context, deviceID string, surface *camera.Surface, handler Handler) (*Subscription, error) {
	if l.decoder == nil {
		return nil, errors.New("decode loop has no decoder")
	}
	if surface == nil {
		return nil, errors.New("decode loop requires a surface")
	}
	if handler == nil {
		return nil, errors.New("decode loop requires a handler")
	}
	l.End()

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{deviceID: deviceID, cancel: cancel}
	events := make(chan Event, l.buffer)

	l.mu.Lock()
	l.active = sub
	l.mu.Unlock()

	sub.wg.Add(2)
	go func() {
		defer sub.wg.Done()
		defer close(events)
		l.run(subCtx, sub, surface, events)
	}()
	go func() {
		defer sub.wg.Done()
		dispatch(subCtx, events, handler)
	}()

	l.logger.Debug("decode loop started", logging.String(logging.FieldDeviceID, deviceID))
	return sub, nil
}

// End ends the active subscription. It is a no-op when none is active.
func (l *Loop) End() {
	l.mu.Lock()
	sub := l.active
	l.active = nil
	l.mu.Unlock()
	if sub == nil {
		return
	}
	sub.End()
	l.logger.Debug("decode loop ended",
		logging.String(logging.FieldDeviceID, sub.deviceID),
		logging.Int("dropped_events", sub.Dropped()),
	)
}

// Active reports whether a subscription is running.
func (l *Loop) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active != nil
}

func (l *Loop) run(ctx context.Context, sub *Subscription, surface *camera.Surface, events chan<- Event) {
	var (
		after      uint64
		lastLogged time.Time
		suppressed int
	)
	for {
		frame, err := surface.Next(ctx, after)
		if err != nil {
			return
		}
		after = frame.Seq

		start := l.now()
		sym, err := l.decoder.Decode(frame.Image)
		l.metrics.ObserveDecode(l.now().Sub(start))

		event := Event{DeviceID: sub.deviceID, At: frame.At}
		switch {
		case err == nil:
			event.Kind, event.Text, event.Format = Found, sym.Text, sym.Format
		case errors.Is(err, ErrNotFound):
			event.Kind = NotFound
		default:
			event.Kind, event.Err = Error, err
			l.metrics.DecodeFault()
			if now := l.now(); now.Sub(lastLogged) >= faultLogInterval {
				l.logger.Warn("decoder fault",
					logging.String(logging.FieldDeviceID, sub.deviceID),
					logging.Error(err),
					logging.Int("suppressed", suppressed),
					logging.String(logging.FieldEventType, "decode_fault"),
					logging.String(logging.FieldErrorHint, "faults repeating every frame suggest a corrupt camera feed"),
					logging.String(logging.FieldImpact, "scanning continues"),
				)
				lastLogged, suppressed = now, 0
			} else {
				suppressed++
			}
		}

		select {
		case events <- event:
		default:
			if event.Kind != NotFound {
				sub.mu.Lock()
				sub.dropped++
				sub.mu.Unlock()
				l.metrics.Dropped()
			}
		}
	}
}

func dispatch(ctx context.Context, events <-chan Event, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				return
			}
			handler(event)
		}
	}
}

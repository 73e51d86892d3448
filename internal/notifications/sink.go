package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"barscan/internal/logging"
	"barscan/internal/session"
)

const (
	sinkQueue      = 32
	requestTimeout = 15 * time.Second
	closeTimeout   = 2 * time.Second
)

type notification struct {
	event   Event
	payload Payload
}

// Sink turns session updates into notifications. Camera errors are always
// sent once per distinct message; accepted scans and clears only when scans
// is set. Delivery runs on a worker so the session never waits on HTTP.
type Sink struct {
	service Service
	scans   bool
	logger  *slog.Logger

	mu        sync.Mutex
	lastError string
	closed    bool
	queue     chan notification
	done      chan struct{}
}

// NewSink starts a sink publishing through service.
func NewSink(service Service, scans bool, logger *slog.Logger) *Sink {
	s := &Sink{
		service: service,
		scans:   scans,
		logger:  logging.NewComponentLogger(logger, "notify"),
		queue:   make(chan notification, sinkQueue),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Deliver implements session.UpdateSink.
func (s *Sink) Deliver(u session.Update) {
	n, ok := s.notificationFor(u)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- n:
	default:
		s.logger.Debug("notification dropped; queue full", logging.String("event", string(n.event)))
	}
}

func (s *Sink) notificationFor(u session.Update) (notification, bool) {
	switch u.Kind {
	case session.UpdateState:
		s.mu.Lock()
		defer s.mu.Unlock()
		if u.Error == s.lastError {
			return notification{}, false
		}
		s.lastError = u.Error
		if u.Error == "" {
			return notification{}, false
		}
		return notification{event: EventCameraError, payload: Payload{"error": u.Error}}, true
	case session.UpdateRecord:
		if !s.scans || u.Record == nil {
			return notification{}, false
		}
		return notification{event: EventScanAccepted, payload: Payload{
			"text":   u.Record.Text,
			"format": u.Record.Format,
		}}, true
	case session.UpdateCleared:
		if !s.scans {
			return notification{}, false
		}
		return notification{event: EventScansCleared}, true
	default:
		return notification{}, false
	}
}

func (s *Sink) run() {
	defer close(s.done)
	for n := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		if err := s.service.Publish(ctx, n.event, n.payload); err != nil {
			logging.WarnWithContext(s.logger, "notification failed", "notification_failed",
				logging.String("event", string(n.event)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check notify.ntfy_topic and network access"),
				logging.String(logging.FieldImpact, "scanning is unaffected"),
			)
		}
		cancel()
	}
}

// Close stops accepting updates and waits briefly for queued notifications.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	select {
	case <-s.done:
	case <-time.After(closeTimeout):
		s.logger.Warn("notification queue not drained before shutdown")
	}
	return nil
}

package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"barscan/internal/config"
)

const userAgent = "barscan/0.1"

// Event identifies a notification template.
type Event string

const (
	EventCameraError  Event = "camera_error"
	EventScanAccepted Event = "scan_accepted"
	EventScansCleared Event = "scans_cleared"
	EventTest         Event = "test"
)

// Payload carries template values for an event.
type Payload map[string]any

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notify.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := cfg.NotifyTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	p, ok := render(event, data)
	if !ok {
		return nil
	}
	return n.send(ctx, p)
}

func render(event Event, data Payload) (payload, bool) {
	switch event {
	case EventCameraError:
		message := strings.TrimSpace(stringValue(data, "error"))
		if message == "" {
			message = "camera error"
		}
		if device := stringValue(data, "device"); device != "" {
			message = fmt.Sprintf("%s (%s)", message, device)
		}
		return payload{
			title:    "barscan - Camera Error",
			message:  message,
			tags:     []string{"barscan", "camera", "warning"},
			priority: "high",
		}, true
	case EventScanAccepted:
		text := stringValue(data, "text")
		if format := stringValue(data, "format"); format != "" {
			text = fmt.Sprintf("%s (%s)", text, format)
		}
		return payload{
			title:   "barscan - Scanned",
			message: text,
			tags:    []string{"barscan", "scan"},
		}, true
	case EventScansCleared:
		return payload{
			title:   "barscan - Cleared",
			message: "All scans were cleared",
			tags:    []string{"barscan", "clear"},
		}, true
	case EventTest:
		return payload{
			title:   "barscan - Test",
			message: "Notifications are working",
			tags:    []string{"barscan", "test"},
		}, true
	default:
		return payload{}, false
	}
}

func stringValue(data Payload, key string) string {
	if data == nil {
		return ""
	}
	switch v := data[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

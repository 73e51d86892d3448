package forward

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"barscan/internal/config"
	"barscan/internal/logging"
	"barscan/internal/session"
)

const (
	defaultConnectTimeout = 10 * time.Second
	publishTimeout        = 5 * time.Second
	disconnectQuiesce     = 250 // milliseconds
	queueSize             = 128
	keepAlive             = 60 * time.Second
)

// ErrConnectionFailed reports that the broker could not be reached.
var ErrConnectionFailed = errors.New("mqtt connection failed")

// client is the subset of the paho client the sink drives.
type client interface {
	Publish(topic string, qos byte, retained bool, payload any) pahomqtt.Token
	Disconnect(quiesce uint)
}

// Message is the JSON payload published for record changes.
type Message struct {
	Event     string    `json:"event"`
	ID        string    `json:"id,omitempty"`
	Text      string    `json:"text,omitempty"`
	Format    string    `json:"format,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type outbound struct {
	topic   string
	payload []byte
}

// MQTT forwards record updates to a broker. It is a session.UpdateSink;
// Deliver only enqueues so the session is never blocked by the network.
type MQTT struct {
	client client
	topic  string
	qos    byte
	logger *slog.Logger

	mu      sync.Mutex
	closed  bool
	queue   chan outbound
	done    chan struct{}
	dropped int
}

// Connect dials the configured broker and returns a running sink.
func Connect(cfg config.MQTT, timeout time.Duration, logger *slog.Logger) (*MQTT, error) {
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(timeout)
	opts.SetKeepAlive(keepAlive)

	log := logging.NewComponentLogger(logger, "mqtt")
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warn("mqtt connection lost",
			logging.Error(err),
			logging.String(logging.FieldEventType, "mqtt_connection_lost"),
			logging.String(logging.FieldErrorHint, "broker unreachable; the client reconnects automatically"),
			logging.String(logging.FieldImpact, "scans accepted while offline may not be forwarded"),
		)
	})

	c := pahomqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	log.Info("mqtt forwarding enabled",
		logging.String("broker", cfg.Broker),
		logging.String("topic", cfg.Topic),
	)
	return newMQTT(c, cfg.Topic, byte(cfg.QoS), log), nil
}

func newMQTT(c client, topic string, qos byte, logger *slog.Logger) *MQTT {
	m := &MQTT{
		client: c,
		topic:  topic,
		qos:    qos,
		logger: logger,
		queue:  make(chan outbound, queueSize),
		done:   make(chan struct{}),
	}
	go m.run()
	return m
}

// Deliver enqueues record updates for publishing. Accepted records go to
// the configured topic; removals and clears go to <topic>/<kind>.
func (m *MQTT) Deliver(u session.Update) {
	msg, topic, ok := m.message(u)
	if !ok {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- outbound{topic: topic, payload: payload}:
	default:
		m.dropped++
		m.logger.Warn("mqtt queue full; dropping update",
			logging.Int("dropped", m.dropped),
			logging.String(logging.FieldEventType, "mqtt_queue_full"),
			logging.String(logging.FieldErrorHint, "broker is slow or unreachable"),
		)
	}
}

func (m *MQTT) message(u session.Update) (Message, string, bool) {
	switch u.Kind {
	case session.UpdateRecord:
		if u.Record == nil {
			return Message{}, "", false
		}
		return Message{
			Event:     "accepted",
			ID:        u.Record.ID,
			Text:      u.Record.Text,
			Format:    u.Record.Format,
			Timestamp: u.Record.Timestamp.UTC(),
		}, m.topic, true
	case session.UpdateRemoved:
		return Message{Event: "removed", ID: u.RecordID, Timestamp: u.Timestamp.UTC()}, m.topic + "/removed", true
	case session.UpdateCleared:
		return Message{Event: "cleared", Timestamp: u.Timestamp.UTC()}, m.topic + "/cleared", true
	default:
		return Message{}, "", false
	}
}

func (m *MQTT) run() {
	defer close(m.done)
	for out := range m.queue {
		token := m.client.Publish(out.topic, m.qos, false, out.payload)
		if !token.WaitTimeout(publishTimeout) {
			m.logger.Warn("mqtt publish timed out",
				logging.String("topic", out.topic),
				logging.String(logging.FieldEventType, "mqtt_publish_timeout"),
				logging.String(logging.FieldImpact, "update may not reach subscribers"),
			)
			continue
		}
		if err := token.Error(); err != nil {
			m.logger.Warn("mqtt publish failed",
				logging.String("topic", out.topic),
				logging.Error(err),
				logging.String(logging.FieldEventType, "mqtt_publish_failed"),
				logging.String(logging.FieldImpact, "update not forwarded"),
			)
		}
	}
}

// Close drains queued updates and disconnects.
func (m *MQTT) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.queue)
	m.mu.Unlock()

	<-m.done
	m.client.Disconnect(disconnectQuiesce)
	return nil
}

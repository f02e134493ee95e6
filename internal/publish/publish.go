// Package publish sends device events to an MQTT broker or Kafka cluster and
// delivers inbound commands.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/sharkd/internal/config"
)

// Publisher is the messaging backend used by the plugin.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(topic string, handler func(payload []byte)) error
	Close()
}

var publishTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sharkd_publish_total",
		Help: "Published events by backend and result",
	},
	[]string{"backend", "result"},
)

// MetricsCollectors returns collectors for the publish module.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{publishTotal}
}

// New connects the configured backend. Backend "none" yields a no-op publisher.
func New(cfg config.MessagingConfig) (Publisher, error) {
	switch cfg.Backend {
	case "", "none":
		return Nop{}, nil
	case "mqtt":
		return newMQTT(cfg.MQTT)
	case "kafka":
		return newKafka(cfg.Kafka, cfg.MQTT.ClientID), nil
	default:
		return nil, fmt.Errorf("unknown messaging backend: %s", cfg.Backend)
	}
}

// PublishJSON marshals v and publishes it.
func PublishJSON(ctx context.Context, p Publisher, topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return p.Publish(ctx, topic, data)
}

// Topics builds per-device topic names under a prefix.
type Topics struct {
	Prefix string
}

func (t Topics) Status(dsn string) string  { return t.join(dsn, "status") }
func (t Topics) Map(dsn string) string     { return t.join(dsn, "map") }
func (t Topics) Command(dsn string) string { return t.join(dsn, "command") }

func (t Topics) join(dsn, leaf string) string {
	prefix := strings.Trim(t.Prefix, "/")
	if prefix == "" {
		prefix = config.DefaultTopicPrefix
	}
	return prefix + "/" + dsn + "/" + leaf
}

// Nop discards everything.
type Nop struct{}

func (Nop) Publish(context.Context, string, []byte) error { return nil }
func (Nop) Subscribe(string, func([]byte)) error          { return nil }
func (Nop) Close()                                        {}

// Message is one payload captured by Memory.
type Message struct {
	Topic   string
	Payload []byte
}

// Memory keeps published messages and dispatches Inject calls to subscribers.
type Memory struct {
	mu       sync.Mutex
	messages []Message
	subs     map[string][]func([]byte)
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[string][]func([]byte))}
}

func (m *Memory) Publish(_ context.Context, topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, Message{Topic: topic, Payload: append([]byte(nil), payload...)})
	publishTotal.WithLabelValues("memory", "ok").Inc()
	return nil
}

func (m *Memory) Subscribe(topic string, handler func([]byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[topic] = append(m.subs[topic], handler)
	return nil
}

// Inject delivers payload to subscribers of topic as if it arrived from a broker.
func (m *Memory) Inject(topic string, payload []byte) {
	m.mu.Lock()
	handlers := append([]func([]byte){}, m.subs[topic]...)
	m.mu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
}

// Messages returns a copy of everything published so far.
func (m *Memory) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.messages...)
}

func (m *Memory) Close() {}

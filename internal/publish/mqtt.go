package publish

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/joshp123/sharkd/internal/blob"
	"github.com/joshp123/sharkd/internal/config"
	"github.com/joshp123/sharkd/internal/logger"
)

type mqttPublisher struct {
	client mqtt.Client

	mu   sync.Mutex
	subs map[string][]func([]byte)
}

func newMQTT(cfg config.MQTTConfig) (*mqttPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port)).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectTimeout(10 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.PasswordFile != "" {
		password, err := blob.ReadSecretFile(cfg.PasswordFile)
		if err != nil {
			return nil, fmt.Errorf("mqtt password: %w", err)
		}
		opts.SetPassword(password)
	}

	p := &mqttPublisher{subs: make(map[string][]func([]byte))}
	opts.OnConnect = func(_ mqtt.Client) {
		p.resubscribeAll()
	}
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	p.client = client
	logger.Log.WithField("broker", cfg.Broker).Info("mqtt connected")
	return p, nil
}

func (p *mqttPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	if !p.client.IsConnected() {
		publishTotal.WithLabelValues("mqtt", "error").Inc()
		return fmt.Errorf("mqtt not connected")
	}
	token := p.client.Publish(topic, 1, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		publishTotal.WithLabelValues("mqtt", "error").Inc()
		return err
	}
	publishTotal.WithLabelValues("mqtt", "ok").Inc()
	return nil
}

func (p *mqttPublisher) Subscribe(topic string, handler func([]byte)) error {
	p.mu.Lock()
	p.subs[topic] = append(p.subs[topic], handler)
	first := len(p.subs[topic]) == 1
	p.mu.Unlock()
	if !first {
		return nil
	}
	token := p.client.Subscribe(topic, 1, p.dispatch)
	token.Wait()
	return token.Error()
}

func (p *mqttPublisher) dispatch(_ mqtt.Client, msg mqtt.Message) {
	p.mu.Lock()
	handlers := append([]func([]byte){}, p.subs[msg.Topic()]...)
	p.mu.Unlock()
	for _, h := range handlers {
		h(msg.Payload())
	}
}

func (p *mqttPublisher) resubscribeAll() {
	p.mu.Lock()
	topics := make([]string, 0, len(p.subs))
	for topic := range p.subs {
		topics = append(topics, topic)
	}
	p.mu.Unlock()
	for _, topic := range topics {
		_ = p.client.Subscribe(topic, 1, p.dispatch).Wait()
	}
}

func (p *mqttPublisher) Close() {
	p.client.Disconnect(1000)
}

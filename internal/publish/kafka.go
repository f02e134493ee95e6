package publish

import (
	"context"
	"errors"
	"strings"
	"sync"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/joshp123/sharkd/internal/config"
	"github.com/joshp123/sharkd/internal/logger"
)

type kafkaPublisher struct {
	brokers []string
	groupID string
	writer  *kafkago.Writer

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	readers []*kafkago.Reader
}

func newKafka(cfg config.KafkaConfig, groupID string) *kafkaPublisher {
	ctx, cancel := context.WithCancel(context.Background())
	return &kafkaPublisher{
		brokers: cfg.Brokers,
		groupID: groupID,
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(cfg.Brokers...),
			Balancer:               &kafkago.LeastBytes{},
			RequiredAcks:           kafkago.RequireOne,
			AllowAutoTopicCreation: true,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// kafkaTopic maps slash-separated topics to Kafka's allowed character set.
func kafkaTopic(topic string) string {
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}

func (k *kafkaPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	err := k.writer.WriteMessages(ctx, kafkago.Message{
		Topic: kafkaTopic(topic),
		Value: payload,
	})
	if err != nil {
		publishTotal.WithLabelValues("kafka", "error").Inc()
		return err
	}
	publishTotal.WithLabelValues("kafka", "ok").Inc()
	return nil
}

func (k *kafkaPublisher) Subscribe(topic string, handler func([]byte)) error {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: k.brokers,
		Topic:   kafkaTopic(topic),
		GroupID: k.groupID,
	})
	k.mu.Lock()
	k.readers = append(k.readers, reader)
	k.mu.Unlock()

	go func() {
		for {
			msg, err := reader.ReadMessage(k.ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.Log.WithError(err).WithField("topic", topic).Warn("kafka read stopped")
				}
				return
			}
			handler(msg.Value)
		}
	}()
	return nil
}

func (k *kafkaPublisher) Close() {
	k.cancel()
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, r := range k.readers {
		_ = r.Close()
	}
	k.readers = nil
	_ = k.writer.Close()
}

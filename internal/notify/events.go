package notify

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher emits keyed event payloads.
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
}

var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = (*LogPublisher)(nil)
)

// messageWriter is the subset of kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to one Kafka topic.
type KafkaPublisher struct {
	w messageWriter
}

// NewKafkaPublisher creates a synchronous publisher. brokers is a
// comma-separated host:port list.
func NewKafkaPublisher(brokers, topic string) *KafkaPublisher {
	var addrs []string
	for _, a := range strings.Split(brokers, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(addrs...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}}
}

func (k *KafkaPublisher) Publish(ctx context.Context, key string, payload []byte) error {
	if err := k.w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: payload}); err != nil {
		return errors.Wrap(err, "kafka write")
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaPublisher) Close() error {
	return k.w.Close()
}

// LogPublisher logs events instead of publishing them.
type LogPublisher struct {
	lg *zap.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(lg *zap.Logger) *LogPublisher {
	return &LogPublisher{lg: lg}
}

func (l *LogPublisher) Publish(_ context.Context, key string, payload []byte) error {
	l.lg.Info("Event", zap.String("key", key), zap.ByteString("payload", payload))
	return nil
}

package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher пишет события в топик Kafka (best-effort, не блокирует API).
type KafkaPublisher struct {
	writer messageWriter
	log    *slog.Logger
}

// NewKafkaPublisher создаёт продюсер. Если brokers или topic пустые — методы no-op.
func NewKafkaPublisher(brokers []string, topic string, log *slog.Logger) *KafkaPublisher {
	if len(brokers) == 0 || topic == "" {
		return &KafkaPublisher{log: log}
	}
	return &KafkaPublisher{
		log: log,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 5 * time.Second,
			Async:        true,
			Completion: func(msgs []kafka.Message, err error) {
				if err != nil {
					log.Warn("kafka: write events", "count", len(msgs), "error", err)
				}
			},
		},
	}
}

// Publish ставит событие в асинхронный writer и сразу возвращается. Ключ
// сообщения — id очереди: события одной очереди идут в одну партицию в порядке
// вызовов Publish.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) {
	if p.writer == nil {
		return
	}
	body, err := json.Marshal(e)
	if err != nil {
		p.log.Error("kafka: marshal event", "type", e.Type, "error", err)
		return
	}
	msg := kafka.Message{Key: []byte(e.QueueID), Value: body}
	if err := p.writer.WriteMessages(context.WithoutCancel(ctx), msg); err != nil {
		p.log.Warn("kafka: write event", "type", e.Type, "queue_id", e.QueueID, "error", err)
	}
}

// Close дожидается отправки накопленных сообщений.
func (p *KafkaPublisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"paintball-ticketing/internal/logger"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const eventHeader = "event"

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer MessageWriter
	topic  string
	log    *logger.Logger
	now    func() time.Time
}

func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           5 * time.Second,
		AllowAutoTopicCreation: true,
	}
	return NewProducerWithWriter(writer, topic, log)
}

func NewProducerWithWriter(w MessageWriter, topic string, log *logger.Logger) *Producer {
	return &Producer{writer: w, topic: topic, log: log, now: time.Now}
}

// Enqueue publishes one job. Jobs sharing a key land on the same partition and
// are consumed in order.
func (p *Producer) Enqueue(ctx context.Context, event, key string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	job := Job{ID: uuid.NewString(), Event: event, Payload: raw, EnqueuedAt: p.now().UTC()}
	value, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal %s job: %w", event, err)
	}
	if key == "" {
		key = job.ID
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header{{Key: eventHeader, Value: []byte(event)}},
	})
	if err != nil {
		p.log.LogKafka("PUBLISH_FAILED", p.topic, fmt.Sprintf("%s: %v", event, err))
		return fmt.Errorf("publish %s: %w", event, err)
	}
	p.log.LogKafka("PUBLISHED", p.topic, fmt.Sprintf("%s key=%s", event, key))
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// NopQueue drops every job. It stands in when Kafka is disabled.
type NopQueue struct {
	Log *logger.Logger
}

func (q NopQueue) Enqueue(_ context.Context, event, key string, _ any) error {
	q.Log.Debug("KAFKA", fmt.Sprintf("queue disabled, dropping %s for %s", event, key))
	return nil
}

func (q NopQueue) Close() error { return nil }

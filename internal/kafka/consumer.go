package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"paintball-ticketing/internal/logger"

	"github.com/segmentio/kafka-go"
)

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler processes one job. A returned error is logged; the job is not redelivered.
type Handler func(ctx context.Context, job Job) error

type Consumer struct {
	reader MessageReader
	topic  string
	log    *logger.Logger
}

// NewConsumer creates a group consumer for the given topic.
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return NewConsumerWithReader(reader, topic, log)
}

func NewConsumerWithReader(r MessageReader, topic string, log *logger.Logger) *Consumer {
	return &Consumer{reader: r, topic: topic, log: log}
}

// Run consumes until ctx is cancelled. Every fetched message is committed once
// handled, including poison messages and failed jobs.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	c.log.LogKafka("CONSUMER_STARTED", c.topic, "waiting for jobs")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		var job Job
		if err := json.Unmarshal(msg.Value, &job); err != nil {
			c.log.LogKafka("DECODE_FAILED", c.topic, fmt.Sprintf("offset %d: %v", msg.Offset, err))
		} else if err := c.safeHandle(ctx, handle, job); err != nil {
			c.log.LogKafka("JOB_FAILED", c.topic, fmt.Sprintf("%s %s: %v", job.Event, job.ID, err))
		} else {
			c.log.LogKafka("JOB_DONE", c.topic, fmt.Sprintf("%s %s", job.Event, job.ID))
		}

		if err := c.reader.CommitMessages(context.WithoutCancel(ctx), msg); err != nil {
			c.log.LogKafka("COMMIT_FAILED", c.topic, err.Error())
		}
	}
}

func (c *Consumer) safeHandle(ctx context.Context, handle Handler, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handle(ctx, job)
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}

package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"paintball-ticketing/internal/kafka"
	"paintball-ticketing/internal/logger"
	"paintball-ticketing/internal/models"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafkago.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

// fakeReader replays msgs then blocks until the context ends.
type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafkago.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafkago.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestEnqueueWritesEnvelope(t *testing.T) {
	w := &fakeWriter{}
	p := kafka.NewProducerWithWriter(w, "paintball.jobs", logger.NewNop())

	err := p.Enqueue(context.Background(), models.EventOrderCreated, "order-1", models.OrderNotification{OrderNumber: "ORD-1", Quantity: 2})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "order-1", string(msg.Key))
	assert.Equal(t, "event", msg.Headers[0].Key)
	assert.Equal(t, models.EventOrderCreated, string(msg.Headers[0].Value))

	var job kafka.Job
	require.NoError(t, json.Unmarshal(msg.Value, &job))
	assert.Equal(t, models.EventOrderCreated, job.Event)
	assert.NotEmpty(t, job.ID)

	var n models.OrderNotification
	require.NoError(t, job.Decode(&n))
	assert.Equal(t, "ORD-1", n.OrderNumber)
	assert.Equal(t, 2, n.Quantity)
}

func TestEnqueueSurfacesWriteErrors(t *testing.T) {
	p := kafka.NewProducerWithWriter(&fakeWriter{err: errors.New("broker down")}, "paintball.jobs", logger.NewNop())
	err := p.Enqueue(context.Background(), models.EventOrderCreated, "", map[string]string{})
	assert.ErrorContains(t, err, "broker down")
}

func jobMessage(t *testing.T, offset int64, event string) kafkago.Message {
	t.Helper()
	v, err := json.Marshal(kafka.Job{ID: "job", Event: event, Payload: json.RawMessage(`{}`)})
	require.NoError(t, err)
	return kafkago.Message{Offset: offset, Value: v}
}

func TestConsumerCommitsEveryMessage(t *testing.T) {
	r := &fakeReader{msgs: []kafkago.Message{
		jobMessage(t, 1, models.EventOrderCreated),
		{Offset: 2, Value: []byte("not json")},
		jobMessage(t, 3, "boom"),
		jobMessage(t, 4, "panic"),
		jobMessage(t, 5, models.EventOrderPaymentConfirmed),
	}}
	c := kafka.NewConsumerWithReader(r, "paintball.jobs", logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	var handled []string
	err := c.Run(ctx, func(_ context.Context, job kafka.Job) error {
		handled = append(handled, job.Event)
		switch job.Event {
		case "boom":
			return errors.New("smtp down")
		case "panic":
			panic("template exploded")
		case models.EventOrderPaymentConfirmed:
			cancel()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{models.EventOrderCreated, "boom", "panic", models.EventOrderPaymentConfirmed}, handled)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, r.committed)
}

func TestNopQueue(t *testing.T) {
	q := kafka.NopQueue{Log: logger.NewNop()}
	assert.NoError(t, q.Enqueue(context.Background(), models.EventOrderCreated, "x", nil))
}

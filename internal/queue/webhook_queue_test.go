package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moysklad_sync/internal/service"
	"moysklad_sync/pkg/moysklad"
)

type memoryWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *memoryWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memoryWriter) Close() error { return nil }

// memoryReader serves queued messages, then blocks until ctx ends.
type memoryReader struct {
	queue     []kafka.Message
	committed []int64
}

func (r *memoryReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.queue) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.queue[0]
	r.queue = r.queue[1:]
	return m, nil
}

func (r *memoryReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *memoryReader) Close() error { return nil }

type recordingHandler struct {
	batches [][]moysklad.WebhookEvent
	err     error
	cancel  context.CancelFunc
	want    int
}

func (h *recordingHandler) HandleEvents(_ context.Context, events []moysklad.WebhookEvent) (*service.WebhookResult, error) {
	h.batches = append(h.batches, events)
	if len(h.batches) == h.want && h.cancel != nil {
		h.cancel()
	}
	if h.err != nil {
		return nil, h.err
	}
	return &service.WebhookResult{Success: true, Message: "ok"}, nil
}

func productEvent(id string) moysklad.WebhookEvent {
	return moysklad.WebhookEvent{
		Meta:   moysklad.Meta{Type: moysklad.TypeProduct, Href: "https://api.test/entity/product/" + id},
		Action: "UPDATE",
	}
}

func TestPublisher_KeysByFirstEntity(t *testing.T) {
	w := &memoryWriter{}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := &Publisher{writer: w, now: func() time.Time { return fixed }}

	require.NoError(t, p.Publish(context.Background(), []moysklad.WebhookEvent{productEvent("p-1"), productEvent("p-2")}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "p-1", string(w.msgs[0].Key))

	var env Envelope
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &env))
	assert.Len(t, env.Events, 2)
	assert.True(t, fixed.Equal(env.ReceivedAt))

	require.NoError(t, p.Publish(context.Background(), nil))
	assert.Len(t, w.msgs, 1, "empty payloads are not published")

	w.err = errors.New("broker down")
	assert.Error(t, p.Publish(context.Background(), []moysklad.WebhookEvent{productEvent("p-3")}))
}

func TestConsumer_ProcessesAndCommitsEveryMessage(t *testing.T) {
	good, err := json.Marshal(Envelope{Events: []moysklad.WebhookEvent{productEvent("p-1")}, ReceivedAt: time.Now()})
	require.NoError(t, err)
	r := &memoryReader{queue: []kafka.Message{
		{Offset: 1, Value: good},
		{Offset: 2, Value: []byte("{not json")},
		{Offset: 3, Value: good},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := &recordingHandler{cancel: cancel, want: 2}
	c := &Consumer{reader: r, handler: h}

	require.NoError(t, c.Run(ctx))
	assert.Len(t, h.batches, 2, "undecodable message is skipped")
	assert.Equal(t, []int64{1, 2, 3}, r.committed)
}

func TestConsumer_ProcessDropsUnhandledPayloads(t *testing.T) {
	value, err := json.Marshal(Envelope{Events: []moysklad.WebhookEvent{productEvent("p-1")}})
	require.NoError(t, err)

	c := &Consumer{handler: &recordingHandler{err: service.ErrUnhandledWebhook}}
	assert.NoError(t, c.process(context.Background(), kafka.Message{Value: value}))

	c = &Consumer{handler: &recordingHandler{err: errors.New("db locked")}}
	assert.Error(t, c.process(context.Background(), kafka.Message{Value: value}))
}

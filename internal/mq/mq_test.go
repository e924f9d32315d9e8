package mq

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eventdesk/accounts/config"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	To string `json:"to"`
}

func TestMQ_PublishJSON_RoundTrip(t *testing.T) {
	queue := New(NewMemoryBackend())
	defer queue.Close()

	_, err := queue.PublishJSON(context.Background(), "mail", payload{To: "a@x.com"}, map[string]string{AttrKind: "verification"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	received := make(chan Message, 1)
	go func() {
		_ = queue.Subscribe(ctx, "mail", func(ctx context.Context, msg Message) error {
			received <- msg
			return nil
		})
	}()

	select {
	case msg := <-received:
		var got payload
		require.NoError(t, msg.Decode(&got))
		assert.Equal(t, "a@x.com", got.To)
		assert.Equal(t, "application/json", msg.Attributes[AttrContentType])
		assert.Equal(t, "verification", msg.Attributes[AttrKind])
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}
}

func TestMemoryBackend_RequeuesOnce(t *testing.T) {
	backend := NewMemoryBackend()
	_, err := backend.Publish(context.Background(), "mail", []byte(`{}`), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var calls atomic.Int32
	err = backend.Subscribe(ctx, "mail", func(ctx context.Context, msg Message) error {
		calls.Add(1)
		return errors.New("smtp down")
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(2), calls.Load())
}

func TestMemoryBackend_ClosedRejectsPublish(t *testing.T) {
	backend := NewMemoryBackend()
	require.NoError(t, backend.Close())

	_, err := backend.Publish(context.Background(), "mail", nil, nil)
	require.Error(t, err)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), config.Config{MQBackend: "kafka"})
	require.Error(t, err)
}

func TestOpen_Memory(t *testing.T) {
	queue, err := Open(context.Background(), config.Config{MQBackend: "memory"})
	require.NoError(t, err)
	require.NoError(t, queue.Close())
}

func TestHeadersToAttributes(t *testing.T) {
	attrs := headersToAttributes(map[string]any{"kind": "welcome", "raw": []byte("x"), "n": 3})
	assert.Equal(t, map[string]string{"kind": "welcome", "raw": "x", "n": "3"}, attrs)
	assert.Nil(t, headersToAttributes(nil))
}

type recordingAck struct {
	acked   int
	nacked  int
	requeue bool
}

func (a *recordingAck) Ack(bool) error {
	a.acked++
	return nil
}

func (a *recordingAck) Nack(_ bool, requeue bool) error {
	a.nacked++
	a.requeue = requeue
	return nil
}

func TestSettleJob(t *testing.T) {
	failing := func(context.Context, Message) error { return errors.New("smtp down") }
	ok := func(context.Context, Message) error { return nil }

	tests := []struct {
		name        string
		redelivered bool
		handler     Handler
		wantAck     int
		wantNack    int
		wantRequeue bool
	}{
		{name: "success acks", handler: ok, wantAck: 1},
		{name: "first failure requeues", handler: failing, wantNack: 1, wantRequeue: true},
		{name: "second failure drops", redelivered: true, handler: failing, wantNack: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &recordingAck{}
			settleJob(context.Background(), Message{ID: "job-1", Redelivered: tt.redelivered}, ack, tt.handler)
			assert.Equal(t, tt.wantAck, ack.acked)
			assert.Equal(t, tt.wantNack, ack.nacked)
			assert.Equal(t, tt.wantRequeue, ack.requeue)
		})
	}
}

func TestNewPublishing(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	msg := newPublishing([]byte(`{}`), map[string]string{AttrContentType: contentTypeJSON, AttrKind: "verification"}, true, now)
	assert.Equal(t, contentTypeJSON, msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "verification", msg.Type)
	assert.Equal(t, now, msg.Timestamp)
	assert.Equal(t, "verification", msg.Headers[AttrKind])
	assert.NotEmpty(t, msg.MessageId)

	plain := newPublishing(nil, nil, false, now)
	assert.Equal(t, "application/octet-stream", plain.ContentType)
	assert.Equal(t, amqp.Transient, plain.DeliveryMode)
	assert.NotEqual(t, msg.MessageId, plain.MessageId)
}

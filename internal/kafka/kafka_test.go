package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-storefront/internal/logx"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type memWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	fail   bool
	closed bool
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("broker down")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestEnvelopeRoundTrip(t *testing.T) {
	type placed struct {
		OrderID string `json:"order_id"`
	}
	env, err := NewEnvelope("OrderPlaced", "storefront-api", "o-1", placed{OrderID: "o-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, 1, env.EventVersion)

	got, err := DecodeEnvelope(MustMarshal(env))
	require.NoError(t, err)
	assert.Equal(t, env.EventID, got.EventID)
	p, err := UnwrapPayload[placed](got.Payload)
	require.NoError(t, err)
	assert.Equal(t, "o-1", p.OrderID)

	_, err = DecodeEnvelope([]byte("{"))
	assert.Error(t, err)
	_, err = UnwrapPayload[placed](json.RawMessage(`[]`))
	assert.Error(t, err)
}

func TestProducerFlushesOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	w := &memWriter{}
	p := newProducer(w, "order.placed", 8, logx.Discard())
	p.Start(context.Background())

	env, err := NewEnvelope("OrderPlaced", "api", "o-9", map[string]string{"order_id": "o-9"})
	require.NoError(t, err)
	require.NoError(t, p.PublishEnvelope(env))
	require.NoError(t, p.Publish([]byte("k"), []byte("v")))

	p.Close()
	p.Close()
	p.WaitClosed()

	assert.ErrorIs(t, p.Publish(nil, nil), ErrProducerClosed)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "o-9", string(w.msgs[0].Key))
	assert.Equal(t, HeaderEventType, w.msgs[0].Headers[0].Key)
	assert.Equal(t, "OrderPlaced", string(w.msgs[0].Headers[0].Value))
	assert.True(t, w.closed)
}

func TestProducerStopsOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	w := &memWriter{fail: true}
	p := newProducer(w, "order.placed", 1, logx.Discard())
	require.NoError(t, p.Publish(nil, []byte("a")))
	assert.ErrorIs(t, p.Publish(nil, []byte("b")), ErrBufferFull)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()
	p.WaitClosed()
	p.Close()
	assert.True(t, w.closed)
}

type memReader struct {
	msgs      chan kafka.Message
	mu        sync.Mutex
	committed []int64
	closed    bool
}

func (r *memReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *memReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *memReader) Close() error {
	r.closed = true
	return nil
}

func TestConsumerCommitsOnlyHandledMessages(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := &memReader{msgs: make(chan kafka.Message, 4)}
	for i := int64(0); i < 4; i++ {
		r.msgs <- kafka.Message{Offset: i}
	}
	c := newConsumer(r, 2, logx.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	var seen sync.WaitGroup
	seen.Add(4)
	h := func(_ context.Context, m kafka.Message) error {
		defer seen.Done()
		if m.Offset == 2 {
			return errors.New("boom")
		}
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()
	seen.Wait()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.ElementsMatch(t, []int64{0, 1, 3}, r.committed)
	assert.True(t, r.closed)
}

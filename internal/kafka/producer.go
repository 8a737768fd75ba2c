package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

var (
	ErrProducerClosed = errors.New("producer closed")
	ErrBufferFull     = errors.New("producer buffer full")
)

const writeTimeout = 10 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer buffers messages and writes them from a single goroutine, so
// Publish never blocks a request on the broker.
type Producer struct {
	w     messageWriter
	topic string
	log   *slog.Logger

	mu     sync.RWMutex
	closed bool
	inbox  chan kafka.Message
	once   sync.Once
	done   chan struct{}
}

func NewProducer(brokers []string, topic string, buf int, log *slog.Logger) *Producer {
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}, topic, buf, log)
}

func newProducer(w messageWriter, topic string, buf int, log *slog.Logger) *Producer {
	if buf <= 0 {
		buf = 1
	}
	return &Producer{
		w:     w,
		topic: topic,
		log:   log.With("topic", topic),
		inbox: make(chan kafka.Message, buf),
		done:  make(chan struct{}),
	}
}

// Start runs the write loop. Cancelling ctx or calling Close flushes what is
// buffered and closes the writer.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		for {
			select {
			case m, ok := <-p.inbox:
				if !ok {
					p.closeWriter()
					return
				}
				p.write(m)
			case <-ctx.Done():
				p.Close()
				for m := range p.inbox {
					p.write(m)
				}
				p.closeWriter()
				return
			}
		}
	}()
}

func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	select {
	case p.inbox <- kafka.Message{Key: key, Value: value, Time: time.Now(), Headers: headers}:
		return nil
	default:
		return ErrBufferFull
	}
}

// PublishEnvelope keys the message by the envelope's correlation id.
func (p *Producer) PublishEnvelope(env Envelope) error {
	return p.Publish(PartitionKey(env.CorrelationID), MustMarshal(env),
		kafka.Header{Key: HeaderEventType, Value: []byte(env.EventType)},
		kafka.Header{Key: HeaderEventVersion, Value: []byte(strconv.Itoa(env.EventVersion))},
	)
}

func (p *Producer) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.inbox)
		p.mu.Unlock()
	})
}

func (p *Producer) WaitClosed() { <-p.done }

func (p *Producer) write(m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := p.w.WriteMessages(ctx, m); err != nil {
		p.log.Error("kafka write failed", "key", string(m.Key), "err", err)
	}
}

func (p *Producer) closeWriter() {
	if err := p.w.Close(); err != nil {
		p.log.Warn("kafka writer close", "err", fmt.Errorf("close %s writer: %w", p.topic, err))
	}
}

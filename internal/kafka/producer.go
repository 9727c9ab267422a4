package kafka

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ariefcatur/go-pos-checkout/internal/metrics"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer buffers messages in an inbox and writes them from a single goroutine.
// Publish never blocks: when the inbox is full the message is dropped and counted.
type Producer struct {
	w         messageWriter
	inbox     chan kafka.Message
	stop      chan struct{}
	closeCh   chan struct{}
	closeOnce sync.Once
	dropped   atomic.Int64
	log       *zap.Logger

	topic   string
	metrics *metrics.ProducerMetrics
}

type ProducerOption func(*Producer)

// WithMetrics reports drops and failed writes under the producer's topic.
func WithMetrics(m *metrics.ProducerMetrics) ProducerOption {
	return func(p *Producer) { p.metrics = m }
}

func NewProducer(brokers []string, topic string, buf int, log *zap.Logger, opts ...ProducerOption) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	return newProducer(w, topic, buf, log, opts...)
}

func newProducer(w messageWriter, topic string, buf int, log *zap.Logger, opts ...ProducerOption) *Producer {
	if buf <= 0 {
		buf = 1
	}
	p := &Producer{
		w:       w,
		inbox:   make(chan kafka.Message, buf),
		stop:    make(chan struct{}),
		closeCh: make(chan struct{}),
		log:     log,
		topic:   topic,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				p.drain()
				return
			case <-p.stop:
				p.drain()
				return
			case m := <-p.inbox:
				p.write(m)
			}
		}
	}()
}

// drain flushes whatever is still buffered, then closes the writer.
func (p *Producer) drain() {
	for {
		select {
		case m := <-p.inbox:
			p.write(m)
		default:
			if err := p.w.Close(); err != nil {
				p.log.Warn("kafka writer close", zap.Error(err))
			}
			return
		}
	}
}

func (p *Producer) write(m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.w.WriteMessages(ctx, m); err != nil {
		p.log.Warn("kafka write failed", zap.ByteString("key", m.Key), zap.Error(err))
		if p.metrics != nil {
			p.metrics.WriteFailures.WithLabelValues(p.topic).Inc()
		}
	}
}

// Publish enqueues a message and reports whether it was accepted.
func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) bool {
	msg := kafka.Message{Key: key, Value: value, Time: time.Now(), Headers: headers}
	select {
	case p.inbox <- msg:
		return true
	default:
		p.dropped.Add(1)
		if p.metrics != nil {
			p.metrics.Dropped.WithLabelValues(p.topic).Inc()
		}
		p.log.Warn("kafka inbox full, message dropped", zap.ByteString("key", key))
		return false
	}
}

// Dropped counts messages rejected because the inbox was full.
func (p *Producer) Dropped() int64 { return p.dropped.Load() }

// Close asks the loop to flush and exit.
func (p *Producer) Close() { p.closeOnce.Do(func() { close(p.stop) }) }

// WaitClosed blocks until the loop has flushed and closed the writer.
func (p *Producer) WaitClosed() { <-p.closeCh }

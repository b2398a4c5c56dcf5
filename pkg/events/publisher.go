package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Publisher emits domain events best-effort. Publish never blocks and never
// reports failure to the caller; auth operations must keep working when the
// bus is down.
type Publisher interface {
	Publish(event Event)
}

// Sink delivers one serialized event to the external bus
type Sink interface {
	Send(ctx context.Context, key string, payload []byte) error
	Close() error
}

const sendTimeout = 5 * time.Second

// AsyncPublisher enqueues events on a bounded channel drained by a single
// background goroutine. A full queue drops the event and logs at warn;
// blocking the caller is never an option.
type AsyncPublisher struct {
	sink   Sink
	logger *slog.Logger
	queue  chan Event
	done   chan struct{}
	closed chan struct{}
}

// NewAsyncPublisher creates a publisher with the given queue capacity and
// starts its drain goroutine.
func NewAsyncPublisher(sink Sink, queueSize int, logger *slog.Logger) *AsyncPublisher {
	if queueSize <= 0 {
		queueSize = 256
	}
	p := &AsyncPublisher{
		sink:   sink,
		logger: logger,
		queue:  make(chan Event, queueSize),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go p.drain()
	return p
}

// Publish implements Publisher
func (p *AsyncPublisher) Publish(event Event) {
	select {
	case <-p.done:
		p.logger.Warn("publisher closed, dropping event", "kind", event.Kind, "user_id", event.UserID)
	case p.queue <- event:
	default:
		p.logger.Warn("event queue full, dropping event", "kind", event.Kind, "user_id", event.UserID)
	}
}

func (p *AsyncPublisher) drain() {
	defer close(p.closed)
	for {
		select {
		case <-p.done:
			return
		case event := <-p.queue:
			p.deliver(event)
		}
	}
}

func (p *AsyncPublisher) deliver(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to serialize event", "kind", event.Kind, "user_id", event.UserID, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := p.sink.Send(ctx, event.UserID.String(), payload); err != nil {
		p.logger.Error("failed to publish event", "kind", event.Kind, "user_id", event.UserID, "err", err)
	}
}

// Close stops the drain goroutine and closes the sink. Queued events are
// abandoned; delivery stays best-effort through shutdown.
func (p *AsyncPublisher) Close() {
	close(p.done)
	<-p.closed
	if err := p.sink.Close(); err != nil {
		p.logger.Error("failed to close event sink", "err", err)
	}
}

// KafkaSink delivers events to a Kafka topic, keyed by user id so one
// user's events stay ordered within a partition.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink creates a sink writing to topic on the given brokers
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
	}
}

// Send implements Sink
func (s *KafkaSink) Send(ctx context.Context, key string, payload []byte) error {
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
	})
}

// Close implements Sink
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// LogSink logs events instead of forwarding them; used when the bus is
// disabled in configuration.
type LogSink struct {
	Logger *slog.Logger
}

// Send implements Sink
func (s *LogSink) Send(ctx context.Context, key string, payload []byte) error {
	s.Logger.Debug("event publishing disabled, skipping event", "key", key, "payload", string(payload))
	return nil
}

// Close implements Sink
func (s *LogSink) Close() error { return nil }

// Package kafka implements the Kafka-backed stream sink.
package kafka

import (
	"context"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	oberrors "github.com/otherjamesbrown/outboxd/pkg/errors"
	"github.com/otherjamesbrown/outboxd/pkg/logging"
	"github.com/otherjamesbrown/outboxd/pkg/metrics"
	"github.com/otherjamesbrown/outboxd/pkg/stream"
)

const (
	// ackTimeout bounds a single produce round trip. Design constant, not
	// configurable.
	ackTimeout = 1 * time.Second

	// dialTimeout bounds the constructor's broker reachability probe.
	dialTimeout = 10 * time.Second
)

// messageWriter is the part of kafka-go's Writer the sink relies on.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Sink buffers source elements and publishes them to one Kafka topic in
// batches. Records are keyed by element ID; partition selection is delegated
// to the client's hash balancer. Not safe for concurrent use; every drain
// owns exactly one sink.
type Sink struct {
	topic         string
	maxBufferSize int
	buffer        []stream.SourceElement
	writer        messageWriter
	logger        logging.Logger
	metrics       *metrics.Bridge
	tenant        string
}

// Option configures a Sink.
type Option func(*Sink)

// WithLogger attaches a logger to the sink.
func WithLogger(l logging.Logger) Option {
	return func(s *Sink) {
		s.logger = l
	}
}

// WithMetrics attaches bridge counters, labelled with the given tenant name.
func WithMetrics(m *metrics.Bridge, tenant string) Option {
	return func(s *Sink) {
		s.metrics = m
		s.tenant = tenant
	}
}

// NewSink verifies that at least one broker is reachable and returns a sink
// publishing to topic with acks from one broker. Brokers are dialled in
// order until one answers; each dial is bounded by dialTimeout, so the
// constructor blocks at most one dial timeout per broker.
func NewSink(brokers []string, topic string, maxBufferSize int, opts ...Option) (*Sink, error) {
	if maxBufferSize < 1 {
		return nil, oberrors.E(oberrors.KindSinkInit,
			fmt.Sprintf("max buffer size must be at least 1, got %d", maxBufferSize), nil)
	}
	if len(brokers) == 0 {
		return nil, oberrors.E(oberrors.KindSinkInit, "no brokers given", nil)
	}

	dialer := &kafkago.Dialer{Timeout: dialTimeout}
	var lastErr error
	reachable := false
	for _, broker := range brokers {
		conn, err := dialer.Dial("tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		conn.Close()
		reachable = true
		break
	}
	if !reachable {
		return nil, oberrors.E(oberrors.KindSinkInit,
			fmt.Sprintf("no reachable broker in %v", brokers), lastErr)
	}

	s := &Sink{
		topic:         topic,
		maxBufferSize: maxBufferSize,
		buffer:        make([]stream.SourceElement, 0, maxBufferSize),
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireOne,
			WriteTimeout: ackTimeout,
			BatchSize:    maxBufferSize,
		},
		logger: logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger.Info("kafka sink ready",
		logging.F("topic", topic),
		logging.F("max_buffer_size", maxBufferSize))
	return s, nil
}

// Write appends element to the pending batch. When the batch reaches the
// sink's capacity it is flushed synchronously before Write returns.
func (s *Sink) Write(ctx context.Context, element stream.SourceElement) error {
	s.logger.Debug("buffering element",
		logging.F("id", element.ID),
		logging.F("buffered", len(s.buffer)+1))
	s.buffer = append(s.buffer, element)
	if len(s.buffer) >= s.maxBufferSize {
		return s.Flush(ctx)
	}
	return nil
}

// Flush publishes every buffered element as a single batch, preserving write
// order, then clears the batch. Flushing an empty batch is a no-op. On
// failure the batch is left intact so the error can surface with nothing
// silently dropped.
func (s *Sink) Flush(ctx context.Context) error {
	if len(s.buffer) == 0 {
		return nil
	}

	msgs := make([]kafkago.Message, len(s.buffer))
	for i, element := range s.buffer {
		msgs[i] = kafkago.Message{
			Key:   []byte(element.ID),
			Value: element.Payload,
		}
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return oberrors.E(oberrors.KindSinkFlush,
			fmt.Sprintf("publishing %d records to %s", len(msgs), s.topic), err)
	}

	s.logger.Info("flushed batch",
		logging.F("topic", s.topic),
		logging.F("records", len(msgs)))
	s.metrics.FlushObserved(s.tenant)
	s.buffer = s.buffer[:0]
	return nil
}

// Close releases the underlying producer.
func (s *Sink) Close() error {
	return s.writer.Close()
}

// Package worker wires one drain and one sink into a runnable tenant worker
// and supervises a fleet of them, one per configuration.
package worker

import (
	"context"
	"time"

	"github.com/otherjamesbrown/outboxd/config"
	"github.com/otherjamesbrown/outboxd/pkg/kafka"
	"github.com/otherjamesbrown/outboxd/pkg/logging"
	"github.com/otherjamesbrown/outboxd/pkg/metrics"
	"github.com/otherjamesbrown/outboxd/pkg/pgsql"
	"github.com/otherjamesbrown/outboxd/pkg/stream"
)

// runSink is what Run needs from a sink: the stream contract plus release.
type runSink interface {
	stream.Sink
	Close() error
}

// Worker owns one drain/sink pair for one tenant configuration. Construct
// through Builder; a Worker is immutable once built.
type Worker struct {
	cfg    config.Tenant
	logger logging.Logger

	// Factories, swapped out in tests.
	newSink     func() (runSink, error)
	newProducer func() stream.Producer
}

// Config returns the worker's fully defaulted configuration.
func (w *Worker) Config() config.Tenant {
	return w.cfg
}

// Run builds the sink and the drain and runs the drain loop until a fatal
// error, which it returns. It never returns nil in normal operation.
func (w *Worker) Run(ctx context.Context) error {
	sink, err := w.newSink()
	if err != nil {
		w.logger.Error("sink initialization failed", logging.Err(err))
		return err
	}
	defer sink.Close()

	producer := w.newProducer()
	w.logger.Info("worker running",
		logging.F("table", w.cfg.TableName),
		logging.F("channel", w.cfg.Channel),
		logging.F("topic", w.cfg.TopicName),
		logging.F("buffer_size", w.cfg.BufferSize))
	return producer.Produce(ctx, sink)
}

// Builder assembles a Worker. Unset fields fall back to the defaults in the
// config package when Build is called.
type Builder struct {
	cfg     config.Tenant
	logger  logging.Logger
	metrics *metrics.Bridge
}

// NewBuilder returns an empty worker builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Config replaces the builder's configuration record wholesale.
func (b *Builder) Config(cfg config.Tenant) *Builder {
	b.cfg = cfg
	return b
}

// PgURL sets the database connection URL.
func (b *Builder) PgURL(url string) *Builder {
	b.cfg.PgURL = url
	return b
}

// TableName sets the outbox table to drain.
func (b *Builder) TableName(name string) *Builder {
	b.cfg.TableName = name
	return b
}

// ColumnName sets the payload column of the outbox table.
func (b *Builder) ColumnName(name string) *Builder {
	b.cfg.ColumnName = name
	return b
}

// Channel sets the notification channel to listen on.
func (b *Builder) Channel(name string) *Builder {
	b.cfg.Channel = name
	return b
}

// TopicName sets the destination topic.
func (b *Builder) TopicName(name string) *Builder {
	b.cfg.TopicName = name
	return b
}

// BufferSize sets the sink batch capacity.
func (b *Builder) BufferSize(n int) *Builder {
	b.cfg.BufferSize = n
	return b
}

// KafkaBrokers sets the destination broker list.
func (b *Builder) KafkaBrokers(brokers []string) *Builder {
	b.cfg.KafkaBrokers = brokers
	return b
}

// NotifyTimeout sets the bound on a single notification wait.
func (b *Builder) NotifyTimeout(d time.Duration) *Builder {
	b.cfg.NotifyTimeout = d
	return b
}

// NotifyTimeoutTotal sets the bound on a whole listening window.
func (b *Builder) NotifyTimeoutTotal(d time.Duration) *Builder {
	b.cfg.NotifyTimeoutTotal = d
	return b
}

// Logger attaches a logger to the worker.
func (b *Builder) Logger(l logging.Logger) *Builder {
	b.logger = l
	return b
}

// Metrics attaches bridge counters to the worker.
func (b *Builder) Metrics(m *metrics.Bridge) *Builder {
	b.metrics = m
	return b
}

// Build fills unset fields with defaults, validates the configuration, and
// returns the worker.
func (b *Builder) Build() (*Worker, error) {
	cfg := b.cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	m := b.metrics

	w := &Worker{cfg: cfg, logger: logger}
	w.newSink = func() (runSink, error) {
		sink, err := kafka.NewSink(cfg.KafkaBrokers, cfg.TopicName, cfg.BufferSize,
			kafka.WithLogger(logger),
			kafka.WithMetrics(m, cfg.TopicName))
		if err != nil {
			return nil, err
		}
		return sink, nil
	}
	w.newProducer = func() stream.Producer {
		return pgsql.NewDrain(cfg.PgURL, cfg.TableName, cfg.ColumnName, cfg.Channel,
			cfg.NotifyTimeoutTotal, cfg.NotifyTimeout,
			pgsql.WithLogger(logger),
			pgsql.WithMetrics(m, cfg.TopicName))
	}
	return w, nil
}

package worker

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/outboxd/config"
	oberrors "github.com/otherjamesbrown/outboxd/pkg/errors"
	"github.com/otherjamesbrown/outboxd/pkg/logging"
	"github.com/otherjamesbrown/outboxd/pkg/metrics"
)

// Supervisor runs one worker per tenant configuration, each on its own
// goroutine with exclusively owned state, and fails fast when any of them
// dies. Liveness is observed through a completion channel, so death is
// detected as soon as the worker returns. There is no restart policy; the
// surrounding process manager owns that.
type Supervisor struct {
	logger  logging.Logger
	metrics *metrics.Bridge

	// runWorker is swapped out in tests.
	runWorker func(ctx context.Context, tenant config.Tenant, logger logging.Logger) error
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger attaches a logger to the supervisor.
func WithLogger(l logging.Logger) Option {
	return func(s *Supervisor) {
		s.logger = l
	}
}

// WithMetrics attaches bridge counters handed down to every worker.
func WithMetrics(m *metrics.Bridge) Option {
	return func(s *Supervisor) {
		s.metrics = m
	}
}

// NewSupervisor returns a supervisor ready to run workers.
func NewSupervisor(opts ...Option) *Supervisor {
	s := &Supervisor{
		logger: logging.NewNopLogger(),
	}
	s.runWorker = func(ctx context.Context, tenant config.Tenant, logger logging.Logger) error {
		w, err := NewBuilder().
			Config(tenant).
			Logger(logger).
			Metrics(s.metrics).
			Build()
		if err != nil {
			return err
		}
		return w.Run(ctx)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type workerExit struct {
	id  string
	err error
}

// MultiRun launches one worker per tenant and blocks until the first worker
// exits, returning a worker-died error that wraps the worker's own error.
// Workers run until fatal error, so any exit is a death. With no tenants it
// blocks until ctx is done.
func (s *Supervisor) MultiRun(ctx context.Context, tenants []config.Tenant) error {
	s.logger.Info("starting workers", logging.F("count", len(tenants)))

	exits := make(chan workerExit, len(tenants))
	for _, tenant := range tenants {
		id := uuid.New().String()
		wl := s.logger.With(
			logging.F("worker_id", id),
			logging.F("table", tenant.TableName),
			logging.F("topic", tenant.TopicName))

		go func(tenant config.Tenant) {
			exits <- workerExit{id: id, err: s.runWorker(ctx, tenant, wl)}
		}(tenant)
		wl.Info("worker launched")
	}

	select {
	case exit := <-exits:
		s.logger.Error("worker died",
			logging.F("worker_id", exit.id),
			logging.Err(exit.err))
		return oberrors.E(oberrors.KindWorkerDied,
			fmt.Sprintf("worker %s exited", exit.id), exit.err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

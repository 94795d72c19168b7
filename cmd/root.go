// Package cmd provides the outboxd CLI commands.
package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/outboxd/config"
	"github.com/otherjamesbrown/outboxd/pkg/logging"
	"github.com/otherjamesbrown/outboxd/pkg/metrics"
	"github.com/otherjamesbrown/outboxd/pkg/worker"
)

// Version is the CLI version, overridable at link time.
var Version = "0.1.0"

// rootOptions holds the persistent flag values.
type rootOptions struct {
	debug       bool
	logJSON     bool
	metricsAddr string
}

// appRuntime carries the shared state built once per invocation: the logger,
// the metrics registry, and the run hooks subcommands go through. The hooks
// are swapped out in tests.
type appRuntime struct {
	opts    *rootOptions
	logger  logging.Logger
	metrics *metrics.Bridge

	runWorker func(ctx context.Context, w *worker.Worker) error
	multiRun  func(ctx context.Context, sup *worker.Supervisor, tenants []config.Tenant) error
}

// init builds the logger and metrics from the parsed persistent flags and,
// if requested, starts the metrics endpoint.
func (rt *appRuntime) init() {
	level := logging.LevelInfo
	if rt.opts.debug {
		level = logging.LevelDebug
	}
	rt.logger = logging.NewLogger(&logging.Config{
		Level:       level,
		ServiceName: "outboxd",
		JSONFormat:  rt.opts.logJSON,
	})

	registry := prometheus.NewRegistry()
	rt.metrics = metrics.New(registry)

	if rt.opts.metricsAddr != "" {
		addr := rt.opts.metricsAddr
		rt.logger.Info("serving metrics", logging.F("addr", addr))
		go func() {
			server := &http.Server{
				Addr:              addr,
				Handler:           metrics.Handler(registry),
				ReadHeaderTimeout: 5 * time.Second,
			}
			if err := server.ListenAndServe(); err != nil {
				rt.logger.Error("metrics endpoint failed", logging.Err(err))
			}
		}()
	}
}

// NewRootCommand assembles the outboxd command tree.
func NewRootCommand() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

// newRootCommand also returns the runtime so tests can swap the run hooks.
func newRootCommand() (*cobra.Command, *appRuntime) {
	rt := &appRuntime{
		opts: &rootOptions{},
		runWorker: func(ctx context.Context, w *worker.Worker) error {
			return w.Run(ctx)
		},
		multiRun: func(ctx context.Context, sup *worker.Supervisor, tenants []config.Tenant) error {
			return sup.MultiRun(ctx, tenants)
		},
	}

	cmd := &cobra.Command{
		Use:   "outboxd",
		Short: "Move rows from a PostgreSQL outbox table to a Kafka topic",
		Long: `outboxd drains rows from an outbox-style PostgreSQL table and forwards
them to a Kafka topic. It listens on a notification channel for low-latency
delivery and falls back to periodic full-table scans to recover anything the
channel missed. Rows are deleted once Kafka has acknowledged them, giving
at-least-once delivery.

Run a single tenant with flags, or several from a YAML file:

  # Single tenant, defaults
  outboxd run

  # Single tenant, explicit source and destination
  outboxd run -p postgres://outbox@db:5432/outbox -t outbox_events -w outbox

  # One worker per configuration in the file
  outboxd multirun --config outboxd.yaml

The process runs until a worker hits a fatal error and then exits non-zero;
restart policy belongs to the surrounding process manager.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			rt.init()
		},
	}

	cmd.PersistentFlags().BoolVar(&rt.opts.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&rt.opts.logJSON, "log-json", false, "Log in JSON format")
	cmd.PersistentFlags().StringVar(&rt.opts.metricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on (empty disables)")

	cmd.AddCommand(newRunCommand(rt))
	cmd.AddCommand(newMultiRunCommand(rt))

	return cmd, rt
}

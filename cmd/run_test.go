package cmd

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/outboxd/config"
	oberrors "github.com/otherjamesbrown/outboxd/pkg/errors"
	"github.com/otherjamesbrown/outboxd/pkg/worker"
)

// execute runs the command tree with the given args, capturing the worker or
// tenants handed to the run hooks instead of touching any infrastructure.
func execute(t *testing.T, args ...string) (*capturedRuns, error) {
	t.Helper()

	root, rt := newRootCommand()
	captured := &capturedRuns{}
	rt.runWorker = func(ctx context.Context, w *worker.Worker) error {
		captured.worker = w
		return nil
	}
	rt.multiRun = func(ctx context.Context, sup *worker.Supervisor, tenants []config.Tenant) error {
		captured.tenants = tenants
		return nil
	}

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	return captured, root.Execute()
}

type capturedRuns struct {
	worker  *worker.Worker
	tenants []config.Tenant
}

func TestRunCommand_Defaults(t *testing.T) {
	captured, err := execute(t, "run")
	require.NoError(t, err)
	require.NotNil(t, captured.worker)

	cfg := captured.worker.Config()
	assert.Equal(t, config.DefaultPgURL, cfg.PgURL)
	assert.Equal(t, config.DefaultTableName, cfg.TableName)
	assert.Equal(t, config.DefaultColumnName, cfg.ColumnName)
	assert.Equal(t, config.DefaultChannel, cfg.Channel)
	assert.Equal(t, config.DefaultTopicName, cfg.TopicName)
	assert.Equal(t, config.DefaultBufferSize, cfg.BufferSize)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, config.DefaultNotifyTimeout, cfg.NotifyTimeout)
	assert.Equal(t, config.DefaultNotifyTimeoutTotal, cfg.NotifyTimeoutTotal)
}

func TestRunCommand_Flags(t *testing.T) {
	captured, err := execute(t, "run",
		"-p", "postgres://outbox@db:5432/outbox",
		"-k", "broker1:9092, broker2:9092",
		"-t", "outbox_events",
		"-c", "body",
		"-z", "outbox.activity",
		"-w", "outbox",
		"-b", "500",
		"-x", "1000",
		"-X", "30000",
	)
	require.NoError(t, err)
	require.NotNil(t, captured.worker)

	cfg := captured.worker.Config()
	assert.Equal(t, "postgres://outbox@db:5432/outbox", cfg.PgURL)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "outbox_events", cfg.TableName)
	assert.Equal(t, "body", cfg.ColumnName)
	assert.Equal(t, "outbox.activity", cfg.Channel)
	assert.Equal(t, "outbox", cfg.TopicName)
	assert.Equal(t, 500, cfg.BufferSize)
	assert.Equal(t, time.Second, cfg.NotifyTimeout)
	assert.Equal(t, 30*time.Second, cfg.NotifyTimeoutTotal)
}

func TestRunCommand_RejectsInvalidTimeouts(t *testing.T) {
	captured, err := execute(t, "run", "-x", "5000", "-X", "1000")
	require.Error(t, err)
	assert.Equal(t, oberrors.KindConfig, oberrors.KindOf(err))
	assert.Nil(t, captured.worker, "no worker should run on invalid configuration")
}

func TestRunCommand_RejectsPositionalArgs(t *testing.T) {
	_, err := execute(t, "run", "unexpected")
	require.Error(t, err)
}

func TestSplitBrokers(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"localhost:9092", []string{"localhost:9092"}},
		{"a:9092,b:9092", []string{"a:9092", "b:9092"}},
		{" a:9092 , b:9092 ", []string{"a:9092", "b:9092"}},
		{"a:9092,,b:9092,", []string{"a:9092", "b:9092"}},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, splitBrokers(tc.in), "splitBrokers(%q)", tc.in)
	}
}

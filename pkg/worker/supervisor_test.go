package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/outboxd/config"
	oberrors "github.com/otherjamesbrown/outboxd/pkg/errors"
	"github.com/otherjamesbrown/outboxd/pkg/logging"
)

func TestMultiRun_ReturnsWorkerDiedOnFirstExit(t *testing.T) {
	dbGone := errors.New("database gone")
	sup := NewSupervisor()
	sup.runWorker = func(ctx context.Context, tenant config.Tenant, logger logging.Logger) error {
		if tenant.TableName == "tenant_a" {
			time.Sleep(5 * time.Millisecond)
			return oberrors.E(oberrors.KindDrainScan, "scanning tenant_a", dbGone)
		}
		// Tenant B stays healthy; its failure must not be required for
		// detection of A's death.
		<-ctx.Done()
		return ctx.Err()
	}

	start := time.Now()
	err := sup.MultiRun(context.Background(), []config.Tenant{
		{TableName: "tenant_a"},
		{TableName: "tenant_b"},
	})

	require.Error(t, err)
	assert.Equal(t, oberrors.KindWorkerDied, oberrors.KindOf(err))
	assert.ErrorIs(t, err, dbGone, "the worker's own error must be wrapped")
	assert.Less(t, time.Since(start), time.Second, "death must be detected promptly")
}

func TestMultiRun_NilWorkerReturnIsStillDeath(t *testing.T) {
	sup := NewSupervisor()
	sup.runWorker = func(ctx context.Context, tenant config.Tenant, logger logging.Logger) error {
		return nil
	}

	err := sup.MultiRun(context.Background(), []config.Tenant{{}})
	require.Error(t, err)
	assert.Equal(t, oberrors.KindWorkerDied, oberrors.KindOf(err))
}

func TestMultiRun_ContextCancellation(t *testing.T) {
	sup := NewSupervisor()
	sup.runWorker = func(ctx context.Context, tenant config.Tenant, logger logging.Logger) error {
		<-ctx.Done()
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(5*time.Millisecond, cancel)

	err := sup.MultiRun(ctx, []config.Tenant{{}, {}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestMultiRun_NoTenantsBlocksUntilDone(t *testing.T) {
	sup := NewSupervisor()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := sup.MultiRun(ctx, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMultiRun_EachTenantGetsItsOwnWorker(t *testing.T) {
	seen := make(chan string, 2)
	sup := NewSupervisor(WithLogger(logging.NewNopLogger()))
	sup.runWorker = func(ctx context.Context, tenant config.Tenant, logger logging.Logger) error {
		seen <- tenant.TableName
		<-ctx.Done()
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- sup.MultiRun(ctx, []config.Tenant{
			{TableName: "first"},
			{TableName: "second"},
		})
	}()

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case name := <-seen:
			got[name] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for workers to start")
		}
	}
	assert.True(t, got["first"])
	assert.True(t, got["second"])

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestMultiRun_InvalidTenantDiesThroughBuilder(t *testing.T) {
	// The default runWorker path builds the worker, so a bad configuration
	// surfaces as a worker death wrapping a config error.
	sup := NewSupervisor()

	err := sup.MultiRun(context.Background(), []config.Tenant{
		{NotifyTimeout: 2 * time.Minute, NotifyTimeoutTotal: time.Minute},
	})
	require.Error(t, err)
	assert.Equal(t, oberrors.KindWorkerDied, oberrors.KindOf(err))

	var be *oberrors.BridgeError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, oberrors.KindConfig, oberrors.KindOf(be.Cause))
}

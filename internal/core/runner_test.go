package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LeoVS09/simple-yield-farm/internal/core"
	"github.com/LeoVS09/simple-yield-farm/internal/vault"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestRunner_SubmitSnapshotAndStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, vault.ModeDebt, nil, 1024)
	runner := core.NewRunner(f.proc, 8, 2, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(ctx) }()

	res, err := runner.Submit(context.Background(), credit(alice, 1000, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Sequence)

	res, err = runner.Submit(context.Background(), deposit(alice, 1000, 0))
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), res.Shares)

	_, err = runner.Submit(context.Background(), redeem(alice, 5000, 1))
	assert.ErrorIs(t, err, vault.ErrInsufficientShares)

	var seq int64
	require.NoError(t, runner.Do(context.Background(), func(p *core.Processor) error {
		seq = p.Sequence()
		return nil
	}))
	assert.Equal(t, int64(3), seq)

	outputs := drainOutputs(f.persist)
	require.Len(t, outputs, 4)
	require.NotNil(t, outputs[2].Snapshot, "snapshot follows the second command")
	assert.Equal(t, int64(1), outputs[2].Snapshot.Sequence)
	assert.Nil(t, outputs[2].Envelope)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}

	_, err = runner.Submit(context.Background(), credit(alice, 1, 1))
	assert.True(t, errors.Is(err, core.ErrStopped), "got %v", err)
}

func TestRunner_CancelledSubmissionIsSkipped(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, vault.ModeDebt, nil, 1024)
	runner := core.NewRunner(f.proc, 8, 0, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = runner.Run(ctx)
	}()

	subCtx, subCancel := context.WithCancel(context.Background())
	subCancel()
	_, err := runner.Submit(subCtx, credit(alice, 1000, 0))
	assert.ErrorIs(t, err, context.Canceled)

	cancel()
	<-done
	assert.Equal(t, int64(0), f.proc.Sequence())
}

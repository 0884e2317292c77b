package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCaptureRestoreStateRoundTrip exercises spec §8 invariant P7 for the
// slice of sequencer state the Bridge Batcher owns: operations queued
// before a checkpoint reappear, with the same identity, after restore.
func TestCaptureRestoreStateRoundTrip(t *testing.T) {
	b := newTestBatcher(t)
	defer b.Close()

	// Use a very large batch size, and stay below the highest priority level
	// (2), which triggers a batch on its own, so deposits stay queued rather
	// than immediately draining into a batch.
	b.cfg.BatchSize = 1000

	id1, err := b.Deposit(context.Background(), DepositParams{Amount: 10, Sender: "a", Recipient: "b", Priority: 1})
	require.NoError(t, err)
	id2, err := b.Deposit(context.Background(), DepositParams{Amount: 20, Sender: "c", Recipient: "d", Priority: 0})
	require.NoError(t, err)

	state := b.CaptureState()
	assert.Len(t, state.PendingOps, 2)

	b2 := newTestBatcher(t)
	defer b2.Close()
	b2.RestoreState(state)

	status1, err := b2.GetOperationStatus(id1)
	require.NoError(t, err)
	assert.Equal(t, Pending, status1.Status)

	status2, err := b2.GetOperationStatus(id2)
	require.NoError(t, err)
	assert.Equal(t, 0, status2.Priority)
}

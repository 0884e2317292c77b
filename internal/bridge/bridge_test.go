package bridge

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/l2labs/rollup-sequencer/internal/config"
	"github.com/l2labs/rollup-sequencer/internal/settlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testHarness struct {
	*Batcher
	settlementFake *settlement.InMemoryClient
}

func newTestBatcher(t *testing.T) *testHarness {
	t.Helper()
	cfg := config.BridgeConfig{
		BatchSize:             4,
		MaxParallelism:        2,
		ConfirmationLevels:    2,
		AdaptiveConfirmations: true,
		MinConf:               1,
		MaxConf:               5,
		HighValueThreshold:    100_000_000_000,
		CachingEnabled:        true,
		CacheSize:             100,
		CacheTTLMs:            3_600_000,
		PriorityLevels:        3,
	}
	fake := settlement.NewInMemoryClient(sha256.Sum256([]byte("genesis")))
	b := New(cfg, fake, nil, nil)
	return &testHarness{Batcher: b, settlementFake: fake}
}

func validProof(sender string, amount uint64) (MerkleProof, [32]byte) {
	leaf, _ := leafHash(sender, amount)
	h1 := allBytes(0x00)
	intermediate := sha256.Sum256(append(append([]byte{}, h1[:]...), leaf[:]...))
	h2 := allBytes(0xff)
	root := sha256.Sum256(append(append([]byte{}, intermediate[:]...), h2[:]...))
	return MerkleProof{h1, h2}, root
}

func TestDepositRejectsInvalidParams(t *testing.T) {
	b := newTestBatcher(t)
	defer b.Close()

	_, err := b.Deposit(context.Background(), DepositParams{Amount: 0, Sender: "a", Recipient: "b"})
	assert.ErrorIs(t, err, ErrValidationFailed)

	_, err = b.Deposit(context.Background(), DepositParams{Amount: 1, Sender: "", Recipient: "b"})
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestDepositAssignsAdaptiveConfirmation(t *testing.T) {
	b := newTestBatcher(t)
	defer b.Close()

	id, err := b.Deposit(context.Background(), DepositParams{Amount: 50_000_000_000, Sender: "a", Recipient: "b"})
	require.NoError(t, err)

	op := b.lookupTest(id)
	require.NotNil(t, op)
	assert.Equal(t, 3, op.Conf)
}

func TestWithdrawRejectsInvalidProof(t *testing.T) {
	b := newTestBatcher(t)
	defer b.Close()

	bad := MerkleProof{allBytes(0x11), allBytes(0x22)}
	_, err := b.Withdraw(context.Background(), WithdrawParams{Amount: 10, Sender: "A", Recipient: "b", Proof: bad})
	assert.ErrorIs(t, err, ErrInvalidProof)
}

func TestWithdrawAcceptsValidProof(t *testing.T) {
	b := newTestBatcher(t)
	defer b.Close()

	proof, root := validProof("A", 10)
	b.settlementFake.SetRoot(root)

	id, err := b.Withdraw(context.Background(), WithdrawParams{Amount: 10, Sender: "A", Recipient: "b", Proof: proof})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	status, err := b.GetOperationStatus(id)
	require.NoError(t, err)
	assert.Equal(t, Withdrawal, status.Kind)
}

func TestGetOperationStatusUnknown(t *testing.T) {
	b := newTestBatcher(t)
	defer b.Close()

	_, err := b.GetOperationStatus("does-not-exist")
	assert.ErrorIs(t, err, ErrUnknownOperation)
}

// TestBatchSelectionPriorityOrder exercises spec §8 scenario 3: priorities
// drain highest-first, oldest-first within a priority.
func TestBatchSelectionPriorityOrder(t *testing.T) {
	q := newPriorityQueues(3)
	base := time.Now()
	mk := func(id string, priority int, age time.Duration) *Operation {
		return &Operation{ID: id, Priority: priority, queued: base.Add(-age)}
	}

	// Enqueue (p2, t=1), (p0, t=0), (p2, t=3), (p1, t=2) using age as a
	// stand-in for the spec's logical timestamps (smaller t = older).
	opP2T1 := mk("p2t1", 2, 3*time.Second)
	opP0T0 := mk("p0t0", 0, 4*time.Second)
	opP2T3 := mk("p2t3", 2, 1*time.Second)
	opP1T2 := mk("p1t2", 1, 2*time.Second)

	q.enqueue(opP0T0)
	q.enqueue(opP2T1)
	q.enqueue(opP2T3)
	q.enqueue(opP1T2)

	selected := q.drain(4)
	var ids []string
	for _, op := range selected {
		ids = append(ids, op.ID)
	}
	assert.Equal(t, []string{"p2t1", "p2t3", "p1t2", "p0t0"}, ids)
}

func TestMaybeTriggerBatchProcessesQueuedOperations(t *testing.T) {
	b := newTestBatcher(t)
	defer b.Close()

	for i := 0; i < 4; i++ {
		_, err := b.Deposit(context.Background(), DepositParams{Amount: 1, Sender: "s", Recipient: "r"})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		status := b.GetStatus()
		return status.BatchCount >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

// lookupTest exposes byID for white-box tests without growing the public
// API surface.
func (b *Batcher) lookupTest(id string) *Operation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.byID[id]
}

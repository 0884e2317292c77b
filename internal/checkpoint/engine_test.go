package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/l2labs/rollup-sequencer/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, maxCheckpoints int) *Engine {
	t.Helper()
	dir := t.TempDir()
	e, err := NewEngine(config.RecoveryConfig{
		CheckpointDir:      dir,
		CheckpointInterval: 5,
		MaxCheckpoints:     maxCheckpoints,
	}, "sequencer-pubkey", nil, nil)
	require.NoError(t, err)
	return e
}

func sampleState(batchCount uint64) State {
	return State{
		PendingOps: []OperationRecord{{ID: "op-1", Kind: "Deposit", Amount: 100, Sender: "a", Recipient: "b"}},
		PriorityOps: map[int][]OperationRecord{
			0: {{ID: "op-2", Kind: "Withdrawal", Amount: 50, Sender: "c", Recipient: "d"}},
		},
		NonceByAccount:     []NoncePair{{Account: "a", Nonce: 3}},
		ProcessedCount:     42,
		BatchCount:         batchCount,
		LastBatchTimestamp: time.Now().UnixMilli(),
	}
}

func TestCreateWritesAndLoadsRoundTrip(t *testing.T) {
	e := newTestEngine(t, 10)

	state := sampleState(1)
	rec, err := e.Create(state)
	require.NoError(t, err)
	assert.Len(t, rec.ID, 16)

	loaded, err := e.Load()
	require.NoError(t, err)
	assert.Equal(t, rec.ID, loaded.ID)
	assert.Equal(t, state.ProcessedCount, loaded.State.ProcessedCount)
	assert.Equal(t, map[string]uint64{"a": 3}, loaded.State.NonceMap())
}

func TestCheckpointIDsAreUnique(t *testing.T) {
	e := newTestEngine(t, 10)
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		rec, err := e.Create(sampleState(uint64(i)))
		require.NoError(t, err)
		assert.False(t, seen[rec.ID], "duplicate checkpoint id %q", rec.ID)
		seen[rec.ID] = true
	}
}

func TestRetentionKeepsNewestOnly(t *testing.T) {
	e := newTestEngine(t, 3)

	for i := 0; i < 5; i++ {
		_, err := e.Create(sampleState(uint64(i)))
		require.NoError(t, err)
		time.Sleep(time.Millisecond) // force strictly increasing timestamps
	}

	entries, err := os.ReadDir(e.cfg.CheckpointDir)
	require.NoError(t, err)
	var jsonFiles int
	for _, ent := range entries {
		if filepath.Ext(ent.Name()) == ".json" {
			jsonFiles++
		}
	}
	assert.Equal(t, 3, jsonFiles)
}

func TestLoadSkipsCorruptFiles(t *testing.T) {
	e := newTestEngine(t, 10)

	good, err := e.Create(sampleState(1))
	require.NoError(t, err)
	_ = good

	corruptPath := filepath.Join(e.cfg.CheckpointDir, "deadbeefdeadbeef.json")
	require.NoError(t, os.WriteFile(corruptPath, []byte("{not json"), 0o644))

	// The corrupt entry has no parseable timestamp, so Load must skip it and
	// still return the good checkpoint.
	time.Sleep(time.Millisecond)
	rec, err := e.Load()
	require.NoError(t, err)
	assert.NotEqual(t, "deadbeefdeadbeef", rec.ID)
}

func TestLoadWithNoCheckpointsReturnsErrNoCheckpoints(t *testing.T) {
	e := newTestEngine(t, 10)
	_, err := e.Load()
	assert.ErrorIs(t, err, ErrNoCheckpoints)
}

func TestRestoreWithNoCheckpointsIsNotAnError(t *testing.T) {
	e := newTestEngine(t, 10)
	p := &fakeProvider{}
	assert.NoError(t, e.Restore(p))
	assert.False(t, p.restored)
}

func TestRestoreAppliesNewestState(t *testing.T) {
	e := newTestEngine(t, 10)
	_, err := e.Create(sampleState(1))
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = e.Create(sampleState(2))
	require.NoError(t, err)

	p := &fakeProvider{}
	require.NoError(t, e.Restore(p))
	require.True(t, p.restored)
	assert.Equal(t, uint64(2), p.state.BatchCount)
}

func TestRecordOpTriggersAtInterval(t *testing.T) {
	e := newTestEngine(t, 10)
	var due bool
	for i := 0; i < 5; i++ {
		due = e.RecordOp()
	}
	assert.True(t, due)
	e.ResetCounter()
	assert.False(t, e.RecordOp())
}

type fakeProvider struct {
	restored bool
	state    State
}

func (f *fakeProvider) CaptureState() State { return f.state }
func (f *fakeProvider) RestoreState(s State) {
	f.restored = true
	f.state = s
}

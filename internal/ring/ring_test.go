package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoundsCapacityToPowerOfTwo(t *testing.T) {
	b := New(10, false)
	assert.EqualValues(t, 16, b.Capacity())
}

func TestClaimPublishRead(t *testing.T) {
	b := New(4, false)

	seq, err := b.ClaimNext()
	require.NoError(t, err)
	assert.EqualValues(t, 0, seq)

	_, ok := b.Read(seq)
	assert.False(t, ok, "unpublished slot must not be readable")

	b.Publish(seq, "payload")

	payload, ok := b.Read(seq)
	require.True(t, ok)
	assert.Equal(t, "payload", payload)
}

func TestReadStaleSequenceFails(t *testing.T) {
	b := New(2, false)

	seq, err := b.ClaimNext()
	require.NoError(t, err)
	b.Publish(seq, "first")

	_, ok := b.Read(seq + 100)
	assert.False(t, ok, "reading a sequence never written must fail")
}

func TestMarkProcessedDoesNotAdvanceGating(t *testing.T) {
	b := New(2, false)
	gating := b.AddGatingSequence()
	assert.EqualValues(t, -1, *gating)

	seq, err := b.ClaimNext()
	require.NoError(t, err)
	b.Publish(seq, "x")
	b.MarkProcessed(seq)

	assert.EqualValues(t, -1, *gating, "MarkProcessed must not move a consumer's own gating sequence")
}

// TestClaimNextFullHonorsCapacity exercises spec P6: at no point does
// cursor - min(gating) exceed the buffer's capacity. With no consumer
// advancing its gating sequence, the producer can claim exactly `capacity`
// slots before ClaimNext fails fast with ErrFull.
func TestClaimNextFullHonorsCapacity(t *testing.T) {
	b := New(4, false)
	b.AddGatingSequence() // never advanced

	for i := 0; i < 4; i++ {
		seq, err := b.ClaimNext()
		require.NoErrorf(t, err, "claim %d should succeed within capacity", i)
		b.Publish(seq, i)
	}

	_, err := b.ClaimNext()
	assert.ErrorIs(t, err, ErrFull)
}

func TestClaimNextSucceedsAfterGatingAdvances(t *testing.T) {
	b := New(2, false)
	gating := b.AddGatingSequence()

	for i := 0; i < 2; i++ {
		seq, err := b.ClaimNext()
		require.NoError(t, err)
		b.Publish(seq, i)
	}

	_, err := b.ClaimNext()
	require.ErrorIs(t, err, ErrFull)

	// Consumer catches up to sequence 0; one more slot frees up.
	*gating = 0

	seq, err := b.ClaimNext()
	require.NoError(t, err)
	assert.EqualValues(t, 2, seq)
}

func TestMultiClaimPublishesInClaimOrder(t *testing.T) {
	b := New(8, true)

	seq0, err := b.ClaimNext()
	require.NoError(t, err)
	seq1, err := b.ClaimNext()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		b.Publish(seq1, "second")
		close(done)
	}()

	// seq1 must stall behind seq0 in multi-claim mode.
	select {
	case <-done:
		t.Fatal("Publish(seq1) returned before its predecessor was published")
	default:
	}

	b.Publish(seq0, "first")
	<-done

	first, ok := b.Read(seq0)
	require.True(t, ok)
	assert.Equal(t, "first", first)

	second, ok := b.Read(seq1)
	require.True(t, ok)
	assert.Equal(t, "second", second)
}

func TestClear(t *testing.T) {
	b := New(2, false)
	gating := b.AddGatingSequence()

	seq, err := b.ClaimNext()
	require.NoError(t, err)
	b.Publish(seq, "x")
	*gating = seq

	b.Clear()

	assert.EqualValues(t, -1, b.Cursor())
	assert.EqualValues(t, -1, *gating)
	_, ok := b.Read(seq)
	assert.False(t, ok)
}

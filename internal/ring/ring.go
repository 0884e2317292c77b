// Package ring implements the fixed-capacity circular slot store and
// sequence claim/publish machinery that the Disruptor core is built on
// (spec §4.1 — Ring Buffer & Sequencer).
//
// The algorithm follows the classic LMAX Disruptor shape seen across the
// corpus (the producer claims a monotonic cursor, with an atomic fetch-add
// in multi-claim mode, consumers each own a gating sequence, and the producer may
// not overwrite a slot still owned by the slowest consumer).
package ring

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrFull is returned by ClaimNext when there is no free slot: the gap
// between the producer cursor and the slowest consumer's gating sequence
// has reached capacity.
var ErrFull = errors.New("ring: full")

// Status is the lifecycle of a single ring slot.
type Status int

const (
	Empty Status = iota
	Published
	Processed
)

type slot struct {
	mu       sync.Mutex
	sequence int64
	status   Status
	payload  any
}

// Buffer is a fixed power-of-two-capacity circular store of payload slots,
// guarded by a monotonically increasing sequence cursor.
type Buffer struct {
	capacity int64
	mask     int64
	slots    []slot

	cursor int64 // highest sequence ever claimed, -1 = nothing claimed

	gatingMu sync.RWMutex
	gating   []*int64 // one gating sequence per registered consumer

	multiClaim bool
	published  int64 // high-water mark of sequences actually published (multi-claim mode)
}

// New creates a Buffer with capacity rounded up to the next power of two.
// multiClaim selects the claim policy: false is single-producer (default),
// true allows concurrent claimers that must still publish in claim order.
func New(capacity int, multiClaim bool) *Buffer {
	cap64 := nextPow2(int64(capacity))
	return &Buffer{
		capacity:   cap64,
		mask:       cap64 - 1,
		slots:      make([]slot, cap64),
		cursor:     -1,
		published:  -1,
		multiClaim: multiClaim,
	}
}

func nextPow2(n int64) int64 {
	if n < 1 {
		return 1
	}
	p := int64(1)
	for p < n {
		p <<= 1
	}
	return p
}

// Capacity returns the rounded power-of-two capacity.
func (b *Buffer) Capacity() int64 { return b.capacity }

// AddGatingSequence registers a new consumer's gating sequence, starting at
// -1 (nothing consumed). The returned pointer must be advanced by the
// caller (via MarkProcessed or direct store) as the consumer progresses.
func (b *Buffer) AddGatingSequence() *int64 {
	seq := new(int64)
	*seq = -1
	b.gatingMu.Lock()
	b.gating = append(b.gating, seq)
	b.gatingMu.Unlock()
	return seq
}

func (b *Buffer) minGatingSequence() int64 {
	b.gatingMu.RLock()
	defer b.gatingMu.RUnlock()
	if len(b.gating) == 0 {
		return atomic.LoadInt64(&b.cursor)
	}
	min := atomic.LoadInt64(b.gating[0])
	for _, g := range b.gating[1:] {
		v := atomic.LoadInt64(g)
		if v < min {
			min = v
		}
	}
	return min
}

// ClaimNext reserves the next sequence. It fails fast with ErrFull when the
// producer would outrun the slowest consumer by a full capacity's worth of
// unread slots.
func (b *Buffer) ClaimNext() (int64, error) {
	if b.multiClaim {
		seq := atomic.AddInt64(&b.cursor, 1)
		if seq-1-b.minGatingSequence() >= b.capacity {
			// Roll back is not possible for a fetch-add cursor without CAS
			// retries; surface Full and let the caller retry/back-pressure.
			return 0, ErrFull
		}
		return seq, nil
	}

	cur := atomic.LoadInt64(&b.cursor)
	next := cur + 1
	if cur-b.minGatingSequence() >= b.capacity {
		return 0, ErrFull
	}
	atomic.StoreInt64(&b.cursor, next)
	return next, nil
}

// Publish writes payload into the slot for seq and marks it Published. seq
// must be the value returned by ClaimNext; publishing out of claim order in
// multi-claim mode stalls until the immediate predecessor has published.
func (b *Buffer) Publish(seq int64, payload any) {
	if b.multiClaim {
		for atomic.LoadInt64(&b.published) != seq-1 {
			// stall until predecessor published, per spec §4.1
		}
	}

	idx := seq & b.mask
	s := &b.slots[idx]
	s.mu.Lock()
	s.sequence = seq
	s.payload = payload
	s.status = Published
	s.mu.Unlock()

	atomic.StoreInt64(&b.published, seq)
}

// Read returns the payload at seq iff the slot's stored sequence still
// equals seq and is Published. A stale or empty slot returns (nil, false).
func (b *Buffer) Read(seq int64) (any, bool) {
	idx := seq & b.mask
	s := &b.slots[idx]
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sequence == seq && s.status == Published {
		return s.payload, true
	}
	return nil, false
}

// MarkProcessed marks the slot for seq as Processed. It does not by itself
// advance any gating sequence — callers own their gating pointer and must
// store the new value themselves once done reading.
func (b *Buffer) MarkProcessed(seq int64) {
	idx := seq & b.mask
	s := &b.slots[idx]
	s.mu.Lock()
	if s.sequence == seq {
		s.status = Processed
	}
	s.mu.Unlock()
}

// Cursor returns the current producer cursor (last claimed sequence).
func (b *Buffer) Cursor() int64 { return atomic.LoadInt64(&b.cursor) }

// Clear resets the buffer to its initial empty state. Not safe to call
// concurrently with producers or consumers.
func (b *Buffer) Clear() {
	for i := range b.slots {
		b.slots[i] = slot{sequence: -1}
	}
	atomic.StoreInt64(&b.cursor, -1)
	atomic.StoreInt64(&b.published, -1)
	b.gatingMu.Lock()
	for _, g := range b.gating {
		atomic.StoreInt64(g, -1)
	}
	b.gatingMu.Unlock()
}

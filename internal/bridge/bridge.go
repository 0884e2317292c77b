// Package bridge implements the Bridge Batcher (C6): priority-queued,
// adaptively-confirmed ingest of deposits and withdrawals, batched for
// parallel dispatch, with Merkle-proof verification for withdrawals and
// optimistic pre-execution (spec §4.3).
package bridge

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/l2labs/rollup-sequencer/internal/checkpoint"
	"github.com/l2labs/rollup-sequencer/internal/config"
	"github.com/l2labs/rollup-sequencer/internal/disruptor"
	"github.com/l2labs/rollup-sequencer/internal/settlement"
)

// Handler executes the per-operation business logic that spec §1 scopes
// out of this system. When nil, operations succeed unconditionally — a
// pass-through suitable for tests and local development.
type Handler func(op *Operation) error

// EventPublisher is the narrow seam the Bridge uses to emit domain events
// into the Disruptor core (C5), per spec §2 "C6 also emits domain events
// into C5". Satisfied by *disruptor.Disruptor.
type EventPublisher interface {
	Publish(ctx context.Context, body any, opts disruptor.PublishOptions) (*disruptor.Result, error)
}

// oldestAgeTrigger is the 10s "oldest queued item" batch-trigger threshold
// from spec §4.3 condition (c).
const oldestAgeTrigger = 10 * time.Second

// Batcher is the Bridge Batcher: priority queues for deposits and
// withdrawals, adaptive confirmation assignment, Merkle-proof
// verification with a TTL'd cache, optimistic pre-execution, and
// parallel-dispatch batch processing.
type Batcher struct {
	cfg        config.BridgeConfig
	settlement settlement.Client
	events     EventPublisher
	handler    Handler
	onAccept   OnAccept
	metrics    Metrics
	log        *slog.Logger

	mu         sync.Mutex
	deposits   *priorityQueues
	withdrawal *priorityQueues
	byID       map[string]*Operation

	batchMu sync.Mutex // at most one batch of either kind processes at a time

	cache *proofCache

	processedCount uint64
	batchCount     uint64
	lastBatchAt    time.Time
	nonces         map[string]uint64

	closing chan struct{}
	closed  bool
	wg      sync.WaitGroup
}

// Option configures optional collaborators on New.
type Option func(*Batcher)

// WithEventPublisher wires the Bridge's domain-event emission into a
// Disruptor core (spec §2).
func WithEventPublisher(p EventPublisher) Option {
	return func(b *Batcher) { b.events = p }
}

// WithHandler plugs in the per-operation business logic (spec §1 scopes
// its concrete implementation out of this system).
func WithHandler(h Handler) Option {
	return func(b *Batcher) { b.handler = h }
}

// OnAccept is invoked synchronously once an operation is queued, before any
// batch/optimistic work starts. It is the seam cmd/sequencer uses to drive
// the Checkpoint Engine's accepted-ops counter (spec §4.5 "Trigger")
// without the bridge package importing internal/checkpoint's Engine type
// directly.
type OnAccept func(*Operation)

// WithOnAccept registers a callback fired after every successfully queued
// operation.
func WithOnAccept(fn OnAccept) Option {
	return func(b *Batcher) { b.onAccept = fn }
}

// New constructs a Batcher. settlementClient supplies the external
// settlement-layer root/submit capability (spec §6.1).
func New(cfg config.BridgeConfig, settlementClient settlement.Client, metrics Metrics, log *slog.Logger, opts ...Option) *Batcher {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	levels := cfg.PriorityLevels
	if levels < 1 {
		levels = 1
	}
	b := &Batcher{
		cfg:        cfg,
		settlement: settlementClient,
		metrics:    metrics,
		log:        log.With("component", "bridge"),
		deposits:   newPriorityQueues(levels),
		withdrawal: newPriorityQueues(levels),
		byID:       make(map[string]*Operation),
		nonces:     make(map[string]uint64),
		closing:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.cfg.CachingEnabled {
		b.cache = newProofCache(b.cfg.CacheSize, b.cfg.CacheTTL())
	}

	b.wg.Add(1)
	go b.gcLoop()

	return b
}

func newOperationID() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("bridge: generate operation id: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// Deposit validates params, assigns an id and adaptive confirmation level,
// enqueues the operation, and may trigger a batch or the optimistic
// pre-path (spec §4.3).
func (b *Batcher) Deposit(ctx context.Context, p DepositParams) (string, error) {
	if p.Amount == 0 || p.Sender == "" || p.Recipient == "" {
		return "", fmt.Errorf("%w: amount, sender, and recipient are required", ErrValidationFailed)
	}
	id, err := newOperationID()
	if err != nil {
		return "", err
	}

	op := &Operation{
		ID:        id,
		Kind:      Deposit,
		Amount:    p.Amount,
		Sender:    p.Sender,
		Recipient: p.Recipient,
		Token:     p.Token,
		Priority:  p.Priority,
		Conf:      b.confirmationFor(p.Amount),
		CreatedAt: time.Now(),
		queued:    time.Now(),
	}
	return b.accept(ctx, op)
}

// Withdraw validates params plus a mandatory Merkle-proof check against the
// current L1 root; an invalid proof fails immediately with ErrInvalidProof
// and the operation never advances past Pending (spec §3 Invariants, §4.3).
func (b *Batcher) Withdraw(ctx context.Context, p WithdrawParams) (string, error) {
	if p.Amount == 0 || p.Sender == "" || p.Recipient == "" {
		return "", fmt.Errorf("%w: amount, sender, and recipient are required", ErrValidationFailed)
	}
	ok, err := b.verifyProof(p.Sender, p.Amount, p.Proof)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrInvalidProof
	}

	id, err := newOperationID()
	if err != nil {
		return "", err
	}

	op := &Operation{
		ID:        id,
		Kind:      Withdrawal,
		Amount:    p.Amount,
		Sender:    p.Sender,
		Recipient: p.Recipient,
		Token:     p.Token,
		Priority:  p.Priority,
		Proof:     p.Proof,
		Conf:      b.confirmationFor(p.Amount),
		CreatedAt: time.Now(),
		queued:    time.Now(),
	}
	return b.accept(ctx, op)
}

func (b *Batcher) confirmationFor(amount uint64) int {
	if !b.cfg.AdaptiveConfirmations {
		return b.cfg.ConfirmationLevels
	}
	return adaptiveConfirmation(amount, b.cfg.MinConf, b.cfg.MaxConf, b.cfg.HighValueThreshold)
}

// accept enqueues op (single-writer under b.mu, per spec §5), emits a
// domain event, optionally runs the optimistic pre-path, and evaluates the
// batch-trigger policy.
func (b *Batcher) accept(ctx context.Context, op *Operation) (string, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return "", ErrClosed
	}
	b.queueFor(op.Kind).enqueue(op)
	b.byID[op.ID] = op
	b.mu.Unlock()

	b.metrics.IncCounter(metricOpsAccepted, 1, map[string]string{"kind": op.Kind.String()})

	if b.onAccept != nil {
		b.onAccept(op)
	}

	if b.events != nil {
		body := op
		if _, err := b.events.Publish(ctx, body, disruptor.PublishOptions{Priority: op.Priority}); err != nil {
			b.log.Warn("failed to emit domain event", "operation", op.ID, "error", err)
		}
	}

	if b.cfg.OptimisticExecution {
		b.wg.Add(1)
		go b.runOptimistic(op)
	}

	b.maybeTriggerBatch(op.Kind)
	return op.ID, nil
}

func (b *Batcher) queueFor(kind Kind) *priorityQueues {
	if kind == Withdrawal {
		return b.withdrawal
	}
	return b.deposits
}

// runOptimistic implements spec §4.3's optimistic path: mark
// ProcessingOptimistic and, for withdrawals, prefetch the Merkle proof
// into the cache. Failures are discarded silently — settlement still
// requires the batch path.
func (b *Batcher) runOptimistic(op *Operation) {
	defer b.wg.Done()
	op.setStatus(ProcessingOptimistic)
	if op.Kind == Withdrawal && b.cfg.PrefetchingEnabled {
		if _, err := b.verifyProof(op.Sender, op.Amount, op.Proof); err != nil {
			b.log.Debug("optimistic proof prefetch failed", "operation", op.ID, "error", err)
		}
	}
}

// maybeTriggerBatch evaluates spec §4.3's batch-trigger policy and
// dispatches a batch of kind if any condition holds. At most one batch of
// either kind runs at a time (batchMu).
func (b *Batcher) maybeTriggerBatch(kind Kind) {
	if !b.batchMu.TryLock() {
		return
	}

	b.mu.Lock()
	q := b.queueFor(kind)
	due := q.total() >= b.cfg.BatchSize || q.highestNonEmpty() || q.oldestAge(time.Now()) > oldestAgeTrigger
	b.mu.Unlock()

	if !due {
		b.batchMu.Unlock()
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.batchMu.Unlock()
		b.runBatch(kind)
	}()
}

// runBatch selects a batch, optionally gas-optimizes withdrawals, and
// dispatches it across parallel workers (spec §4.3 "Selection",
// "Gas optimization", "Parallel dispatch").
func (b *Batcher) runBatch(kind Kind) {
	b.mu.Lock()
	ops := b.queueFor(kind).drain(b.cfg.BatchSize)
	b.mu.Unlock()
	if len(ops) == 0 {
		return
	}

	if kind == Withdrawal && b.cfg.GasOptimizationEnabled {
		ops = gasOptimize(ops)
	}

	result := b.dispatchBatch(kind, ops)

	b.mu.Lock()
	b.batchCount++
	b.lastBatchAt = time.Now()
	b.processedCount += uint64(len(result.successful))
	b.mu.Unlock()

	b.metrics.IncCounter(metricBatchesFlushed, 1, map[string]string{"kind": kind.String()})
	b.metrics.ObserveHistogram(metricBatchSize, float64(len(ops)), map[string]string{"kind": kind.String()})
	b.metrics.IncCounter(metricOpsSucceeded, float64(len(result.successful)), map[string]string{"kind": kind.String()})
	b.metrics.IncCounter(metricOpsFailed, float64(len(result.failed)), map[string]string{"kind": kind.String()})

	b.log.Info("batch processed", "kind", kind.String(), "successful", len(result.successful), "failed", len(result.failed))
}

// GetOperationStatus looks id up in the index of every accepted operation,
// whether still queued or already dispatched, and returns a snapshot view,
// or ErrUnknownOperation if it was never accepted (or was accepted before
// the last RestoreState, which rebuilds the index from the checkpoint).
// Entries are never removed from the index otherwise.
func (b *Batcher) GetOperationStatus(id string) (StatusView, error) {
	b.mu.Lock()
	op, ok := b.byID[id]
	b.mu.Unlock()
	if !ok {
		return StatusView{}, ErrUnknownOperation
	}
	return op.snapshot(), nil
}

// StatusSummary is the getStatus() response of spec §4.3.
type StatusSummary struct {
	DepositsQueued    []int
	WithdrawalsQueued []int
	ProcessedCount    uint64
	BatchCount        uint64
	LastBatchAt       time.Time
	Config            config.BridgeConfig
}

// GetStatus reports queued counts per priority level, processed/batch
// counters, and the effective configuration (spec §4.3).
func (b *Batcher) GetStatus() StatusSummary {
	b.mu.Lock()
	defer b.mu.Unlock()
	return StatusSummary{
		DepositsQueued:    b.deposits.countsByLevel(),
		WithdrawalsQueued: b.withdrawal.countsByLevel(),
		ProcessedCount:    b.processedCount,
		BatchCount:        b.batchCount,
		LastBatchAt:       b.lastBatchAt,
		Config:            b.cfg,
	}
}

// CaptureState implements checkpoint.StateProvider (spec §4.5/§3).
func (b *Batcher) CaptureState() checkpoint.State {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := checkpoint.State{
		PriorityOps:        make(map[int][]checkpoint.OperationRecord),
		ProcessedCount:     b.processedCount,
		BatchCount:         b.batchCount,
		LastBatchTimestamp: b.lastBatchAt.UnixMilli(),
	}
	for _, q := range []*priorityQueues{b.deposits, b.withdrawal} {
		for _, op := range q.snapshot() {
			rec := toRecord(op)
			state.PendingOps = append(state.PendingOps, rec)
			state.PriorityOps[op.Priority] = append(state.PriorityOps[op.Priority], rec)
		}
	}
	for acct, nonce := range b.nonces {
		state.NonceByAccount = append(state.NonceByAccount, checkpoint.NoncePair{Account: acct, Nonce: nonce})
	}
	return state
}

// RestoreState implements checkpoint.StateProvider: it repopulates the
// priority queues and counters from a loaded checkpoint (spec §4.5
// "Restore"). Restored operations start back at Pending — the sequencer
// re-drives them through the normal batch path (at-least-once, per spec §1
// Non-goals).
func (b *Batcher) RestoreState(state checkpoint.State) {
	b.mu.Lock()
	defer b.mu.Unlock()

	levels := b.cfg.PriorityLevels
	if levels < 1 {
		levels = 1
	}
	b.deposits = newPriorityQueues(levels)
	b.withdrawal = newPriorityQueues(levels)
	b.byID = make(map[string]*Operation)

	for _, rec := range state.PendingOps {
		op := fromRecord(rec)
		b.queueFor(op.Kind).enqueue(op)
		b.byID[op.ID] = op
	}
	b.nonces = state.NonceMap()
	b.processedCount = state.ProcessedCount
	b.batchCount = state.BatchCount
	if state.LastBatchTimestamp > 0 {
		b.lastBatchAt = time.UnixMilli(state.LastBatchTimestamp)
	}
}

func toRecord(op *Operation) checkpoint.OperationRecord {
	return checkpoint.OperationRecord{
		ID:        op.ID,
		Kind:      op.Kind.String(),
		Amount:    op.Amount,
		Sender:    op.Sender,
		Recipient: op.Recipient,
		Token:     op.Token,
		Priority:  op.Priority,
		CreatedAt: op.CreatedAt.UnixMilli(),
	}
}

func fromRecord(rec checkpoint.OperationRecord) *Operation {
	kind := Deposit
	if rec.Kind == "withdrawal" {
		kind = Withdrawal
	}
	return &Operation{
		ID:        rec.ID,
		Kind:      kind,
		Amount:    rec.Amount,
		Sender:    rec.Sender,
		Recipient: rec.Recipient,
		Token:     rec.Token,
		Priority:  rec.Priority,
		CreatedAt: time.UnixMilli(rec.CreatedAt),
		queued:    time.UnixMilli(rec.CreatedAt),
	}
}

// gcLoop sweeps the proof cache every 60s (spec §4.3 "Cache GC") until
// Close. Background-loop failures are impossible here (in-memory only) but
// the shape matches the other components' cooperative timer loops.
func (b *Batcher) gcLoop() {
	defer b.wg.Done()
	if b.cache == nil {
		<-b.closing
		return
	}
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-b.closing:
			return
		case <-ticker.C:
			b.cache.gc()
		}
	}
}

// Close drains and stops the batcher: no more operations are accepted,
// in-flight work finishes, and the background GC loop stops.
func (b *Batcher) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	close(b.closing)
	b.wg.Wait()
}

// Package disruptor implements the Disruptor Event Core (spec §4.2): a
// single-producer/multi-consumer ring buffer with sequenced publication,
// dependency-aware scheduling, batch coalescing, and parallel worker
// dispatch. It is built directly on internal/ring (C2) and uses
// github.com/joeycumines/go-microbatch for its batch-coalescing publish
// path, the same batching shape demonstrated in that package's own
// example_test.go.
package disruptor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/joeycumines/go-microbatch"

	"github.com/l2labs/rollup-sequencer/internal/config"
	"github.com/l2labs/rollup-sequencer/internal/ring"
)

// Handler executes the domain-specific body of an event. The spec
// explicitly scopes the actual per-event business logic out (§1); this is
// the seam a caller (e.g. the Bridge Batcher) plugs into.
type Handler func(ctx context.Context, event *Event) (any, error)

// Metrics is the narrow slice of the Telemetry Facade the Disruptor pushes
// samples into. Implemented by internal/telemetry.Registry.
type Metrics interface {
	IncCounter(name string, delta float64, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
}

type inFlightEntry struct {
	event     *Event
	startedAt time.Time
	workerID  int
}

// Disruptor wires together the ring buffer, dependency graph, completed-id
// set, batching publisher, and worker pool described in spec §4.2.
type Disruptor struct {
	cfg     config.DisruptorConfig
	ring    *ring.Buffer
	wait    WaitStrategy
	handler Handler
	metrics Metrics
	log     *slog.Logger

	completed *completedSet
	deps      *depGraph

	mu          sync.Mutex
	pendingDeps map[string]*Event
	inFlight    map[string]inFlightEntry
	results     map[string]*Result

	batcher *microbatch.Batcher[*Event]

	shuttingDown atomic.Bool
	closed       chan struct{}
	workerWG     sync.WaitGroup
	gatingSeqs   []*int64
}

// New constructs a Disruptor ready to Publish and run workers. handler
// executes the opaque body of each event once its dependencies are
// satisfied.
func New(cfg config.DisruptorConfig, handler Handler, metrics Metrics, log *slog.Logger) *Disruptor {
	if log == nil {
		log = slog.Default()
	}
	multiClaim := cfg.ClaimStrategy == "multi"
	d := &Disruptor{
		cfg:         cfg,
		ring:        ring.New(cfg.BufferSize, multiClaim),
		wait:        NewWaitStrategy(cfg.WaitStrategy),
		handler:     handler,
		metrics:     metrics,
		log:         log.With("component", "disruptor"),
		completed:   newCompletedSet(cfg.MaxDependencies),
		deps:        newDepGraph(),
		pendingDeps: make(map[string]*Event),
		inFlight:    make(map[string]inFlightEntry),
		results:     make(map[string]*Result),
		closed:      make(chan struct{}),
	}

	if cfg.EnableBatchProcessing {
		d.batcher = microbatch.NewBatcher(&microbatch.BatcherConfig{
			MaxSize:        cfg.BatchSize,
			FlushInterval:  cfg.BatchTimeout(),
			MaxConcurrency: 1,
		}, d.flushBatch)
	}

	for i := 0; i < cfg.WorkerCount; i++ {
		d.gatingSeqs = append(d.gatingSeqs, d.ring.AddGatingSequence())
	}

	d.workerWG.Add(cfg.WorkerCount)
	for i := 0; i < cfg.WorkerCount; i++ {
		go d.runWorker(i)
	}

	return d
}

// Publish enqueues an event, returning a Result future. If batching is
// enabled the event is appended to the pending batch and claimed/published
// once that batch flushes; otherwise it claims and publishes immediately.
func (d *Disruptor) Publish(ctx context.Context, body any, opts PublishOptions) (*Result, error) {
	if d.shuttingDown.Load() {
		return nil, fmt.Errorf("disruptor: shutting down")
	}

	ev := &Event{
		ID:           uuid.NewString(),
		Body:         body,
		CreatedAt:    time.Now(),
		Dependencies: opts.Dependencies,
		Priority:     opts.Priority,
		state:        Queued,
	}
	if err := d.deps.checkCycle(ev.ID, ev.Dependencies); err != nil {
		return nil, err
	}

	result := newResult()
	d.mu.Lock()
	d.results[ev.ID] = result
	d.mu.Unlock()

	if d.batcher != nil {
		if _, err := d.batcher.Submit(ctx, ev); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := d.claimAndPublish(ev); err != nil {
		return nil, err
	}
	return result, nil
}

// flushBatch is the microbatch.BatchProcessor for the coalescing path:
// claim one ring sequence per event and publish, in submission order.
func (d *Disruptor) flushBatch(_ context.Context, events []*Event) error {
	for _, ev := range events {
		if err := d.claimAndPublish(ev); err != nil {
			d.failEvent(ev, err)
		}
	}
	return nil
}

func (d *Disruptor) claimAndPublish(ev *Event) error {
	seq, err := d.ring.ClaimNext()
	if err != nil {
		return err
	}
	ev.sequence = seq
	ev.state = Published
	d.ring.Publish(seq, ev)
	d.wait.Signal()
	return nil
}

func (d *Disruptor) failEvent(ev *Event, err error) {
	d.mu.Lock()
	result := d.results[ev.ID]
	delete(d.results, ev.ID)
	d.mu.Unlock()
	if result != nil {
		result.complete(nil, err)
	}
	if ev.Callback != nil {
		ev.Callback(nil, err)
	}
}

// runWorker is the read loop for worker i: it owns gating sequence i and
// reads only sequences where seq % workerCount == i, per spec §4.2's
// "route to workers[seq mod workerCount]" assignment rule.
func (d *Disruptor) runWorker(id int) {
	defer d.workerWG.Done()

	defer func() {
		if r := recover(); r != nil {
			d.log.Error("worker crashed", "worker", id, "panic", r)
			d.reapWorker(id)
			backoff := 50 * time.Millisecond
			time.Sleep(backoff)
			d.workerWG.Add(1)
			go d.runWorker(id)
		}
	}()

	next := int64(id)
	gating := d.gatingSeqs[id]

	for {
		if d.shuttingDown.Load() && d.inFlightEmpty() {
			return
		}

		payload, ok := d.ring.Read(next)
		if !ok {
			if d.shuttingDown.Load() {
				// No more publications will arrive; only keep looping while
				// there might still be unread sequences below the cursor.
				if next > d.ring.Cursor() {
					return
				}
			}
			d.wait.Wait()
			continue
		}

		ev := payload.(*Event)
		d.handleRead(ev, id)

		atomic.StoreInt64(gating, next)
		next += int64(d.cfg.WorkerCount)
	}
}

func (d *Disruptor) inFlightEmpty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inFlight) == 0 && len(d.pendingDeps) == 0
}

// handleRead implements the two-step decision spec §4.2 describes for a
// freshly read event: park if dependencies are unmet, else dispatch.
func (d *Disruptor) handleRead(ev *Event, workerID int) {
	missing := d.completed.Missing(ev.Dependencies)

	if len(missing) > 0 {
		d.mu.Lock()
		d.pendingDeps[ev.ID] = ev
		d.mu.Unlock()
		ev.state = PendingDeps
		d.deps.register(ev.ID, ev.Dependencies, d.completed.Has)
		return
	}

	d.deps.forget(ev.ID)
	d.dispatch(ev, workerID)
}

func (d *Disruptor) dispatch(ev *Event, workerID int) {
	ev.state = InFlight
	d.mu.Lock()
	d.inFlight[ev.ID] = inFlightEntry{event: ev, startedAt: time.Now(), workerID: workerID}
	d.mu.Unlock()

	exec := func() {
		defer func() {
			if r := recover(); r != nil {
				d.handleProcessed(ev.ID, nil, fmt.Errorf("disruptor: handler panic: %v", r))
			}
		}()
		result, err := d.handler(context.Background(), ev)
		d.handleProcessed(ev.ID, result, err)
	}

	if d.cfg.EnableParallelProcessing {
		go exec()
	} else {
		exec()
	}
}

// handleProcessed implements spec §4.2's completion contract: remove from
// in-flight, add to the completed set, invoke the callback, and unblock any
// dependents whose last missing dependency was this event.
func (d *Disruptor) handleProcessed(id string, result any, err error) {
	d.mu.Lock()
	entry, hadEntry := d.inFlight[id]
	delete(d.inFlight, id)
	res := d.results[id]
	delete(d.results, id)
	d.mu.Unlock()

	if hadEntry {
		if err != nil {
			entry.event.state = Failed
		} else {
			entry.event.state = Succeeded
		}
	}

	d.completed.Add(id)

	if res != nil {
		res.complete(result, err)
	}
	if hadEntry && entry.event.Callback != nil {
		entry.event.Callback(result, err)
	}

	unblocked := d.deps.complete(id)
	for _, uid := range unblocked {
		d.mu.Lock()
		ev, ok := d.pendingDeps[uid]
		if ok {
			delete(d.pendingDeps, uid)
		}
		d.mu.Unlock()
		if ok {
			d.dispatch(ev, int(ev.sequence)%max(d.cfg.WorkerCount, 1))
		}

	}

	if d.metrics != nil {
		status := "succeeded"
		if err != nil {
			status = "failed"
		}
		d.metrics.IncCounter("disruptor_events_completed_total", 1, map[string]string{"status": status})
	}
}

// reapWorker surfaces every in-flight event currently owned by workerID as
// a WorkerLost failure (spec §7) — it is not retried automatically.
func (d *Disruptor) reapWorker(workerID int) {
	d.mu.Lock()
	var lost []string
	for id, entry := range d.inFlight {
		if entry.workerID == workerID {
			lost = append(lost, id)
		}
	}
	d.mu.Unlock()

	for _, id := range lost {
		d.handleProcessed(id, nil, ErrWorkerLost)
	}
}

// Shutdown stops accepting new publications, flushes any pending batch,
// drains in-flight work via polling, and waits for all workers to exit.
func (d *Disruptor) Shutdown(ctx context.Context) error {
	d.shuttingDown.Store(true)

	if d.batcher != nil {
		_ = d.batcher.Shutdown(ctx)
	}

	for !d.inFlightEmpty() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}

	if bs, ok := d.wait.(*BlockingWaitStrategy); ok {
		bs.Signal()
	}

	d.workerWG.Wait()
	close(d.closed)
	return nil
}

// Closed returns a channel closed once Shutdown has fully drained.
func (d *Disruptor) Closed() <-chan struct{} { return d.closed }

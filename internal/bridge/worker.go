package bridge

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// chunkTimeout is the 30s hard timeout spec §4.3/§5 places on each worker
// chunk's dispatch.
const chunkTimeout = 30 * time.Second

// processOperationsMsg is the coordinator->worker message of spec §6.2.
type processOperationsMsg struct {
	operationType string // "deposits" | "withdrawals"
	operations    []*Operation
}

// operationsProcessedResult is the worker->coordinator reply of spec §6.2.
type operationsProcessedResult struct {
	successful []string
	failed     []failedOp
}

type failedOp struct {
	id    string
	error string
}

// chunk splits ops into n roughly equal, ceil-divided pieces, assigning
// chunk i to worker i mod workerCount per spec §4.3 "Parallel dispatch".
func chunk(ops []*Operation, n int) [][]*Operation {
	if n < 1 {
		n = 1
	}
	if len(ops) == 0 {
		return nil
	}
	size := (len(ops) + n - 1) / n
	if size < 1 {
		size = 1
	}
	var chunks [][]*Operation
	for i := 0; i < len(ops); i += size {
		end := i + size
		if end > len(ops) {
			end = len(ops)
		}
		chunks = append(chunks, ops[i:end])
	}
	return chunks
}

// dispatchBatch splits a selected batch into workerCount chunks and
// executes each concurrently via errgroup, with a hard per-chunk timeout
// (spec §4.3 "Parallel dispatch"). A chunk that times out fails as
// ErrWorkerTimeout and its operations are marked Failed; it does not abort
// sibling chunks.
func (b *Batcher) dispatchBatch(kind Kind, ops []*Operation) operationsProcessedResult {
	chunks := chunk(ops, b.cfg.MaxParallelism)
	results := make([]operationsProcessedResult, len(chunks))

	g, _ := errgroup.WithContext(context.Background())
	for i, c := range chunks {
		i, c := i, c
		workerID := i % b.cfg.MaxParallelism
		g.Go(func() error {
			results[i] = b.runWorkerChunk(workerID, kind, c)
			return nil
		})
	}
	_ = g.Wait()

	var merged operationsProcessedResult
	for _, r := range results {
		merged.successful = append(merged.successful, r.successful...)
		merged.failed = append(merged.failed, r.failed...)
	}
	return merged
}

// runWorkerChunk executes processOperationsMsg for a single chunk, bounded
// by chunkTimeout. The actual per-operation business logic is explicitly
// out of scope (spec §1) — b.handler plugs it in; when unset, operations
// succeed unconditionally (a pass-through suitable for tests/dev).
func (b *Batcher) runWorkerChunk(workerID int, kind Kind, ops []*Operation) operationsProcessedResult {
	msg := processOperationsMsg{operationType: kind.pluralName(), operations: ops}

	done := make(chan operationsProcessedResult, 1)
	go func() {
		done <- b.processChunk(workerID, msg)
	}()

	select {
	case res := <-done:
		return res
	case <-time.After(chunkTimeout):
		var res operationsProcessedResult
		for _, op := range ops {
			res.failed = append(res.failed, failedOp{id: op.ID, error: ErrWorkerTimeout.Error()})
		}
		b.log.Warn("worker chunk timed out", "worker", workerID, "kind", kind.String(), "count", len(ops))
		return res
	}
}

func (b *Batcher) processChunk(workerID int, msg processOperationsMsg) operationsProcessedResult {
	var res operationsProcessedResult
	for _, op := range msg.operations {
		op.setStatus(Processing)
		var err error
		if b.handler != nil {
			err = b.handler(op)
		}
		if err != nil {
			op.setFailed(err)
			res.failed = append(res.failed, failedOp{id: op.ID, error: err.Error()})
			continue
		}
		op.setStatus(Succeeded)
		res.successful = append(res.successful, op.ID)
	}
	return res
}

func (k Kind) pluralName() string {
	if k == Withdrawal {
		return "withdrawals"
	}
	return "deposits"
}

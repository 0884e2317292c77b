package bridge

import (
	"sync"
	"time"
)

// Kind distinguishes a deposit crossing into L2 from a withdrawal leaving
// it (spec §3).
type Kind int

const (
	Deposit Kind = iota
	Withdrawal
)

func (k Kind) String() string {
	if k == Withdrawal {
		return "withdrawal"
	}
	return "deposit"
}

// Status is an operation's lifecycle stage. Transitions are monotonic:
// Pending -> (ProcessingOptimistic?) -> Processing -> (Succeeded | Failed);
// Failed is terminal (spec §3 "Invariants").
type Status int

const (
	Pending Status = iota
	ProcessingOptimistic
	Processing
	Succeeded
	Failed
	Unknown
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case ProcessingOptimistic:
		return "processing_optimistic"
	case Processing:
		return "processing"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// MerkleProof is an ordered sequence of 32-byte sibling hashes (spec §3).
type MerkleProof [][32]byte

// Operation is a deposit or withdrawal moving through the Bridge Batcher
// (spec §3 "Operation").
type Operation struct {
	ID        string
	Kind      Kind
	Amount    uint64
	Sender    string
	Recipient string
	Token     string // empty means native asset
	Priority  int
	Conf      int // adaptive confirmation level, in [minConf, maxConf]
	Proof     MerkleProof
	CreatedAt time.Time

	EstimatedGas uint64 // advisory only; never populated by the ingest path, see spec §9

	mu      sync.Mutex
	status  Status
	queued  time.Time
	failErr error
}

// setStatus moves an operation forward in its monotonic state machine
// (spec §3 "Invariants"); a request to move to an earlier status is
// ignored. Failed is terminal and is set only via setFailed.
func (op *Operation) setStatus(s Status) {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.status == Failed || s < op.status {
		return
	}
	op.status = s
}

// setFailed terminally fails an operation, recording the error for status
// views.
func (op *Operation) setFailed(err error) {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.status = Failed
	op.failErr = err
}

// snapshot returns a StatusView for this operation under its lock.
func (op *Operation) snapshot() StatusView {
	op.mu.Lock()
	defer op.mu.Unlock()
	v := StatusView{
		ID:                op.ID,
		Kind:              op.Kind,
		Status:            op.status,
		ConfirmationLevel: op.Conf,
		Priority:          op.Priority,
		QueuedAt:          op.queued,
	}
	if op.failErr != nil {
		v.Error = op.failErr.Error()
	}
	return v
}

// DepositParams is the validated input to Deposit.
type DepositParams struct {
	Amount    uint64
	Sender    string
	Recipient string
	Token     string
	Priority  int
}

// WithdrawParams is the validated input to Withdraw; Proof is mandatory.
type WithdrawParams struct {
	Amount    uint64
	Sender    string
	Recipient string
	Token     string
	Priority  int
	Proof     MerkleProof
}

// StatusView is the snapshot getOperationStatus returns. Beyond the bare
// status enum spec.md requires, it also surfaces ConfirmationLevel,
// QueuedAt, and Priority — a supplemented field set mirroring the
// teacher's EscrowTransaction.LayerStatus full-detail view (SPEC_FULL.md
// "Supplemented features").
type StatusView struct {
	ID                string
	Kind              Kind
	Status            Status
	ConfirmationLevel int
	Priority          int
	QueuedAt          time.Time
	Error             string
}

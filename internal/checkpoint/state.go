package checkpoint

// OperationRecord is the serializable projection of a Bridge Batcher
// operation carried inside a checkpoint's state snapshot.
type OperationRecord struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Amount    uint64 `json:"amount"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Token     string `json:"token,omitempty"`
	Priority  int    `json:"priority"`
	CreatedAt int64  `json:"createdAt"`
}

// NoncePair is one entry of the nonce-by-account map, carried as an
// ordered pair so it round-trips through JSON without relying on
// non-string map keys.
type NoncePair struct {
	Account string `json:"account"`
	Nonce   uint64 `json:"nonce"`
}

// State is the sequencer-relevant snapshot of Bridge Batcher (C6) state a
// checkpoint captures (spec §3 "Checkpoint record").
type State struct {
	PendingOps         []OperationRecord   `json:"pendingOps"`
	PriorityOps        map[int][]OperationRecord `json:"priorityOps"`
	NonceByAccount     []NoncePair         `json:"nonceByAccount"`
	ProcessedCount     uint64              `json:"processedCount"`
	BatchCount         uint64              `json:"batchCount"`
	LastBatchTimestamp int64               `json:"lastBatchTimestamp"`
}

// NonceMap reconstructs the ordered-pair nonce list into a lookup map,
// as the Bridge Batcher's RestoreState does on restore.
func (s State) NonceMap() map[string]uint64 {
	m := make(map[string]uint64, len(s.NonceByAccount))
	for _, p := range s.NonceByAccount {
		m[p.Account] = p.Nonce
	}
	return m
}

// StateProvider is implemented by whatever owns the sequencer-relevant
// state (the Bridge Batcher, in practice) so the
// Checkpoint Engine can capture and restore it without depending on
// their concrete types.
type StateProvider interface {
	CaptureState() State
	RestoreState(State)
}

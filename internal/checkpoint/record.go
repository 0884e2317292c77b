package checkpoint

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Record is one on-disk checkpoint: an id, the capture timestamp, the
// sequencer's public identity, and the state snapshot itself (spec §3).
type Record struct {
	ID                 string `json:"id"`
	Timestamp          int64  `json:"timestamp"`
	SequencerPublicKey string `json:"sequencerPublicKey"`
	State              State  `json:"state"`
}

// newCheckpointID derives a 16-char hex id from
// SHA256(pubKey‖millis‖counter‖16 random bytes) (spec §4.5 "ID").
func newCheckpointID(pubKey string, millis int64, counter uint64) (string, error) {
	var randBytes [16]byte
	if _, err := rand.Read(randBytes[:]); err != nil {
		return "", fmt.Errorf("checkpoint: read random bytes: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(pubKey))

	var millisBuf [8]byte
	binary.BigEndian.PutUint64(millisBuf[:], uint64(millis))
	h.Write(millisBuf[:])

	var counterBuf [8]byte
	binary.BigEndian.PutUint64(counterBuf[:], counter)
	h.Write(counterBuf[:])

	h.Write(randBytes[:])

	sum := h.Sum(nil)
	return hex.EncodeToString(sum)[:16], nil
}

func filename(id string) string {
	return id + ".json"
}

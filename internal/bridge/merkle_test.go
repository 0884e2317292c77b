package bridge

import (
	"bytes"
	"crypto/sha256"
	"testing"
)

func allBytes(b byte) [32]byte {
	var out [32]byte
	for i := range out {
		out[i] = b
	}
	return out
}

// TestMerkleFoldScenario exercises spec §8 scenario 2: an ordered-pair fold
// where h1 sorts before the leaf and h2 sorts after the intermediate hash.
func TestMerkleFoldScenario(t *testing.T) {
	leaf, err := leafHash("A", 10)
	if err != nil {
		t.Fatalf("leafHash: %v", err)
	}

	h1 := allBytes(0x00) // guaranteed <= leaf
	intermediate := sha256.Sum256(append(append([]byte{}, h1[:]...), leaf[:]...))
	h2 := allBytes(0xff) // guaranteed > intermediate

	want := sha256.Sum256(append(append([]byte{}, intermediate[:]...), h2[:]...))

	got := foldProof(leaf, MerkleProof{h1, h2})
	if !bytes.Equal(got[:], want[:]) {
		t.Fatalf("foldProof = %x, want %x", got, want)
	}
}

func TestMerkleLeafCanonicalJSON(t *testing.T) {
	got, err := leafHash("A", 10)
	if err != nil {
		t.Fatalf("leafHash: %v", err)
	}
	want := sha256.Sum256([]byte(`{"sender":"A","amount":10}`))
	if got != want {
		t.Fatalf("leafHash mismatch: got %x want %x", got, want)
	}
}

func TestFoldProofOrderDependent(t *testing.T) {
	leaf, _ := leafHash("B", 5)
	a := allBytes(0x01)
	b := allBytes(0x02)

	forward := foldProof(leaf, MerkleProof{a, b})
	reversed := foldProof(leaf, MerkleProof{b, a})
	if forward == reversed {
		t.Fatalf("expected proof order to change the fold result")
	}
}

func TestVerifyProofAcceptsMatchingRoot(t *testing.T) {
	b := newTestBatcher(t)
	defer b.Close()

	leaf, _ := leafHash("A", 10)
	h1 := allBytes(0x00)
	intermediate := sha256.Sum256(append(append([]byte{}, h1[:]...), leaf[:]...))
	h2 := allBytes(0xff)
	root := sha256.Sum256(append(append([]byte{}, intermediate[:]...), h2[:]...))

	b.settlementFake.SetRoot(root)

	ok, err := b.verifyProof("A", 10, MerkleProof{h1, h2})
	if err != nil {
		t.Fatalf("verifyProof: %v", err)
	}
	if !ok {
		t.Fatalf("expected proof to verify against matching root")
	}

	ok, err = b.verifyProof("A", 10, MerkleProof{h2, h1})
	if err != nil {
		t.Fatalf("verifyProof: %v", err)
	}
	if ok {
		t.Fatalf("expected reordered proof to fail verification")
	}
}

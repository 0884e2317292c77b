package bridge

import "testing"

func TestGasOptimizeGroupsAndOrdersZeroFirst(t *testing.T) {
	ops := []*Operation{
		{ID: "a", Token: "USDC", Recipient: "r1", Amount: 50},
		{ID: "b", Token: "USDC", Recipient: "r1", Amount: 0},
		{ID: "c", Token: "USDC", Recipient: "r2", Amount: 100},
		{ID: "d", Token: "ETH", Recipient: "r1", Amount: 10},
	}

	out := gasOptimize(ops)
	if len(out) != len(ops) {
		t.Fatalf("expected %d operations, got %d", len(ops), len(out))
	}

	// Within the (USDC, r1) group, the zero-amount entry must lead.
	var usdcR1 []*Operation
	for _, op := range out {
		if op.Token == "USDC" && op.Recipient == "r1" {
			usdcR1 = append(usdcR1, op)
		}
	}
	if len(usdcR1) != 2 || usdcR1[0].ID != "b" {
		t.Fatalf("expected zero-amount entry first in (USDC,r1) group, got %+v", usdcR1)
	}

	seen := make(map[string]bool)
	for _, op := range out {
		if seen[op.ID] {
			t.Fatalf("duplicate operation %s in gas-optimized output", op.ID)
		}
		seen[op.ID] = true
	}
}

func TestGasOptimizeEmpty(t *testing.T) {
	if out := gasOptimize(nil); out != nil {
		t.Fatalf("expected nil for empty input, got %v", out)
	}
}

func TestChunkCeilDivision(t *testing.T) {
	ops := make([]*Operation, 10)
	for i := range ops {
		ops[i] = &Operation{ID: string(rune('a' + i))}
	}

	chunks := chunk(ops, 3)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks of size 4/4/2 for 10 items over 3 workers, got %d", len(chunks))
	}
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	if total != len(ops) {
		t.Fatalf("chunk split lost items: total=%d want=%d", total, len(ops))
	}
}

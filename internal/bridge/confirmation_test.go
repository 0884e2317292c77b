package bridge

import "testing"

// TestAdaptiveConfirmationScenario exercises spec §8 scenario 1 verbatim.
func TestAdaptiveConfirmationScenario(t *testing.T) {
	const (
		minConf   = 1
		maxConf   = 5
		threshold = 100_000_000_000
	)

	cases := []struct {
		amount uint64
		want   int
	}{
		{1, 1},
		{50_000_000_000, 3},
		{100_000_000_000, 5},
		{1_000_000_000_000_000_000, 5},
	}

	for _, c := range cases {
		got := adaptiveConfirmation(c.amount, minConf, maxConf, threshold)
		if got != c.want {
			t.Errorf("adaptiveConfirmation(%d) = %d, want %d", c.amount, got, c.want)
		}
		if got < minConf || got > maxConf {
			t.Errorf("adaptiveConfirmation(%d) = %d out of band [%d,%d]", c.amount, got, minConf, maxConf)
		}
	}
}

// TestAdaptiveConfirmationNonDecreasing checks invariant P1: the function
// never decreases as amount increases.
func TestAdaptiveConfirmationNonDecreasing(t *testing.T) {
	const minConf, maxConf, threshold = 1, 5, 1000
	prev := adaptiveConfirmation(0, minConf, maxConf, threshold)
	for amount := uint64(1); amount <= 2000; amount += 17 {
		got := adaptiveConfirmation(amount, minConf, maxConf, threshold)
		if got < prev {
			t.Fatalf("confirmation decreased at amount=%d: %d < %d", amount, got, prev)
		}
		prev = got
	}
}

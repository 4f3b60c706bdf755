package tsdemux

import "testing"

// TestConformanceGuess is spec.md §8 property 9.
func TestConformanceGuess(t *testing.T) {
	cases := []struct {
		nitPID uint16
		want   Conformance
	}{
		{16, ConformanceDVB},
		{0, ConformanceDVBNoTables},
		{42, ConformanceISO},
	}
	for _, c := range cases {
		var tr ConformanceTracker
		got, _ := tr.Observe(c.nitPID)
		if got != c.want {
			t.Fatalf("nitPID=%d: got %v, want %v", c.nitPID, got, c.want)
		}
	}
}

func TestConformanceManualOverrideCanSelectISDB(t *testing.T) {
	var tr ConformanceTracker
	tr.Observe(16) // would auto-select DVB
	tr.SetManual(ConformanceISDB)
	got, changed := tr.Observe(16)
	if got != ConformanceISDB {
		t.Fatalf("expected manual override to stick at ISDB, got %v", got)
	}
	if changed {
		t.Fatalf("expected no change reported once manual is set")
	}
}

func TestConformanceNeverAutoSelectsISDB(t *testing.T) {
	var tr ConformanceTracker
	for _, pid := range []uint16{0, 16, 1, 42, 8191} {
		got, _ := tr.Observe(pid)
		if got == ConformanceISDB {
			t.Fatalf("auto-detection selected ISDB for nitPID=%d, should never happen", pid)
		}
	}
}

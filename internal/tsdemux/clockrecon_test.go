package tsdemux

import "testing"

// TestPCRWrapIsMonotonicWithNoDiscontinuity is spec.md §8 property 7.
func TestPCRWrapIsMonotonicWithNoDiscontinuity(t *testing.T) {
	var c ClockRecon
	samples90kHz := []uint64{(uint64(1) << 33) - 1, 0, 1, 2}
	var last uint64
	for i, v := range samples90kHz {
		ev := c.Observe(PCR27MHz(v))
		if ev.Discontinuity {
			t.Fatalf("sample %d: unexpected discontinuity", i)
		}
		if i > 0 && ev.ProgramTime <= last {
			t.Fatalf("sample %d: program time not strictly increasing: %d <= %d", i, ev.ProgramTime, last)
		}
		last = ev.ProgramTime
	}
}

// TestPCRDiscontinuityHoldsProgramTime is spec.md §8 property 8.
func TestPCRDiscontinuityHoldsProgramTime(t *testing.T) {
	var c ClockRecon
	ev1 := c.Observe(1000)
	ev2 := c.Observe(1001)
	if ev1.Discontinuity || ev2.Discontinuity {
		t.Fatalf("expected no discontinuity on first two samples")
	}
	highest := ev2.ProgramTime
	ev3 := c.Observe(50_000_000)
	if !ev3.Discontinuity {
		t.Fatalf("expected discontinuity on third sample")
	}
	if ev3.ProgramTime != highest {
		t.Fatalf("expected program time held at %d, got %d", highest, ev3.ProgramTime)
	}
}

// TestReconcileDTSDoesNotLeakIntoNextPCRAdvance guards spec.md §4.7.3's
// separate offset/timestamp_highest model: reconciling a DTS sample ahead
// of the current PCR must not inflate the base the next ordinary PCR
// delta is added to.
func TestReconcileDTSDoesNotLeakIntoNextPCRAdvance(t *testing.T) {
	var c ClockRecon
	c.Observe(1000)

	dts := c.ReconcileDTS(1000+5_000_000, 0)
	if !dts.Ok || dts.DTSProg != 1000+5_000_000 {
		t.Fatalf("expected reconciled DTS at %d, got %+v", 1000+5_000_000, dts)
	}

	ev := c.Observe(2000)
	if ev.Discontinuity {
		t.Fatalf("unexpected discontinuity")
	}
	if want := uint64(2000); ev.ProgramTime != want {
		t.Fatalf("PCR advance leaked DTS bump: program time = %d, want %d", ev.ProgramTime, want)
	}
}

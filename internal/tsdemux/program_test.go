package tsdemux

import (
	"testing"

	"github.com/snapetech/upipe-go/internal/tsdemux/tables"
	"github.com/snapetech/upipe-go/internal/uprobe"
)

// TestPMTDiff is spec.md §8 property 10.
func TestPMTDiff(t *testing.T) {
	prog := NewProgram(newFakeMgr(), nil, 1, 0x1000)

	pmt1 := &tables.PMT{ProgramNumber: 1, ES: []tables.ESEntry{
		{StreamType: 0x1B, PID: 100},
		{StreamType: 0x0F, PID: 200},
	}}
	diff1 := prog.ApplyPMT(pmt1)
	if len(diff1.Added) != 2 {
		t.Fatalf("expected both ES added on first PMT, got %+v", diff1)
	}

	var sourceEndThrown bool
	probe := uprobe.New(func(pipe uprobe.Pipe, event uprobe.Event, args uprobe.Args) uprobe.Status {
		if event == uprobe.SourceEnd {
			sourceEndThrown = true
		}
		return uprobe.Unhandled
	})
	out200 := NewESOutput(newFakeMgr(), probe, 200, StreamTypeFlowDef(0x0F))
	prog.BindOutput(200, out200)

	pmt2 := &tables.PMT{ProgramNumber: 1, ES: []tables.ESEntry{
		{StreamType: 0x1B, PID: 100},
		{StreamType: 0x1B, PID: 300},
	}}
	diff2 := prog.ApplyPMT(pmt2)

	if len(diff2.Removed) != 1 || diff2.Removed[0] != 200 {
		t.Fatalf("expected PID 200 removed, got %+v", diff2)
	}
	if len(diff2.Added) != 1 || diff2.Added[0] != 300 {
		t.Fatalf("expected PID 300 added, got %+v", diff2)
	}
	if !sourceEndThrown {
		t.Fatalf("expected SOURCE_END thrown on the removed ES output")
	}

	iter := prog.Iterate()
	found300 := false
	for _, pid := range iter {
		if pid == 300 {
			found300 = true
		}
		if pid == 200 {
			t.Fatalf("PID 200 should no longer be iterable")
		}
	}
	if !found300 {
		t.Fatalf("expected PID 300 in SPLIT_ITERATE result, got %v", iter)
	}
}

func TestPMTDiffIncompatibleStreamTypeTornDownAndReAdded(t *testing.T) {
	prog := NewProgram(newFakeMgr(), nil, 1, 0x1000)
	prog.ApplyPMT(&tables.PMT{ES: []tables.ESEntry{{StreamType: 0x1B, PID: 100}}})

	diff := prog.ApplyPMT(&tables.PMT{ES: []tables.ESEntry{{StreamType: 0x0F, PID: 100}}})
	if len(diff.Removed) != 1 || diff.Removed[0] != 100 {
		t.Fatalf("expected PID 100 torn down on incompatible stream type change, got %+v", diff)
	}
	if len(diff.Added) != 1 || diff.Added[0] != 100 {
		t.Fatalf("expected PID 100 re-added under new flow def, got %+v", diff)
	}
}

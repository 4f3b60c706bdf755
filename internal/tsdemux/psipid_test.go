package tsdemux

import "testing"

func TestPSIPidSharedAcrossUses(t *testing.T) {
	table := newPSIPidTable(nil)
	mgr := newFakeMgr()
	split := NewSplit(mgr, nil)

	p1 := table.Use(0x10, split, mgr, nil)
	p2 := table.Use(0x10, split, mgr, nil)
	if p1 != p2 {
		t.Fatalf("expected second Use to return the same PSIPid")
	}

	p1.Release()
	if _, ok := table.pids[0x10]; !ok {
		t.Fatalf("expected PSIPid to survive one release out of two uses")
	}
	p2.Release()
	if _, ok := table.pids[0x10]; ok {
		t.Fatalf("expected PSIPid torn down after last release")
	}
}

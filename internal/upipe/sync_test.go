package upipe

import (
	"testing"

	"github.com/snapetech/upipe-go/internal/uprobe"
)

func TestSyncThrowsOnlyOnEdges(t *testing.T) {
	var events []uprobe.Event
	probe := uprobe.New(func(pipe uprobe.Pipe, event uprobe.Event, args uprobe.Args) uprobe.Status {
		events = append(events, event)
		return uprobe.Unhandled
	})
	mgr := newFakeMgr()
	base := NewBase(mgr, probe, "sync-test", nil, nil)

	var s Sync
	s.Update(base, false)
	s.Update(base, false)
	s.Update(base, true)
	s.Update(base, true)
	s.Update(base, false)

	want := []uprobe.Event{uprobe.SyncLost, uprobe.SyncAcquired, uprobe.SyncLost}
	if len(events) != len(want) {
		t.Fatalf("got events %v, want %v", events, want)
	}
	for i, e := range want {
		if events[i] != e {
			t.Fatalf("got events %v, want %v", events, want)
		}
	}
}

package tsdemux

import (
	"sync"

	"github.com/snapetech/upipe-go/internal/ratelog"
	"github.com/snapetech/upipe-go/internal/upipe"
	"github.com/snapetech/upipe-go/internal/uprobe"
	"github.com/snapetech/upipe-go/internal/urefcount"
)

// PSIPid is the bookkeeping object of spec.md §4.7.2: each PID carrying PSI
// has at most one PSIPid, owning the split-output/merge/split filter chain
// shared by every decoder that wants sections from that PID. It is not
// itself a pipe — it is refcounted plumbing, not a processing stage.
type PSIPid struct {
	rc     *urefcount.RefCount
	PID    uint16
	Merge  *PSIMerge
	Split  *PSISplit
}

// psiPidTable tracks the live PSIPid per PID for one demux instance so
// psi_pid_use/psi_pid_release (spec.md §4.7.2) share exactly one filter
// chain regardless of how many decoders register.
type psiPidTable struct {
	mu   sync.Mutex
	pids map[uint16]*PSIPid
	rl   *ratelog.Limiter
}

func newPSIPidTable(rl *ratelog.Limiter) *psiPidTable {
	return &psiPidTable{pids: make(map[uint16]*PSIPid), rl: rl}
}

// Use returns the PSIPid for pid, creating it (and wiring it behind tsSplit)
// on first use; subsequent calls bump its refcount.
func (t *psiPidTable) Use(pid uint16, tsSplit *Split, mgr upipe.Manager, probes *uprobe.Probe) *PSIPid {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.pids[pid]; ok {
		p.rc.Use()
		return p
	}
	merge := NewPSIMerge(mgr, probes, t.rl)
	split := NewPSISplit(mgr, probes)
	merge.SetOutput(split)
	tsSplit.AddSubOutput(pid, merge)

	p := &PSIPid{PID: pid, Merge: merge, Split: split}
	p.rc = urefcount.New(func() {
		tsSplit.RemoveSubOutput(pid, merge)
		t.mu.Lock()
		delete(t.pids, pid)
		t.mu.Unlock()
	})
	t.pids[pid] = p
	return p
}

// Release drops one reference, tearing down the filter chain on last
// release (spec.md §4.7.2).
func (p *PSIPid) Release() { p.rc.Release() }

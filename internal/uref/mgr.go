package uref

import (
	"sync"

	"github.com/snapetech/upipe-go/internal/udict"
	"github.com/snapetech/upipe-go/internal/urefcount"
)

// Mgr pools uref allocations the way ubuf.BlockMgr pools block buffers
// (spec.md §3.3). Unlike ubuf managers, urefs carry almost no shared state
// to amortize beyond the allocation itself, so pooling here mainly avoids
// GC pressure on the hot control-uref path (e.g. per-packet SET_FLOW_DEF
// checks in the TS demux).
type Mgr struct {
	rc *urefcount.RefCount

	mu   sync.Mutex
	pool []*Uref
	cap  int
}

// NewMgr returns a manager with a pool of the given capacity. capacity <= 0
// disables pooling (every New allocates fresh).
func NewMgr(capacity int) *Mgr {
	return &Mgr{rc: urefcount.New(nil), cap: capacity}
}

func (m *Mgr) Refcount() *urefcount.RefCount { return m.rc }

// New returns a control uref, reused from the pool when available.
func (m *Mgr) New() *Uref {
	if m.cap > 0 {
		m.mu.Lock()
		if n := len(m.pool); n > 0 {
			u := m.pool[n-1]
			m.pool = m.pool[:n-1]
			m.mu.Unlock()
			u.Dict = &udict.Dict{}
			u.Ubuf = nil
			u.rc = urefcount.New(func() { m.recycle(u) })
			return u
		}
		m.mu.Unlock()
	}
	u := New()
	if m.cap > 0 {
		mgr := m
		u.rc = urefcount.New(func() {
			if u.Ubuf != nil {
				u.Ubuf.Release()
			}
			mgr.recycle(u)
		})
	}
	return u
}

func (m *Mgr) recycle(u *Uref) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pool) < m.cap {
		m.pool = append(m.pool, u)
	}
}

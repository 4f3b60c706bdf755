package upipe

import (
	"sync"

	"github.com/snapetech/upipe-go/internal/uprobe"
)

// Sync is the tri-state "are we locked onto a valid signal" mixin
// (spec.md §3.8): pipes that detect sync loss/acquisition (the TS
// demux conformance check, PSI section validators) embed this instead of
// tracking a bool and hand-rolling the edge-triggered event throw.
type Sync struct {
	mu       sync.Mutex
	acquired bool
	known    bool
}

// Update reports the current instantaneous sync state and throws
// SyncAcquired/SyncLost on p only on the rising/falling edge.
func (s *Sync) Update(p *Pipe, acquired bool) {
	s.mu.Lock()
	changed := !s.known || s.acquired != acquired
	s.acquired = acquired
	s.known = true
	s.mu.Unlock()
	if !changed {
		return
	}
	if acquired {
		p.Throw(uprobe.SyncAcquired, uprobe.Args{})
	} else {
		p.Throw(uprobe.SyncLost, uprobe.Args{})
	}
}

// Acquired reports the last known sync state.
func (s *Sync) Acquired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired
}

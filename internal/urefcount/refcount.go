// Package urefcount implements the atomic reference-counting primitive shared
// by every pooled or shared object in the pipeline: pipes, managers, probes,
// uref/ubuf managers, the clock, and requests.
package urefcount

import "sync/atomic"

// RefCount is an atomic reference count with a one-shot destructor. Zero
// value is not usable; construct with New.
type RefCount struct {
	n    atomic.Int32
	dtor func()
}

// New returns a RefCount with an initial count of 1. dtor runs exactly once,
// on the transition from 1 to 0 inside Release. A nil dtor marks the object
// as immortal: Use and Release become no-ops and the count never moves, which
// is how a statically allocated manager opts out of the protocol entirely.
func New(dtor func()) *RefCount {
	rc := &RefCount{dtor: dtor}
	rc.n.Store(1)
	return rc
}

// Use increments the count and returns the receiver, so call sites can chain
// it the way the source does, e.g. `held := mgr.Refcount().Use()`.
func (rc *RefCount) Use() *RefCount {
	if rc == nil || rc.dtor == nil {
		return rc
	}
	rc.n.Add(1)
	return rc
}

// Release decrements the count. On the exact transition to zero it invokes
// the destructor. Calling Release more times than Use (plus the initial
// implicit use) is a caller bug; it is not guarded against, matching the
// source's contract that ownership discipline is the caller's job.
func (rc *RefCount) Release() {
	if rc == nil || rc.dtor == nil {
		return
	}
	if rc.n.Add(-1) == 0 {
		rc.dtor()
	}
}

// Single reports whether the count is currently 1. It is read
// non-atomically with respect to concurrent Use/Release in the sense that a
// racing Use immediately after Single returns true still leaves the caller
// wrong if it assumed exclusivity without actually holding the only
// reference by construction — callers must arrange single-ownership
// themselves (e.g. by holding a lock that excludes other Use calls), Single
// is a fast-path check, not a lock.
func (rc *RefCount) Single() bool {
	if rc == nil || rc.dtor == nil {
		return true
	}
	return rc.n.Load() == 1
}

// Count returns the current count, for diagnostics and tests only.
func (rc *RefCount) Count() int32 {
	if rc == nil || rc.dtor == nil {
		return 1
	}
	return rc.n.Load()
}

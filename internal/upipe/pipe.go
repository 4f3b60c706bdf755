// Package upipe implements the pipe/manager lifecycle of spec.md §3.6-§3.8:
// a refcounted Pipe base embedded by every concrete pipe type, a Manager
// interface every pipe family implements, and the helper mixins (Output,
// Sync, bin forwarding, sub/super-pipe bookkeeping, persistent request
// holders) that spec.md §3.8 calls out as shared behavior across families.
//
// Where the original C API dispatches control commands through an untyped
// va_list authenticated by a four-character manager signature, this package
// replaces that with ordinary typed methods plus a small Command interface
// for the handful of places (bin forwarding) that must carry an opaque
// command across a package boundary. See SPEC_FULL.md §7.
package upipe

import (
	"sync"

	"github.com/snapetech/upipe-go/internal/uprobe"
	"github.com/snapetech/upipe-go/internal/urefcount"
)

// Manager is implemented by every pipe family's allocator. Signature
// identifies the family for diagnostics and for dump.go's graph labels.
type Manager interface {
	Refcount() *urefcount.RefCount
	Signature() string
}

// Pipe is the base every concrete pipe embeds. It carries two refcounts:
// ext is what callers Use/Release; real survives ext hitting zero so that
// in-flight helper code (an async request callback, a queued input) can
// keep the pipe's state alive through Dead delivery and into actual
// teardown. This mirrors the two-refcount pattern spec.md §4.1 describes
// for bin sub-pipes that must outlive their external reference briefly.
type Pipe struct {
	mu     sync.Mutex
	name   string
	mgr    Manager
	probes *uprobe.Probe

	ext  *urefcount.RefCount
	real *urefcount.RefCount

	readyOnce sync.Once
	dead      bool
}

// NewBase allocates a Pipe. teardown runs exactly once, synchronously, when
// the external refcount reaches zero, before Dead is thrown; free runs once
// the real refcount (which teardown may still be holding via RealUse) also
// reaches zero. mgr's own refcount is held for the pipe's ext lifetime.
func NewBase(mgr Manager, probes *uprobe.Probe, name string, teardown func(), free func()) *Pipe {
	p := &Pipe{name: name, mgr: mgr, probes: probes}
	p.real = urefcount.New(func() {
		if free != nil {
			free()
		}
	})
	p.ext = urefcount.New(func() {
		p.mu.Lock()
		p.dead = true
		p.mu.Unlock()
		if teardown != nil {
			teardown()
		}
		p.Throw(uprobe.Dead, uprobe.Args{})
		if mgr != nil {
			mgr.Refcount().Release()
		}
		p.real.Release()
	})
	if mgr != nil {
		mgr.Refcount().Use()
	}
	return p
}

func (p *Pipe) Name() string       { return p.name }
func (p *Pipe) Manager() Manager   { return p.mgr }
func (p *Pipe) Probes() *uprobe.Probe { return p.probes }

// SetProbes replaces the probe chain, e.g. when a bin rewires an inner
// pipe's probes to its own catch-all handler at adoption time.
func (p *Pipe) SetProbes(probes *uprobe.Probe) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes = probes
}

func (p *Pipe) Refcount() *urefcount.RefCount { return p.ext }
func (p *Pipe) Use() *Pipe                    { p.ext.Use(); return p }
func (p *Pipe) Release()                      { p.ext.Release() }

// RealUse/RealRelease extend the pipe's storage lifetime independently of
// the external refcount, for code that must keep reading p's fields after
// Dead has already been thrown (e.g. a request proxy's free callback).
func (p *Pipe) RealUse()     { p.real.Use() }
func (p *Pipe) RealRelease() { p.real.Release() }

// IsDead reports whether the external refcount has already reached zero.
func (p *Pipe) IsDead() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dead
}

// Throw sends event down the pipe's probe chain. See spec.md §4.4.
func (p *Pipe) Throw(event uprobe.Event, args uprobe.Args) uprobe.Status {
	p.mu.Lock()
	probes := p.probes
	p.mu.Unlock()
	return uprobe.Throw(probes, p, event, args)
}

// ThrowReadyOnce throws Ready the first time it is called on a given pipe
// and is a no-op afterwards, matching the "exactly once, once the pipe can
// accept input" rule of spec.md §4.1.
func (p *Pipe) ThrowReadyOnce() {
	p.readyOnce.Do(func() {
		p.Throw(uprobe.Ready, uprobe.Args{})
	})
}

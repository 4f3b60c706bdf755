// Package uprobe implements the event-handler chain attached to every pipe
// (spec.md §3.4, §4.4). A chain is an ordered list of Probe handlers; an
// event thrown on a pipe walks the chain front-to-back until one handler
// returns a status other than Unhandled.
package uprobe

import "github.com/snapetech/upipe-go/internal/urefcount"

// Status is the outcome of a single probe's attempt to handle an event.
type Status int

const (
	Unhandled Status = iota
	Handled
	Error
)

// Event identifies what happened. Pipe-family-specific events start at
// Local plus an offset, per spec.md §4.4 ("pipe-local event numbers start
// at UPROBE_LOCAL per family").
type Event int

const (
	Ready Event = iota
	Dead
	SourceEnd
	SinkEnd
	Stalled

	Fatal
	ErrorEvent

	NewFlowDef
	NeedOutput
	SplitUpdate
	NewRap

	ClockRef
	ClockTS
	ClockUTC

	SyncAcquired
	SyncLost

	ProvideRequest

	Local Event = 1000
)

// Pipe is the minimal identity a probe needs about the pipe throwing an
// event — just enough to log or make routing decisions, deliberately not
// the full upipe.Pipe type, so this package has no dependency on upipe and
// upipe can depend on uprobe instead of the reverse.
type Pipe interface {
	Name() string
}

// Args carries event-specific payload. Each event documents which fields it
// populates; unused fields are left zero.
type Args struct {
	FlowDef     string
	ErrCode     int
	Discontinuity bool
	Timestamp   uint64
	Request     any // *urequest.Request, kept as any to avoid an import cycle
	Extra       any
}

// Handler reacts to one event on one pipe. Returning Unhandled lets the
// event continue down the chain; the pipe's caller (e.g. a bin climbing to
// its own probe chain) sees Unhandled only if no handler in the whole chain
// claimed it.
type Handler func(pipe Pipe, event Event, args Args) Status

// Probe is one node in a chain. Probes are refcounted so the same probe
// instance can be shared by many pipes (spec.md §3.4).
type Probe struct {
	rc      *urefcount.RefCount
	handle  Handler
	next    *Probe
}

// New wraps handle in a refcounted probe with no successor.
func New(handle Handler) *Probe {
	p := &Probe{handle: handle}
	p.rc = urefcount.New(func() {})
	return p
}

func (p *Probe) Refcount() *urefcount.RefCount { return p.rc }
func (p *Probe) Use() *Probe                   { p.rc.Use(); return p }
func (p *Probe) Release()                      { p.rc.Release() }

// Chain: with returns a new chain-head probe whose handler runs handle(p)
// first and, if it returns Unhandled, falls through to p. This is how a
// pipe's owner composes multiple probes into one chain without either probe
// knowing about the other.
func (p *Probe) Chained(handle Handler) *Probe {
	head := New(handle)
	head.next = p
	return head
}

// Throw walks the chain starting at p, front to back, stopping at the first
// handler that returns something other than Unhandled. A nil chain (no
// probes attached) always reports Unhandled.
func Throw(p *Probe, pipe Pipe, event Event, args Args) Status {
	for cur := p; cur != nil; cur = cur.next {
		if cur.handle == nil {
			continue
		}
		if st := cur.handle(pipe, event, args); st != Unhandled {
			return st
		}
	}
	return Unhandled
}

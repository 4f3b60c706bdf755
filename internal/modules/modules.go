// Package modules implements the small utility pipes of spec.md §2/§4.7
// used throughout a pipeline for plumbing: setrap (stamp a random-access
// timestamp), setflowdef (override flow.def), idem (passthrough), null
// (discard), and probe_uref (a callback sink for debugging/event
// synthesis, e.g. the teletext PTS-repair use named in spec.md §4.7).
package modules

import (
	"github.com/snapetech/upipe-go/internal/upipe"
	"github.com/snapetech/upipe-go/internal/uprobe"
	"github.com/snapetech/upipe-go/internal/uref"
)

// SetRap stamps k.rap_sys on every uref that passes through, from a value
// it is told to track by its owner (e.g. a program sub-pipe syncing its ES
// outputs' rap_sys to the PMT's, spec.md §4.7).
type SetRap struct {
	*upipe.Pipe
	*upipe.Output
	rapSys uint64
}

func NewSetRap(mgr upipe.Manager, probes *uprobe.Probe) *SetRap {
	s := &SetRap{Output: upipe.NewOutput(64)}
	s.Pipe = upipe.NewBase(mgr, probes, "setrap", nil, nil)
	s.MarkValid()
	return s
}

func (s *SetRap) SetRapSys(rap uint64) { s.rapSys = rap }

func (s *SetRap) Input(u *uref.Uref, pump any) {
	u.Dict.SetUint64(uref.KeyRapSys, s.rapSys)
	s.Emit(u)
}

// SetFlowDef overrides (or injects attributes into) the flow def of every
// uref it passes, used by the PMT path to graft SDT service attributes
// onto ES flow defs (spec.md §4.7 program sub-pipe step).
type SetFlowDef struct {
	*upipe.Pipe
	*upipe.Output
	override func(cur string) string
}

func NewSetFlowDef(mgr upipe.Manager, probes *uprobe.Probe, override func(cur string) string) *SetFlowDef {
	s := &SetFlowDef{Output: upipe.NewOutput(64), override: override}
	s.Pipe = upipe.NewBase(mgr, probes, "setflowdef", nil, nil)
	s.MarkValid()
	return s
}

func (s *SetFlowDef) Input(u *uref.Uref, pump any) {
	if s.override != nil {
		if cur, ok := u.FlowDef(); ok {
			u.SetFlowDef(s.override(cur))
		}
	}
	s.Emit(u)
}

// Idem passes every uref through unchanged. Used as the default
// sync/check/idem choice when the input flow def is already sync-aligned
// (spec.md §6 TS parser external contract).
type Idem struct {
	*upipe.Pipe
	*upipe.Output
}

func NewIdem(mgr upipe.Manager, probes *uprobe.Probe) *Idem {
	i := &Idem{Output: upipe.NewOutput(64)}
	i.Pipe = upipe.NewBase(mgr, probes, "idem", nil, nil)
	i.MarkValid()
	return i
}

func (i *Idem) Input(u *uref.Uref, pump any) { i.Emit(u) }

// Null discards every uref it receives. The canonical sink for outputs
// nobody has connected yet.
type Null struct {
	*upipe.Pipe
}

func NewNull(mgr upipe.Manager, probes *uprobe.Probe) *Null {
	n := &Null{}
	n.Pipe = upipe.NewBase(mgr, probes, "null", nil, nil)
	return n
}

func (n *Null) Input(u *uref.Uref, pump any) { u.Release() }

// ProbeUref is a callback sink: every uref is handed to Fn (if set) and
// then released. Used both as a debug tap and, per spec.md §4.7.3, to
// implement the telx probe that synthesizes DTS for teletext frames that
// carry none.
type ProbeUref struct {
	*upipe.Pipe
	Fn func(u *uref.Uref)
}

func NewProbeUref(mgr upipe.Manager, probes *uprobe.Probe, fn func(u *uref.Uref)) *ProbeUref {
	p := &ProbeUref{Fn: fn}
	p.Pipe = upipe.NewBase(mgr, probes, "probe_uref", nil, nil)
	return p
}

func (p *ProbeUref) Input(u *uref.Uref, pump any) {
	if p.Fn != nil {
		p.Fn(u)
	}
	u.Release()
}

// SinkFunc adapts a plain callback over a uref's raw block bytes into an
// upipe.InputPipe, used by the TS demux orchestrator to feed PSI sections
// into its own table decoders without a dedicated pipe type per table.
type SinkFunc struct {
	*upipe.Pipe
	Fn func(u *uref.Uref)
}

func NewSinkFunc(mgr upipe.Manager, probes *uprobe.Probe, name string, fn func(u *uref.Uref)) *SinkFunc {
	s := &SinkFunc{Fn: fn}
	s.Pipe = upipe.NewBase(mgr, probes, name, nil, nil)
	return s
}

func (s *SinkFunc) Input(u *uref.Uref, pump any) {
	if s.Fn != nil {
		s.Fn(u)
	}
	u.Release()
}

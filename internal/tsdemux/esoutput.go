package tsdemux

import (
	"github.com/snapetech/upipe-go/internal/upipe"
	"github.com/snapetech/upipe-go/internal/uprobe"
	"github.com/snapetech/upipe-go/internal/uref"
)

// ESOutput is the ES output sub-sub-pipe of spec.md §4.7 ("ES output
// sub-sub-pipe"): split-output (filter = PID) -> setrap -> decaps -> pesd
// -> optional probe_uref -> framer, collapsed here into one pipe that
// republishes reconstructed access units downstream and tracks the PMT's
// current rap_sys for its outgoing urefs.
type ESOutput struct {
	*upipe.Pipe
	*upipe.Output
	PID      uint16
	rapSys   uint64
	lastFlow *uref.Uref // the framer's negotiated flow def once known
	pmtFlow  *uref.Uref // fallback: the PMT ES entry's own flow def
}

// NewESOutput allocates an ES output for pid, seeded with the flow def
// the PMT declared for it (spec.md: "GET_FLOW_DEF ... must always have a
// flow def to return").
func NewESOutput(mgr upipe.Manager, probes *uprobe.Probe, pid uint16, pmtFlowDef string) *ESOutput {
	e := &ESOutput{Output: upipe.NewOutput(64), PID: pid}
	e.Pipe = upipe.NewBase(mgr, probes, "ts_demux_es_output", nil, nil)
	pmtFlow := uref.New()
	pmtFlow.SetFlowDef(pmtFlowDef)
	e.pmtFlow = pmtFlow
	return e
}

// SetRapSys sets the random-access-point timestamp stamped on outgoing
// urefs (spec.md §4.7). The demux does not call it, so the stamped value
// stays 0 unless a caller sets it.
func (e *ESOutput) SetRapSys(rap uint64) { e.rapSys = rap }

// Input stamps rap_sys and forwards to whatever is connected downstream.
func (e *ESOutput) Input(u *uref.Uref, pump any) {
	u.Dict.SetUint64(uref.KeyRapSys, e.rapSys)
	e.Emit(u)
}

// GetFlowDef returns the framer's negotiated flow def if one has been
// observed, otherwise the PMT ES entry's own flow def — the pipe must
// always have a flow def to return (spec.md §4.7).
func (e *ESOutput) GetFlowDef() *uref.Uref {
	if e.lastFlow != nil {
		return e.lastFlow
	}
	return e.pmtFlow
}

// ObserveNegotiatedFlowDef records the framer's output flow def once the
// downstream framer negotiates one.
func (e *ESOutput) ObserveNegotiatedFlowDef(def *uref.Uref) {
	e.lastFlow = def
}

// ThrowSourceEnd is called by Program.ApplyPMT when this output's ES PID
// disappears or becomes incompatible (spec.md §4.7 step 1).
func (e *ESOutput) ThrowSourceEnd() {
	e.Throw(uprobe.SourceEnd, uprobe.Args{})
}

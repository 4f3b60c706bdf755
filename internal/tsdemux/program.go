package tsdemux

import (
	"sync"

	"github.com/snapetech/upipe-go/internal/tsdemux/tables"
	"github.com/snapetech/upipe-go/internal/upipe"
	"github.com/snapetech/upipe-go/internal/uprobe"
)

// StreamTypeFlowDef maps an MPEG-TS stream_type to the flow.def prefix its
// elementary stream output should carry (spec.md §6 flow-definition
// vocabulary). Unknown stream types map to the generic "block." prefix.
func StreamTypeFlowDef(streamType uint8) string {
	switch streamType {
	case 0x01, 0x02:
		return "block.mpeg2video."
	case 0x1B:
		return "block.h264."
	case 0x24:
		return "block.h265."
	case 0x03, 0x04:
		return "block.mpeg1audio."
	case 0x0F:
		return "block.aac."
	case 0x81:
		return "block.ac3."
	case 0x06:
		return "block.dvb_subtitle."
	default:
		return "block."
	}
}

// esState is one elementary stream's bookkeeping inside a Program.
type esState struct {
	pid        uint16
	streamType uint8
	flowDef    string
	output     upipe.InputPipe // nil until the application allocates it
}

// Program is the per-program sub-pipe of spec.md §4.7 ("Program
// sub-pipe"): it tracks the current PMT's ES list and decides, on each new
// PMT, which ES outputs survive, which are torn down, and which newly
// appear for allocation.
type Program struct {
	*upipe.Pipe
	mu            sync.Mutex
	ProgramNumber uint16
	PMTPID        uint16
	es            map[uint16]*esState
}

// NewProgram allocates a program sub-pipe.
func NewProgram(mgr upipe.Manager, probes *uprobe.Probe, programNumber, pmtPID uint16) *Program {
	p := &Program{ProgramNumber: programNumber, PMTPID: pmtPID, es: make(map[uint16]*esState)}
	p.Pipe = upipe.NewBase(mgr, probes, "ts_demux_program", nil, nil)
	return p
}

// PMTDiff reports the result of applying a new PMT to the program.
type PMTDiff struct {
	Removed []uint16 // PIDs that received SOURCE_END
	Added   []uint16 // newly available PIDs, not yet allocated
	Kept    []uint16 // PIDs reconfigured in place (pmtd_update)
}

// ApplyPMT implements the ES diff of spec.md §4.7 step 1, resolving the
// open question of spec.md §9 ("by PID only, or PID plus raw_def") as: an
// ES PID that persists across PMT updates but changes incompatible stream
// type is torn down and re-added, not silently kept, because a flow-def
// change the existing sub-output cannot honor is exactly the "missing or
// incompatible ES" case.
func (p *Program) ApplyPMT(pmt *tables.PMT) PMTDiff {
	p.mu.Lock()
	defer p.mu.Unlock()

	var diff PMTDiff
	seen := make(map[uint16]bool, len(pmt.ES))
	for _, es := range pmt.ES {
		seen[es.PID] = true
		newFlowDef := StreamTypeFlowDef(es.StreamType)
		existing, ok := p.es[es.PID]
		switch {
		case !ok:
			p.es[es.PID] = &esState{pid: es.PID, streamType: es.StreamType, flowDef: newFlowDef}
			diff.Added = append(diff.Added, es.PID)
		case existing.flowDef != newFlowDef:
			// Same PID, incompatible flow def: tear down, then make the PID
			// available again under its new shape.
			if existing.output != nil {
				existing.output.(interface{ ThrowSourceEnd() }).ThrowSourceEnd()
			}
			delete(p.es, es.PID)
			p.es[es.PID] = &esState{pid: es.PID, streamType: es.StreamType, flowDef: newFlowDef}
			diff.Removed = append(diff.Removed, es.PID)
			diff.Added = append(diff.Added, es.PID)
		default:
			existing.streamType = es.StreamType
			diff.Kept = append(diff.Kept, es.PID)
		}
	}
	for pid, st := range p.es {
		if seen[pid] {
			continue
		}
		if st.output != nil {
			st.output.(interface{ ThrowSourceEnd() }).ThrowSourceEnd()
		}
		delete(p.es, pid)
		diff.Removed = append(diff.Removed, pid)
	}
	return diff
}

// Iterate lists the currently known ES PIDs, as SPLIT_ITERATE would
// enumerate them for application discovery.
func (p *Program) Iterate() []uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]uint16, 0, len(p.es))
	for pid := range p.es {
		out = append(out, pid)
	}
	return out
}

// BindOutput associates an allocated sub-output pipe with an ES PID so
// future PMT diffs can throw SOURCE_END on it.
func (p *Program) BindOutput(pid uint16, out upipe.InputPipe) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.es[pid]; ok {
		st.output = out
	}
}

// FlowDefFor returns the PMT-declared flow def for an ES PID, or ok=false
// if the PID isn't currently part of this program.
func (p *Program) FlowDefFor(pid uint16) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.es[pid]
	if !ok {
		return "", false
	}
	return st.flowDef, true
}

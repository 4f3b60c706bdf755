package tsdemux

import (
	"sync"

	"github.com/snapetech/upipe-go/internal/ratelog"
	"github.com/snapetech/upipe-go/internal/tsdemux/tables"
	"github.com/snapetech/upipe-go/internal/ubuf"
	"github.com/snapetech/upipe-go/internal/upipe"
	"github.com/snapetech/upipe-go/internal/uprobe"
	"github.com/snapetech/upipe-go/internal/uref"
)

// PSIMerge is ts_psi_merge (spec.md §4.6): it reassembles whole PSI
// sections from a stream of TS packets carrying one PID's payload,
// following the payload-unit-start/pointer-field spanning rules, and
// validates each section's CRC-32 before emitting it.
type PSIMerge struct {
	*upipe.Pipe
	*upipe.Output
	mu      sync.Mutex
	pending []byte
	bufMgr  *ubuf.BlockMgr
	rl      *ratelog.Limiter
}

// NewPSIMerge allocates a ts_psi_merge pipe. rl may be nil, in which case
// CRC failures are dropped silently (tests exercising the parser in
// isolation don't need a logging path); a real demux always supplies one.
func NewPSIMerge(mgr upipe.Manager, probes *uprobe.Probe, rl *ratelog.Limiter) *PSIMerge {
	m := &PSIMerge{Output: upipe.NewOutput(0), bufMgr: ubuf.NewBlockMgr(false), rl: rl}
	m.Pipe = upipe.NewBase(mgr, probes, "ts_psi_merge", nil, nil)
	m.MarkValid()
	return m
}

// Input appends pkt's payload into the pending section buffer, resetting on
// payload_unit_start_indicator, and emits a "block.mpegtspsi." uref whenever
// a full section is accumulated.
func (m *PSIMerge) Input(u *uref.Uref, pump any) {
	block, ok := u.Ubuf.(*ubuf.Block)
	if !ok {
		u.Release()
		return
	}
	pkt, err := block.Read(0, 188)
	if err != nil {
		u.Release()
		return
	}
	u.Release()

	payload := PacketPayload(pkt)
	if payload == nil {
		return
	}
	if PacketPUSI(pkt) {
		if len(payload) < 1 {
			return
		}
		ptr := int(payload[0])
		if 1+ptr > len(payload) {
			return
		}
		// finish any section in flight using bytes before the new pointer
		m.mu.Lock()
		m.pending = append(m.pending, payload[1:1+ptr]...)
		m.flushIfComplete()
		m.pending = append([]byte(nil), payload[1+ptr:]...)
		m.mu.Unlock()
	} else {
		m.mu.Lock()
		m.pending = append(m.pending, payload...)
		m.mu.Unlock()
	}
	m.mu.Lock()
	m.flushIfComplete()
	m.mu.Unlock()
}

// flushIfComplete must be called with mu held. It emits m.pending as a
// section once section_length declares it complete, trimming consumed
// bytes, and validates the CRC before emitting (malformed sections are
// dropped per spec.md §7 WARN-and-drop policy).
func (m *PSIMerge) flushIfComplete() {
	if len(m.pending) < 3 {
		return
	}
	secLen := int(m.pending[1]&0x0F)<<8 | int(m.pending[2])
	total := 3 + secLen
	if len(m.pending) < total {
		return
	}
	section := append([]byte(nil), m.pending[:total]...)
	m.pending = m.pending[total:]

	if !tables.VerifyCRC(section) {
		if m.rl != nil {
			m.rl.Warnf(ratelog.Key{Pipe: "ts_psi_merge", Reason: "bad-crc"},
				"dropping %d-byte section with failed CRC", len(section))
		}
		return
	}
	out := uref.New()
	out.Ubuf = m.bufMgr.NewFromBytes(section)
	out.SetFlowDef("block.mpegtspsi.")
	m.Emit(out)
}

package tsdemux

import (
	"sync"

	"github.com/snapetech/upipe-go/internal/ubuf"
	"github.com/snapetech/upipe-go/internal/upipe"
	"github.com/snapetech/upipe-go/internal/uprobe"
	"github.com/snapetech/upipe-go/internal/uref"
)

// ExtractPCR reads a PCR (33-bit base, 9-bit extension) from a TS adaptation field (ISO/IEC
// 13818-1 §2.4.3.5), returning its value already converted to 27MHz ticks.
func ExtractPCR(pkt []byte) (uint64, bool) {
	if len(pkt) < 6 || pkt[3]&0x20 == 0 {
		return 0, false
	}
	afLen := int(pkt[4])
	if afLen < 1 || pkt[5]&0x10 == 0 {
		return 0, false
	}
	if len(pkt) < 12 {
		return 0, false
	}
	base := uint64(pkt[6])<<25 | uint64(pkt[7])<<17 | uint64(pkt[8])<<9 | uint64(pkt[9])<<1 | uint64(pkt[10]>>7)
	ext := uint64(pkt[10]&0x01)<<8 | uint64(pkt[11])
	return base*300 + ext, true
}

// ExtractPTSDTS decodes the PTS (and optional DTS) from a PES packet
// header, returning values in 90kHz units (as carried on the wire). pes
// must start at the PES start code (0x00 0x00 0x01).
func ExtractPTSDTS(pes []byte) (pts uint64, dts uint64, hasPTS, hasDTS bool) {
	if len(pes) < 9 || pes[0] != 0x00 || pes[1] != 0x00 || pes[2] != 0x01 {
		return
	}
	ptsDTSFlags := (pes[7] >> 6) & 0x03
	if ptsDTSFlags&0x02 != 0 {
		if len(pes) < 14 {
			return
		}
		pts = decodeTimestamp(pes[9:14])
		hasPTS = true
		if ptsDTSFlags&0x01 != 0 {
			if len(pes) < 19 {
				return
			}
			dts = decodeTimestamp(pes[14:19])
			hasDTS = true
		}
	}
	return
}

func decodeTimestamp(b []byte) uint64 {
	return uint64(b[0]&0x0E)<<29 | uint64(b[1])<<22 | uint64(b[2]&0xFE)<<14 | uint64(b[3])<<7 | uint64(b[4]>>1)
}

// Decaps is the TS/PES decapsulation pipe of spec.md §4.7's ES output
// topology: it strips TS headers and adaptation fields, reassembles PES
// packets from payload-unit-start boundaries, and stamps pts_orig/dts_orig
// attributes on the resulting access-unit urefs.
type Decaps struct {
	*upipe.Pipe
	*upipe.Output
	mu      sync.Mutex
	pending []byte
	bufMgr  *ubuf.BlockMgr
}

// NewDecaps allocates a decaps pipe.
func NewDecaps(mgr upipe.Manager, probes *uprobe.Probe) *Decaps {
	d := &Decaps{Output: upipe.NewOutput(64), bufMgr: ubuf.NewBlockMgr(false)}
	d.Pipe = upipe.NewBase(mgr, probes, "ts_decaps", nil, nil)
	d.MarkValid()
	return d
}

// Input accumulates one PES packet's payload across TS packets and emits
// it, with pts_orig/dts_orig set, once a new payload-unit-start begins the
// next one (spec.md §4.5 buffer algebra via ubuf.Block, §4.7.3 clock
// attributes).
func (d *Decaps) Input(u *uref.Uref, pump any) {
	block, ok := u.Ubuf.(*ubuf.Block)
	if !ok {
		u.Release()
		return
	}
	pkt, err := block.Read(0, 188)
	u.Release()
	if err != nil {
		return
	}
	payload := PacketPayload(pkt)
	if payload == nil {
		return
	}

	d.mu.Lock()
	if PacketPUSI(pkt) {
		d.flush()
		d.pending = append([]byte(nil), payload...)
	} else if d.pending != nil {
		d.pending = append(d.pending, payload...)
	}
	d.mu.Unlock()
}

// flush must be called with mu held; it emits the accumulated PES payload.
func (d *Decaps) flush() {
	if len(d.pending) == 0 {
		return
	}
	pes := d.pending
	d.pending = nil

	out := uref.New()
	out.Ubuf = d.bufMgr.NewFromBytes(pes)
	out.SetFlowDef("block.mpegtspes.")
	if pts, dts, hasPTS, hasDTS := ExtractPTSDTS(pes); hasPTS {
		out.Dict.SetUint64(uref.KeyPTSOrig, PCR27MHz(pts))
		if hasDTS {
			out.Dict.SetUint64(uref.KeyDTSOrig, PCR27MHz(dts))
		}
	}
	d.Emit(out)
}

// Flush forces emission of any buffered PES payload, e.g. at teardown.
func (d *Decaps) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flush()
}

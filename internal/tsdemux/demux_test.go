package tsdemux

import (
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/snapetech/upipe-go/internal/ratelog"
	"github.com/snapetech/upipe-go/internal/tsdemux/ca"
	"github.com/snapetech/upipe-go/internal/tsdemux/tables"
	"github.com/snapetech/upipe-go/internal/ubuf"
	"github.com/snapetech/upipe-go/internal/uref"
)

func wrapAsSinglePacketSection(pid uint16, sectionNoPointer []byte) []byte {
	withPointer := append([]byte{0x00}, sectionNoPointer...)
	pkt := make([]byte, 188)
	pkt[0] = 0x47
	pkt[1] = 0x40 | byte((pid>>8)&0x1F) // PUSI=1
	pkt[2] = byte(pid)
	pkt[3] = 0x10 // payload only, cc=0
	copy(pkt[4:], withPointer)
	for i := 4 + len(withPointer); i < 188; i++ {
		pkt[i] = 0xFF
	}
	return pkt
}

func buildPATPacket(programNumber, pmtPID uint16) []byte {
	body := []byte{
		tables.TableIDPAT,
		0xB0, 0x0D,
		0x00, 0x01,
		0xC1, 0x00, 0x00,
		byte(programNumber >> 8), byte(programNumber),
		byte(0xE0 | (pmtPID>>8)&0x1F), byte(pmtPID),
	}
	crc := tables.CRC32(body)
	section := append(body, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
	return wrapAsSinglePacketSection(PIDPAT, section)
}

func buildPMTPacket(pmtPID, programNumber, pcrPID uint16, esPID uint16, streamType uint8) []byte {
	esBytes := []byte{streamType, byte(0xE0 | (esPID>>8)&0x1F), byte(esPID), 0xF0, 0x00}
	secLen := 9 + len(esBytes) + 4
	body := []byte{
		tables.TableIDPMT,
		byte(0xB0 | (secLen>>8)&0x0F), byte(secLen),
		byte(programNumber >> 8), byte(programNumber),
		0xC1, 0x00, 0x00,
		byte(0xE0 | (pcrPID>>8)&0x1F), byte(pcrPID),
		0xF0, 0x00,
	}
	body = append(body, esBytes...)
	crc := tables.CRC32(body)
	section := append(body, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
	return wrapAsSinglePacketSection(pmtPID, section)
}

func feedPacket(d *Demux, pkt []byte) {
	u := uref.New()
	u.Ubuf = ubuf.NewBlockMgr(false).NewFromBytes(pkt)
	d.Input(u, nil)
}

func TestDemuxDiscoversProgramFromPAT(t *testing.T) {
	rl := ratelog.New(rate.Every(time.Minute), 4)
	d := NewDemux(newFakeMgr(), nil, ca.NullEMMDecoder{}, rl)
	feedPacket(d, buildPATPacket(1, 0x20))

	progs := d.Programs()
	if len(progs) != 1 || progs[0] != 1 {
		t.Fatalf("expected program [1], got %v", progs)
	}
	// No NIT entry in the PAT means NITPID defaults to 0x1FFF (absent),
	// which DetectConformance maps to ISO (spec.md §4.7.1).
	if d.Conformance() != ConformanceISO {
		t.Fatalf("expected iso conformance (nit pid absent), got %s", d.Conformance())
	}
}

func TestDemuxAppliesPMTAndAllocatesES(t *testing.T) {
	d := NewDemux(newFakeMgr(), nil, ca.NullEMMDecoder{}, nil)
	feedPacket(d, buildPATPacket(1, 0x20))
	feedPacket(d, buildPMTPacket(0x20, 1, 0x100, 0x100, 0x1B))

	es := d.ElementaryStreams(1)
	if len(es) != 1 || es[0] != 0x100 {
		t.Fatalf("expected ES [0x100], got %v", es)
	}

	out, ok := d.AllocES(1, 0x100)
	if !ok || out == nil {
		t.Fatalf("expected successful ES allocation")
	}
	if def, ok := out.GetFlowDef().FlowDef(); !ok || def != "block.h264." {
		t.Fatalf("expected h264 flow def, got %q ok=%v", def, ok)
	}
}

func TestDemuxRemovesProgramWhenDroppedFromPAT(t *testing.T) {
	d := NewDemux(newFakeMgr(), nil, ca.NullEMMDecoder{}, nil)
	feedPacket(d, buildPATPacket(1, 0x20))
	if len(d.Programs()) != 1 {
		t.Fatalf("expected 1 program after first PAT")
	}

	// A new PAT with no program entries empties the program list.
	body := []byte{tables.TableIDPAT, 0xB0, 0x09, 0x00, 0x01, 0xC1, 0x00, 0x00}
	crc := tables.CRC32(body)
	section := append(body, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
	feedPacket(d, wrapAsSinglePacketSection(PIDPAT, section))

	if len(d.Programs()) != 0 {
		t.Fatalf("expected 0 programs after empty PAT, got %v", d.Programs())
	}
}

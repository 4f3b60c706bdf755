package tsdemux

import (
	"testing"

	"github.com/snapetech/upipe-go/internal/ubuf"
	"github.com/snapetech/upipe-go/internal/uref"
	"github.com/snapetech/upipe-go/internal/urefcount"
)

type fakeMgr struct{ rc *urefcount.RefCount }

func newFakeMgr() *fakeMgr                       { return &fakeMgr{rc: urefcount.New(func() {})} }
func (m *fakeMgr) Refcount() *urefcount.RefCount { return m.rc }
func (m *fakeMgr) Signature() string             { return "fake" }

type collectingOutput struct {
	name string
	got  int
}

func (c *collectingOutput) Name() string { return c.name }
func (c *collectingOutput) Input(u *uref.Uref, pump any) {
	c.got++
	u.Release()
}

func tsPacket(pid uint16, cc uint8) *uref.Uref {
	blk := ubuf.NewBlockMgr(false).New(188)
	hdr, _ := blk.Write(0, 4)
	hdr[0] = 0x47
	hdr[1] = byte((pid >> 8) & 0x1F)
	hdr[2] = byte(pid)
	hdr[3] = 0x10 | (cc & 0x0F)
	u := uref.New()
	u.Ubuf = blk
	return u
}

func TestSplitDeliversOneCopyPerMatchingOutput(t *testing.T) {
	s := NewSplit(newFakeMgr(), nil)
	a := &collectingOutput{name: "a"}
	b := &collectingOutput{name: "b"}
	other := &collectingOutput{name: "other"}
	s.AddSubOutput(0x100, a)
	s.AddSubOutput(0x100, b)
	s.AddSubOutput(0x200, other)

	s.Input(tsPacket(0x100, 0), nil)
	if a.got != 1 || b.got != 1 || other.got != 0 {
		t.Fatalf("unexpected delivery counts a=%d b=%d other=%d", a.got, b.got, other.got)
	}
}

func TestSplitDropsUnmatchedPID(t *testing.T) {
	s := NewSplit(newFakeMgr(), nil)
	out := &collectingOutput{name: "out"}
	s.AddSubOutput(0x100, out)
	s.Input(tsPacket(0x999, 0), nil)
	if out.got != 0 {
		t.Fatalf("expected no delivery for unmatched PID, got %d", out.got)
	}
}

func TestSplitDetectsContinuityCounterError(t *testing.T) {
	s := NewSplit(newFakeMgr(), nil)
	out := &collectingOutput{name: "out"}
	s.AddSubOutput(0x100, out)
	s.Input(tsPacket(0x100, 0), nil)
	s.Input(tsPacket(0x100, 2), nil) // skipped 1 -> CC error
	if s.CCErrors() != 1 {
		t.Fatalf("expected 1 CC error, got %d", s.CCErrors())
	}
}

//go:build linux
// +build linux

package pipefs

import "testing"

type fakeView struct {
	programs map[uint16][]uint16
	pmt      map[uint16][]byte
	flowDefs map[[2]uint16]string
	ccErrors uint64
}

func (f *fakeView) Programs() []uint16 {
	out := make([]uint16, 0, len(f.programs))
	for p := range f.programs {
		out = append(out, p)
	}
	return out
}

func (f *fakeView) ElementaryStreams(programNumber uint16) []uint16 {
	return f.programs[programNumber]
}

func (f *fakeView) PMTRaw(programNumber uint16) ([]byte, bool) {
	b, ok := f.pmt[programNumber]
	return b, ok
}

func (f *fakeView) ProgramFlowDef(programNumber, pid uint16) (string, bool) {
	d, ok := f.flowDefs[[2]uint16{programNumber, pid}]
	return d, ok
}

func (f *fakeView) ContinuityErrors() uint64 { return f.ccErrors }

func TestUniqueSortedPIDsDedupsAcrossPrograms(t *testing.T) {
	view := &fakeView{programs: map[uint16][]uint16{
		1: {0x100, 0x101},
		2: {0x101, 0x200},
	}}
	got := uniqueSortedPIDs(view)
	want := []uint16{0x100, 0x101, 0x200}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestInoFromStringIsStableAndDistinct(t *testing.T) {
	a := inoFromString("pipefs:program:1")
	b := inoFromString("pipefs:program:1")
	c := inoFromString("pipefs:program:2")
	if a != b {
		t.Fatal("inoFromString is not deterministic")
	}
	if a == c {
		t.Fatal("inoFromString collided for distinct keys")
	}
}

func TestContentFileNodeReadsCurrentGenOutput(t *testing.T) {
	calls := 0
	n := &contentFileNode{gen: func() []byte {
		calls++
		return []byte("hello")
	}}
	out := make([]byte, 3)
	res, errno := n.Read(nil, nil, out, 0)
	if errno != 0 {
		t.Fatalf("errno = %v", errno)
	}
	buf := make([]byte, 3)
	rr, status := res.Bytes(buf)
	if status != 0 {
		t.Fatalf("read result status = %v", status)
	}
	if string(rr) != "hel" {
		t.Fatalf("got %q", rr)
	}
	if calls != 1 {
		t.Fatalf("gen called %d times", calls)
	}
}

package ubuf

import "testing"

func TestBlockReadWriteRoundTrip(t *testing.T) {
	mgr := NewBlockMgr(false)
	b := mgr.NewFromBytes([]byte("hello world"))
	defer b.Release()

	got, err := b.Read(0, 5)
	if err != nil || string(got) != "hello" {
		t.Fatalf("read: %q %v", got, err)
	}

	w, err := b.Write(6, 5)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	copy(w, "earth")
	got, _ = b.Read(0, b.Size())
	if string(got) != "hello earth" {
		t.Fatalf("after write: %q", got)
	}
}

func TestBlockInsertZeroCopyConcatenation(t *testing.T) {
	mgr := NewBlockMgr(false)
	a := mgr.NewFromBytes([]byte("AAAA"))
	c := mgr.NewFromBytes([]byte("BB"))

	if err := a.Insert(2, c); err != nil {
		t.Fatalf("insert: %v", err)
	}
	out := make([]byte, a.Size())
	a.Extract(0, a.Size(), out)
	if string(out) != "AABBAA" {
		t.Fatalf("unexpected result: %q", out)
	}
}

func TestBlockResizeGrowAndShrink(t *testing.T) {
	mgr := NewBlockMgr(false)
	b := mgr.NewFromBytes([]byte("0123456789"))

	if err := b.Resize(2, 5); err != nil {
		t.Fatalf("resize: %v", err)
	}
	out := make([]byte, b.Size())
	b.Extract(0, b.Size(), out)
	if string(out) != "23456" {
		t.Fatalf("after shrink: %q", out)
	}

	if err := b.Resize(0, 8); err != nil {
		t.Fatalf("resize grow: %v", err)
	}
	if b.Size() != 8 {
		t.Fatalf("expected size 8, got %d", b.Size())
	}
}

func TestBlockIovecReadGathersAcrossSegments(t *testing.T) {
	mgr := NewBlockMgr(false)
	a := mgr.NewFromBytes([]byte("AAAA"))
	c := mgr.NewFromBytes([]byte("BBBB"))
	a.Insert(2, c)

	iov, err := a.IovecRead(1, 5)
	if err != nil {
		t.Fatalf("iovec: %v", err)
	}
	var joined []byte
	for _, seg := range iov {
		joined = append(joined, seg...)
	}
	if string(joined) != "ABBBB" {
		t.Fatalf("unexpected iovec contents: %q", joined)
	}
}

func TestWritableDuplicatesOnSharedReference(t *testing.T) {
	mgr := NewBlockMgr(false)
	orig := mgr.NewFromBytes([]byte("shared"))
	shared := orig.Use()

	bp := orig
	Writable(mgr, &bp)
	if bp == orig {
		t.Fatalf("Writable should have duplicated a shared block")
	}
	w, _ := bp.Write(0, 1)
	w[0] = 'S'
	origBytes, _ := shared.Read(0, shared.Size())
	if string(origBytes) != "shared" {
		t.Fatalf("mutating the writable duplicate leaked into the original: %q", origBytes)
	}
	shared.Release()
	bp.Release()
}

func TestWritableNoopOnSoleOwnership(t *testing.T) {
	mgr := NewBlockMgr(false)
	b := mgr.NewFromBytes([]byte("solo"))
	orig := b
	Writable(mgr, &b)
	if b != orig {
		t.Fatalf("Writable should not duplicate when single owner")
	}
	b.Release()
}

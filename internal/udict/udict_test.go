package udict

import (
	"math"
	"testing"
)

func TestAttributeRoundTrip(t *testing.T) {
	d := &Dict{}
	d.SetString("flow.def", "block.mpegts.")
	if v, ok := d.GetString("flow.def"); !ok || v != "block.mpegts." {
		t.Fatalf("string round-trip failed: %v %v", v, ok)
	}

	d.SetUint64("k.pts_orig", 1<<40)
	if v, ok := d.GetUint64("k.pts_orig"); !ok || v != 1<<40 {
		t.Fatalf("uint64 round-trip failed: %v %v", v, ok)
	}

	for _, v := range []int64{0, 1, -1, math.MaxInt64, math.MinInt64 + 1, -12345} {
		if err := d.SetInt64("x", v); err != nil {
			t.Fatalf("SetInt64(%d): %v", v, err)
		}
		got, ok := d.GetInt64("x")
		if !ok || got != v {
			t.Fatalf("int64 round-trip failed for %d: got %d ok=%v", v, got, ok)
		}
	}

	d.SetBool("flag", true)
	if v, ok := d.GetBool("flag"); !ok || !v {
		t.Fatalf("bool round-trip failed")
	}

	d.SetFloat("ratio", 3.14159)
	if v, ok := d.GetFloat("ratio"); !ok || v != 3.14159 {
		t.Fatalf("float round-trip failed: %v", v)
	}

	d.SetRational("aspect", Rational{Num: 16, Den: 9})
	if v, ok := d.GetRational("aspect"); !ok || v.Num != 16 || v.Den != 9 {
		t.Fatalf("rational round-trip failed: %+v", v)
	}

	d.SetVoid("e.control")
	if !d.GetVoid("e.control") {
		t.Fatalf("void attribute should be present")
	}
}

func TestInt64MinRejected(t *testing.T) {
	d := &Dict{}
	if err := d.SetInt64("x", math.MinInt64); err != ErrInt64Min {
		t.Fatalf("expected ErrInt64Min, got %v", err)
	}
}

func TestCopyListThenDeleteListYieldsNoListedAttributes(t *testing.T) {
	src := &Dict{}
	src.SetString("flow.def", "block.mpegts.")
	src.SetUint64("flow.id", 7)
	src.SetBool("unrelated", true)

	handlers := []Handler{
		{Key: "flow.def", Type: TypeString},
		{Key: "flow.id", Type: TypeUint64},
	}

	dst := &Dict{}
	CopyList(dst, src, handlers)
	if v, ok := dst.GetString("flow.def"); !ok || v != "block.mpegts." {
		t.Fatalf("copy of flow.def missing: %v %v", v, ok)
	}
	if _, ok := dst.GetBool("unrelated"); ok {
		t.Fatalf("copy list should not have copied an unlisted attribute")
	}

	DeleteList(dst, handlers)
	if _, ok := dst.GetString("flow.def"); ok {
		t.Fatalf("flow.def should be gone after delete list")
	}
	if _, ok := dst.GetUint64("flow.id"); ok {
		t.Fatalf("flow.id should be gone after delete list")
	}
}

func TestWireRoundTrip(t *testing.T) {
	d := &Dict{}
	d.SetString("flow.def", "block.mpegtspsi.pat.")
	d.SetUint64("ts.pid", 0)
	d.SetBool("ts.pusi", true)
	_ = d.SetInt64("k.dts_pts_delay", -9000)

	blob := d.Marshal()
	got, err := Unmarshal(blob)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, ok := got.GetString("flow.def"); !ok || v != "block.mpegtspsi.pat." {
		t.Fatalf("flow.def mismatch after wire round trip: %v %v", v, ok)
	}
	if v, ok := got.GetUint64("ts.pid"); !ok || v != 0 {
		t.Fatalf("ts.pid mismatch: %v %v", v, ok)
	}
	if v, ok := got.GetBool("ts.pusi"); !ok || !v {
		t.Fatalf("ts.pusi mismatch: %v %v", v, ok)
	}
	if v, ok := got.GetInt64("k.dts_pts_delay"); !ok || v != -9000 {
		t.Fatalf("k.dts_pts_delay mismatch: %v %v", v, ok)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	d := &Dict{}
	d.SetString("flow.def", "pic.")
	c := d.Clone()
	c.SetString("flow.def", "sound.")
	if v, _ := d.GetString("flow.def"); v != "pic." {
		t.Fatalf("mutating clone affected source: %v", v)
	}
}

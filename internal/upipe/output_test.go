package upipe

import (
	"testing"

	"github.com/snapetech/upipe-go/internal/uref"
)

type recordingInput struct {
	name string
	got  []*uref.Uref
}

func (r *recordingInput) Name() string { return r.name }
func (r *recordingInput) Input(u *uref.Uref, pump any) {
	r.got = append(r.got, u)
}

func TestEmitHoldsUntilFlowValidAndConnected(t *testing.T) {
	o := NewOutput(0)
	u1 := uref.New()
	o.Emit(u1)
	if o.HeldLen() != 1 {
		t.Fatalf("expected 1 held uref, got %d", o.HeldLen())
	}

	sink := &recordingInput{name: "sink"}
	o.SetOutput(sink)
	if o.HeldLen() != 1 {
		t.Fatalf("expected uref to remain held until flow-valid, got %d held", o.HeldLen())
	}

	o.MarkValid()
	if o.HeldLen() != 0 {
		t.Fatalf("expected held urefs flushed after MarkValid, got %d", o.HeldLen())
	}
	if len(sink.got) != 1 || sink.got[0] != u1 {
		t.Fatalf("sink did not receive the held uref")
	}

	u2 := uref.New()
	o.Emit(u2)
	if len(sink.got) != 2 || sink.got[1] != u2 {
		t.Fatalf("expected direct passthrough once valid and connected")
	}
}

func TestSetOutputReplaysFlowDefWhenAlreadyValid(t *testing.T) {
	o := NewOutput(0)
	def := uref.New()
	def.SetFlowDef("block.")
	o.SetFlowDef(def)
	o.MarkValid()

	sink := &recordingInput{name: "sink"}
	o.SetOutput(sink)
	if len(sink.got) != 1 || sink.got[0] != def {
		t.Fatalf("expected flow-def replayed to newly connected output")
	}
}

func TestMaxHeldDropsOldest(t *testing.T) {
	o := NewOutput(2)
	u1, u2, u3 := uref.New(), uref.New(), uref.New()
	o.Emit(u1)
	o.Emit(u2)
	o.Emit(u3)
	if o.HeldLen() != 2 {
		t.Fatalf("expected held count capped at 2, got %d", o.HeldLen())
	}
}

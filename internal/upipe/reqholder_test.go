package upipe

import (
	"testing"

	"github.com/snapetech/upipe-go/internal/urequest"
)

func TestReqHolderRunsCheckOnceResourceArrives(t *testing.T) {
	var checked int
	h := NewReqHolder(urequest.KindUclock, func() { checked++ })
	if h.Ready() {
		t.Fatalf("expected not ready before any provide")
	}
	req := h.Request(nil)
	req.Provide(urequest.Result{Uclock: "wall-clock"})
	if !h.Ready() {
		t.Fatalf("expected ready after provide")
	}
	if h.Value() != "wall-clock" {
		t.Fatalf("unexpected value: %v", h.Value())
	}
	if checked != 1 {
		t.Fatalf("expected check to run exactly once, got %d", checked)
	}
}

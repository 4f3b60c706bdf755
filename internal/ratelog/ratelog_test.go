package ratelog

import (
	"testing"

	"golang.org/x/time/rate"
)

func TestLimiterSuppressesBurst(t *testing.T) {
	l := New(rate.Inf, 2)
	key := Key{Pipe: "ts_psi_merge", Reason: "bad-crc"}

	// rate.Inf never exhausts the bucket, so switch to a tiny fixed rate
	// that only allows the first burst through.
	l = New(0, 2)
	for i := 0; i < 5; i++ {
		l.Warnf(key, "section dropped")
	}
	if got := l.Suppressed(key); got != 3 {
		t.Fatalf("expected 3 suppressed after a burst of 5 against burst=2, got %d", got)
	}
}

func TestLimiterIndependentKeys(t *testing.T) {
	l := New(0, 1)
	a := Key{Pipe: "p1", Reason: "x"}
	b := Key{Pipe: "p2", Reason: "x"}

	l.Warnf(a, "one")
	l.Warnf(a, "two")
	l.Warnf(b, "one")

	if got := l.Suppressed(a); got != 1 {
		t.Fatalf("key a: expected 1 suppressed, got %d", got)
	}
	if got := l.Suppressed(b); got != 0 {
		t.Fatalf("key b: expected 0 suppressed (first call in its own bucket), got %d", got)
	}
}

package upump

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTimerFiresRepeatedlyUntilStopped(t *testing.T) {
	m := NewMgr()
	var ticks int32
	p := m.AddTimer(2*time.Millisecond, func() { atomic.AddInt32(&ticks, 1) })
	time.Sleep(30 * time.Millisecond)
	p.Stop()
	got := atomic.LoadInt32(&ticks)
	if got < 2 {
		t.Fatalf("expected several ticks, got %d", got)
	}
	if m.Live() != 0 {
		t.Fatalf("expected pump removed after stop, live=%d", m.Live())
	}
}

func TestStopAllStopsEveryPump(t *testing.T) {
	m := NewMgr()
	for i := 0; i < 3; i++ {
		m.AddTimer(time.Millisecond, func() {})
	}
	if m.Live() != 3 {
		t.Fatalf("expected 3 live pumps, got %d", m.Live())
	}
	m.StopAll()
	if m.Live() != 0 {
		t.Fatalf("expected 0 live pumps after StopAll, got %d", m.Live())
	}
}

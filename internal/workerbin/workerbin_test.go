package workerbin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/snapetech/upipe-go/internal/modules"
	"github.com/snapetech/upipe-go/internal/upipe"
	"github.com/snapetech/upipe-go/internal/uref"
	"github.com/snapetech/upipe-go/internal/urefcount"
)

type fakeMgr struct{ rc *urefcount.RefCount }

func newFakeMgr() *fakeMgr                       { return &fakeMgr{rc: urefcount.New(func() {})} }
func (m *fakeMgr) Refcount() *urefcount.RefCount { return m.rc }
func (m *fakeMgr) Signature() string             { return "fake" }

type collectingSink struct {
	mu   sync.Mutex
	seen []uint64
}

func (c *collectingSink) Name() string { return "collector" }
func (c *collectingSink) Input(u *uref.Uref, _ any) {
	c.mu.Lock()
	if n, ok := u.Dict.GetUint64("seq"); ok {
		c.seen = append(c.seen, n)
	}
	c.mu.Unlock()
	u.Release()
}

func (c *collectingSink) snapshot() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint64, len(c.seen))
	copy(out, c.seen)
	return out
}

func passthroughBuild(sink upipe.InputPipe) (upipe.InputPipe, error) {
	mgr := newFakeMgr()
	idem := modules.NewIdem(mgr, nil)
	idem.SetOutput(sink)
	return idem, nil
}

func TestBinPreservesOrderThroughQueues(t *testing.T) {
	mgr := newFakeMgr()
	b := NewBin(mgr, nil, Config{QueueDepth: 4}, passthroughBuild)
	sink := &collectingSink{}
	b.Control(upipe.SetOutput{Output: sink})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)

	const n = 20
	for i := uint64(0); i < n; i++ {
		u := uref.New()
		u.Dict.SetUint64("seq", i)
		b.Input(u, nil)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(sink.snapshot()) == n {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	got := sink.snapshot()
	if len(got) != n {
		t.Fatalf("expected %d urefs, got %d: %v", n, len(got), got)
	}
	for i, v := range got {
		if v != uint64(i) {
			t.Fatalf("out of order at %d: got %d", i, v)
		}
	}
}

func TestBinInputBlocksWhenQueueFull(t *testing.T) {
	mgr := newFakeMgr()
	b := NewBin(mgr, nil, Config{QueueDepth: 1}, passthroughBuild)
	sink := &collectingSink{}
	b.Control(upipe.SetOutput{Output: sink})

	// Deliberately do not call Start: the input queue should fill to its
	// bound and then block the next send rather than dropping it.
	b.Input(uref.New(), nil)

	done := make(chan struct{})
	go func() {
		b.Input(uref.New(), nil)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second Input should have blocked with no worker draining the queue")
	case <-time.After(100 * time.Millisecond):
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second Input never unblocked after Start")
	}
}

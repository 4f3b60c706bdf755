package urequest

import "testing"

// TestProxyChainReachesOriginalProvideCallback models pipe A -> proxy1 ->
// proxy2 -> pipe Z: Z calling Provide on its proxy must resolve A's original
// callback with the exact arguments Z supplied (spec.md §8 property 4).
func TestProxyChainReachesOriginalProvideCallback(t *testing.T) {
	var gotResult Result
	var calls int
	a := New(KindUclock, nil, func(res Result) Status {
		calls++
		gotResult = res
		return StatusNone
	}, nil)

	var freedOrder []string
	chainAtPipe1 := &Chain{}
	proxy1 := a.Proxy(func() { freedOrder = append(freedOrder, "proxy1") })
	chainAtPipe1.Register(proxy1)

	chainAtPipe2 := &Chain{}
	proxy2 := proxy1.Proxy(func() { freedOrder = append(freedOrder, "proxy2") })
	chainAtPipe2.Register(proxy2)

	// Pipe Z resolves the clock and calls Provide on the request it was
	// handed, which is proxy2.
	st := proxy2.Provide(Result{Uclock: "wall-clock"})
	if st != StatusNone {
		t.Fatalf("unexpected status: %v", st)
	}
	if calls != 1 {
		t.Fatalf("expected original provide_cb to run exactly once, got %d", calls)
	}
	if gotResult.Uclock != "wall-clock" {
		t.Fatalf("unexpected result: %+v", gotResult)
	}

	// Unregistering at pipe2 then pipe1 should free in reverse of creation:
	// pipe2's chain contains only proxy2.
	chainAtPipe2.UnregisterAll()
	chainAtPipe1.UnregisterAll()
	if len(freedOrder) != 2 || freedOrder[0] != "proxy2" || freedOrder[1] != "proxy1" {
		t.Fatalf("unexpected free order: %v", freedOrder)
	}
}

func TestProxyGetsADistinctIDFromItsOriginal(t *testing.T) {
	a := New(KindUclock, nil, func(Result) Status { return StatusNone }, nil)
	proxy := a.Proxy(nil)
	if a.ID == "" || proxy.ID == "" {
		t.Fatal("expected both requests to have a non-empty ID")
	}
	if a.ID == proxy.ID {
		t.Fatal("expected a proxy to get its own ID, not reuse the original's")
	}
}

func TestChainUnregistersInReverseOfRegistration(t *testing.T) {
	var order []int
	c := &Chain{}
	for i := 0; i < 4; i++ {
		i := i
		r := New(KindUbufMgr, nil, func(Result) Status { return StatusNone }, func() { order = append(order, i) })
		c.Register(r)
	}
	c.UnregisterAll()
	want := []int{3, 2, 1, 0}
	for i, v := range want {
		if order[i] != v {
			t.Fatalf("unregister order = %v, want %v", order, want)
		}
	}
}

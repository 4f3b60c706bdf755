// Package urequest implements the upstream resource-negotiation protocol
// (spec.md §3.5, §4.3): a pipe creates a Request, registers it on its
// input, and each intermediate pipe either answers it directly or
// duplicates it as an identity-preserving proxy forwarded further upstream.
package urequest

import (
	"sync"

	"github.com/google/uuid"

	"github.com/snapetech/upipe-go/internal/urefcount"
)

// Kind names the resource being negotiated.
type Kind int

const (
	KindUrefMgr Kind = iota
	KindFlowFormat
	KindUbufMgr
	KindUclock
	KindSinkLatency
)

// Status mirrors the control-command status vocabulary of spec.md §7, used
// here for the return value of Provide.
type Status int

const (
	StatusNone Status = iota
	StatusUnhandled
	StatusInvalid
	StatusAlloc
)

// Result carries whichever resource a provide call resolved. Only the field
// matching the request's Kind is meaningful.
type Result struct {
	UrefMgr     any
	FlowFormat  any // *uref.Uref, kept as any to avoid an import cycle
	UbufMgr     any
	Uclock      any
	SinkLatency uint64
}

// ProvideFunc is called by whoever ultimately resolves the resource. It must
// not block and must not call back into the originating pipe's input
// (spec.md §4.3) — that invariant is a caller contract, not something this
// package can enforce.
type ProvideFunc func(result Result) Status

// Request is a single in-flight resource demand. ID distinguishes one
// request (and each proxy made of it) from another in logs and in
// internal/dump graphs, since two requests of the same Kind in flight at
// once are otherwise indistinguishable.
type Request struct {
	rc      *urefcount.RefCount
	ID      string
	Kind    Kind
	Arg     any // optional uref argument
	Provide ProvideFunc
	free    func()
}

// New constructs a request. free runs once, when the request is released.
func New(kind Kind, arg any, provide ProvideFunc, free func()) *Request {
	r := &Request{ID: uuid.NewString(), Kind: kind, Arg: arg, Provide: provide, free: free}
	r.rc = urefcount.New(func() {
		if r.free != nil {
			r.free()
		}
	})
	return r
}

func (r *Request) Refcount() *urefcount.RefCount { return r.rc }
func (r *Request) Release()                      { r.rc.Release() }

// Proxy returns a new request of the same kind and argument whose Provide
// trampolines to orig's Provide — i.e. resolving the proxy resolves the
// original. This is the "duplicating the request as a proxy" step of
// spec.md §4.3 step 2.
func (orig *Request) Proxy(free func()) *Request {
	return New(orig.Kind, orig.Arg, orig.Provide, free)
}

// Chain tracks the proxies a single pipe created while forwarding one
// original request further upstream, so they can be torn down in the
// reverse of their creation order when the original is unregistered
// (spec.md §4.3 step 4).
type Chain struct {
	mu    sync.Mutex
	stack []*Request
}

// Register records that proxy was created for this chain and should be
// released on Unregister, LIFO.
func (c *Chain) Register(proxy *Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stack = append(c.stack, proxy)
}

// UnregisterAll releases every tracked proxy in reverse creation order.
func (c *Chain) UnregisterAll() {
	c.mu.Lock()
	stack := c.stack
	c.stack = nil
	c.mu.Unlock()
	for i := len(stack) - 1; i >= 0; i-- {
		stack[i].Release()
	}
}

// Len reports how many proxies are currently tracked, for tests.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stack)
}

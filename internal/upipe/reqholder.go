package upipe

import (
	"sync"

	"github.com/snapetech/upipe-go/internal/urequest"
)

// ReqHolder is the persistent single-resource request mixin (spec.md §3.8):
// a pipe that needs a uref manager, ubuf manager, uclock, or upump manager
// registers one request upstream and keeps the last-provided value, rather
// than re-requesting on every input. check runs once whenever the held
// value changes, so pipe logic can re-evaluate "do I now have everything I
// need" in one place instead of scattering that check across every command
// handler, mirroring the upipe_helper_uref_mgr family of helpers.
type ReqHolder struct {
	mu      sync.Mutex
	kind    urequest.Kind
	value   any
	req     *urequest.Request
	check   func()
}

// NewReqHolder creates a holder for the given resource kind. check may be
// nil.
func NewReqHolder(kind urequest.Kind, check func()) *ReqHolder {
	return &ReqHolder{kind: kind, check: check}
}

// Request builds (and remembers) the urequest.Request to register upstream.
// arg is the optional uref argument some kinds require (e.g. flow format
// negotiation carries a flow-def uref).
func (h *ReqHolder) Request(arg any) *urequest.Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.req = urequest.New(h.kind, arg, h.provide, nil)
	return h.req
}

func (h *ReqHolder) provide(res urequest.Result) urequest.Status {
	var v any
	switch h.kind {
	case urequest.KindUrefMgr:
		v = res.UrefMgr
	case urequest.KindFlowFormat:
		v = res.FlowFormat
	case urequest.KindUbufMgr:
		v = res.UbufMgr
	case urequest.KindUclock:
		v = res.Uclock
	case urequest.KindSinkLatency:
		v = res.SinkLatency
	}
	h.mu.Lock()
	h.value = v
	check := h.check
	h.mu.Unlock()
	if check != nil {
		check()
	}
	return urequest.StatusNone
}

// Value returns the currently held resource, or nil if never provided.
func (h *ReqHolder) Value() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value
}

// Ready reports whether a resource has been provided at least once.
func (h *ReqHolder) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value != nil
}

// Release releases the held request, if one was ever built.
func (h *ReqHolder) Release() {
	h.mu.Lock()
	req := h.req
	h.req = nil
	h.mu.Unlock()
	if req != nil {
		req.Release()
	}
}

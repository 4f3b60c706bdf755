// Package uref implements the pipeline's unit of flow: a reference to a
// ubuf (possibly none, for a "control" uref) plus a udict attribute
// dictionary (spec.md §3.3).
package uref

import (
	"github.com/snapetech/upipe-go/internal/ubuf"
	"github.com/snapetech/upipe-go/internal/udict"
	"github.com/snapetech/upipe-go/internal/urefcount"
)

// Well-known attribute keys (spec.md §3.3).
const (
	KeyFlowDef     = "flow.def"
	KeyFlowID      = "flow.id"
	KeyFlowRawDef  = "flow.raw_def"
	KeyFlowHeaders = "flow.headers"
	KeyFlowLatency = "flow.latency"

	KeyPTSOrig     = "k.pts_orig"
	KeyDTSOrig     = "k.dts_orig"
	KeyPTSProg     = "k.pts_prog"
	KeyDTSProg     = "k.dts_prog"
	KeyPTSSys      = "k.pts_sys"
	KeyDTSSys      = "k.dts_sys"
	KeyRapSys      = "k.rap_sys"
	KeyDTSPTSDelay = "k.dts_pts_delay"
	KeyCrDTSDelay  = "k.cr_dts_delay"
)

// Uref pairs an optional ubuf payload with an attribute dictionary.
type Uref struct {
	rc   *urefcount.RefCount
	Ubuf ubuf.Buffer // nil for a control uref
	Dict *udict.Dict
}

// New allocates a fresh uref with an empty dictionary and no payload
// (a control uref). Attach a Ubuf for data urefs.
func New() *Uref {
	u := &Uref{Dict: &udict.Dict{}}
	u.rc = urefcount.New(func() {
		if u.Ubuf != nil {
			u.Ubuf.Release()
		}
	})
	return u
}

func (u *Uref) Refcount() *urefcount.RefCount { return u.rc }
func (u *Uref) Release()                      { u.rc.Release() }
func (u *Uref) Use() *Uref                    { u.rc.Use(); return u }

// Dup duplicates a uref with shallow-clone-of-ubuf semantics: the ubuf
// refcount is bumped (not copied), the udict is deep-copied (spec.md §3.3).
func (u *Uref) Dup() *Uref {
	out := &Uref{Dict: u.Dict.Clone()}
	if u.Ubuf != nil {
		switch b := u.Ubuf.(type) {
		case *ubuf.Block:
			out.Ubuf = b.Use()
		case *ubuf.Picture:
			out.Ubuf = b.Use()
		case *ubuf.Sound:
			out.Ubuf = b.Use()
		}
	}
	out.rc = urefcount.New(func() {
		if out.Ubuf != nil {
			out.Ubuf.Release()
		}
	})
	return out
}

// FlowDef returns the uref's flow.def attribute, if any.
func (u *Uref) FlowDef() (string, bool) {
	return u.Dict.GetString(KeyFlowDef)
}

// SetFlowDef sets flow.def, the pipeline's type-system string.
func (u *Uref) SetFlowDef(def string) {
	u.Dict.SetString(KeyFlowDef, def)
}

// IsControl reports whether this uref carries no payload — i.e. it exists
// only to carry attributes (a flow-def announcement, an empty marker).
func (u *Uref) IsControl() bool { return u.Ubuf == nil }

// FlowDefMatches reports whether def (an upstream flow def) is compatible
// with wanted, by the prefix-check rule of spec.md §4.2.
func FlowDefMatches(def, wanted string) bool {
	if len(wanted) > len(def) {
		return false
	}
	return def[:len(wanted)] == wanted
}

// Package ubuf implements the opaque, reference-counted payload types that
// flow inside a uref: block (octet stream), picture (planar raster), and
// sound (PCM). Every mutation that needs writable storage goes through
// Writable, which duplicates the buffer when the caller does not hold the
// only reference (spec.md §3.2, §4.5).
package ubuf

import "github.com/snapetech/upipe-go/internal/urefcount"

// Kind identifies which of the three ubuf variants a Buffer implements.
type Kind int

const (
	KindBlock Kind = iota
	KindPicture
	KindSound
)

// Buffer is the common refcounted-payload contract. Concrete types (Block,
// Picture, Sound) embed a *urefcount.RefCount and satisfy this interface so
// generic plumbing (e.g. a uref holding "some ubuf or none") can release
// without knowing the concrete kind.
type Buffer interface {
	Kind() Kind
	Refcount() *urefcount.RefCount
	Release()
}

// Manager pools buffers of one kind to avoid allocation in the steady state
// (spec.md §3.2). Each concrete kind has its own manager type implementing
// this for its New* factory; Manager itself only carries the shared
// refcount-as-manager-lifetime contract.
type Manager interface {
	Refcount() *urefcount.RefCount
}

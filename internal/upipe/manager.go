package upipe

import "github.com/snapetech/upipe-go/internal/urefcount"

// SimpleManager is a Manager for applications that wire a handful of pipe
// families together in one process and don't need a distinct manager
// struct per family; it carries no factory methods of its own, since this
// repo's pipe constructors (NewSource, NewDemux, workerbin.NewBin, ...)
// are already free functions taking a Manager rather than methods on one.
// Its refcount is immortal (nil destructor), matching the same
// opt-out-of-the-protocol convention internal/urefcount documents for
// statically allocated managers.
type SimpleManager struct {
	signature string
	rc        *urefcount.RefCount
}

// NewSimpleManager returns a SimpleManager identifying itself as
// signature for dump.go's graph labels and diagnostics.
func NewSimpleManager(signature string) *SimpleManager {
	return &SimpleManager{signature: signature, rc: urefcount.New(nil)}
}

func (m *SimpleManager) Refcount() *urefcount.RefCount { return m.rc }
func (m *SimpleManager) Signature() string             { return m.signature }

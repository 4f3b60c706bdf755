package upipe

import (
	"sync"

	"github.com/snapetech/upipe-go/internal/uref"
)

// BinInput forwards every uref given to the bin straight to its first
// inner pipe, and forwards the bin's own control commands to that inner
// pipe too when the bin doesn't special-case them (spec.md §3.8, §4.1 bin
// composition).
type BinInput struct {
	mu    sync.Mutex
	first InputPipe
}

func (b *BinInput) SetFirstInner(p InputPipe) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.first = p
}

func (b *BinInput) Input(u *uref.Uref, pump any) {
	b.mu.Lock()
	first := b.first
	b.mu.Unlock()
	if first == nil {
		u.Release()
		return
	}
	first.Input(u, pump)
}

// Control forwards cmd to the first inner pipe if it implements
// ControlPipe, returning StatusUnhandled if there is no inner pipe or it
// doesn't accept commands.
func (b *BinInput) Control(cmd Command) Status {
	b.mu.Lock()
	first := b.first
	b.mu.Unlock()
	if cp, ok := first.(ControlPipe); ok {
		return cp.Control(cmd)
	}
	return StatusUnhandled
}

// BinOutput republishes the bin's last inner pipe's output as the bin's own
// output, so a caller downstream of the bin sees one InputPipe regardless
// of how many stages live inside.
type BinOutput struct {
	mu   sync.Mutex
	last InputPipe
}

func (b *BinOutput) SetLastInner(p InputPipe) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = p
}

// AsOutput returns the wrapped last-inner pipe so external code treating the
// bin as an InputPipe delegates correctly.
func (b *BinOutput) AsOutput() InputPipe {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

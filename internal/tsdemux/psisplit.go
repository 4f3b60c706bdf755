package tsdemux

import (
	"sync"

	"github.com/snapetech/upipe-go/internal/ubuf"
	"github.com/snapetech/upipe-go/internal/upipe"
	"github.com/snapetech/upipe-go/internal/uprobe"
	"github.com/snapetech/upipe-go/internal/uref"
)

// PSIFilter selects sections by table_id plus a filter/mask applied to up
// to the first five post-pointer-field bytes, matching the sub-output
// flow-def attribute `ts.psifilter` of spec.md §4.6. Filter/Mask length 0
// means "match table_id only."
type PSIFilter struct {
	TableID  uint8
	Filter   []byte
	Mask     []byte
	MatchAll bool // ignore TableID entirely, e.g. a pid dedicated to one table family
}

// Match reports whether section (starting at table_id, pointer_field
// already stripped) satisfies the filter.
func (f PSIFilter) Match(section []byte) bool {
	if len(section) < 1 {
		return false
	}
	if !f.MatchAll && section[0] != f.TableID {
		return false
	}
	for i := 0; i < len(f.Filter) && i < len(f.Mask) && 1+i < len(section); i++ {
		if section[1+i]&f.Mask[i] != f.Filter[i]&f.Mask[i] {
			return false
		}
	}
	return true
}

type psiSplitOutput struct {
	filter PSIFilter
	output upipe.InputPipe
}

// PSISplit is ts_psi_split (spec.md §4.6): it fans whole PSI sections to
// sub-outputs selected by PSIFilter.
type PSISplit struct {
	*upipe.Pipe
	mu      sync.Mutex
	outputs []*psiSplitOutput
}

// NewPSISplit allocates a ts_psi_split pipe.
func NewPSISplit(mgr upipe.Manager, probes *uprobe.Probe) *PSISplit {
	s := &PSISplit{}
	s.Pipe = upipe.NewBase(mgr, probes, "ts_psi_split", nil, nil)
	return s
}

// AddSubOutput registers out to receive sections matching filter.
func (s *PSISplit) AddSubOutput(filter PSIFilter, out upipe.InputPipe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs = append(s.outputs, &psiSplitOutput{filter: filter, output: out})
}

// RemoveSubOutput unregisters the first sub-output bound to out, whatever
// its filter.
func (s *PSISplit) RemoveSubOutput(out upipe.InputPipe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, so := range s.outputs {
		if so.output == out {
			s.outputs = append(s.outputs[:i], s.outputs[i+1:]...)
			return
		}
	}
}

func (s *PSISplit) Input(u *uref.Uref, pump any) {
	block, ok := u.Ubuf.(*ubuf.Block)
	if !ok {
		u.Release()
		return
	}
	buf := make([]byte, block.Size())
	if _, err := block.Extract(0, block.Size(), buf); err != nil {
		u.Release()
		return
	}

	s.mu.Lock()
	var matches []*psiSplitOutput
	for _, so := range s.outputs {
		if so.filter.Match(buf) {
			matches = append(matches, so)
		}
	}
	s.mu.Unlock()

	if len(matches) == 0 {
		u.Release()
		return
	}
	for i, so := range matches {
		if i == len(matches)-1 {
			so.output.Input(u, pump)
		} else {
			so.output.Input(u.Dup(), pump)
		}
	}
}

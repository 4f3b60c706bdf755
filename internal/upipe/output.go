package upipe

import (
	"sync"

	"github.com/snapetech/upipe-go/internal/uref"
)

// FlowState tracks whether an Output mixin has enough information to pass
// urefs downstream yet (spec.md §3.8): a pipe may know its flow definition
// before it has a connected output, or have an output before it knows its
// flow definition, and must buffer urefs in between.
type FlowState int

const (
	FlowNone FlowState = iota
	FlowDefSet
	FlowValid
)

// Output is the embeddable "single output" mixin shared by most pipes: it
// holds the downstream InputPipe, the last flow-def uref sent, and a hold
// queue for urefs that arrived before the output was both connected and
// flow-valid.
type Output struct {
	mu       sync.Mutex
	output   InputPipe
	flowDef  *uref.Uref
	state    FlowState
	held     []*uref.Uref
	maxHeld  int
}

// NewOutput returns an Output mixin that buffers up to maxHeld urefs (0
// means unbounded) while waiting for a connection.
func NewOutput(maxHeld int) *Output {
	return &Output{maxHeld: maxHeld}
}

// SetOutput wires a new downstream pipe. If the mixin is already flow-valid,
// the buffered flow-def is replayed so the new output sees it before any
// held uref.
func (o *Output) SetOutput(out InputPipe) {
	o.mu.Lock()
	o.output = out
	flowDef := o.flowDef
	valid := o.state == FlowValid
	var held []*uref.Uref
	if valid && out != nil {
		held = o.held
		o.held = nil
	}
	o.mu.Unlock()

	if out == nil {
		return
	}
	if valid && flowDef != nil {
		out.Input(flowDef, nil)
	}
	for _, u := range held {
		out.Input(u, nil)
	}
}

// GetOutput returns the currently connected output, or nil.
func (o *Output) GetOutput() InputPipe {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.output
}

// SetFlowDef records a new flow definition as the pipe's current output
// format and forwards it immediately if connected.
func (o *Output) SetFlowDef(def *uref.Uref) {
	o.mu.Lock()
	o.flowDef = def
	o.state = FlowDefSet
	out := o.output
	o.mu.Unlock()
	if out != nil {
		out.Input(def, nil)
	}
}

// MarkValid transitions the mixin to FlowValid, flushing any urefs held
// while waiting for both a flow-def and a connected output.
func (o *Output) MarkValid() {
	o.mu.Lock()
	o.state = FlowValid
	out := o.output
	held := o.held
	o.held = nil
	o.mu.Unlock()
	if out == nil {
		return
	}
	for _, u := range held {
		out.Input(u, nil)
	}
}

// Emit sends u downstream if connected and flow-valid, otherwise holds it
// (subject to maxHeld, dropping the oldest when full — spec.md §3.8 edge
// case "output not yet connected").
func (o *Output) Emit(u *uref.Uref) {
	o.mu.Lock()
	out := o.output
	ready := out != nil && o.state == FlowValid
	if !ready {
		if o.maxHeld > 0 && len(o.held) >= o.maxHeld {
			dropped := o.held[0]
			o.held = o.held[1:]
			o.mu.Unlock()
			dropped.Release()
			o.mu.Lock()
		}
		o.held = append(o.held, u)
	}
	o.mu.Unlock()
	if ready {
		out.Input(u, nil)
	}
}

// State reports the current flow state, for tests and probes.
func (o *Output) State() FlowState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// HeldLen reports how many urefs are currently buffered.
func (o *Output) HeldLen() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.held)
}

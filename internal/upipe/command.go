package upipe

import (
	"github.com/snapetech/upipe-go/internal/uref"
	"github.com/snapetech/upipe-go/internal/urequest"
)

// Command is the sum-type replacement for the original's untyped va_list
// control dispatch (SPEC_FULL.md §7): any struct may implement it, and a
// pipe's Control method type-switches over the concrete commands it knows,
// returning StatusUnhandled for anything else so a bin can forward the
// command further inward.
type Command interface {
	CommandName() string
}

// InputPipe is implemented by every pipe that accepts urefs.
type InputPipe interface {
	Name() string
	Input(u *uref.Uref, pump any)
}

// ControlPipe is implemented by every pipe that accepts control commands.
type ControlPipe interface {
	Name() string
	Control(cmd Command) Status
}

// Generic commands common to every pipe family (spec.md §3.6).

type SetFlowDef struct{ Def *uref.Uref }

func (SetFlowDef) CommandName() string { return "SetFlowDef" }

type GetFlowDef struct{ Out **uref.Uref }

func (GetFlowDef) CommandName() string { return "GetFlowDef" }

type SetOutput struct{ Output InputPipe }

func (SetOutput) CommandName() string { return "SetOutput" }

type GetOutput struct{ Out *InputPipe }

func (GetOutput) CommandName() string { return "GetOutput" }

type RegisterRequest struct{ Request *urequest.Request }

func (RegisterRequest) CommandName() string { return "RegisterRequest" }

type UnregisterRequest struct{ Request *urequest.Request }

func (UnregisterRequest) CommandName() string { return "UnregisterRequest" }

type SetURI struct{ URI string }

func (SetURI) CommandName() string { return "SetURI" }

type SetOption struct{ Key, Value string }

func (SetOption) CommandName() string { return "SetOption" }

type SetFD struct{ FD int }

func (SetFD) CommandName() string { return "SetFD" }

// SplitIterate walks a split-point pipe's outputs; Cursor is nil on the
// first call and echoed back by the pipe on each subsequent call, mirroring
// the original's "iterate until NULL" convention generalized to Go.
type SplitIterate struct {
	Cursor any
	Next   *any
}

func (SplitIterate) CommandName() string { return "SplitIterate" }

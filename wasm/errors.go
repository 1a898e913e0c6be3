package wasm

import (
	"errors"
	"fmt"
)

// Sentinel decode failures, matchable with errors.Is through a DecodeError.
var (
	ErrInvalidMagicNumber  = errors.New("invalid magic number")
	ErrInvalidVersion      = errors.New("invalid version header")
	ErrInvalidSectionID    = errors.New("invalid section id")
	ErrSectionOutOfOrder   = errors.New("section out of order")
	ErrSectionSizeMismatch = errors.New("section size mismatch")
)

// DecodeError reports malformed module bytes. Decoding is all-or-nothing:
// a DecodeError means no Module was produced.
type DecodeError struct {
	Offset int // byte offset into the module at which decoding failed
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode module: at offset 0x%x: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ValidationError reports a structurally invalid module. When the failure is
// inside a function body, InFunction is true and FuncIndex/Offset name the
// function and the instruction offset within it.
type ValidationError struct {
	FuncIndex  uint32
	Offset     uint64
	InFunction bool
	Err        error
}

func (e *ValidationError) Error() string {
	if e.InFunction {
		return fmt.Sprintf("validate function[%d] at offset 0x%x: %v", e.FuncIndex, e.Offset, e.Err)
	}
	return fmt.Sprintf("validate module: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// InstantiationError reports a failure to build an Instance from a validated
// Module: import signature mismatch, limit violation, or a trap raised by
// the start function. No partial Instance is ever exposed.
type InstantiationError struct {
	Err error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("instantiate module: %v", e.Err)
}

func (e *InstantiationError) Unwrap() error { return e.Err }

// TrapReason distinguishes the runtime faults of the virtual machine. The
// values are stable so an external conformance driver can compare them.
type TrapReason int

const (
	TrapUnreachable TrapReason = iota
	TrapOutOfBoundsMemoryAccess
	TrapIntegerDivideByZero
	TrapIntegerOverflow
	TrapInvalidConversionToInteger
	TrapUndefinedTableElement
	TrapIndirectCallTypeMismatch
	TrapCallStackExhausted
)

func (r TrapReason) String() string {
	switch r {
	case TrapUnreachable:
		return "unreachable"
	case TrapOutOfBoundsMemoryAccess:
		return "out of bounds memory access"
	case TrapIntegerDivideByZero:
		return "integer divide by zero"
	case TrapIntegerOverflow:
		return "integer overflow"
	case TrapInvalidConversionToInteger:
		return "invalid conversion to integer"
	case TrapUndefinedTableElement:
		return "undefined table element"
	case TrapIndirectCallTypeMismatch:
		return "indirect call type mismatch"
	case TrapCallStackExhausted:
		return "call stack exhausted"
	}
	return "unknown trap"
}

// Trap is an abnormal, specification-defined halt of execution. The engine
// state is left frozen at the faulting instruction, never corrupted.
type Trap struct {
	Reason TrapReason
}

func (t *Trap) Error() string { return "wasm trap: " + t.Reason.String() }

// NewTrap returns a Trap with the given reason.
func NewTrap(reason TrapReason) *Trap { return &Trap{Reason: reason} }

// HostTrap is raised when a host function asks the engine to stop, e.g. an
// exit syscall. It is deliberately distinct from Trap so an operator can
// tell "the program asked to stop" from "the program crashed".
type HostTrap struct {
	Module string // import module name of the host function
	Name   string // import field name of the host function
	Err    error  // host-provided cause, may be nil
}

func (t *HostTrap) Error() string {
	if t.Err == nil {
		return fmt.Sprintf("host trap from %s.%s", t.Module, t.Name)
	}
	return fmt.Sprintf("host trap from %s.%s: %v", t.Module, t.Name, t.Err)
}

func (t *HostTrap) Unwrap() error { return t.Err }

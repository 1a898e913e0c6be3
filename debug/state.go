// Package debug implements the interactive debugger controller: a Session
// drives one engine.Machine instruction by instruction, suspending on
// breakpoints, watchpoints, step targets and pause requests, and exposes
// the frozen machine state for inspection while stopped.
package debug

import "fmt"

// State is the lifecycle state of a Session.
type State int32

const (
	// StateIdle means no entry function has been started yet.
	StateIdle State = iota
	// StateRunning means the interpretation goroutine is executing.
	StateRunning
	// StateSuspended means execution stopped at an instruction boundary
	// and can be resumed.
	StateSuspended
	// StateTerminated means the entry function returned, or the session
	// was closed. Results are available, execution cannot resume.
	StateTerminated
	// StateTrapped means execution faulted. The call stack is frozen at
	// the fault for inspection; execution cannot resume.
	StateTrapped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateTerminated:
		return "terminated"
	case StateTrapped:
		return "trapped"
	}
	return "unknown"
}

// StateError reports an operation attempted in a state that does not allow
// it, e.g. reading locals while running.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.State)
}

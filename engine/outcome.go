package engine

import "github.com/wasmscope/wasmscope/wasm"

// OutcomeKind classifies what a single Step did, so a driver can decide
// whether to keep stepping, wind the frame stack, or stop.
type OutcomeKind int

const (
	// OutcomeContinue means the instruction completed and the program
	// counter already points at the next instruction.
	OutcomeContinue OutcomeKind = iota
	// OutcomeBranch means control transferred within the current function.
	OutcomeBranch
	// OutcomeCall means the instruction requests entry into Target. The
	// frame has not been pushed; the driver does that, so call depth stays
	// observable and host functions never grow the Go stack.
	OutcomeCall
	// OutcomeReturn means the current function finished and its frame
	// should be popped.
	OutcomeReturn
	// OutcomeTrap means execution faulted. The machine state is frozen at
	// the faulting instruction.
	OutcomeTrap
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeContinue:
		return "continue"
	case OutcomeBranch:
		return "branch"
	case OutcomeCall:
		return "call"
	case OutcomeReturn:
		return "return"
	case OutcomeTrap:
		return "trap"
	}
	return "unknown"
}

// StepOutcome is the result of executing exactly one instruction.
type StepOutcome struct {
	Kind   OutcomeKind
	Target *FunctionInstance // callee, set when Kind is OutcomeCall
	Trap   *wasm.Trap        // fault, set when Kind is OutcomeTrap
}

var (
	outcomeContinue = StepOutcome{Kind: OutcomeContinue}
	outcomeBranch   = StepOutcome{Kind: OutcomeBranch}
	outcomeReturn   = StepOutcome{Kind: OutcomeReturn}
)

func outcomeTrap(reason wasm.TrapReason) StepOutcome {
	return StepOutcome{Kind: OutcomeTrap, Trap: wasm.NewTrap(reason)}
}

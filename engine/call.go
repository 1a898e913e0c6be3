package engine

import (
	"context"

	"github.com/wasmscope/wasmscope/wasm"
)

// Call runs fn to completion with the given arguments and returns its
// results. It is the free-running driver used for start functions and for
// callers that do not need instruction-level control; a debugger drives
// Step directly instead.
//
// On a Trap or HostTrap the machine is left frozen at the fault for
// inspection, so a machine that returned an error should not be reused for
// further calls.
func (m *Machine) Call(ctx context.Context, fn *FunctionInstance, args ...uint64) ([]uint64, error) {
	if fn.IsHost() {
		results, err := fn.Host(ctx, m.inst, args)
		if err != nil {
			return nil, &wasm.HostTrap{Module: fn.HostModule, Name: fn.Name, Err: err}
		}
		return results, nil
	}
	baseDepth := len(m.frames)
	for _, arg := range args {
		m.push(arg)
	}
	if trap := m.EnterFunction(fn); trap != nil {
		return nil, trap
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out := m.Step()
		switch out.Kind {
		case OutcomeContinue, OutcomeBranch:
		case OutcomeCall:
			if out.Target.IsHost() {
				if err := m.CallHost(ctx, out.Target); err != nil {
					return nil, err
				}
			} else if trap := m.EnterFunction(out.Target); trap != nil {
				return nil, trap
			}
		case OutcomeReturn:
			m.LeaveFunction()
			if len(m.frames) == baseDepth {
				arity := len(fn.Type.Results)
				results := make([]uint64, arity)
				for i := arity - 1; i >= 0; i-- {
					results[i] = m.pop()
				}
				return results, nil
			}
		case OutcomeTrap:
			return nil, out.Trap
		}
	}
}

// CallHost invokes a host function in place: arguments are popped from the
// operand stack and results pushed back, without growing the frame stack.
// A host error is returned as a HostTrap with the stack left as it was at
// the call, arguments already consumed.
func (m *Machine) CallHost(ctx context.Context, fn *FunctionInstance) error {
	n := len(fn.Type.Params)
	args := make([]uint64, n)
	for i := n - 1; i >= 0; i-- {
		args[i] = m.pop()
	}
	results, err := fn.Host(ctx, m.inst, args)
	if err != nil {
		return &wasm.HostTrap{Module: fn.HostModule, Name: fn.Name, Err: err}
	}
	for _, r := range results {
		m.push(r)
	}
	return nil
}

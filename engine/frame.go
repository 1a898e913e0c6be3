package engine

import "github.com/wasmscope/wasmscope/wasm"

// Label is one entry of a frame's control stack. Branching to a label
// transfers to ContinuationPC after carrying Arity values and truncating the
// operand stack back to Height.
type Label struct {
	Arity          int
	ContinuationPC uint64
	Height         int // operand stack height at block entry, absolute
}

// Frame is one activation of a wasm-defined function. Its operand values
// live on the machine's shared stack starting at Base; Locals are stored
// here, params first.
type Frame struct {
	Func   *FunctionInstance
	PC     uint64
	Locals []uint64
	Labels []Label
	Base   int
}

// newFrame builds a frame for fn with the given arguments already popped by
// the caller. Non-parameter locals are zero-initialized.
func newFrame(fn *FunctionInstance, args []uint64, base int) *Frame {
	locals := make([]uint64, len(fn.Type.Params)+len(fn.Code.LocalTypes))
	copy(locals, args)
	return &Frame{
		Func:   fn,
		Locals: locals,
		Base:   base,
		Labels: []Label{{
			Arity:          len(fn.Type.Results),
			ContinuationPC: uint64(len(fn.Code.Body)),
			Height:         base,
		}},
	}
}

// blockAt returns the bracketing metadata of the block starting at pc.
// Validation guarantees an entry exists for every block, loop and if.
func (f *Frame) blockAt(pc uint64) *wasm.BlockMetadata {
	return f.Func.Meta.Blocks[pc]
}

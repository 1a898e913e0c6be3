package wasm

// FunctionMetadata is the validator's retained output for one function body.
// The interpreter uses Blocks to transfer control without rescanning the
// instruction stream, and the debugger uses StackTypes to type the raw
// operand stack at any suspension point without recomputing validation.
type FunctionMetadata struct {
	// Blocks maps the offset of a block/loop/if opcode to its bracketing.
	Blocks map[uint64]*BlockMetadata
	// StackTypes maps each instruction offset to the expected operand-type
	// stack (relative to the frame base) just before that instruction
	// executes. Entries may contain ValueTypeUnknown inside unreachable code.
	StackTypes map[uint64][]ValueType
}

// BlockMetadata records the static bracketing of one structured control
// block: where it starts, where its else arm begins (if any), and where its
// end opcode sits.
type BlockMetadata struct {
	StartAt, ElseAt, EndAt uint64
	// BlockTypeBytes is the encoded length of the block type immediate.
	BlockTypeBytes uint64
	BlockType      *FunctionType
	IsLoop         bool
	IsIf           bool
}

// StackHeightAt returns the expected operand stack height just before the
// instruction at pc, and whether the offset is an instruction boundary.
func (m *FunctionMetadata) StackHeightAt(pc uint64) (int, bool) {
	ts, ok := m.StackTypes[pc]
	return len(ts), ok
}

package engine

import (
	"math"

	"github.com/wasmscope/wasmscope/wasm"
	"github.com/wasmscope/wasmscope/wasm/ieee754"
	"github.com/wasmscope/wasmscope/wasm/leb128"
)

// callStackCeiling bounds the call frame stack. Exceeding it traps with
// call stack exhausted instead of growing without bound.
const callStackCeiling = 2048

// Machine is the stack machine that executes one instance. It owns the
// operand stack and the call frame stack; every frame's operands occupy a
// contiguous slice of the shared stack above the frame's Base.
//
// Machine is single-threaded by design. A debugger drives it one Step at a
// time; concurrency belongs to the controller, not here.
type Machine struct {
	inst   *Instance
	stack  []uint64
	frames []*Frame
}

// NewMachine returns a machine with an empty stack executing inst.
func NewMachine(inst *Instance) *Machine {
	return &Machine{inst: inst}
}

// Instance returns the instance this machine executes.
func (m *Machine) Instance() *Instance { return m.inst }

// Depth returns the number of live call frames.
func (m *Machine) Depth() int { return len(m.frames) }

// Frames returns the live call frames, innermost last. The slice is a copy
// but the frames are live; callers must not mutate them.
func (m *Machine) Frames() []*Frame {
	ret := make([]*Frame, len(m.frames))
	copy(ret, m.frames)
	return ret
}

// CurrentFrame returns the innermost frame, or nil when no call is active.
func (m *Machine) CurrentFrame() *Frame {
	if len(m.frames) == 0 {
		return nil
	}
	return m.frames[len(m.frames)-1]
}

// StackHeight returns the operand stack height across all frames.
func (m *Machine) StackHeight() int { return len(m.stack) }

// OperandAt returns the operand at absolute stack position i, 0 being the
// bottom of the stack.
func (m *Machine) OperandAt(i int) uint64 { return m.stack[i] }

// PushOperand pushes a raw value, used by drivers to pass call arguments
// and host function results.
func (m *Machine) PushOperand(v uint64) { m.push(v) }

// PopOperand pops a raw value, used by drivers to collect results.
func (m *Machine) PopOperand() uint64 { return m.pop() }

func (m *Machine) push(v uint64) { m.stack = append(m.stack, v) }

func (m *Machine) pop() uint64 {
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v
}

func (m *Machine) peek() uint64 { return m.stack[len(m.stack)-1] }

// peekN returns the operand n positions below the top, peekN(0) being the
// top itself.
func (m *Machine) peekN(n int) uint64 { return m.stack[len(m.stack)-1-n] }

// EnterFunction pops fn's arguments off the operand stack and pushes a new
// frame for it. A depth overflow returns a trap and leaves the stack
// untouched.
func (m *Machine) EnterFunction(fn *FunctionInstance) *wasm.Trap {
	if len(m.frames) >= callStackCeiling {
		return wasm.NewTrap(wasm.TrapCallStackExhausted)
	}
	n := len(fn.Type.Params)
	base := len(m.stack) - n
	args := make([]uint64, n)
	copy(args, m.stack[base:])
	m.stack = m.stack[:base]
	m.frames = append(m.frames, newFrame(fn, args, base))
	return nil
}

// LeaveFunction pops the innermost frame, discarding its operands and
// carrying its results to the caller's stack.
func (m *Machine) LeaveFunction() {
	f := m.frames[len(m.frames)-1]
	m.frames = m.frames[:len(m.frames)-1]
	arity := len(f.Func.Type.Results)
	results := make([]uint64, arity)
	copy(results, m.stack[len(m.stack)-arity:])
	m.stack = append(m.stack[:f.Base], results...)
}

// Step executes exactly one instruction of the innermost frame. It never
// pushes or pops call frames itself: a call is reported as OutcomeCall and
// a completed function as OutcomeReturn, and the driver winds the frame
// stack. A trap leaves the program counter on the faulting instruction and
// the operand stack as it was before the instruction.
func (m *Machine) Step() StepOutcome {
	f := m.CurrentFrame()
	body := f.Func.Code.Body
	if f.PC >= uint64(len(body)) {
		return outcomeReturn
	}
	op := wasm.Opcode(body[f.PC])
	switch op {
	case wasm.OpcodeUnreachable:
		return outcomeTrap(wasm.TrapUnreachable)
	case wasm.OpcodeNop:
		f.PC++
		return outcomeContinue
	case wasm.OpcodeBlock:
		meta := f.blockAt(f.PC)
		f.Labels = append(f.Labels, Label{
			Arity:          len(meta.BlockType.Results),
			ContinuationPC: meta.EndAt + 1,
			Height:         len(m.stack),
		})
		f.PC += 1 + meta.BlockTypeBytes
		return outcomeContinue
	case wasm.OpcodeLoop:
		meta := f.blockAt(f.PC)
		// branching to a loop label re-executes the loop opcode, which
		// re-pushes this label at the same height
		f.Labels = append(f.Labels, Label{
			Arity:          0,
			ContinuationPC: meta.StartAt,
			Height:         len(m.stack),
		})
		f.PC += 1 + meta.BlockTypeBytes
		return outcomeContinue
	case wasm.OpcodeIf:
		meta := f.blockAt(f.PC)
		cond := m.pop()
		f.Labels = append(f.Labels, Label{
			Arity:          len(meta.BlockType.Results),
			ContinuationPC: meta.EndAt + 1,
			Height:         len(m.stack),
		})
		if cond != 0 {
			f.PC += 1 + meta.BlockTypeBytes
		} else {
			f.PC = meta.ElseAt + 1
		}
		return outcomeContinue
	case wasm.OpcodeElse:
		// falling into else from the then arm ends the if block
		m.branch(f, 0)
		return outcomeBranch
	case wasm.OpcodeEnd:
		f.Labels = f.Labels[:len(f.Labels)-1]
		f.PC++
		if len(f.Labels) == 0 {
			return outcomeReturn
		}
		return outcomeContinue
	case wasm.OpcodeBr:
		depth, _, _ := leb128.Uint32(body[f.PC+1:])
		m.branch(f, int(depth))
		if len(f.Labels) == 0 {
			return outcomeReturn
		}
		return outcomeBranch
	case wasm.OpcodeBrIf:
		depth, n, _ := leb128.Uint32(body[f.PC+1:])
		if m.pop() != 0 {
			m.branch(f, int(depth))
			if len(f.Labels) == 0 {
				return outcomeReturn
			}
			return outcomeBranch
		}
		f.PC += 1 + uint64(n)
		return outcomeContinue
	case wasm.OpcodeBrTable:
		return m.stepBrTable(f, body)
	case wasm.OpcodeReturn:
		m.branch(f, len(f.Labels)-1)
		return outcomeReturn
	case wasm.OpcodeCall:
		index, n, _ := leb128.Uint32(body[f.PC+1:])
		if len(m.frames) >= callStackCeiling {
			return outcomeTrap(wasm.TrapCallStackExhausted)
		}
		f.PC += 1 + uint64(n)
		return StepOutcome{Kind: OutcomeCall, Target: m.inst.Functions[index]}
	case wasm.OpcodeCallIndirect:
		return m.stepCallIndirect(f, body)
	case wasm.OpcodeDrop:
		m.pop()
		f.PC++
		return outcomeContinue
	case wasm.OpcodeSelect:
		cond := m.pop()
		v2 := m.pop()
		v1 := m.pop()
		if cond != 0 {
			m.push(v1)
		} else {
			m.push(v2)
		}
		f.PC++
		return outcomeContinue
	case wasm.OpcodeLocalGet:
		index, n, _ := leb128.Uint32(body[f.PC+1:])
		m.push(f.Locals[index])
		f.PC += 1 + uint64(n)
		return outcomeContinue
	case wasm.OpcodeLocalSet:
		index, n, _ := leb128.Uint32(body[f.PC+1:])
		f.Locals[index] = m.pop()
		f.PC += 1 + uint64(n)
		return outcomeContinue
	case wasm.OpcodeLocalTee:
		index, n, _ := leb128.Uint32(body[f.PC+1:])
		f.Locals[index] = m.peek()
		f.PC += 1 + uint64(n)
		return outcomeContinue
	case wasm.OpcodeGlobalGet:
		index, n, _ := leb128.Uint32(body[f.PC+1:])
		m.push(m.inst.Globals[index].Value)
		f.PC += 1 + uint64(n)
		return outcomeContinue
	case wasm.OpcodeGlobalSet:
		index, n, _ := leb128.Uint32(body[f.PC+1:])
		m.inst.Globals[index].Value = m.pop()
		f.PC += 1 + uint64(n)
		return outcomeContinue
	case wasm.OpcodeMemorySize:
		m.push(uint64(m.inst.Memory.PageCount()))
		f.PC += 2 // opcode plus reserved byte
		return outcomeContinue
	case wasm.OpcodeMemoryGrow:
		delta := m.pop()
		m.push(uint64(m.inst.Memory.Grow(uint32(delta))))
		f.PC += 2
		return outcomeContinue
	case wasm.OpcodeI32Const:
		v, n, _ := leb128.Int32(body[f.PC+1:])
		m.push(uint64(uint32(v)))
		f.PC += 1 + uint64(n)
		return outcomeContinue
	case wasm.OpcodeI64Const:
		v, n, _ := leb128.Int64(body[f.PC+1:])
		m.push(uint64(v))
		f.PC += 1 + uint64(n)
		return outcomeContinue
	case wasm.OpcodeF32Const:
		v, _ := ieee754.DecodeFloat32(body[f.PC+1:])
		m.push(uint64(math.Float32bits(v)))
		f.PC += 5
		return outcomeContinue
	case wasm.OpcodeF64Const:
		v, _ := ieee754.DecodeFloat64(body[f.PC+1:])
		m.push(math.Float64bits(v))
		f.PC += 9
		return outcomeContinue
	}
	if op >= wasm.OpcodeI32Load && op <= wasm.OpcodeI64Store32 {
		return m.stepMemory(f, op, body)
	}
	return m.stepNumeric(f, op)
}

// branch transfers control to the depth-th enclosing label, carrying its
// arity values and discarding everything the exited blocks pushed. The
// target label is popped too; a loop re-pushes its label when its opcode
// re-executes.
func (m *Machine) branch(f *Frame, depth int) {
	labelIndex := len(f.Labels) - 1 - depth
	label := f.Labels[labelIndex]
	carried := make([]uint64, label.Arity)
	copy(carried, m.stack[len(m.stack)-label.Arity:])
	m.stack = append(m.stack[:label.Height], carried...)
	f.Labels = f.Labels[:labelIndex]
	f.PC = label.ContinuationPC
}

func (m *Machine) stepBrTable(f *Frame, body []byte) StepOutcome {
	pc := f.PC + 1
	count, n, _ := leb128.Uint32(body[pc:])
	pc += uint64(n)
	targets := make([]uint32, count)
	for i := range targets {
		targets[i], n, _ = leb128.Uint32(body[pc:])
		pc += uint64(n)
	}
	fallback, _, _ := leb128.Uint32(body[pc:])
	index := uint32(m.pop())
	depth := fallback
	if index < count {
		depth = targets[index]
	}
	m.branch(f, int(depth))
	if len(f.Labels) == 0 {
		return outcomeReturn
	}
	return outcomeBranch
}

func (m *Machine) stepCallIndirect(f *Frame, body []byte) StepOutcome {
	typeIndex, n, _ := leb128.Uint32(body[f.PC+1:])
	elemIndex := uint32(m.peek())
	table := m.inst.Table
	if uint64(elemIndex) >= uint64(len(table.Elements)) {
		return outcomeTrap(wasm.TrapUndefinedTableElement)
	}
	target := table.Elements[elemIndex]
	if target == nil {
		return outcomeTrap(wasm.TrapUndefinedTableElement)
	}
	if !target.Type.EqualTo(m.inst.Module.TypeSection[typeIndex]) {
		return outcomeTrap(wasm.TrapIndirectCallTypeMismatch)
	}
	if len(m.frames) >= callStackCeiling {
		return outcomeTrap(wasm.TrapCallStackExhausted)
	}
	m.pop()
	f.PC += 2 + uint64(n) // opcode, type index, reserved byte
	return StepOutcome{Kind: OutcomeCall, Target: target}
}

// memAccessWidths maps each load and store opcode to its access width in
// bytes. Sign extension and value width are handled in stepMemory.
var memAccessWidths = map[wasm.Opcode]uint64{
	wasm.OpcodeI32Load: 4, wasm.OpcodeI64Load: 8,
	wasm.OpcodeF32Load: 4, wasm.OpcodeF64Load: 8,
	wasm.OpcodeI32Load8S: 1, wasm.OpcodeI32Load8U: 1,
	wasm.OpcodeI32Load16S: 2, wasm.OpcodeI32Load16U: 2,
	wasm.OpcodeI64Load8S: 1, wasm.OpcodeI64Load8U: 1,
	wasm.OpcodeI64Load16S: 2, wasm.OpcodeI64Load16U: 2,
	wasm.OpcodeI64Load32S: 4, wasm.OpcodeI64Load32U: 4,
	wasm.OpcodeI32Store: 4, wasm.OpcodeI64Store: 8,
	wasm.OpcodeF32Store: 4, wasm.OpcodeF64Store: 8,
	wasm.OpcodeI32Store8: 1, wasm.OpcodeI32Store16: 2,
	wasm.OpcodeI64Store8: 1, wasm.OpcodeI64Store16: 2, wasm.OpcodeI64Store32: 4,
}

func (m *Machine) stepMemory(f *Frame, op wasm.Opcode, body []byte) StepOutcome {
	pc := f.PC + 1
	_, n, _ := leb128.Uint32(body[pc:]) // alignment hint, no runtime effect
	pc += uint64(n)
	offset, n, _ := leb128.Uint32(body[pc:])
	pc += uint64(n)

	width := memAccessWidths[op]
	isStore := op >= wasm.OpcodeI32Store
	mem := m.inst.Memory

	// bounds are checked against peeked operands so a trap leaves the
	// stack and program counter untouched
	var baseAddr uint64
	if isStore {
		baseAddr = uint64(uint32(m.peekN(1)))
	} else {
		baseAddr = uint64(uint32(m.peek()))
	}
	addr := baseAddr + uint64(offset)
	if !mem.hasRange(addr, width) {
		return outcomeTrap(wasm.TrapOutOfBoundsMemoryAccess)
	}

	if isStore {
		v := m.pop()
		m.pop()
		mem.writeUint64(addr, width, v)
		f.PC = pc
		return outcomeContinue
	}

	m.pop()
	raw := mem.readUint64(addr, width)
	switch op {
	case wasm.OpcodeI32Load8S:
		raw = uint64(uint32(int32(int8(raw))))
	case wasm.OpcodeI32Load16S:
		raw = uint64(uint32(int32(int16(raw))))
	case wasm.OpcodeI64Load8S:
		raw = uint64(int64(int8(raw)))
	case wasm.OpcodeI64Load16S:
		raw = uint64(int64(int16(raw)))
	case wasm.OpcodeI64Load32S:
		raw = uint64(int64(int32(raw)))
	}
	m.push(raw)
	f.PC = pc
	return outcomeContinue
}

package debug

import (
	"fmt"
	"math"

	"github.com/wasmscope/wasmscope/engine"
	"github.com/wasmscope/wasmscope/wasm"
)

// Value is one operand, local, or global: raw bits plus the declared or
// inferred value type.
type Value struct {
	Type wasm.ValueType
	Raw  uint64
}

func (v Value) String() string {
	switch v.Type {
	case wasm.ValueTypeI32:
		return fmt.Sprintf("i32:%d", int32(v.Raw))
	case wasm.ValueTypeI64:
		return fmt.Sprintf("i64:%d", int64(v.Raw))
	case wasm.ValueTypeF32:
		return fmt.Sprintf("f32:%g", math.Float32frombits(uint32(v.Raw)))
	case wasm.ValueTypeF64:
		return fmt.Sprintf("f64:%g", math.Float64frombits(v.Raw))
	}
	return fmt.Sprintf("unknown:0x%x", v.Raw)
}

// FrameInfo is one backtrace entry. Index 0 is the innermost frame.
type FrameInfo struct {
	Index     int
	FuncIndex uint32
	FuncName  string
	PC        uint64
	// Instruction is the text name of the opcode about to execute, empty
	// when the frame sits past the end of its body.
	Instruction string
}

func (f FrameInfo) String() string {
	name := f.FuncName
	if name == "" {
		name = fmt.Sprintf("func[%d]", f.FuncIndex)
	}
	return fmt.Sprintf("#%d %s +0x%x %s", f.Index, name, f.PC, f.Instruction)
}

// requireStoppedLocked gates the inspection surface: state must be
// Suspended, Trapped or Terminated.
func (s *Session) requireStoppedLocked(op string) error {
	if s.closed {
		return &StateError{Op: op, State: StateTerminated}
	}
	switch s.state {
	case StateSuspended, StateTrapped, StateTerminated:
		return nil
	}
	return &StateError{Op: op, State: s.state}
}

// Backtrace returns the live call frames, innermost first. After a trap the
// innermost entry names the faulting instruction.
func (s *Session) Backtrace() ([]FrameInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStoppedLocked("read backtrace"); err != nil {
		return nil, err
	}
	frames := s.machine.Frames()
	ret := make([]FrameInfo, 0, len(frames))
	for i := len(frames) - 1; i >= 0; i-- {
		f := frames[i]
		info := FrameInfo{
			Index:     len(frames) - 1 - i,
			FuncIndex: f.Func.Index,
			FuncName:  f.Func.Name,
			PC:        f.PC,
		}
		if f.PC < uint64(len(f.Func.Code.Body)) {
			info.Instruction = wasm.InstructionName(wasm.Opcode(f.Func.Code.Body[f.PC]))
		}
		ret = append(ret, info)
	}
	return ret, nil
}

// frameLocked resolves a backtrace index (0 = innermost) to a machine frame.
func (s *Session) frameLocked(frameIndex int) (*frameView, error) {
	frames := s.machine.Frames()
	if frameIndex < 0 || frameIndex >= len(frames) {
		return nil, fmt.Errorf("no frame %d", frameIndex)
	}
	i := len(frames) - 1 - frameIndex
	view := &frameView{frame: frames[i]}
	if i+1 < len(frames) {
		view.top = frames[i+1].Base
	} else {
		view.top = s.machine.StackHeight()
	}
	return view, nil
}

type frameView struct {
	frame *engine.Frame
	top   int // absolute stack position one past the frame's operands
}

// localTypes returns the value type of each local: parameters first, then
// the declared locals.
func localTypes(f *engine.Frame) []wasm.ValueType {
	types := make([]wasm.ValueType, 0, len(f.Locals))
	types = append(types, f.Func.Type.Params...)
	return append(types, f.Func.Code.LocalTypes...)
}

// ReadLocals returns the locals of the given frame, typed from the
// function's signature and declared locals. Index 0 is the innermost frame.
func (s *Session) ReadLocals(frameIndex int) ([]Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStoppedLocked("read locals"); err != nil {
		return nil, err
	}
	view, err := s.frameLocked(frameIndex)
	if err != nil {
		return nil, err
	}
	f := view.frame
	types := localTypes(f)
	ret := make([]Value, len(f.Locals))
	for i, raw := range f.Locals {
		ret[i] = Value{Type: types[i], Raw: raw}
	}
	return ret, nil
}

// WriteLocal overwrites one local of the given frame with raw bits.
func (s *Session) WriteLocal(frameIndex int, local uint32, raw uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStoppedLocked("write local"); err != nil {
		return err
	}
	view, err := s.frameLocked(frameIndex)
	if err != nil {
		return err
	}
	if int(local) >= len(view.frame.Locals) {
		return fmt.Errorf("no local %d in frame %d", local, frameIndex)
	}
	view.frame.Locals[local] = raw
	return nil
}

// ReadStack returns the operand stack segment of the given frame, bottom
// first. Types come from the validator's per-offset snapshot when it lines
// up with the live stack, otherwise unknown.
func (s *Session) ReadStack(frameIndex int) ([]Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStoppedLocked("read stack"); err != nil {
		return nil, err
	}
	view, err := s.frameLocked(frameIndex)
	if err != nil {
		return nil, err
	}
	f := view.frame
	n := view.top - f.Base
	types := make([]wasm.ValueType, n)
	for i := range types {
		types[i] = wasm.ValueTypeUnknown
	}
	if snapshot, ok := f.Func.Meta.StackTypes[f.PC]; ok && len(snapshot) >= n {
		copy(types, snapshot[:n])
	}
	ret := make([]Value, n)
	for i := 0; i < n; i++ {
		ret[i] = Value{Type: types[i], Raw: s.machine.OperandAt(f.Base + i)}
	}
	return ret, nil
}

// ReadGlobal returns the global at the given index.
func (s *Session) ReadGlobal(index uint32) (Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStoppedLocked("read global"); err != nil {
		return Value{}, err
	}
	if int(index) >= len(s.inst.Globals) {
		return Value{}, fmt.Errorf("no global at index %d", index)
	}
	g := s.inst.Globals[index]
	return Value{Type: g.Type.ValType, Raw: g.Value}, nil
}

// WriteGlobal overwrites the global at the given index with raw bits.
// Immutability is not enforced here: the debugger may poke anything.
func (s *Session) WriteGlobal(index uint32, raw uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStoppedLocked("write global"); err != nil {
		return err
	}
	if int(index) >= len(s.inst.Globals) {
		return fmt.Errorf("no global at index %d", index)
	}
	s.inst.Globals[index].Value = raw
	return nil
}

// ReadMemory copies length bytes of linear memory starting at offset.
func (s *Session) ReadMemory(offset, length uint32) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStoppedLocked("read memory"); err != nil {
		return nil, err
	}
	mem := s.inst.Memory
	if mem == nil {
		return nil, fmt.Errorf("module has no memory")
	}
	if uint64(offset)+uint64(length) > uint64(len(mem.Buffer)) {
		return nil, fmt.Errorf("memory read [0x%x, 0x%x) out of bounds", offset, uint64(offset)+uint64(length))
	}
	ret := make([]byte, length)
	copy(ret, mem.Buffer[offset:])
	return ret, nil
}

// WriteMemory overwrites linear memory at offset with data.
func (s *Session) WriteMemory(offset uint32, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStoppedLocked("write memory"); err != nil {
		return err
	}
	mem := s.inst.Memory
	if mem == nil {
		return fmt.Errorf("module has no memory")
	}
	if uint64(offset)+uint64(len(data)) > uint64(len(mem.Buffer)) {
		return fmt.Errorf("memory write [0x%x, 0x%x) out of bounds", offset, uint64(offset)+uint64(len(data)))
	}
	copy(mem.Buffer[offset:], data)
	return nil
}

// ReadTable returns the function index stored at the given table slot, or
// ok=false for an uninitialized slot.
func (s *Session) ReadTable(slot uint32) (funcIndex uint32, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStoppedLocked("read table"); err != nil {
		return 0, false, err
	}
	table := s.inst.Table
	if table == nil {
		return 0, false, fmt.Errorf("module has no table")
	}
	if int(slot) >= len(table.Elements) {
		return 0, false, fmt.Errorf("no table slot %d", slot)
	}
	fn := table.Elements[slot]
	if fn == nil {
		return 0, false, nil
	}
	return fn.Index, true, nil
}

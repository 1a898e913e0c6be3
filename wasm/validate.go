package wasm

import (
	"errors"
	"fmt"
	"math"

	"github.com/wasmscope/wasmscope/wasm/leb128"
)

// MemoryMaxPages caps a linear memory at 2^16 pages (4GiB).
const MemoryMaxPages = 65536

// Validate proves the module's instruction streams type- and control-flow
// safe and checks every cross-section index. On success the module carries
// one FunctionMetadata per code section entry and is ready to instantiate;
// on failure it returns a *ValidationError and the module must not be
// executed.
func (m *Module) Validate() error {
	if err := m.validateSections(); err != nil {
		return &ValidationError{Err: err}
	}

	funcs := m.FunctionTypeIndexes()
	globals := m.globalDeclarations()
	memories := m.memoryDeclarations()
	tables := m.tableDeclarations()

	importedFuncs := int(m.ImportFunctionCount())
	m.Metadata = make([]*FunctionMetadata, len(m.CodeSection))
	for i, code := range m.CodeSection {
		funcIndex := uint32(importedFuncs + i)
		sig := m.TypeSection[m.FunctionSection[i]]
		v := &funcValidator{
			module:   m,
			sig:      sig,
			body:     code.Body,
			locals:   append(append([]ValueType{}, sig.Params...), code.LocalTypes...),
			funcs:    funcs,
			globals:  globals,
			memories: memories,
			tables:   tables,
			meta: &FunctionMetadata{
				Blocks:     map[uint64]*BlockMetadata{},
				StackTypes: map[uint64][]ValueType{},
			},
		}
		if err := v.run(); err != nil {
			return &ValidationError{FuncIndex: funcIndex, Offset: v.pc, InFunction: true, Err: err}
		}
		m.Metadata[i] = v.meta
	}
	return nil
}

func (m *Module) validateSections() error {
	if len(m.FunctionSection) != len(m.CodeSection) {
		return fmt.Errorf("function and code sections have inconsistent lengths: %d != %d",
			len(m.FunctionSection), len(m.CodeSection))
	}
	for i, typeIndex := range m.FunctionSection {
		if int(typeIndex) >= len(m.TypeSection) {
			return fmt.Errorf("function[%d]: type index %d out of range", i, typeIndex)
		}
	}
	importedGlobals := 0
	for _, imp := range m.ImportSection {
		switch imp.Kind {
		case ExternKindFunc:
			if int(imp.DescFunc) >= len(m.TypeSection) {
				return fmt.Errorf("import %s.%s: type index %d out of range", imp.Module, imp.Name, imp.DescFunc)
			}
		case ExternKindGlobal:
			importedGlobals++
		}
	}

	memories := m.memoryDeclarations()
	tables := m.tableDeclarations()
	if len(memories) > 1 {
		return errors.New("multiple memories are not supported")
	}
	if len(tables) > 1 {
		return errors.New("multiple tables are not supported")
	}
	for _, mem := range memories {
		if err := validateLimits(mem, MemoryMaxPages, "memory"); err != nil {
			return err
		}
	}
	for _, table := range tables {
		if err := validateLimits(table.Limits, math.MaxUint32, "table"); err != nil {
			return err
		}
	}

	globalTypes := make([]*GlobalType, 0, importedGlobals)
	for _, imp := range m.ImportSection {
		if imp.Kind == ExternKindGlobal {
			globalTypes = append(globalTypes, imp.DescGlobal)
		}
	}
	for i, g := range m.GlobalSection {
		if err := m.validateConstExpr(g.Init, g.Type.ValType, globalTypes); err != nil {
			return fmt.Errorf("global[%d] initializer: %w", i, err)
		}
	}

	totalFuncs := int(m.ImportFunctionCount()) + len(m.FunctionSection)
	totalGlobals := importedGlobals + len(m.GlobalSection)

	seen := make(map[string]struct{}, len(m.ExportSection))
	for _, exp := range m.ExportSection {
		if _, dup := seen[exp.Name]; dup {
			return fmt.Errorf("duplicate export name %q", exp.Name)
		}
		seen[exp.Name] = struct{}{}
		switch exp.Kind {
		case ExternKindFunc:
			if int(exp.Index) >= totalFuncs {
				return fmt.Errorf("export %q: function index %d out of range", exp.Name, exp.Index)
			}
		case ExternKindGlobal:
			if int(exp.Index) >= totalGlobals {
				return fmt.Errorf("export %q: global index %d out of range", exp.Name, exp.Index)
			}
		case ExternKindMemory:
			if int(exp.Index) >= len(memories) {
				return fmt.Errorf("export %q: memory index %d out of range", exp.Name, exp.Index)
			}
		case ExternKindTable:
			if int(exp.Index) >= len(tables) {
				return fmt.Errorf("export %q: table index %d out of range", exp.Name, exp.Index)
			}
		default:
			return fmt.Errorf("export %q: invalid kind %#x", exp.Name, byte(exp.Kind))
		}
	}

	if m.StartSection != nil {
		index := *m.StartSection
		if int(index) >= totalFuncs {
			return fmt.Errorf("start function index %d out of range", index)
		}
		sig := m.TypeSection[m.FunctionTypeIndexes()[index]]
		if len(sig.Params) != 0 || len(sig.Results) != 0 {
			return errors.New("start function must have an empty signature")
		}
	}

	for i, elem := range m.ElementSection {
		if int(elem.TableIndex) >= len(tables) {
			return fmt.Errorf("element[%d]: table index %d out of range", i, elem.TableIndex)
		}
		if err := m.validateConstExpr(elem.Offset, ValueTypeI32, globalTypes); err != nil {
			return fmt.Errorf("element[%d] offset: %w", i, err)
		}
		for _, fn := range elem.Init {
			if int(fn) >= totalFuncs {
				return fmt.Errorf("element[%d]: function index %d out of range", i, fn)
			}
		}
	}
	for i, data := range m.DataSection {
		if int(data.MemoryIndex) >= len(memories) {
			return fmt.Errorf("data[%d]: memory index %d out of range", i, data.MemoryIndex)
		}
		if err := m.validateConstExpr(data.Offset, ValueTypeI32, globalTypes); err != nil {
			return fmt.Errorf("data[%d] offset: %w", i, err)
		}
	}
	return nil
}

func validateLimits(l *Limits, ceiling uint32, what string) error {
	if l.Min > ceiling {
		return fmt.Errorf("%s minimum %d over limit %d", what, l.Min, ceiling)
	}
	if l.Max != nil {
		if *l.Max > ceiling {
			return fmt.Errorf("%s maximum %d over limit %d", what, *l.Max, ceiling)
		}
		if *l.Max < l.Min {
			return fmt.Errorf("%s maximum %d below minimum %d", what, *l.Max, l.Min)
		}
	}
	return nil
}

// validateConstExpr checks an initializer expression: a single *.const whose
// type matches, or global.get of an imported immutable global.
func (m *Module) validateConstExpr(expr *ConstantExpression, want ValueType, importedGlobals []*GlobalType) error {
	var got ValueType
	switch expr.Opcode {
	case OpcodeI32Const:
		if _, _, err := leb128.Int32(expr.Data); err != nil {
			return fmt.Errorf("read i32 immediate: %w", err)
		}
		got = ValueTypeI32
	case OpcodeI64Const:
		if _, _, err := leb128.Int64(expr.Data); err != nil {
			return fmt.Errorf("read i64 immediate: %w", err)
		}
		got = ValueTypeI64
	case OpcodeF32Const:
		got = ValueTypeF32
	case OpcodeF64Const:
		got = ValueTypeF64
	case OpcodeGlobalGet:
		index, _, err := leb128.Uint32(expr.Data)
		if err != nil {
			return fmt.Errorf("read global index: %w", err)
		}
		if int(index) >= len(importedGlobals) {
			return fmt.Errorf("global.get %d does not refer to an imported global", index)
		}
		g := importedGlobals[index]
		if g.Mutable {
			return fmt.Errorf("global.get %d refers to a mutable global", index)
		}
		got = g.ValType
	default:
		return fmt.Errorf("invalid constant expression opcode 0x%x", byte(expr.Opcode))
	}
	if got != want {
		return fmt.Errorf("type mismatch: want %s but have %s", want, got)
	}
	return nil
}

// funcValidator abstract-interprets one function body. pc always names the
// offset of the instruction currently being checked, so the caller can
// report it on failure.
type funcValidator struct {
	module   *Module
	sig      *FunctionType
	body     []byte
	locals   []ValueType // params followed by declared locals
	funcs    []uint32
	globals  []*GlobalType
	memories []*MemoryType
	tables   []*TableType

	pc     uint64
	ts     typeStack
	labels []*BlockMetadata
	meta   *FunctionMetadata
}

// implicitStart marks the synthetic label covering the whole function body.
const implicitStart = uint64(math.MaxUint64)

func (v *funcValidator) run() error {
	v.labels = []*BlockMetadata{{StartAt: implicitStart, BlockType: &FunctionType{Results: v.sig.Results}}}
	for v.pc = 0; v.pc < uint64(len(v.body)); v.pc++ {
		v.meta.StackTypes[v.pc] = v.ts.snapshot()
		op := Opcode(v.body[v.pc])
		var err error
		switch {
		case op == OpcodeUnreachable:
			v.ts.unreachable()
		case op == OpcodeNop:
		case op == OpcodeBlock || op == OpcodeLoop || op == OpcodeIf:
			err = v.enterBlock(op)
		case op == OpcodeElse:
			err = v.elseArm()
		case op == OpcodeEnd:
			err = v.endBlock()
		case op == OpcodeBr || op == OpcodeBrIf:
			err = v.branch(op)
		case op == OpcodeBrTable:
			err = v.branchTable()
		case op == OpcodeReturn:
			if err = v.ts.popResults(v.sig.Results, false); err == nil {
				v.ts.unreachable()
			}
		case op == OpcodeCall:
			err = v.call()
		case op == OpcodeCallIndirect:
			err = v.callIndirect()
		case op == OpcodeDrop:
			_, err = v.ts.pop()
		case op == OpcodeSelect:
			err = v.selectOp()
		case op >= OpcodeLocalGet && op <= OpcodeGlobalSet:
			err = v.variable(op)
		case op >= OpcodeI32Load && op <= OpcodeI64Store32:
			err = v.memoryAccess(op)
		case op == OpcodeMemorySize || op == OpcodeMemoryGrow:
			err = v.memorySizeOrGrow(op)
		case op >= OpcodeI32Const && op <= OpcodeF64Const:
			err = v.constant(op)
		case op >= OpcodeI32Eqz && op <= OpcodeF64ReinterpretI64:
			err = v.numeric(op)
		default:
			err = fmt.Errorf("invalid opcode 0x%x", byte(op))
		}
		if err != nil {
			return fmt.Errorf("%s: %w", InstructionName(op), err)
		}
	}
	if len(v.labels) > 0 {
		return errors.New("ill-nested blocks: function body not closed")
	}
	return nil
}

// immediateU32 reads a LEB128 u32 immediate following the current opcode or
// previous immediate, advancing pc past it.
func (v *funcValidator) immediateU32() (uint32, error) {
	val, n, err := leb128.Uint32(v.body[v.pc+1:])
	if err != nil {
		return 0, fmt.Errorf("read immediate: %w", err)
	}
	v.pc += uint64(n)
	return val, nil
}

func (v *funcValidator) enterBlock(op Opcode) error {
	bt, n, err := readBlockType(v.module, v.body[v.pc+1:])
	if err != nil {
		return err
	}
	if len(bt.Params) != 0 {
		return errors.New("block parameters are not supported")
	}
	bl := &BlockMetadata{
		StartAt:        v.pc,
		BlockType:      bt,
		BlockTypeBytes: uint64(n),
		IsLoop:         op == OpcodeLoop,
		IsIf:           op == OpcodeIf,
	}
	if op == OpcodeIf {
		if err := v.ts.popExpecting(ValueTypeI32); err != nil {
			return err
		}
	}
	v.labels = append(v.labels, bl)
	v.ts.pushLimit()
	v.pc += uint64(n)
	return nil
}

func (v *funcValidator) elseArm() error {
	bl := v.labels[len(v.labels)-1]
	if !bl.IsIf || bl.StartAt == implicitStart {
		return errors.New("else outside of an if block")
	}
	bl.ElseAt = v.pc
	if err := v.ts.popResults(bl.BlockType.Results, true); err != nil {
		return fmt.Errorf("then arm results: %w", err)
	}
	// The else arm starts from the same stack the then arm did.
	v.ts.resetAtLimit()
	return nil
}

func (v *funcValidator) endBlock() error {
	if len(v.labels) == 0 {
		return errors.New("no open block")
	}
	bl := v.labels[len(v.labels)-1]
	v.labels = v.labels[:len(v.labels)-1]
	if bl.StartAt != implicitStart {
		bl.EndAt = v.pc
		v.meta.Blocks[bl.StartAt] = bl
		if bl.IsIf && bl.ElseAt <= bl.StartAt {
			if len(bl.BlockType.Results) > 0 {
				return errors.New("if without else cannot produce results")
			}
			// Lets the interpreter treat a missing else arm as a jump
			// straight to end.
			bl.ElseAt = bl.EndAt - 1
		}
	}
	if err := v.ts.popResults(bl.BlockType.Results, true); err != nil {
		return err
	}
	v.ts.resetAtLimit()
	for _, r := range bl.BlockType.Results {
		v.ts.push(r)
	}
	v.ts.popLimit()
	return nil
}

// branchTarget returns the result types a br at the given relative depth
// must supply. A loop label's continuation is its beginning, so it requires
// no results.
func (v *funcValidator) branchTarget(depth uint32) ([]ValueType, error) {
	if int(depth) >= len(v.labels) {
		return nil, fmt.Errorf("label depth %d out of range (%d labels)", depth, len(v.labels))
	}
	bl := v.labels[len(v.labels)-1-int(depth)]
	if bl.IsLoop {
		return nil, nil
	}
	return bl.BlockType.Results, nil
}

func (v *funcValidator) branch(op Opcode) error {
	depth, err := v.immediateU32()
	if err != nil {
		return err
	}
	if op == OpcodeBrIf {
		if err := v.ts.popExpecting(ValueTypeI32); err != nil {
			return err
		}
	}
	target, err := v.branchTarget(depth)
	if err != nil {
		return err
	}
	if err := v.ts.popResults(target, false); err != nil {
		return err
	}
	if op == OpcodeBr {
		v.ts.unreachable()
	} else {
		for _, t := range target {
			v.ts.push(t)
		}
	}
	return nil
}

func (v *funcValidator) branchTable() error {
	count, err := v.immediateU32()
	if err != nil {
		return err
	}
	targets := make([]uint32, count)
	for i := range targets {
		if targets[i], err = v.immediateU32(); err != nil {
			return err
		}
	}
	fallback, err := v.immediateU32()
	if err != nil {
		return err
	}
	if err := v.ts.popExpecting(ValueTypeI32); err != nil {
		return err
	}
	expected, err := v.branchTarget(fallback)
	if err != nil {
		return err
	}
	for _, depth := range targets {
		types, err := v.branchTarget(depth)
		if err != nil {
			return err
		}
		if !valueTypesEqual(expected, types) {
			return fmt.Errorf("inconsistent label types: depth %d wants %v, default wants %v", depth, types, expected)
		}
	}
	if err := v.ts.popResults(expected, false); err != nil {
		return err
	}
	v.ts.unreachable()
	return nil
}

func (v *funcValidator) call() error {
	index, err := v.immediateU32()
	if err != nil {
		return err
	}
	if int(index) >= len(v.funcs) {
		return fmt.Errorf("function index %d out of range", index)
	}
	return v.applySignature(v.module.TypeSection[v.funcs[index]])
}

func (v *funcValidator) callIndirect() error {
	typeIndex, err := v.immediateU32()
	if err != nil {
		return err
	}
	v.pc++
	if v.pc >= uint64(len(v.body)) || v.body[v.pc] != 0x00 {
		return errors.New("reserved table index byte must be zero")
	}
	if len(v.tables) == 0 {
		return errors.New("no table declared")
	}
	if int(typeIndex) >= len(v.module.TypeSection) {
		return fmt.Errorf("type index %d out of range", typeIndex)
	}
	if err := v.ts.popExpecting(ValueTypeI32); err != nil {
		return err
	}
	return v.applySignature(v.module.TypeSection[typeIndex])
}

func (v *funcValidator) applySignature(sig *FunctionType) error {
	for i := len(sig.Params) - 1; i >= 0; i-- {
		if err := v.ts.popExpecting(sig.Params[i]); err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
	}
	for _, r := range sig.Results {
		v.ts.push(r)
	}
	return nil
}

func (v *funcValidator) selectOp() error {
	if err := v.ts.popExpecting(ValueTypeI32); err != nil {
		return err
	}
	v1, err := v.ts.pop()
	if err != nil {
		return err
	}
	v2, err := v.ts.pop()
	if err != nil {
		return err
	}
	if v1 != v2 && v1 != ValueTypeUnknown && v2 != ValueTypeUnknown {
		return fmt.Errorf("operands differ: %s != %s", v1, v2)
	}
	if v1 == ValueTypeUnknown {
		v.ts.push(v2)
	} else {
		v.ts.push(v1)
	}
	return nil
}

func (v *funcValidator) variable(op Opcode) error {
	index, err := v.immediateU32()
	if err != nil {
		return err
	}
	switch op {
	case OpcodeLocalGet, OpcodeLocalSet, OpcodeLocalTee:
		if int(index) >= len(v.locals) {
			return fmt.Errorf("local index %d out of range (%d locals)", index, len(v.locals))
		}
		t := v.locals[index]
		switch op {
		case OpcodeLocalGet:
			v.ts.push(t)
		case OpcodeLocalSet:
			return v.ts.popExpecting(t)
		case OpcodeLocalTee:
			if err := v.ts.popExpecting(t); err != nil {
				return err
			}
			v.ts.push(t)
		}
	case OpcodeGlobalGet, OpcodeGlobalSet:
		if int(index) >= len(v.globals) {
			return fmt.Errorf("global index %d out of range", index)
		}
		g := v.globals[index]
		if op == OpcodeGlobalGet {
			v.ts.push(g.ValType)
		} else {
			if !g.Mutable {
				return fmt.Errorf("global %d is immutable", index)
			}
			return v.ts.popExpecting(g.ValType)
		}
	}
	return nil
}

// memAccess describes one load/store opcode: the natural width for the
// alignment check, the value type moved, and whether it stores.
type memAccess struct {
	width   uint32 // access size in bytes
	valType ValueType
	store   bool
}

var memAccesses = map[Opcode]memAccess{
	OpcodeI32Load:    {4, ValueTypeI32, false},
	OpcodeI64Load:    {8, ValueTypeI64, false},
	OpcodeF32Load:    {4, ValueTypeF32, false},
	OpcodeF64Load:    {8, ValueTypeF64, false},
	OpcodeI32Load8S:  {1, ValueTypeI32, false},
	OpcodeI32Load8U:  {1, ValueTypeI32, false},
	OpcodeI32Load16S: {2, ValueTypeI32, false},
	OpcodeI32Load16U: {2, ValueTypeI32, false},
	OpcodeI64Load8S:  {1, ValueTypeI64, false},
	OpcodeI64Load8U:  {1, ValueTypeI64, false},
	OpcodeI64Load16S: {2, ValueTypeI64, false},
	OpcodeI64Load16U: {2, ValueTypeI64, false},
	OpcodeI64Load32S: {4, ValueTypeI64, false},
	OpcodeI64Load32U: {4, ValueTypeI64, false},
	OpcodeI32Store:   {4, ValueTypeI32, true},
	OpcodeI64Store:   {8, ValueTypeI64, true},
	OpcodeF32Store:   {4, ValueTypeF32, true},
	OpcodeF64Store:   {8, ValueTypeF64, true},
	OpcodeI32Store8:  {1, ValueTypeI32, true},
	OpcodeI32Store16: {2, ValueTypeI32, true},
	OpcodeI64Store8:  {1, ValueTypeI64, true},
	OpcodeI64Store16: {2, ValueTypeI64, true},
	OpcodeI64Store32: {4, ValueTypeI64, true},
}

func (v *funcValidator) memoryAccess(op Opcode) error {
	if len(v.memories) == 0 {
		return errors.New("no memory declared")
	}
	align, err := v.immediateU32()
	if err != nil {
		return err
	}
	if _, err := v.immediateU32(); err != nil { // offset
		return err
	}
	acc := memAccesses[op]
	if 1<<align > acc.width {
		return fmt.Errorf("alignment 2^%d exceeds access width %d", align, acc.width)
	}
	if acc.store {
		if err := v.ts.popExpecting(acc.valType); err != nil {
			return err
		}
	}
	if err := v.ts.popExpecting(ValueTypeI32); err != nil {
		return fmt.Errorf("address operand: %w", err)
	}
	if !acc.store {
		v.ts.push(acc.valType)
	}
	return nil
}

func (v *funcValidator) memorySizeOrGrow(op Opcode) error {
	if len(v.memories) == 0 {
		return errors.New("no memory declared")
	}
	v.pc++
	if v.pc >= uint64(len(v.body)) || v.body[v.pc] != 0x00 {
		return errors.New("reserved memory index byte must be zero")
	}
	if op == OpcodeMemoryGrow {
		if err := v.ts.popExpecting(ValueTypeI32); err != nil {
			return err
		}
	}
	v.ts.push(ValueTypeI32)
	return nil
}

func (v *funcValidator) constant(op Opcode) error {
	switch op {
	case OpcodeI32Const:
		_, n, err := leb128.Int32(v.body[v.pc+1:])
		if err != nil {
			return fmt.Errorf("read immediate: %w", err)
		}
		v.pc += uint64(n)
		v.ts.push(ValueTypeI32)
	case OpcodeI64Const:
		_, n, err := leb128.Int64(v.body[v.pc+1:])
		if err != nil {
			return fmt.Errorf("read immediate: %w", err)
		}
		v.pc += uint64(n)
		v.ts.push(ValueTypeI64)
	case OpcodeF32Const:
		if uint64(len(v.body)) < v.pc+5 {
			return errors.New("truncated immediate")
		}
		v.pc += 4
		v.ts.push(ValueTypeF32)
	case OpcodeF64Const:
		if uint64(len(v.body)) < v.pc+9 {
			return errors.New("truncated immediate")
		}
		v.pc += 8
		v.ts.push(ValueTypeF64)
	}
	return nil
}

func (v *funcValidator) numeric(op Opcode) error {
	sig, ok := numericSignatures[op]
	if !ok {
		return fmt.Errorf("invalid numeric opcode 0x%x", byte(op))
	}
	for i := len(sig.pop) - 1; i >= 0; i-- {
		if err := v.ts.popExpecting(sig.pop[i]); err != nil {
			return err
		}
	}
	for _, t := range sig.push {
		v.ts.push(t)
	}
	return nil
}

type opSignature struct {
	pop  []ValueType
	push []ValueType
}

var numericSignatures = map[Opcode]opSignature{}

func init() {
	const (
		i32 = ValueTypeI32
		i64 = ValueTypeI64
		f32 = ValueTypeF32
		f64 = ValueTypeF64
	)
	add := func(pop []ValueType, push ValueType, ops ...Opcode) {
		for _, op := range ops {
			numericSignatures[op] = opSignature{pop: pop, push: []ValueType{push}}
		}
	}

	add([]ValueType{i32}, i32, OpcodeI32Eqz)
	add([]ValueType{i32, i32}, i32,
		OpcodeI32Eq, OpcodeI32Ne, OpcodeI32LtS, OpcodeI32LtU, OpcodeI32GtS,
		OpcodeI32GtU, OpcodeI32LeS, OpcodeI32LeU, OpcodeI32GeS, OpcodeI32GeU,
		OpcodeI32Add, OpcodeI32Sub, OpcodeI32Mul, OpcodeI32DivS, OpcodeI32DivU,
		OpcodeI32RemS, OpcodeI32RemU, OpcodeI32And, OpcodeI32Or, OpcodeI32Xor,
		OpcodeI32Shl, OpcodeI32ShrS, OpcodeI32ShrU, OpcodeI32Rotl, OpcodeI32Rotr)
	add([]ValueType{i32}, i32, OpcodeI32Clz, OpcodeI32Ctz, OpcodeI32Popcnt)

	add([]ValueType{i64}, i32, OpcodeI64Eqz)
	add([]ValueType{i64, i64}, i32,
		OpcodeI64Eq, OpcodeI64Ne, OpcodeI64LtS, OpcodeI64LtU, OpcodeI64GtS,
		OpcodeI64GtU, OpcodeI64LeS, OpcodeI64LeU, OpcodeI64GeS, OpcodeI64GeU)
	add([]ValueType{i64, i64}, i64,
		OpcodeI64Add, OpcodeI64Sub, OpcodeI64Mul, OpcodeI64DivS, OpcodeI64DivU,
		OpcodeI64RemS, OpcodeI64RemU, OpcodeI64And, OpcodeI64Or, OpcodeI64Xor,
		OpcodeI64Shl, OpcodeI64ShrS, OpcodeI64ShrU, OpcodeI64Rotl, OpcodeI64Rotr)
	add([]ValueType{i64}, i64, OpcodeI64Clz, OpcodeI64Ctz, OpcodeI64Popcnt)

	add([]ValueType{f32, f32}, i32,
		OpcodeF32Eq, OpcodeF32Ne, OpcodeF32Lt, OpcodeF32Gt, OpcodeF32Le, OpcodeF32Ge)
	add([]ValueType{f32}, f32,
		OpcodeF32Abs, OpcodeF32Neg, OpcodeF32Ceil, OpcodeF32Floor, OpcodeF32Trunc,
		OpcodeF32Nearest, OpcodeF32Sqrt)
	add([]ValueType{f32, f32}, f32,
		OpcodeF32Add, OpcodeF32Sub, OpcodeF32Mul, OpcodeF32Div, OpcodeF32Min,
		OpcodeF32Max, OpcodeF32Copysign)

	add([]ValueType{f64, f64}, i32,
		OpcodeF64Eq, OpcodeF64Ne, OpcodeF64Lt, OpcodeF64Gt, OpcodeF64Le, OpcodeF64Ge)
	add([]ValueType{f64}, f64,
		OpcodeF64Abs, OpcodeF64Neg, OpcodeF64Ceil, OpcodeF64Floor, OpcodeF64Trunc,
		OpcodeF64Nearest, OpcodeF64Sqrt)
	add([]ValueType{f64, f64}, f64,
		OpcodeF64Add, OpcodeF64Sub, OpcodeF64Mul, OpcodeF64Div, OpcodeF64Min,
		OpcodeF64Max, OpcodeF64Copysign)

	// conversions
	add([]ValueType{i64}, i32, OpcodeI32WrapI64)
	add([]ValueType{f32}, i32, OpcodeI32TruncF32S, OpcodeI32TruncF32U, OpcodeI32ReinterpretF32)
	add([]ValueType{f64}, i32, OpcodeI32TruncF64S, OpcodeI32TruncF64U)
	add([]ValueType{i32}, i64, OpcodeI64ExtendI32S, OpcodeI64ExtendI32U)
	add([]ValueType{f32}, i64, OpcodeI64TruncF32S, OpcodeI64TruncF32U)
	add([]ValueType{f64}, i64, OpcodeI64TruncF64S, OpcodeI64TruncF64U, OpcodeI64ReinterpretF64)
	add([]ValueType{i32}, f32, OpcodeF32ConvertI32S, OpcodeF32ConvertI32U, OpcodeF32ReinterpretI32)
	add([]ValueType{i64}, f32, OpcodeF32ConvertI64S, OpcodeF32ConvertI64U)
	add([]ValueType{f64}, f32, OpcodeF32DemoteF64)
	add([]ValueType{i32}, f64, OpcodeF64ConvertI32S, OpcodeF64ConvertI32U)
	add([]ValueType{i64}, f64, OpcodeF64ConvertI64S, OpcodeF64ConvertI64U, OpcodeF64ReinterpretI64)
	add([]ValueType{f32}, f64, OpcodeF64PromoteF32)
}

// readBlockType decodes a block type immediate: 0x40 for empty, a value
// type for one result, or a type section index.
func readBlockType(m *Module, b []byte) (*FunctionType, int, error) {
	raw, n, err := leb128.Int33(b)
	if err != nil {
		return nil, 0, fmt.Errorf("read block type: %w", err)
	}
	switch raw {
	case -64: // 0x40
		return &FunctionType{}, n, nil
	case -1: // 0x7f
		return &FunctionType{Results: []ValueType{ValueTypeI32}}, n, nil
	case -2: // 0x7e
		return &FunctionType{Results: []ValueType{ValueTypeI64}}, n, nil
	case -3: // 0x7d
		return &FunctionType{Results: []ValueType{ValueTypeF32}}, n, nil
	case -4: // 0x7c
		return &FunctionType{Results: []ValueType{ValueTypeF64}}, n, nil
	default:
		if raw < 0 || raw >= int64(len(m.TypeSection)) {
			return nil, 0, fmt.Errorf("invalid block type %d", raw)
		}
		return m.TypeSection[raw], n, nil
	}
}

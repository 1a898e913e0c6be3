package engine

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/wasmscope/wasmscope/wasm"
	"github.com/wasmscope/wasmscope/wasm/ieee754"
	"github.com/wasmscope/wasmscope/wasm/leb128"
)

// FunctionInstance is one callable function, either defined by module code
// or provided by the host. Exactly one of Code and Host is set.
type FunctionInstance struct {
	Name  string
	Index uint32 // function index space position within the owning module
	Type  *wasm.FunctionType

	// wasm-defined functions
	Code   *wasm.Code
	Meta   *wasm.FunctionMetadata
	Module *Instance

	// host functions
	Host       HostFn
	HostModule string
}

// IsHost reports whether calling this function leaves wasm code.
func (f *FunctionInstance) IsHost() bool { return f.Host != nil }

// GlobalInstance is one mutable or immutable global value, stored in the
// raw uint64 encoding of its declared type.
type GlobalInstance struct {
	Type  *wasm.GlobalType
	Value uint64
}

// Instance is an instantiated module: the runtime state the interpreter
// reads and writes. It is built only from a validated Module and only
// returned whole; instantiation failures leak no partial state.
type Instance struct {
	Module    *wasm.Module
	Functions []*FunctionInstance
	Globals   []*GlobalInstance
	Memory    *MemoryInstance
	Table     *TableInstance

	exports map[string]*wasm.Export
}

// NewInstance builds runtime state for m, resolving its imports against
// imports. The module must have been validated. If the module declares a
// start function it runs to completion here; a trap inside it is reported
// as an InstantiationError wrapping the Trap.
func NewInstance(ctx context.Context, m *wasm.Module, imports *Imports) (*Instance, error) {
	if len(m.CodeSection) > 0 && len(m.Metadata) != len(m.CodeSection) {
		return nil, &wasm.InstantiationError{Err: errors.New("module has not been validated")}
	}
	if imports == nil {
		imports = NewImports()
	}
	inst := &Instance{Module: m, exports: map[string]*wasm.Export{}}
	if err := inst.resolveImports(imports); err != nil {
		return nil, &wasm.InstantiationError{Err: err}
	}
	if err := inst.buildFunctions(); err != nil {
		return nil, &wasm.InstantiationError{Err: err}
	}
	if err := inst.buildGlobals(); err != nil {
		return nil, &wasm.InstantiationError{Err: err}
	}
	inst.buildMemory()
	inst.buildTable()
	if err := inst.applySegments(); err != nil {
		return nil, &wasm.InstantiationError{Err: err}
	}
	for _, exp := range m.ExportSection {
		inst.exports[exp.Name] = exp
	}
	if m.StartSection != nil {
		start := inst.Functions[*m.StartSection]
		if _, err := NewMachine(inst).Call(ctx, start); err != nil {
			return nil, &wasm.InstantiationError{Err: err}
		}
	}
	return inst, nil
}

// ExportedFunction looks up an exported function by name.
func (inst *Instance) ExportedFunction(name string) (*FunctionInstance, error) {
	exp, ok := inst.exports[name]
	if !ok || exp.Kind != wasm.ExternKindFunc {
		return nil, fmt.Errorf("no exported function %q", name)
	}
	return inst.Functions[exp.Index], nil
}

func (inst *Instance) resolveImports(imports *Imports) error {
	for _, imp := range inst.Module.ImportSection {
		switch imp.Kind {
		case wasm.ExternKindFunc:
			typ := inst.Module.TypeSection[imp.DescFunc]
			f, err := imports.resolveFunc(imp.Module, imp.Name, typ)
			if err != nil {
				return err
			}
			inst.Functions = append(inst.Functions, f)
		case wasm.ExternKindGlobal:
			g, err := imports.resolveGlobal(imp.Module, imp.Name, imp.DescGlobal)
			if err != nil {
				return err
			}
			inst.Globals = append(inst.Globals, g)
		case wasm.ExternKindMemory:
			mem, err := imports.resolveMemory(imp.Module, imp.Name, imp.DescMem)
			if err != nil {
				return err
			}
			inst.Memory = mem
		case wasm.ExternKindTable:
			t, err := imports.resolveTable(imp.Module, imp.Name, imp.DescTable)
			if err != nil {
				return err
			}
			inst.Table = t
		}
	}
	return nil
}

func (inst *Instance) buildFunctions() error {
	importCount := inst.Module.ImportFunctionCount()
	for i, typeIndex := range inst.Module.FunctionSection {
		index := importCount + uint32(i)
		inst.Functions = append(inst.Functions, &FunctionInstance{
			Name:   inst.Module.FunctionName(index),
			Index:  index,
			Type:   inst.Module.TypeSection[typeIndex],
			Code:   inst.Module.CodeSection[i],
			Meta:   inst.Module.Metadata[i],
			Module: inst,
		})
	}
	return nil
}

func (inst *Instance) buildGlobals() error {
	for _, g := range inst.Module.GlobalSection {
		v, err := inst.evalConstExpr(g.Init)
		if err != nil {
			return err
		}
		inst.Globals = append(inst.Globals, &GlobalInstance{Type: g.Type, Value: v})
	}
	return nil
}

func (inst *Instance) buildMemory() {
	if inst.Memory != nil {
		return
	}
	if len(inst.Module.MemorySection) > 0 {
		mem := inst.Module.MemorySection[0]
		inst.Memory = newMemoryInstance(mem.Min, mem.Max)
	}
}

func (inst *Instance) buildTable() {
	if inst.Table != nil {
		return
	}
	if len(inst.Module.TableSection) > 0 {
		t := inst.Module.TableSection[0]
		inst.Table = newTableInstance(t.Limits.Min, t.Limits.Max)
	}
}

// applySegments initializes table elements and memory data. All offsets are
// bounds-checked before any segment is written, so a failed instantiation
// does not mutate imported memories or tables.
func (inst *Instance) applySegments() error {
	elemOffsets := make([]uint64, len(inst.Module.ElementSection))
	for i, seg := range inst.Module.ElementSection {
		v, err := inst.evalConstExpr(seg.Offset)
		if err != nil {
			return err
		}
		offset := uint64(uint32(v))
		if offset+uint64(len(seg.Init)) > uint64(len(inst.Table.Elements)) {
			return fmt.Errorf("element segment %d out of table bounds", i)
		}
		elemOffsets[i] = offset
	}
	dataOffsets := make([]uint64, len(inst.Module.DataSection))
	for i, seg := range inst.Module.DataSection {
		v, err := inst.evalConstExpr(seg.Offset)
		if err != nil {
			return err
		}
		offset := uint64(uint32(v))
		if offset+uint64(len(seg.Init)) > uint64(len(inst.Memory.Buffer)) {
			return fmt.Errorf("data segment %d out of memory bounds", i)
		}
		dataOffsets[i] = offset
	}
	for i, seg := range inst.Module.ElementSection {
		for j, fnIndex := range seg.Init {
			inst.Table.Elements[elemOffsets[i]+uint64(j)] = inst.Functions[fnIndex]
		}
	}
	for i, seg := range inst.Module.DataSection {
		copy(inst.Memory.Buffer[dataOffsets[i]:], seg.Init)
	}
	return nil
}

func (inst *Instance) evalConstExpr(expr *wasm.ConstantExpression) (uint64, error) {
	switch expr.Opcode {
	case wasm.OpcodeI32Const:
		v, _, err := leb128.Int32(expr.Data)
		return uint64(uint32(v)), err
	case wasm.OpcodeI64Const:
		v, _, err := leb128.Int64(expr.Data)
		return uint64(v), err
	case wasm.OpcodeF32Const:
		v, err := ieee754.DecodeFloat32(expr.Data)
		return uint64(math.Float32bits(v)), err
	case wasm.OpcodeF64Const:
		v, err := ieee754.DecodeFloat64(expr.Data)
		return math.Float64bits(v), err
	case wasm.OpcodeGlobalGet:
		index, _, err := leb128.Uint32(expr.Data)
		if err != nil {
			return 0, err
		}
		return inst.Globals[index].Value, nil
	}
	return 0, fmt.Errorf("invalid constant expression opcode 0x%02x", byte(expr.Opcode))
}

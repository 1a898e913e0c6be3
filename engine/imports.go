package engine

import (
	"context"
	"fmt"

	"github.com/wasmscope/wasmscope/wasm"
)

// HostFn is the body of a host-provided function. It receives the raw
// argument values per the declared signature and returns result values in
// the same encoding. Returning a non-nil error stops execution with a
// HostTrap; the machine state is preserved so the fault site is inspectable.
type HostFn func(ctx context.Context, inst *Instance, args []uint64) ([]uint64, error)

type externs struct {
	funcs    map[string]*FunctionInstance
	globals  map[string]*GlobalInstance
	memories map[string]*MemoryInstance
	tables   map[string]*TableInstance
}

// Imports resolves the import section of a module at instantiation time.
// The zero value is unusable; call NewImports.
type Imports struct {
	modules map[string]*externs
}

func NewImports() *Imports {
	return &Imports{modules: map[string]*externs{}}
}

func (i *Imports) module(name string) *externs {
	e, ok := i.modules[name]
	if !ok {
		e = &externs{
			funcs:    map[string]*FunctionInstance{},
			globals:  map[string]*GlobalInstance{},
			memories: map[string]*MemoryInstance{},
			tables:   map[string]*TableInstance{},
		}
		i.modules[name] = e
	}
	return e
}

// RegisterFunc makes a host function importable as module.name.
func (i *Imports) RegisterFunc(module, name string, typ *wasm.FunctionType, fn HostFn) {
	i.module(module).funcs[name] = &FunctionInstance{
		Name:       name,
		HostModule: module,
		Type:       typ,
		Host:       fn,
	}
}

// RegisterGlobal makes a global value importable as module.name.
func (i *Imports) RegisterGlobal(module, name string, typ *wasm.GlobalType, value uint64) {
	i.module(module).globals[name] = &GlobalInstance{Type: typ, Value: value}
}

// RegisterMemory makes a linear memory importable as module.name.
func (i *Imports) RegisterMemory(module, name string, mem *MemoryInstance) {
	i.module(module).memories[name] = mem
}

// RegisterTable makes a table importable as module.name.
func (i *Imports) RegisterTable(module, name string, table *TableInstance) {
	i.module(module).tables[name] = table
}

// RegisterInstance exposes every export of inst for import under the given
// module name, so instances can be linked together.
func (i *Imports) RegisterInstance(module string, inst *Instance) {
	e := i.module(module)
	for name, exp := range inst.exports {
		switch exp.Kind {
		case wasm.ExternKindFunc:
			e.funcs[name] = inst.Functions[exp.Index]
		case wasm.ExternKindGlobal:
			e.globals[name] = inst.Globals[exp.Index]
		case wasm.ExternKindMemory:
			e.memories[name] = inst.Memory
		case wasm.ExternKindTable:
			e.tables[name] = inst.Table
		}
	}
}

func (i *Imports) resolveFunc(module, name string, typ *wasm.FunctionType) (*FunctionInstance, error) {
	e, ok := i.modules[module]
	if !ok {
		return nil, fmt.Errorf("unknown import module %q", module)
	}
	f, ok := e.funcs[name]
	if !ok {
		return nil, fmt.Errorf("unknown import %s.%s", module, name)
	}
	if !f.Type.EqualTo(typ) {
		return nil, fmt.Errorf("import %s.%s: signature mismatch: want %s, have %s", module, name, typ, f.Type)
	}
	return f, nil
}

func (i *Imports) resolveGlobal(module, name string, typ *wasm.GlobalType) (*GlobalInstance, error) {
	e, ok := i.modules[module]
	if !ok {
		return nil, fmt.Errorf("unknown import module %q", module)
	}
	g, ok := e.globals[name]
	if !ok {
		return nil, fmt.Errorf("unknown import %s.%s", module, name)
	}
	if g.Type.ValType != typ.ValType || g.Type.Mutable != typ.Mutable {
		return nil, fmt.Errorf("import %s.%s: global type mismatch", module, name)
	}
	return g, nil
}

func (i *Imports) resolveMemory(module, name string, typ *wasm.MemoryType) (*MemoryInstance, error) {
	e, ok := i.modules[module]
	if !ok {
		return nil, fmt.Errorf("unknown import module %q", module)
	}
	m, ok := e.memories[name]
	if !ok {
		return nil, fmt.Errorf("unknown import %s.%s", module, name)
	}
	if m.PageCount() < typ.Min {
		return nil, fmt.Errorf("import %s.%s: memory smaller than declared minimum", module, name)
	}
	if typ.Max != nil && (m.Max == nil || *m.Max > *typ.Max) {
		return nil, fmt.Errorf("import %s.%s: memory maximum incompatible", module, name)
	}
	return m, nil
}

func (i *Imports) resolveTable(module, name string, typ *wasm.TableType) (*TableInstance, error) {
	e, ok := i.modules[module]
	if !ok {
		return nil, fmt.Errorf("unknown import module %q", module)
	}
	t, ok := e.tables[name]
	if !ok {
		return nil, fmt.Errorf("unknown import %s.%s", module, name)
	}
	if uint32(len(t.Elements)) < typ.Limits.Min {
		return nil, fmt.Errorf("import %s.%s: table smaller than declared minimum", module, name)
	}
	if typ.Limits.Max != nil && (t.Max == nil || *t.Max > *typ.Limits.Max) {
		return nil, fmt.Errorf("import %s.%s: table maximum incompatible", module, name)
	}
	return t, nil
}

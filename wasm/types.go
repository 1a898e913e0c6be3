package wasm

import (
	"fmt"
	"strings"
)

// ValueType is a numeric type of a WebAssembly value, encoded as in the
// binary format.
type ValueType byte

const (
	ValueTypeI32 ValueType = 0x7f
	ValueTypeI64 ValueType = 0x7e
	ValueTypeF32 ValueType = 0x7d
	ValueTypeF64 ValueType = 0x7c
)

func (v ValueType) String() string {
	switch v {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	}
	return fmt.Sprintf("unknown(0x%x)", byte(v))
}

// FunctionType is a function signature: parameter types and result types.
type FunctionType struct {
	Params  []ValueType
	Results []ValueType
}

func (t *FunctionType) String() string {
	var ps, rs []string
	for _, p := range t.Params {
		ps = append(ps, p.String())
	}
	for _, r := range t.Results {
		rs = append(rs, r.String())
	}
	return fmt.Sprintf("(%s)->(%s)", strings.Join(ps, ","), strings.Join(rs, ","))
}

// EqualTo reports whether both signatures have the same parameter and
// result types in the same order.
func (t *FunctionType) EqualTo(other *FunctionType) bool {
	return valueTypesEqual(t.Params, other.Params) && valueTypesEqual(t.Results, other.Results)
}

func valueTypesEqual(a, b []ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Limits bound the size of a memory (in pages) or a table (in elements).
// Max is nil when no maximum was declared.
type Limits struct {
	Min uint32
	Max *uint32
}

// RefTypeFuncref is the only element type of the MVP binary format.
const RefTypeFuncref byte = 0x70

type TableType struct {
	ElemType byte
	Limits   *Limits
}

// MemoryType bounds a linear memory in units of pages (64KiB each).
type MemoryType = Limits

type GlobalType struct {
	ValType ValueType
	Mutable bool
}

// Global pairs a global's type with its initializer expression.
type Global struct {
	Type *GlobalType
	Init *ConstantExpression
}

// ConstantExpression is a single-instruction initializer: one of the
// *.const opcodes or global.get, with the raw operand bytes preserved
// exactly as decoded.
type ConstantExpression struct {
	Opcode Opcode
	Data   []byte
}

// ExternKind classifies an import or export.
type ExternKind byte

const (
	ExternKindFunc   ExternKind = 0x00
	ExternKindTable  ExternKind = 0x01
	ExternKindMemory ExternKind = 0x02
	ExternKindGlobal ExternKind = 0x03
)

func (k ExternKind) String() string {
	switch k {
	case ExternKindFunc:
		return "func"
	case ExternKindTable:
		return "table"
	case ExternKindMemory:
		return "memory"
	case ExternKindGlobal:
		return "global"
	}
	return "unknown"
}

// Import describes one entry of the import section. Exactly one of the
// Desc* fields is meaningful, selected by Kind.
type Import struct {
	Module string
	Name   string
	Kind   ExternKind

	DescFunc   uint32 // type index
	DescTable  *TableType
	DescMem    *MemoryType
	DescGlobal *GlobalType
}

// Export describes one entry of the export section.
type Export struct {
	Name  string
	Kind  ExternKind
	Index uint32
}

// ElementSegment initializes a run of table entries with function indices.
type ElementSegment struct {
	TableIndex uint32
	Offset     *ConstantExpression
	Init       []uint32
}

// DataSegment initializes a byte range of a linear memory.
type DataSegment struct {
	MemoryIndex uint32
	Offset      *ConstantExpression
	Init        []byte
}

// Code is one entry of the code section: the declared (non-parameter)
// local types and the flat instruction stream, terminated by 0x0b.
type Code struct {
	LocalTypes []ValueType
	Body       []byte
}

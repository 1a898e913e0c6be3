// Package binary decodes and encodes the WebAssembly 1.0 binary format,
// converting between raw bytes and the wasm.Module representation.
package binary

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/wasmscope/wasmscope/wasm"
	"github.com/wasmscope/wasmscope/wasm/leb128"
)

var (
	magic   = []byte{0x00, 0x61, 0x73, 0x6d}
	version = []byte{0x01, 0x00, 0x00, 0x00}
)

var errUnexpectedEnd = errors.New("unexpected end of module")

// DecodeModule parses a WebAssembly binary into a Module in a single linear
// pass, or fails with a *wasm.DecodeError. Sections must appear in the
// mandated order; operand encodings are preserved bit-for-bit. The returned
// module is not yet validated.
func DecodeModule(b []byte) (*wasm.Module, error) {
	d := &decoder{b: b}
	m, err := d.module()
	if err != nil {
		return nil, &wasm.DecodeError{Offset: d.pos, Err: err}
	}
	return m, nil
}

type decoder struct {
	b   []byte
	pos int
}

func (d *decoder) module() (*wasm.Module, error) {
	if len(d.b) < 4 || !bytes.Equal(d.b[:4], magic) {
		return nil, wasm.ErrInvalidMagicNumber
	}
	d.pos = 4
	if len(d.b) < 8 || !bytes.Equal(d.b[4:8], version) {
		return nil, wasm.ErrInvalidVersion
	}
	d.pos = 8

	m := &wasm.Module{}
	lastID := wasm.SectionIDCustom
	for d.pos < len(d.b) {
		id, err := d.byte()
		if err != nil {
			return nil, fmt.Errorf("read section id: %w", err)
		}
		sectionID := wasm.SectionID(id)
		if sectionID > wasm.SectionIDData {
			return nil, fmt.Errorf("%w: %d", wasm.ErrInvalidSectionID, id)
		}
		if sectionID != wasm.SectionIDCustom {
			if sectionID <= lastID {
				return nil, fmt.Errorf("%w: %s section after %s section",
					wasm.ErrSectionOutOfOrder, sectionID, lastID)
			}
			lastID = sectionID
		}

		size, err := d.u32()
		if err != nil {
			return nil, fmt.Errorf("read %s section size: %w", sectionID, err)
		}
		start := d.pos
		if err := d.section(m, sectionID, int(size)); err != nil {
			return nil, fmt.Errorf("%s section: %w", sectionID, err)
		}
		if d.pos-start != int(size) {
			return nil, fmt.Errorf("%w: %s section declared %d bytes but held %d",
				wasm.ErrSectionSizeMismatch, sectionID, size, d.pos-start)
		}
	}

	if len(m.FunctionSection) != len(m.CodeSection) {
		return nil, fmt.Errorf("function and code sections have inconsistent lengths: %d != %d",
			len(m.FunctionSection), len(m.CodeSection))
	}
	return m, nil
}

func (d *decoder) section(m *wasm.Module, id wasm.SectionID, size int) (err error) {
	switch id {
	case wasm.SectionIDCustom:
		err = d.customSection(m, size)
	case wasm.SectionIDType:
		m.TypeSection, err = decodeVec(d, (*decoder).functionType)
	case wasm.SectionIDImport:
		m.ImportSection, err = decodeVec(d, (*decoder).importEntry)
	case wasm.SectionIDFunction:
		m.FunctionSection, err = decodeVec(d, (*decoder).u32)
	case wasm.SectionIDTable:
		m.TableSection, err = decodeVec(d, (*decoder).tableType)
	case wasm.SectionIDMemory:
		m.MemorySection, err = decodeVec(d, (*decoder).memoryType)
	case wasm.SectionIDGlobal:
		m.GlobalSection, err = decodeVec(d, (*decoder).global)
	case wasm.SectionIDExport:
		m.ExportSection, err = decodeVec(d, (*decoder).export)
	case wasm.SectionIDStart:
		var index uint32
		if index, err = d.u32(); err == nil {
			m.StartSection = &index
		}
	case wasm.SectionIDElement:
		m.ElementSection, err = decodeVec(d, (*decoder).elementSegment)
	case wasm.SectionIDCode:
		m.CodeSection, err = decodeVec(d, (*decoder).code)
	case wasm.SectionIDData:
		m.DataSection, err = decodeVec(d, (*decoder).dataSegment)
	}
	return err
}

// decodeVec reads a LEB128 element count then that many elements.
func decodeVec[T any](d *decoder, elem func(*decoder) (T, error)) ([]T, error) {
	count, err := d.u32()
	if err != nil {
		return nil, fmt.Errorf("read vector length: %w", err)
	}
	ret := make([]T, count)
	for i := range ret {
		if ret[i], err = elem(d); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
	}
	return ret, nil
}

func (d *decoder) byte() (byte, error) {
	if d.pos >= len(d.b) {
		return 0, errUnexpectedEnd
	}
	c := d.b[d.pos]
	d.pos++
	return c, nil
}

func (d *decoder) bytes(n int) ([]byte, error) {
	if d.pos+n > len(d.b) {
		return nil, errUnexpectedEnd
	}
	ret := d.b[d.pos : d.pos+n]
	d.pos += n
	return ret, nil
}

func (d *decoder) u32() (uint32, error) {
	v, n, err := leb128.Uint32(d.b[d.pos:])
	if err != nil {
		return 0, err
	}
	d.pos += n
	return v, nil
}

func (d *decoder) name() (string, error) {
	size, err := d.u32()
	if err != nil {
		return "", fmt.Errorf("read name length: %w", err)
	}
	raw, err := d.bytes(int(size))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", errors.New("name is not valid UTF-8")
	}
	return string(raw), nil
}

func (d *decoder) valueType() (wasm.ValueType, error) {
	c, err := d.byte()
	if err != nil {
		return 0, err
	}
	switch vt := wasm.ValueType(c); vt {
	case wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64:
		return vt, nil
	}
	return 0, fmt.Errorf("invalid value type 0x%x", c)
}

func (d *decoder) functionType() (*wasm.FunctionType, error) {
	c, err := d.byte()
	if err != nil {
		return nil, err
	}
	if c != 0x60 {
		return nil, fmt.Errorf("invalid function type prefix 0x%x", c)
	}
	params, err := decodeVec(d, (*decoder).valueType)
	if err != nil {
		return nil, fmt.Errorf("parameters: %w", err)
	}
	results, err := decodeVec(d, (*decoder).valueType)
	if err != nil {
		return nil, fmt.Errorf("results: %w", err)
	}
	return &wasm.FunctionType{Params: params, Results: results}, nil
}

func (d *decoder) limits() (*wasm.Limits, error) {
	flag, err := d.byte()
	if err != nil {
		return nil, err
	}
	min, err := d.u32()
	if err != nil {
		return nil, fmt.Errorf("read minimum: %w", err)
	}
	ret := &wasm.Limits{Min: min}
	switch flag {
	case 0x00:
	case 0x01:
		max, err := d.u32()
		if err != nil {
			return nil, fmt.Errorf("read maximum: %w", err)
		}
		ret.Max = &max
	default:
		return nil, fmt.Errorf("invalid limits flag 0x%x", flag)
	}
	return ret, nil
}

func (d *decoder) tableType() (*wasm.TableType, error) {
	elemType, err := d.byte()
	if err != nil {
		return nil, err
	}
	if elemType != wasm.RefTypeFuncref {
		return nil, fmt.Errorf("invalid element type 0x%x", elemType)
	}
	limits, err := d.limits()
	if err != nil {
		return nil, err
	}
	return &wasm.TableType{ElemType: elemType, Limits: limits}, nil
}

func (d *decoder) memoryType() (*wasm.MemoryType, error) {
	return d.limits()
}

func (d *decoder) globalType() (*wasm.GlobalType, error) {
	valType, err := d.valueType()
	if err != nil {
		return nil, err
	}
	mut, err := d.byte()
	if err != nil {
		return nil, err
	}
	if mut > 1 {
		return nil, fmt.Errorf("invalid mutability flag 0x%x", mut)
	}
	return &wasm.GlobalType{ValType: valType, Mutable: mut == 1}, nil
}

func (d *decoder) global() (*wasm.Global, error) {
	t, err := d.globalType()
	if err != nil {
		return nil, err
	}
	init, err := d.constExpr()
	if err != nil {
		return nil, fmt.Errorf("initializer: %w", err)
	}
	return &wasm.Global{Type: t, Init: init}, nil
}

// constExpr reads a single-instruction initializer expression terminated by
// end, preserving the operand bytes exactly as encoded.
func (d *decoder) constExpr() (*wasm.ConstantExpression, error) {
	c, err := d.byte()
	if err != nil {
		return nil, err
	}
	op := wasm.Opcode(c)
	var size int
	switch op {
	case wasm.OpcodeI32Const:
		_, size, err = leb128.Int32(d.b[d.pos:])
	case wasm.OpcodeI64Const:
		_, size, err = leb128.Int64(d.b[d.pos:])
	case wasm.OpcodeF32Const:
		size = 4
	case wasm.OpcodeF64Const:
		size = 8
	case wasm.OpcodeGlobalGet:
		_, size, err = leb128.Uint32(d.b[d.pos:])
	default:
		return nil, fmt.Errorf("invalid constant expression opcode 0x%x", c)
	}
	if err != nil {
		return nil, fmt.Errorf("read operand: %w", err)
	}
	data, err := d.bytes(size)
	if err != nil {
		return nil, err
	}
	endByte, err := d.byte()
	if err != nil {
		return nil, err
	}
	if wasm.Opcode(endByte) != wasm.OpcodeEnd {
		return nil, fmt.Errorf("constant expression not terminated by end, got 0x%x", endByte)
	}
	// Copy so the expression does not alias the input buffer.
	return &wasm.ConstantExpression{Opcode: op, Data: append([]byte{}, data...)}, nil
}

func (d *decoder) importEntry() (*wasm.Import, error) {
	module, err := d.name()
	if err != nil {
		return nil, fmt.Errorf("module name: %w", err)
	}
	name, err := d.name()
	if err != nil {
		return nil, fmt.Errorf("field name: %w", err)
	}
	kind, err := d.byte()
	if err != nil {
		return nil, err
	}
	ret := &wasm.Import{Module: module, Name: name, Kind: wasm.ExternKind(kind)}
	switch ret.Kind {
	case wasm.ExternKindFunc:
		ret.DescFunc, err = d.u32()
	case wasm.ExternKindTable:
		ret.DescTable, err = d.tableType()
	case wasm.ExternKindMemory:
		ret.DescMem, err = d.memoryType()
	case wasm.ExternKindGlobal:
		ret.DescGlobal, err = d.globalType()
	default:
		return nil, fmt.Errorf("invalid import kind 0x%x", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("import %s.%s: %w", module, name, err)
	}
	return ret, nil
}

func (d *decoder) export() (*wasm.Export, error) {
	name, err := d.name()
	if err != nil {
		return nil, err
	}
	kind, err := d.byte()
	if err != nil {
		return nil, err
	}
	if wasm.ExternKind(kind) > wasm.ExternKindGlobal {
		return nil, fmt.Errorf("invalid export kind 0x%x", kind)
	}
	index, err := d.u32()
	if err != nil {
		return nil, err
	}
	return &wasm.Export{Name: name, Kind: wasm.ExternKind(kind), Index: index}, nil
}

func (d *decoder) elementSegment() (*wasm.ElementSegment, error) {
	tableIndex, err := d.u32()
	if err != nil {
		return nil, err
	}
	offset, err := d.constExpr()
	if err != nil {
		return nil, fmt.Errorf("offset: %w", err)
	}
	init, err := decodeVec(d, (*decoder).u32)
	if err != nil {
		return nil, fmt.Errorf("function indices: %w", err)
	}
	return &wasm.ElementSegment{TableIndex: tableIndex, Offset: offset, Init: init}, nil
}

func (d *decoder) dataSegment() (*wasm.DataSegment, error) {
	memoryIndex, err := d.u32()
	if err != nil {
		return nil, err
	}
	offset, err := d.constExpr()
	if err != nil {
		return nil, fmt.Errorf("offset: %w", err)
	}
	size, err := d.u32()
	if err != nil {
		return nil, err
	}
	init, err := d.bytes(int(size))
	if err != nil {
		return nil, err
	}
	return &wasm.DataSegment{
		MemoryIndex: memoryIndex,
		Offset:      offset,
		Init:        append([]byte{}, init...),
	}, nil
}

func (d *decoder) code() (*wasm.Code, error) {
	size, err := d.u32()
	if err != nil {
		return nil, fmt.Errorf("read body size: %w", err)
	}
	start := d.pos

	runs, err := d.u32()
	if err != nil {
		return nil, fmt.Errorf("read local count: %w", err)
	}
	var localTypes []wasm.ValueType
	for i := uint32(0); i < runs; i++ {
		count, err := d.u32()
		if err != nil {
			return nil, fmt.Errorf("read local run length: %w", err)
		}
		if uint64(len(localTypes))+uint64(count) > uint64(maxLocals) {
			return nil, errors.New("too many locals")
		}
		vt, err := d.valueType()
		if err != nil {
			return nil, fmt.Errorf("read local type: %w", err)
		}
		for j := uint32(0); j < count; j++ {
			localTypes = append(localTypes, vt)
		}
	}

	bodySize := int(size) - (d.pos - start)
	if bodySize < 1 {
		return nil, errors.New("truncated function body")
	}
	body, err := d.bytes(bodySize)
	if err != nil {
		return nil, err
	}
	if wasm.Opcode(body[len(body)-1]) != wasm.OpcodeEnd {
		return nil, errors.New("function body not terminated by end")
	}
	return &wasm.Code{LocalTypes: localTypes, Body: append([]byte{}, body...)}, nil
}

const maxLocals = 1 << 32

package binary

import (
	"github.com/wasmscope/wasmscope/wasm"
	"github.com/wasmscope/wasmscope/wasm/leb128"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// EncodeModule serializes a Module back to the binary format. Decoding the
// result yields a Module equal to the input over all documented fields;
// byte-level identity with an original binary is not guaranteed because
// local runs and integer encodings are re-minimized.
func EncodeModule(m *wasm.Module) []byte {
	b := append([]byte{}, magic...)
	b = append(b, version...)

	if len(m.TypeSection) > 0 {
		b = appendSection(b, wasm.SectionIDType, encodeVec(m.TypeSection, appendFunctionType))
	}
	if len(m.ImportSection) > 0 {
		b = appendSection(b, wasm.SectionIDImport, encodeVec(m.ImportSection, appendImport))
	}
	if len(m.FunctionSection) > 0 {
		b = appendSection(b, wasm.SectionIDFunction, encodeVec(m.FunctionSection, leb128.AppendUint32))
	}
	if len(m.TableSection) > 0 {
		b = appendSection(b, wasm.SectionIDTable, encodeVec(m.TableSection, appendTableType))
	}
	if len(m.MemorySection) > 0 {
		b = appendSection(b, wasm.SectionIDMemory, encodeVec(m.MemorySection, appendLimits))
	}
	if len(m.GlobalSection) > 0 {
		b = appendSection(b, wasm.SectionIDGlobal, encodeVec(m.GlobalSection, appendGlobal))
	}
	if len(m.ExportSection) > 0 {
		b = appendSection(b, wasm.SectionIDExport, encodeVec(m.ExportSection, appendExport))
	}
	if m.StartSection != nil {
		b = appendSection(b, wasm.SectionIDStart, leb128.AppendUint32(nil, *m.StartSection))
	}
	if len(m.ElementSection) > 0 {
		b = appendSection(b, wasm.SectionIDElement, encodeVec(m.ElementSection, appendElementSegment))
	}
	if len(m.CodeSection) > 0 {
		b = appendSection(b, wasm.SectionIDCode, encodeVec(m.CodeSection, appendCode))
	}
	if len(m.DataSection) > 0 {
		b = appendSection(b, wasm.SectionIDData, encodeVec(m.DataSection, appendDataSegment))
	}
	if len(m.FunctionNames) > 0 {
		order := maps.Keys(m.FunctionNames)
		slices.Sort(order)
		payload := leb128.AppendUint32(nil, 4)
		payload = append(payload, "name"...)
		payload = appendFunctionNames(payload, m.FunctionNames, order)
		b = appendSection(b, wasm.SectionIDCustom, payload)
	}
	for _, name := range sortedCustomNames(m.CustomSections) {
		payload := leb128.AppendUint32(nil, uint32(len(name)))
		payload = append(payload, name...)
		payload = append(payload, m.CustomSections[name]...)
		b = appendSection(b, wasm.SectionIDCustom, payload)
	}
	return b
}

func sortedCustomNames(sections map[string][]byte) []string {
	names := maps.Keys(sections)
	slices.Sort(names)
	return names
}

func appendSection(b []byte, id wasm.SectionID, body []byte) []byte {
	b = append(b, byte(id))
	b = leb128.AppendUint32(b, uint32(len(body)))
	return append(b, body...)
}

func encodeVec[T any](elems []T, one func([]byte, T) []byte) []byte {
	b := leb128.AppendUint32(nil, uint32(len(elems)))
	for _, e := range elems {
		b = one(b, e)
	}
	return b
}

func appendValueTypes(b []byte, types []wasm.ValueType) []byte {
	b = leb128.AppendUint32(b, uint32(len(types)))
	for _, t := range types {
		b = append(b, byte(t))
	}
	return b
}

func appendFunctionType(b []byte, t *wasm.FunctionType) []byte {
	b = append(b, 0x60)
	b = appendValueTypes(b, t.Params)
	return appendValueTypes(b, t.Results)
}

func appendName(b []byte, name string) []byte {
	b = leb128.AppendUint32(b, uint32(len(name)))
	return append(b, name...)
}

func appendLimits(b []byte, l *wasm.Limits) []byte {
	if l.Max == nil {
		b = append(b, 0x00)
		return leb128.AppendUint32(b, l.Min)
	}
	b = append(b, 0x01)
	b = leb128.AppendUint32(b, l.Min)
	return leb128.AppendUint32(b, *l.Max)
}

func appendTableType(b []byte, t *wasm.TableType) []byte {
	b = append(b, t.ElemType)
	return appendLimits(b, t.Limits)
}

func appendGlobalType(b []byte, t *wasm.GlobalType) []byte {
	b = append(b, byte(t.ValType))
	if t.Mutable {
		return append(b, 0x01)
	}
	return append(b, 0x00)
}

func appendGlobal(b []byte, g *wasm.Global) []byte {
	b = appendGlobalType(b, g.Type)
	return appendConstExpr(b, g.Init)
}

func appendConstExpr(b []byte, expr *wasm.ConstantExpression) []byte {
	b = append(b, byte(expr.Opcode))
	b = append(b, expr.Data...)
	return append(b, byte(wasm.OpcodeEnd))
}

func appendImport(b []byte, imp *wasm.Import) []byte {
	b = appendName(b, imp.Module)
	b = appendName(b, imp.Name)
	b = append(b, byte(imp.Kind))
	switch imp.Kind {
	case wasm.ExternKindFunc:
		b = leb128.AppendUint32(b, imp.DescFunc)
	case wasm.ExternKindTable:
		b = appendTableType(b, imp.DescTable)
	case wasm.ExternKindMemory:
		b = appendLimits(b, imp.DescMem)
	case wasm.ExternKindGlobal:
		b = appendGlobalType(b, imp.DescGlobal)
	}
	return b
}

func appendExport(b []byte, exp *wasm.Export) []byte {
	b = appendName(b, exp.Name)
	b = append(b, byte(exp.Kind))
	return leb128.AppendUint32(b, exp.Index)
}

func appendElementSegment(b []byte, e *wasm.ElementSegment) []byte {
	b = leb128.AppendUint32(b, e.TableIndex)
	b = appendConstExpr(b, e.Offset)
	b = leb128.AppendUint32(b, uint32(len(e.Init)))
	for _, fn := range e.Init {
		b = leb128.AppendUint32(b, fn)
	}
	return b
}

func appendDataSegment(b []byte, d *wasm.DataSegment) []byte {
	b = leb128.AppendUint32(b, d.MemoryIndex)
	b = appendConstExpr(b, d.Offset)
	b = leb128.AppendUint32(b, uint32(len(d.Init)))
	return append(b, d.Init...)
}

// appendCode re-run-length-encodes the declared locals then emits the body.
func appendCode(b []byte, c *wasm.Code) []byte {
	type run struct {
		count uint32
		vt    wasm.ValueType
	}
	var runs []run
	for _, t := range c.LocalTypes {
		if len(runs) > 0 && runs[len(runs)-1].vt == t {
			runs[len(runs)-1].count++
		} else {
			runs = append(runs, run{count: 1, vt: t})
		}
	}
	var body []byte
	body = leb128.AppendUint32(body, uint32(len(runs)))
	for _, r := range runs {
		body = leb128.AppendUint32(body, r.count)
		body = append(body, byte(r.vt))
	}
	body = append(body, c.Body...)

	b = leb128.AppendUint32(b, uint32(len(body)))
	return append(b, body...)
}

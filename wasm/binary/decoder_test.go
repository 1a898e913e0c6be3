package binary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmscope/wasmscope/wasm"
	"github.com/wasmscope/wasmscope/wasm/leb128"
)

func header() []byte {
	return append(append([]byte{}, magic...), version...)
}

func section(id wasm.SectionID, body ...byte) []byte {
	b := []byte{byte(id)}
	b = leb128.AppendUint32(b, uint32(len(body)))
	return append(b, body...)
}

func TestDecodeModule_EmptyModule(t *testing.T) {
	m, err := DecodeModule(header())
	require.NoError(t, err)
	assert.Equal(t, &wasm.Module{}, m)
}

func TestDecodeModule_HeaderErrors(t *testing.T) {
	for _, c := range []struct {
		name string
		in   []byte
		exp  error
	}{
		{name: "empty", in: nil, exp: wasm.ErrInvalidMagicNumber},
		{name: "bad magic", in: []byte{0x01, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}, exp: wasm.ErrInvalidMagicNumber},
		{name: "magic only", in: magic, exp: wasm.ErrInvalidVersion},
		{name: "bad version", in: []byte{0x00, 0x61, 0x73, 0x6d, 0x02, 0x00, 0x00, 0x00}, exp: wasm.ErrInvalidVersion},
	} {
		t.Run(c.name, func(t *testing.T) {
			_, err := DecodeModule(c.in)
			assert.ErrorIs(t, err, c.exp)
			var de *wasm.DecodeError
			assert.ErrorAs(t, err, &de)
		})
	}
}

func TestDecodeModule_SectionOrder(t *testing.T) {
	t.Run("function before type", func(t *testing.T) {
		bin := append(header(), section(wasm.SectionIDFunction, 0x00)...)
		bin = append(bin, section(wasm.SectionIDType, 0x00)...)
		_, err := DecodeModule(bin)
		assert.ErrorIs(t, err, wasm.ErrSectionOutOfOrder)
	})
	t.Run("duplicate section", func(t *testing.T) {
		bin := append(header(), section(wasm.SectionIDType, 0x00)...)
		bin = append(bin, section(wasm.SectionIDType, 0x00)...)
		_, err := DecodeModule(bin)
		assert.ErrorIs(t, err, wasm.ErrSectionOutOfOrder)
	})
	t.Run("custom sections exempt", func(t *testing.T) {
		custom := section(wasm.SectionIDCustom, 0x03, 'a', 'b', 'c')
		bin := append(header(), custom...)
		bin = append(bin, section(wasm.SectionIDType, 0x00)...)
		bin = append(bin, section(wasm.SectionIDCustom, 0x01, 'x')...)
		bin = append(bin, section(wasm.SectionIDFunction, 0x00)...)
		_, err := DecodeModule(bin)
		require.NoError(t, err)
	})
	t.Run("unknown id", func(t *testing.T) {
		bin := append(header(), section(wasm.SectionID(12), 0x00)...)
		_, err := DecodeModule(bin)
		assert.ErrorIs(t, err, wasm.ErrInvalidSectionID)
	})
}

func TestDecodeModule_SectionSizeMismatch(t *testing.T) {
	// type section declares 3 bytes but its content consumes 4
	body := []byte{0x01, 0x60, 0x01, 0x7f, 0x00}
	bin := append(header(), byte(wasm.SectionIDType), 0x04)
	bin = append(bin, body...)
	_, err := DecodeModule(bin)
	var de *wasm.DecodeError
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, wasm.ErrSectionSizeMismatch)
}

func TestDecodeModule_Truncated(t *testing.T) {
	bin := append(header(), byte(wasm.SectionIDType), 0x20, 0x01)
	_, err := DecodeModule(bin)
	var de *wasm.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Greater(t, de.Offset, 8)
}

func TestDecodeModule_FunctionCodeMismatch(t *testing.T) {
	bin := append(header(), section(wasm.SectionIDType, 0x01, 0x60, 0x00, 0x00)...)
	bin = append(bin, section(wasm.SectionIDFunction, 0x01, 0x00)...)
	_, err := DecodeModule(bin)
	assert.ErrorContains(t, err, "inconsistent lengths")
}

func TestDecodeModule_AddFunction(t *testing.T) {
	// (func (export "add") (param i32 i32) (result i32)
	//   local.get 0 local.get 1 i32.add)
	bin := append(header(), section(wasm.SectionIDType,
		0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f)...)
	bin = append(bin, section(wasm.SectionIDFunction, 0x01, 0x00)...)
	bin = append(bin, section(wasm.SectionIDExport,
		0x01, 0x03, 'a', 'd', 'd', 0x00, 0x00)...)
	bin = append(bin, section(wasm.SectionIDCode,
		0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b)...)

	m, err := DecodeModule(bin)
	require.NoError(t, err)
	require.Len(t, m.TypeSection, 1)
	assert.Equal(t, &wasm.FunctionType{
		Params:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
		Results: []wasm.ValueType{wasm.ValueTypeI32},
	}, m.TypeSection[0])
	require.Len(t, m.CodeSection, 1)
	assert.Equal(t, []byte{0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b}, m.CodeSection[0].Body)
	assert.Empty(t, m.CodeSection[0].LocalTypes)
	assert.Equal(t, "add", m.FunctionName(0))
}

func TestDecodeModule_LocalRuns(t *testing.T) {
	bin := append(header(), section(wasm.SectionIDType, 0x01, 0x60, 0x00, 0x00)...)
	bin = append(bin, section(wasm.SectionIDFunction, 0x01, 0x00)...)
	// two runs: 2 x i32, 1 x f64
	bin = append(bin, section(wasm.SectionIDCode,
		0x01, 0x07, 0x02, 0x02, 0x7f, 0x01, 0x7c, 0x01, 0x0b)...)

	m, err := DecodeModule(bin)
	require.NoError(t, err)
	assert.Equal(t, []wasm.ValueType{
		wasm.ValueTypeI32, wasm.ValueTypeI32, wasm.ValueTypeF64,
	}, m.CodeSection[0].LocalTypes)
	assert.Equal(t, []byte{0x01, 0x0b}, m.CodeSection[0].Body)
}

func TestDecodeModule_BodyMustEndWithEnd(t *testing.T) {
	bin := append(header(), section(wasm.SectionIDType, 0x01, 0x60, 0x00, 0x00)...)
	bin = append(bin, section(wasm.SectionIDFunction, 0x01, 0x00)...)
	bin = append(bin, section(wasm.SectionIDCode, 0x01, 0x02, 0x00, 0x01)...)
	_, err := DecodeModule(bin)
	assert.ErrorContains(t, err, "not terminated by end")
}

func TestDecodeModule_ConstExpr(t *testing.T) {
	t.Run("global with i32 initializer", func(t *testing.T) {
		bin := append(header(), section(wasm.SectionIDGlobal,
			0x01, 0x7f, 0x01, 0x41, 0x2a, 0x0b)...)
		m, err := DecodeModule(bin)
		require.NoError(t, err)
		require.Len(t, m.GlobalSection, 1)
		g := m.GlobalSection[0]
		assert.True(t, g.Type.Mutable)
		assert.Equal(t, wasm.OpcodeI32Const, g.Init.Opcode)
		assert.Equal(t, []byte{0x2a}, g.Init.Data)
	})
	t.Run("invalid opcode", func(t *testing.T) {
		bin := append(header(), section(wasm.SectionIDGlobal,
			0x01, 0x7f, 0x00, 0x6a, 0x0b)...)
		_, err := DecodeModule(bin)
		assert.ErrorContains(t, err, "invalid constant expression opcode")
	})
	t.Run("missing end", func(t *testing.T) {
		bin := append(header(), section(wasm.SectionIDGlobal,
			0x01, 0x7f, 0x00, 0x41, 0x2a, 0x01)...)
		_, err := DecodeModule(bin)
		assert.ErrorContains(t, err, "not terminated by end")
	})
}

func TestDecodeModule_NameSection(t *testing.T) {
	// function-name subsection: func 0 is "fib"
	payload := []byte{0x04, 'n', 'a', 'm', 'e',
		nameSubsectionFunction, 0x06, 0x01, 0x00, 0x03, 'f', 'i', 'b'}
	bin := append(header(), section(wasm.SectionIDType, 0x01, 0x60, 0x00, 0x00)...)
	bin = append(bin, section(wasm.SectionIDFunction, 0x01, 0x00)...)
	bin = append(bin, section(wasm.SectionIDCode, 0x01, 0x02, 0x00, 0x0b)...)
	bin = append(bin, section(wasm.SectionIDCustom, payload...)...)

	m, err := DecodeModule(bin)
	require.NoError(t, err)
	assert.Equal(t, map[uint32]string{0: "fib"}, m.FunctionNames)
	assert.Equal(t, "fib", m.FunctionName(0))
}

func TestDecodeModule_ImportKinds(t *testing.T) {
	maxPages := byte(0x02)
	bin := append(header(), section(wasm.SectionIDType, 0x01, 0x60, 0x00, 0x00)...)
	bin = append(bin, section(wasm.SectionIDImport, concat(
		[]byte{0x04},
		importEntry("env", "f", 0x00, 0x00),
		importEntry("env", "t", 0x01, 0x70, 0x00, 0x01),
		importEntry("env", "m", 0x02, 0x01, 0x01, maxPages),
		importEntry("env", "g", 0x03, 0x7e, 0x00),
	)...)...)

	m, err := DecodeModule(bin)
	require.NoError(t, err)
	require.Len(t, m.ImportSection, 4)
	assert.Equal(t, uint32(1), m.ImportFunctionCount())
	assert.Equal(t, wasm.ExternKindTable, m.ImportSection[1].Kind)
	require.NotNil(t, m.ImportSection[2].DescMem.Max)
	assert.Equal(t, uint32(2), *m.ImportSection[2].DescMem.Max)
	assert.Equal(t, wasm.ValueTypeI64, m.ImportSection[3].DescGlobal.ValType)
	assert.False(t, m.ImportSection[3].DescGlobal.Mutable)
}

func importEntry(module, name string, kind byte, desc ...byte) []byte {
	b := []byte{byte(len(module))}
	b = append(b, module...)
	b = append(b, byte(len(name)))
	b = append(b, name...)
	b = append(b, kind)
	return append(b, desc...)
}

func concat(parts ...[]byte) []byte {
	var ret []byte
	for _, p := range parts {
		ret = append(ret, p...)
	}
	return ret
}

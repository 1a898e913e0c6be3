package binary

import (
	"fmt"

	"github.com/wasmscope/wasmscope/wasm"
	"github.com/wasmscope/wasmscope/wasm/leb128"
)

const (
	nameSubsectionModule   = 0
	nameSubsectionFunction = 1
	nameSubsectionLocal    = 2
)

// customSection reads one custom section of the given total size. The "name"
// section's function-name subsection is decoded into Module.FunctionNames;
// everything else is kept raw.
func (d *decoder) customSection(m *wasm.Module, size int) error {
	start := d.pos
	name, err := d.name()
	if err != nil {
		return fmt.Errorf("read custom section name: %w", err)
	}
	data, err := d.bytes(size - (d.pos - start))
	if err != nil {
		return err
	}
	if name == "name" {
		if m.FunctionNames != nil {
			return fmt.Errorf("redundant custom section %q", name)
		}
		names, err := decodeFunctionNames(data)
		if err != nil {
			return fmt.Errorf("name section: %w", err)
		}
		m.FunctionNames = names
		return nil
	}
	if _, ok := m.CustomSections[name]; ok {
		return fmt.Errorf("redundant custom section %q", name)
	}
	if m.CustomSections == nil {
		m.CustomSections = map[string][]byte{}
	}
	m.CustomSections[name] = append([]byte{}, data...)
	return nil
}

// decodeFunctionNames extracts the function-name subsection; other
// subsections are skipped. Malformed subsection framing is a decode error,
// matching the all-or-nothing loading policy.
func decodeFunctionNames(data []byte) (map[uint32]string, error) {
	d := &decoder{b: data}
	for d.pos < len(d.b) {
		id, err := d.byte()
		if err != nil {
			return nil, err
		}
		size, err := d.u32()
		if err != nil {
			return nil, fmt.Errorf("subsection %d size: %w", id, err)
		}
		if id != nameSubsectionFunction {
			if _, err := d.bytes(int(size)); err != nil {
				return nil, fmt.Errorf("skip subsection %d: %w", id, err)
			}
			continue
		}
		count, err := d.u32()
		if err != nil {
			return nil, fmt.Errorf("function name count: %w", err)
		}
		ret := make(map[uint32]string, count)
		for i := uint32(0); i < count; i++ {
			index, err := d.u32()
			if err != nil {
				return nil, fmt.Errorf("function name %d index: %w", i, err)
			}
			name, err := d.name()
			if err != nil {
				return nil, fmt.Errorf("function name %d: %w", i, err)
			}
			ret[index] = name
		}
		return ret, nil
	}
	return nil, nil
}

// appendFunctionNames encodes the function-name subsection of a "name"
// custom section.
func appendFunctionNames(b []byte, names map[uint32]string, order []uint32) []byte {
	var sub []byte
	sub = leb128.AppendUint32(sub, uint32(len(order)))
	for _, index := range order {
		sub = leb128.AppendUint32(sub, index)
		sub = leb128.AppendUint32(sub, uint32(len(names[index])))
		sub = append(sub, names[index]...)
	}
	b = append(b, nameSubsectionFunction)
	b = leb128.AppendUint32(b, uint32(len(sub)))
	return append(b, sub...)
}

package engine

import "encoding/binary"

// PageSize is the wasm page granularity in bytes.
const PageSize = 65536

// MemoryInstance is a linear memory. Buffer length is always a multiple of
// PageSize; Max caps growth in pages when non-nil.
type MemoryInstance struct {
	Buffer []byte
	Min    uint32
	Max    *uint32
}

func newMemoryInstance(min uint32, max *uint32) *MemoryInstance {
	return &MemoryInstance{
		Buffer: make([]byte, uint64(min)*PageSize),
		Min:    min,
		Max:    max,
	}
}

// PageCount returns the current size in pages.
func (m *MemoryInstance) PageCount() uint32 {
	return uint32(len(m.Buffer) / PageSize)
}

// Grow extends the memory by delta pages and returns the previous page
// count, or 0xffffffff when the request exceeds Max or the implementation
// ceiling. A failed grow leaves the memory untouched, so retrying with the
// same delta fails the same way.
func (m *MemoryInstance) Grow(delta uint32) uint32 {
	current := m.PageCount()
	next := uint64(current) + uint64(delta)
	limit := uint64(maxMemoryPages)
	if m.Max != nil && uint64(*m.Max) < limit {
		limit = uint64(*m.Max)
	}
	if next > limit {
		return 0xffffffff
	}
	m.Buffer = append(m.Buffer, make([]byte, uint64(delta)*PageSize)...)
	return current
}

// maxMemoryPages caps linear memory at 4GiB regardless of declared limits.
const maxMemoryPages = 65536

// hasRange reports whether [addr, addr+width) lies inside the memory.
func (m *MemoryInstance) hasRange(addr uint64, width uint64) bool {
	return addr+width <= uint64(len(m.Buffer))
}

func (m *MemoryInstance) readUint64(addr uint64, width uint64) uint64 {
	switch width {
	case 1:
		return uint64(m.Buffer[addr])
	case 2:
		return uint64(binary.LittleEndian.Uint16(m.Buffer[addr:]))
	case 4:
		return uint64(binary.LittleEndian.Uint32(m.Buffer[addr:]))
	default:
		return binary.LittleEndian.Uint64(m.Buffer[addr:])
	}
}

func (m *MemoryInstance) writeUint64(addr uint64, width uint64, v uint64) {
	switch width {
	case 1:
		m.Buffer[addr] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(m.Buffer[addr:], uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(m.Buffer[addr:], uint32(v))
	default:
		binary.LittleEndian.PutUint64(m.Buffer[addr:], v)
	}
}

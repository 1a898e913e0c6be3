// Package ieee754 reads and writes the little-endian IEEE754 floats of the
// WebAssembly binary format, preserving bit patterns exactly.
package ieee754

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrTruncated is returned when the input is shorter than the float width.
var ErrTruncated = errors.New("ieee754: truncated float")

// DecodeFloat32 reads a float32 from the head of b.
func DecodeFloat32(b []byte) (float32, error) {
	if len(b) < 4 {
		return 0, ErrTruncated
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

// DecodeFloat64 reads a float64 from the head of b.
func DecodeFloat64(b []byte) (float64, error) {
	if len(b) < 8 {
		return 0, ErrTruncated
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// AppendFloat32 appends the encoding of v to b.
func AppendFloat32(b []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
}

// AppendFloat64 appends the encoding of v to b.
func AppendFloat64(b []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint64(b, math.Float64bits(v))
}

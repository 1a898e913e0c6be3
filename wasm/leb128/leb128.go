// Package leb128 decodes and encodes the LEB128 integers of the WebAssembly
// binary format. Decoders operate on byte slices and report how many bytes
// they consumed, so callers can walk an instruction stream without copying.
package leb128

import (
	"errors"
)

var (
	// ErrTruncated is returned when the input ends inside an integer.
	ErrTruncated = errors.New("leb128: truncated integer")
	// ErrOverflow is returned when the encoding does not fit the target width.
	ErrOverflow = errors.New("leb128: integer overflow")
)

// Uint32 decodes an unsigned 32-bit integer from the head of b.
func Uint32(b []byte) (ret uint32, n int, err error) {
	for shift := 0; shift < 35; shift += 7 {
		if n == len(b) {
			return 0, 0, ErrTruncated
		}
		c := b[n]
		n++
		ret |= uint32(c&0x7f) << shift
		if c&0x80 == 0 {
			if shift == 28 && c > 0x0f {
				return 0, 0, ErrOverflow
			}
			return ret, n, nil
		}
	}
	return 0, 0, ErrOverflow
}

// Uint64 decodes an unsigned 64-bit integer from the head of b.
func Uint64(b []byte) (ret uint64, n int, err error) {
	for shift := 0; shift < 70; shift += 7 {
		if n == len(b) {
			return 0, 0, ErrTruncated
		}
		c := b[n]
		n++
		ret |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			if shift == 63 && c > 0x01 {
				return 0, 0, ErrOverflow
			}
			return ret, n, nil
		}
	}
	return 0, 0, ErrOverflow
}

// Int32 decodes a signed 32-bit integer from the head of b.
func Int32(b []byte) (ret int32, n int, err error) {
	var shift int
	var c byte
	for {
		if n == len(b) {
			return 0, 0, ErrTruncated
		}
		c = b[n]
		n++
		ret |= int32(c&0x7f) << shift
		shift += 7
		if c&0x80 == 0 {
			break
		}
		if shift >= 35 {
			return 0, 0, ErrOverflow
		}
	}
	if shift < 32 && c&0x40 != 0 {
		ret |= -1 << shift
	}
	return ret, n, nil
}

// Int64 decodes a signed 64-bit integer from the head of b.
func Int64(b []byte) (ret int64, n int, err error) {
	var shift int
	var c byte
	for {
		if n == len(b) {
			return 0, 0, ErrTruncated
		}
		c = b[n]
		n++
		ret |= int64(c&0x7f) << shift
		shift += 7
		if c&0x80 == 0 {
			break
		}
		if shift >= 70 {
			return 0, 0, ErrOverflow
		}
	}
	if shift < 64 && c&0x40 != 0 {
		ret |= -1 << shift
	}
	return ret, n, nil
}

// Int33 decodes the signed 33-bit integer used by block type encodings,
// widened to int64.
func Int33(b []byte) (ret int64, n int, err error) {
	var shift int
	var c byte
	for {
		if n == len(b) {
			return 0, 0, ErrTruncated
		}
		c = b[n]
		n++
		ret |= int64(c&0x7f) << shift
		shift += 7
		if c&0x80 == 0 {
			break
		}
		if shift >= 35 {
			return 0, 0, ErrOverflow
		}
	}
	if shift < 33 && c&0x40 != 0 {
		ret |= -1 << shift
	}
	return ret, n, nil
}

// AppendUint32 appends the encoding of v to b.
func AppendUint32(b []byte, v uint32) []byte {
	return AppendUint64(b, uint64(v))
}

// AppendUint64 appends the encoding of v to b.
func AppendUint64(b []byte, v uint64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b = append(b, c)
		if v == 0 {
			return b
		}
	}
}

// AppendInt32 appends the encoding of v to b.
func AppendInt32(b []byte, v int32) []byte {
	return AppendInt64(b, int64(v))
}

// AppendInt64 appends the encoding of v to b.
func AppendInt64(b []byte, v int64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

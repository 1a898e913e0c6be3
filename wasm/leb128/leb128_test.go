package leb128

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUint32(t *testing.T) {
	for _, c := range []struct {
		name string
		in   []byte
		exp  uint32
		n    int
	}{
		{name: "zero", in: []byte{0x00}, exp: 0, n: 1},
		{name: "one byte", in: []byte{0x04}, exp: 4, n: 1},
		{name: "two bytes", in: []byte{0x80, 0x7f}, exp: 16256, n: 2},
		{name: "non-minimal", in: []byte{0x83, 0x00}, exp: 3, n: 2},
		{name: "max", in: []byte{0xff, 0xff, 0xff, 0xff, 0x0f}, exp: math.MaxUint32, n: 5},
		{name: "trailing bytes ignored", in: []byte{0x04, 0xff}, exp: 4, n: 1},
	} {
		t.Run(c.name, func(t *testing.T) {
			actual, n, err := Uint32(c.in)
			require.NoError(t, err)
			assert.Equal(t, c.exp, actual)
			assert.Equal(t, c.n, n)
		})
	}

	t.Run("truncated", func(t *testing.T) {
		_, _, err := Uint32([]byte{0x80})
		assert.ErrorIs(t, err, ErrTruncated)
	})
	t.Run("overflow", func(t *testing.T) {
		_, _, err := Uint32([]byte{0xff, 0xff, 0xff, 0xff, 0x1f})
		assert.ErrorIs(t, err, ErrOverflow)
	})
}

func TestUint64(t *testing.T) {
	for _, c := range []struct {
		name string
		in   []byte
		exp  uint64
	}{
		{name: "zero", in: []byte{0x00}, exp: 0},
		{name: "small", in: []byte{0x04}, exp: 4},
		{name: "max", in: []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}, exp: math.MaxUint64},
	} {
		t.Run(c.name, func(t *testing.T) {
			actual, _, err := Uint64(c.in)
			require.NoError(t, err)
			assert.Equal(t, c.exp, actual)
		})
	}

	t.Run("overflow", func(t *testing.T) {
		_, _, err := Uint64([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x02})
		assert.ErrorIs(t, err, ErrOverflow)
	})
}

func TestInt32(t *testing.T) {
	for _, c := range []struct {
		name string
		in   []byte
		exp  int32
	}{
		{name: "zero", in: []byte{0x00}, exp: 0},
		{name: "positive", in: []byte{0x04}, exp: 4},
		{name: "negative one byte", in: []byte{0x7f}, exp: -1},
		{name: "negative two bytes", in: []byte{0x81, 0x7f}, exp: -127},
		{name: "min", in: []byte{0x80, 0x80, 0x80, 0x80, 0x78}, exp: math.MinInt32},
		{name: "max", in: []byte{0xff, 0xff, 0xff, 0xff, 0x07}, exp: math.MaxInt32},
	} {
		t.Run(c.name, func(t *testing.T) {
			actual, _, err := Int32(c.in)
			require.NoError(t, err)
			assert.Equal(t, c.exp, actual)
		})
	}
}

func TestInt64(t *testing.T) {
	for _, c := range []struct {
		name string
		in   []byte
		exp  int64
	}{
		{name: "negative one", in: []byte{0x7f}, exp: -1},
		{name: "min", in: []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x7f}, exp: math.MinInt64},
		{name: "max", in: []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00}, exp: math.MaxInt64},
	} {
		t.Run(c.name, func(t *testing.T) {
			actual, _, err := Int64(c.in)
			require.NoError(t, err)
			assert.Equal(t, c.exp, actual)
		})
	}
}

func TestInt33(t *testing.T) {
	for _, c := range []struct {
		name string
		in   []byte
		exp  int64
	}{
		{name: "empty block type", in: []byte{0x40}, exp: -64},
		{name: "i32 block type", in: []byte{0x7f}, exp: -1},
		{name: "f64 block type", in: []byte{0x7c}, exp: -4},
		{name: "type index", in: []byte{0x05}, exp: 5},
	} {
		t.Run(c.name, func(t *testing.T) {
			actual, _, err := Int33(c.in)
			require.NoError(t, err)
			assert.Equal(t, c.exp, actual)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	t.Run("uint32", func(t *testing.T) {
		for _, v := range []uint32{0, 1, 127, 128, 16256, math.MaxUint32} {
			actual, n, err := Uint32(AppendUint32(nil, v))
			require.NoError(t, err)
			assert.Equal(t, v, actual)
			assert.Equal(t, len(AppendUint32(nil, v)), n)
		}
	})
	t.Run("int64", func(t *testing.T) {
		for _, v := range []int64{0, -1, 1, -64, 63, -65, math.MinInt64, math.MaxInt64} {
			actual, _, err := Int64(AppendInt64(nil, v))
			require.NoError(t, err)
			assert.Equal(t, v, actual)
		}
	})
}

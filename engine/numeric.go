package engine

import (
	"math"
	"math/bits"

	"github.com/wasmscope/wasmscope/wasm"
)

// stepNumeric executes the comparison, arithmetic and conversion opcodes.
// Faulting cases (division by zero, INT_MIN/-1, truncation of NaN or an
// out-of-range float) trap before any operand is popped, so the faulting
// operands stay visible on the stack.
func (m *Machine) stepNumeric(f *Frame, op wasm.Opcode) StepOutcome {
	switch op {
	case wasm.OpcodeI32Eqz:
		m.push(boolVal(uint32(m.pop()) == 0))
	case wasm.OpcodeI32Eq:
		v2, v1 := uint32(m.pop()), uint32(m.pop())
		m.push(boolVal(v1 == v2))
	case wasm.OpcodeI32Ne:
		v2, v1 := uint32(m.pop()), uint32(m.pop())
		m.push(boolVal(v1 != v2))
	case wasm.OpcodeI32LtS:
		v2, v1 := int32(m.pop()), int32(m.pop())
		m.push(boolVal(v1 < v2))
	case wasm.OpcodeI32LtU:
		v2, v1 := uint32(m.pop()), uint32(m.pop())
		m.push(boolVal(v1 < v2))
	case wasm.OpcodeI32GtS:
		v2, v1 := int32(m.pop()), int32(m.pop())
		m.push(boolVal(v1 > v2))
	case wasm.OpcodeI32GtU:
		v2, v1 := uint32(m.pop()), uint32(m.pop())
		m.push(boolVal(v1 > v2))
	case wasm.OpcodeI32LeS:
		v2, v1 := int32(m.pop()), int32(m.pop())
		m.push(boolVal(v1 <= v2))
	case wasm.OpcodeI32LeU:
		v2, v1 := uint32(m.pop()), uint32(m.pop())
		m.push(boolVal(v1 <= v2))
	case wasm.OpcodeI32GeS:
		v2, v1 := int32(m.pop()), int32(m.pop())
		m.push(boolVal(v1 >= v2))
	case wasm.OpcodeI32GeU:
		v2, v1 := uint32(m.pop()), uint32(m.pop())
		m.push(boolVal(v1 >= v2))

	case wasm.OpcodeI64Eqz:
		m.push(boolVal(m.pop() == 0))
	case wasm.OpcodeI64Eq:
		v2, v1 := m.pop(), m.pop()
		m.push(boolVal(v1 == v2))
	case wasm.OpcodeI64Ne:
		v2, v1 := m.pop(), m.pop()
		m.push(boolVal(v1 != v2))
	case wasm.OpcodeI64LtS:
		v2, v1 := int64(m.pop()), int64(m.pop())
		m.push(boolVal(v1 < v2))
	case wasm.OpcodeI64LtU:
		v2, v1 := m.pop(), m.pop()
		m.push(boolVal(v1 < v2))
	case wasm.OpcodeI64GtS:
		v2, v1 := int64(m.pop()), int64(m.pop())
		m.push(boolVal(v1 > v2))
	case wasm.OpcodeI64GtU:
		v2, v1 := m.pop(), m.pop()
		m.push(boolVal(v1 > v2))
	case wasm.OpcodeI64LeS:
		v2, v1 := int64(m.pop()), int64(m.pop())
		m.push(boolVal(v1 <= v2))
	case wasm.OpcodeI64LeU:
		v2, v1 := m.pop(), m.pop()
		m.push(boolVal(v1 <= v2))
	case wasm.OpcodeI64GeS:
		v2, v1 := int64(m.pop()), int64(m.pop())
		m.push(boolVal(v1 >= v2))
	case wasm.OpcodeI64GeU:
		v2, v1 := m.pop(), m.pop()
		m.push(boolVal(v1 >= v2))

	case wasm.OpcodeF32Eq:
		v2, v1 := m.popF32(), m.popF32()
		m.push(boolVal(v1 == v2))
	case wasm.OpcodeF32Ne:
		v2, v1 := m.popF32(), m.popF32()
		m.push(boolVal(v1 != v2))
	case wasm.OpcodeF32Lt:
		v2, v1 := m.popF32(), m.popF32()
		m.push(boolVal(v1 < v2))
	case wasm.OpcodeF32Gt:
		v2, v1 := m.popF32(), m.popF32()
		m.push(boolVal(v1 > v2))
	case wasm.OpcodeF32Le:
		v2, v1 := m.popF32(), m.popF32()
		m.push(boolVal(v1 <= v2))
	case wasm.OpcodeF32Ge:
		v2, v1 := m.popF32(), m.popF32()
		m.push(boolVal(v1 >= v2))

	case wasm.OpcodeF64Eq:
		v2, v1 := m.popF64(), m.popF64()
		m.push(boolVal(v1 == v2))
	case wasm.OpcodeF64Ne:
		v2, v1 := m.popF64(), m.popF64()
		m.push(boolVal(v1 != v2))
	case wasm.OpcodeF64Lt:
		v2, v1 := m.popF64(), m.popF64()
		m.push(boolVal(v1 < v2))
	case wasm.OpcodeF64Gt:
		v2, v1 := m.popF64(), m.popF64()
		m.push(boolVal(v1 > v2))
	case wasm.OpcodeF64Le:
		v2, v1 := m.popF64(), m.popF64()
		m.push(boolVal(v1 <= v2))
	case wasm.OpcodeF64Ge:
		v2, v1 := m.popF64(), m.popF64()
		m.push(boolVal(v1 >= v2))

	case wasm.OpcodeI32Clz:
		m.push(uint64(bits.LeadingZeros32(uint32(m.pop()))))
	case wasm.OpcodeI32Ctz:
		m.push(uint64(bits.TrailingZeros32(uint32(m.pop()))))
	case wasm.OpcodeI32Popcnt:
		m.push(uint64(bits.OnesCount32(uint32(m.pop()))))
	case wasm.OpcodeI32Add:
		v2, v1 := uint32(m.pop()), uint32(m.pop())
		m.push(uint64(v1 + v2))
	case wasm.OpcodeI32Sub:
		v2, v1 := uint32(m.pop()), uint32(m.pop())
		m.push(uint64(v1 - v2))
	case wasm.OpcodeI32Mul:
		v2, v1 := uint32(m.pop()), uint32(m.pop())
		m.push(uint64(v1 * v2))
	case wasm.OpcodeI32DivS:
		v2, v1 := int32(m.peekN(0)), int32(m.peekN(1))
		if v2 == 0 {
			return outcomeTrap(wasm.TrapIntegerDivideByZero)
		}
		if v1 == math.MinInt32 && v2 == -1 {
			return outcomeTrap(wasm.TrapIntegerOverflow)
		}
		m.pop()
		m.pop()
		m.push(uint64(uint32(v1 / v2)))
	case wasm.OpcodeI32DivU:
		v2, v1 := uint32(m.peekN(0)), uint32(m.peekN(1))
		if v2 == 0 {
			return outcomeTrap(wasm.TrapIntegerDivideByZero)
		}
		m.pop()
		m.pop()
		m.push(uint64(v1 / v2))
	case wasm.OpcodeI32RemS:
		v2, v1 := int32(m.peekN(0)), int32(m.peekN(1))
		if v2 == 0 {
			return outcomeTrap(wasm.TrapIntegerDivideByZero)
		}
		m.pop()
		m.pop()
		m.push(uint64(uint32(v1 % v2)))
	case wasm.OpcodeI32RemU:
		v2, v1 := uint32(m.peekN(0)), uint32(m.peekN(1))
		if v2 == 0 {
			return outcomeTrap(wasm.TrapIntegerDivideByZero)
		}
		m.pop()
		m.pop()
		m.push(uint64(v1 % v2))
	case wasm.OpcodeI32And:
		v2, v1 := uint32(m.pop()), uint32(m.pop())
		m.push(uint64(v1 & v2))
	case wasm.OpcodeI32Or:
		v2, v1 := uint32(m.pop()), uint32(m.pop())
		m.push(uint64(v1 | v2))
	case wasm.OpcodeI32Xor:
		v2, v1 := uint32(m.pop()), uint32(m.pop())
		m.push(uint64(v1 ^ v2))
	case wasm.OpcodeI32Shl:
		v2, v1 := uint32(m.pop()), uint32(m.pop())
		m.push(uint64(v1 << (v2 & 31)))
	case wasm.OpcodeI32ShrS:
		v2, v1 := uint32(m.pop()), int32(m.pop())
		m.push(uint64(uint32(v1 >> (v2 & 31))))
	case wasm.OpcodeI32ShrU:
		v2, v1 := uint32(m.pop()), uint32(m.pop())
		m.push(uint64(v1 >> (v2 & 31)))
	case wasm.OpcodeI32Rotl:
		v2, v1 := uint32(m.pop()), uint32(m.pop())
		m.push(uint64(bits.RotateLeft32(v1, int(v2&31))))
	case wasm.OpcodeI32Rotr:
		v2, v1 := uint32(m.pop()), uint32(m.pop())
		m.push(uint64(bits.RotateLeft32(v1, -int(v2&31))))

	case wasm.OpcodeI64Clz:
		m.push(uint64(bits.LeadingZeros64(m.pop())))
	case wasm.OpcodeI64Ctz:
		m.push(uint64(bits.TrailingZeros64(m.pop())))
	case wasm.OpcodeI64Popcnt:
		m.push(uint64(bits.OnesCount64(m.pop())))
	case wasm.OpcodeI64Add:
		v2, v1 := m.pop(), m.pop()
		m.push(v1 + v2)
	case wasm.OpcodeI64Sub:
		v2, v1 := m.pop(), m.pop()
		m.push(v1 - v2)
	case wasm.OpcodeI64Mul:
		v2, v1 := m.pop(), m.pop()
		m.push(v1 * v2)
	case wasm.OpcodeI64DivS:
		v2, v1 := int64(m.peekN(0)), int64(m.peekN(1))
		if v2 == 0 {
			return outcomeTrap(wasm.TrapIntegerDivideByZero)
		}
		if v1 == math.MinInt64 && v2 == -1 {
			return outcomeTrap(wasm.TrapIntegerOverflow)
		}
		m.pop()
		m.pop()
		m.push(uint64(v1 / v2))
	case wasm.OpcodeI64DivU:
		v2, v1 := m.peekN(0), m.peekN(1)
		if v2 == 0 {
			return outcomeTrap(wasm.TrapIntegerDivideByZero)
		}
		m.pop()
		m.pop()
		m.push(v1 / v2)
	case wasm.OpcodeI64RemS:
		v2, v1 := int64(m.peekN(0)), int64(m.peekN(1))
		if v2 == 0 {
			return outcomeTrap(wasm.TrapIntegerDivideByZero)
		}
		m.pop()
		m.pop()
		m.push(uint64(v1 % v2))
	case wasm.OpcodeI64RemU:
		v2, v1 := m.peekN(0), m.peekN(1)
		if v2 == 0 {
			return outcomeTrap(wasm.TrapIntegerDivideByZero)
		}
		m.pop()
		m.pop()
		m.push(v1 % v2)
	case wasm.OpcodeI64And:
		v2, v1 := m.pop(), m.pop()
		m.push(v1 & v2)
	case wasm.OpcodeI64Or:
		v2, v1 := m.pop(), m.pop()
		m.push(v1 | v2)
	case wasm.OpcodeI64Xor:
		v2, v1 := m.pop(), m.pop()
		m.push(v1 ^ v2)
	case wasm.OpcodeI64Shl:
		v2, v1 := m.pop(), m.pop()
		m.push(v1 << (v2 & 63))
	case wasm.OpcodeI64ShrS:
		v2, v1 := m.pop(), int64(m.pop())
		m.push(uint64(v1 >> (v2 & 63)))
	case wasm.OpcodeI64ShrU:
		v2, v1 := m.pop(), m.pop()
		m.push(v1 >> (v2 & 63))
	case wasm.OpcodeI64Rotl:
		v2, v1 := m.pop(), m.pop()
		m.push(bits.RotateLeft64(v1, int(v2&63)))
	case wasm.OpcodeI64Rotr:
		v2, v1 := m.pop(), m.pop()
		m.push(bits.RotateLeft64(v1, -int(v2&63)))

	case wasm.OpcodeF32Abs:
		m.pushF32(float32(math.Abs(float64(m.popF32()))))
	case wasm.OpcodeF32Neg:
		m.push(m.pop() ^ 0x80000000)
	case wasm.OpcodeF32Ceil:
		m.pushF32(float32(math.Ceil(float64(m.popF32()))))
	case wasm.OpcodeF32Floor:
		m.pushF32(float32(math.Floor(float64(m.popF32()))))
	case wasm.OpcodeF32Trunc:
		m.pushF32(float32(math.Trunc(float64(m.popF32()))))
	case wasm.OpcodeF32Nearest:
		m.pushF32(float32(math.RoundToEven(float64(m.popF32()))))
	case wasm.OpcodeF32Sqrt:
		m.pushF32(float32(math.Sqrt(float64(m.popF32()))))
	case wasm.OpcodeF32Add:
		v2, v1 := m.popF32(), m.popF32()
		m.pushF32(v1 + v2)
	case wasm.OpcodeF32Sub:
		v2, v1 := m.popF32(), m.popF32()
		m.pushF32(v1 - v2)
	case wasm.OpcodeF32Mul:
		v2, v1 := m.popF32(), m.popF32()
		m.pushF32(v1 * v2)
	case wasm.OpcodeF32Div:
		v2, v1 := m.popF32(), m.popF32()
		m.pushF32(v1 / v2)
	case wasm.OpcodeF32Min:
		v2, v1 := m.popF32(), m.popF32()
		m.pushF32(float32(math.Min(float64(v1), float64(v2))))
	case wasm.OpcodeF32Max:
		v2, v1 := m.popF32(), m.popF32()
		m.pushF32(float32(math.Max(float64(v1), float64(v2))))
	case wasm.OpcodeF32Copysign:
		v2, v1 := m.popF32(), m.popF32()
		m.pushF32(float32(math.Copysign(float64(v1), float64(v2))))

	case wasm.OpcodeF64Abs:
		m.pushF64(math.Abs(m.popF64()))
	case wasm.OpcodeF64Neg:
		m.push(m.pop() ^ (1 << 63))
	case wasm.OpcodeF64Ceil:
		m.pushF64(math.Ceil(m.popF64()))
	case wasm.OpcodeF64Floor:
		m.pushF64(math.Floor(m.popF64()))
	case wasm.OpcodeF64Trunc:
		m.pushF64(math.Trunc(m.popF64()))
	case wasm.OpcodeF64Nearest:
		m.pushF64(math.RoundToEven(m.popF64()))
	case wasm.OpcodeF64Sqrt:
		m.pushF64(math.Sqrt(m.popF64()))
	case wasm.OpcodeF64Add:
		v2, v1 := m.popF64(), m.popF64()
		m.pushF64(v1 + v2)
	case wasm.OpcodeF64Sub:
		v2, v1 := m.popF64(), m.popF64()
		m.pushF64(v1 - v2)
	case wasm.OpcodeF64Mul:
		v2, v1 := m.popF64(), m.popF64()
		m.pushF64(v1 * v2)
	case wasm.OpcodeF64Div:
		v2, v1 := m.popF64(), m.popF64()
		m.pushF64(v1 / v2)
	case wasm.OpcodeF64Min:
		v2, v1 := m.popF64(), m.popF64()
		m.pushF64(math.Min(v1, v2))
	case wasm.OpcodeF64Max:
		v2, v1 := m.popF64(), m.popF64()
		m.pushF64(math.Max(v1, v2))
	case wasm.OpcodeF64Copysign:
		v2, v1 := m.popF64(), m.popF64()
		m.pushF64(math.Copysign(v1, v2))

	case wasm.OpcodeI32WrapI64:
		m.push(uint64(uint32(m.pop())))
	case wasm.OpcodeI32TruncF32S, wasm.OpcodeI32TruncF64S:
		v := m.peekFloat(op == wasm.OpcodeI32TruncF64S)
		if math.IsNaN(v) {
			return outcomeTrap(wasm.TrapInvalidConversionToInteger)
		}
		t := math.Trunc(v)
		if t < math.MinInt32 || t > math.MaxInt32 {
			return outcomeTrap(wasm.TrapIntegerOverflow)
		}
		m.pop()
		m.push(uint64(uint32(int32(t))))
	case wasm.OpcodeI32TruncF32U, wasm.OpcodeI32TruncF64U:
		v := m.peekFloat(op == wasm.OpcodeI32TruncF64U)
		if math.IsNaN(v) {
			return outcomeTrap(wasm.TrapInvalidConversionToInteger)
		}
		t := math.Trunc(v)
		if t < 0 || t > math.MaxUint32 {
			return outcomeTrap(wasm.TrapIntegerOverflow)
		}
		m.pop()
		m.push(uint64(uint32(t)))
	case wasm.OpcodeI64ExtendI32S:
		m.push(uint64(int64(int32(m.pop()))))
	case wasm.OpcodeI64ExtendI32U:
		m.push(uint64(uint32(m.pop())))
	case wasm.OpcodeI64TruncF32S, wasm.OpcodeI64TruncF64S:
		v := m.peekFloat(op == wasm.OpcodeI64TruncF64S)
		if math.IsNaN(v) {
			return outcomeTrap(wasm.TrapInvalidConversionToInteger)
		}
		t := math.Trunc(v)
		// 2^63 is exactly representable; anything at or above it, or
		// strictly below -2^63, overflows int64
		if t >= math.Ldexp(1, 63) || t < math.Ldexp(-1, 63) {
			return outcomeTrap(wasm.TrapIntegerOverflow)
		}
		m.pop()
		m.push(uint64(int64(t)))
	case wasm.OpcodeI64TruncF32U, wasm.OpcodeI64TruncF64U:
		v := m.peekFloat(op == wasm.OpcodeI64TruncF64U)
		if math.IsNaN(v) {
			return outcomeTrap(wasm.TrapInvalidConversionToInteger)
		}
		t := math.Trunc(v)
		if t < 0 || t >= math.Ldexp(1, 64) {
			return outcomeTrap(wasm.TrapIntegerOverflow)
		}
		m.pop()
		m.push(truncToUint64(t))
	case wasm.OpcodeF32ConvertI32S:
		m.pushF32(float32(int32(m.pop())))
	case wasm.OpcodeF32ConvertI32U:
		m.pushF32(float32(uint32(m.pop())))
	case wasm.OpcodeF32ConvertI64S:
		m.pushF32(float32(int64(m.pop())))
	case wasm.OpcodeF32ConvertI64U:
		m.pushF32(float32(m.pop()))
	case wasm.OpcodeF32DemoteF64:
		m.pushF32(float32(m.popF64()))
	case wasm.OpcodeF64ConvertI32S:
		m.pushF64(float64(int32(m.pop())))
	case wasm.OpcodeF64ConvertI32U:
		m.pushF64(float64(uint32(m.pop())))
	case wasm.OpcodeF64ConvertI64S:
		m.pushF64(float64(int64(m.pop())))
	case wasm.OpcodeF64ConvertI64U:
		m.pushF64(float64(m.pop()))
	case wasm.OpcodeF64PromoteF32:
		m.pushF64(float64(m.popF32()))
	case wasm.OpcodeI32ReinterpretF32, wasm.OpcodeI64ReinterpretF64,
		wasm.OpcodeF32ReinterpretI32, wasm.OpcodeF64ReinterpretI64:
		// stack values are already raw bits
	default:
		// validation rejects every byte outside the instruction set
		return outcomeTrap(wasm.TrapUnreachable)
	}
	f.PC++
	return outcomeContinue
}

func boolVal(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (m *Machine) popF32() float32   { return math.Float32frombits(uint32(m.pop())) }
func (m *Machine) popF64() float64   { return math.Float64frombits(m.pop()) }
func (m *Machine) pushF32(v float32) { m.push(uint64(math.Float32bits(v))) }
func (m *Machine) pushF64(v float64) { m.push(math.Float64bits(v)) }

// peekFloat reads the top of stack as f64 when wide, otherwise as f32
// widened to f64 without rounding.
func (m *Machine) peekFloat(wide bool) float64 {
	if wide {
		return math.Float64frombits(m.peek())
	}
	return float64(math.Float32frombits(uint32(m.peek())))
}

// truncToUint64 converts a non-negative float already checked to be below
// 2^64. Values of 2^63 and above lose no bits going through the signed path.
func truncToUint64(t float64) uint64 {
	if t >= math.Ldexp(1, 63) {
		return uint64(int64(t-math.Ldexp(1, 63))) + (1 << 63)
	}
	return uint64(int64(t))
}

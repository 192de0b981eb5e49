// Package values implements the concrete value algebra: the default
// interpret.Algebra that runs a module the way a normal Wasm engine does,
// operating directly on operand-stack lanes (spec.md §4.6
// "value-algebra parametrisation", concrete instantiation).
package values

import (
	"math"
	"math/bits"

	"github.com/wasmkit/owi/api"
	"github.com/wasmkit/owi/internal/interpret"
	"github.com/wasmkit/owi/internal/link"
	"github.com/wasmkit/owi/internal/wasm"
)

// Value is one concrete stack slot: a numeric lane, or a reference
// (funcref/externref). IsRef distinguishes a null/non-null reference from
// a numeric zero.
type Value struct {
	Num   uint64
	Fn    *link.FunctionInstance
	Ext   any
	IsRef bool
}

// Algebra is the stateless concrete interpret.Algebra[Value]
// implementation; it has no fields because concrete evaluation needs no
// per-thread state beyond the interpreter's own value/frame stacks.
type Algebra struct{}

func (Algebra) ConstNum(_ api.ValueType, lane uint64) Value { return Value{Num: lane} }
func (Algebra) RefNull() Value                              { return Value{IsRef: true} }
func (Algebra) RefFunc(fn *link.FunctionInstance) Value      { return Value{IsRef: true, Fn: fn} }
func (Algebra) RefExtern(v any) Value                        { return Value{IsRef: true, Ext: v} }
func (Algebra) IsNullRef(v Value) bool                       { return v.IsRef && v.Fn == nil && v.Ext == nil }
func (Algebra) RefTarget(v Value) (*link.FunctionInstance, any) { return v.Fn, v.Ext }
func (Algebra) Bits(v Value) uint64                          { return v.Num }

func (Algebra) Select(cond, a, b Value) Value {
	if cond.Num != 0 {
		return a
	}
	return b
}

// Branch decides cond outright and returns the single taken arm:
// concrete execution never needs to explore a road not taken.
func (a Algebra) Branch(cond Value) []interpret.BranchArm[Value] {
	return []interpret.BranchArm[Value]{{Taken: cond.Num != 0, Alg: a}}
}

// Eval computes a fixed-effect numeric instruction, per spec.md §4.6
// "Arithmetic": two's complement wraparound for add/sub/mul, traps for
// div/rem overflow or zero divisor, IEEE-754 float semantics, trunc
// traps on NaN/out-of-range while trunc_sat clamps, reinterpret is a
// bit-cast, shifts mask the count modulo the operand width.
func (Algebra) Eval(op wasm.Opcode, args []Value) Value {
	a := func(i int) uint64 { return args[i].Num }
	i32 := func(i int) int32 { return int32(uint32(a(i))) }
	u32 := func(i int) uint32 { return uint32(a(i)) }
	i64 := func(i int) int64 { return int64(a(i)) }
	u64 := func(i int) uint64 { return a(i) }
	f32 := func(i int) float32 { return math.Float32frombits(u32(i)) }
	f64 := func(i int) float64 { return math.Float64frombits(u64(i)) }
	numI32 := func(v int32) Value { return Value{Num: api.EncodeI32(v)} }
	numU32 := func(v uint32) Value { return numI32(int32(v)) }
	numI64 := func(v int64) Value { return Value{Num: api.EncodeI64(v)} }
	numU64 := func(v uint64) Value { return numI64(int64(v)) }
	numF32 := func(v float32) Value { return Value{Num: api.EncodeF32(v)} }
	numF64 := func(v float64) Value { return Value{Num: api.EncodeF64(v)} }
	boolV := func(b bool) Value {
		if b {
			return numI32(1)
		}
		return numI32(0)
	}

	switch op {
	case wasm.OpI32Eqz:
		return boolV(i32(0) == 0)
	case wasm.OpI64Eqz:
		return boolV(i64(0) == 0)
	case wasm.OpI32Clz:
		return numI32(int32(bits.LeadingZeros32(u32(0))))
	case wasm.OpI32Ctz:
		return numI32(int32(bits.TrailingZeros32(u32(0))))
	case wasm.OpI32Popcnt:
		return numI32(int32(bits.OnesCount32(u32(0))))
	case wasm.OpI64Clz:
		return numI64(int64(bits.LeadingZeros64(u64(0))))
	case wasm.OpI64Ctz:
		return numI64(int64(bits.TrailingZeros64(u64(0))))
	case wasm.OpI64Popcnt:
		return numI64(int64(bits.OnesCount64(u64(0))))

	case wasm.OpI32Add:
		return numU32(u32(0) + u32(1))
	case wasm.OpI32Sub:
		return numU32(u32(0) - u32(1))
	case wasm.OpI32Mul:
		return numU32(u32(0) * u32(1))
	case wasm.OpI32DivS:
		x, y := i32(0), i32(1)
		if y == 0 {
			panic(wasm.NewTrap(wasm.TrapIntegerDivideByZero))
		}
		if x == math.MinInt32 && y == -1 {
			panic(wasm.NewTrap(wasm.TrapIntegerOverflow))
		}
		return numI32(x / y)
	case wasm.OpI32DivU:
		x, y := u32(0), u32(1)
		if y == 0 {
			panic(wasm.NewTrap(wasm.TrapIntegerDivideByZero))
		}
		return numU32(x / y)
	case wasm.OpI32RemS:
		x, y := i32(0), i32(1)
		if y == 0 {
			panic(wasm.NewTrap(wasm.TrapIntegerDivideByZero))
		}
		if x == math.MinInt32 && y == -1 {
			return numI32(0)
		}
		return numI32(x % y)
	case wasm.OpI32RemU:
		x, y := u32(0), u32(1)
		if y == 0 {
			panic(wasm.NewTrap(wasm.TrapIntegerDivideByZero))
		}
		return numU32(x % y)
	case wasm.OpI32And:
		return numU32(u32(0) & u32(1))
	case wasm.OpI32Or:
		return numU32(u32(0) | u32(1))
	case wasm.OpI32Xor:
		return numU32(u32(0) ^ u32(1))
	case wasm.OpI32Shl:
		return numU32(u32(0) << (u32(1) % 32))
	case wasm.OpI32ShrS:
		return numI32(i32(0) >> (u32(1) % 32))
	case wasm.OpI32ShrU:
		return numU32(u32(0) >> (u32(1) % 32))
	case wasm.OpI32Rotl:
		return numU32(bits.RotateLeft32(u32(0), int(u32(1)%32)))
	case wasm.OpI32Rotr:
		return numU32(bits.RotateLeft32(u32(0), -int(u32(1)%32)))

	case wasm.OpI64Add:
		return numU64(u64(0) + u64(1))
	case wasm.OpI64Sub:
		return numU64(u64(0) - u64(1))
	case wasm.OpI64Mul:
		return numU64(u64(0) * u64(1))
	case wasm.OpI64DivS:
		x, y := i64(0), i64(1)
		if y == 0 {
			panic(wasm.NewTrap(wasm.TrapIntegerDivideByZero))
		}
		if x == math.MinInt64 && y == -1 {
			panic(wasm.NewTrap(wasm.TrapIntegerOverflow))
		}
		return numI64(x / y)
	case wasm.OpI64DivU:
		x, y := u64(0), u64(1)
		if y == 0 {
			panic(wasm.NewTrap(wasm.TrapIntegerDivideByZero))
		}
		return numU64(x / y)
	case wasm.OpI64RemS:
		x, y := i64(0), i64(1)
		if y == 0 {
			panic(wasm.NewTrap(wasm.TrapIntegerDivideByZero))
		}
		if x == math.MinInt64 && y == -1 {
			return numI64(0)
		}
		return numI64(x % y)
	case wasm.OpI64RemU:
		x, y := u64(0), u64(1)
		if y == 0 {
			panic(wasm.NewTrap(wasm.TrapIntegerDivideByZero))
		}
		return numU64(x % y)
	case wasm.OpI64And:
		return numU64(u64(0) & u64(1))
	case wasm.OpI64Or:
		return numU64(u64(0) | u64(1))
	case wasm.OpI64Xor:
		return numU64(u64(0) ^ u64(1))
	case wasm.OpI64Shl:
		return numU64(u64(0) << (u64(1) % 64))
	case wasm.OpI64ShrS:
		return numI64(i64(0) >> (u64(1) % 64))
	case wasm.OpI64ShrU:
		return numU64(u64(0) >> (u64(1) % 64))
	case wasm.OpI64Rotl:
		return numU64(bits.RotateLeft64(u64(0), int(u64(1)%64)))
	case wasm.OpI64Rotr:
		return numU64(bits.RotateLeft64(u64(0), -int(u64(1)%64)))

	case wasm.OpF32Abs:
		return numF32(float32(math.Abs(float64(f32(0)))))
	case wasm.OpF32Neg:
		return numF32(-f32(0))
	case wasm.OpF32Ceil:
		return numF32(float32(math.Ceil(float64(f32(0)))))
	case wasm.OpF32Floor:
		return numF32(float32(math.Floor(float64(f32(0)))))
	case wasm.OpF32Trunc:
		return numF32(float32(math.Trunc(float64(f32(0)))))
	case wasm.OpF32Nearest:
		return numF32(float32(math.RoundToEven(float64(f32(0)))))
	case wasm.OpF32Sqrt:
		return numF32(float32(math.Sqrt(float64(f32(0)))))
	case wasm.OpF32Add:
		return numF32(f32(0) + f32(1))
	case wasm.OpF32Sub:
		return numF32(f32(0) - f32(1))
	case wasm.OpF32Mul:
		return numF32(f32(0) * f32(1))
	case wasm.OpF32Div:
		return numF32(f32(0) / f32(1))
	case wasm.OpF32Min:
		return numF32(fminFloat32(f32(0), f32(1)))
	case wasm.OpF32Max:
		return numF32(fmaxFloat32(f32(0), f32(1)))
	case wasm.OpF32Copysign:
		return numF32(float32(math.Copysign(float64(f32(0)), float64(f32(1)))))

	case wasm.OpF64Abs:
		return numF64(math.Abs(f64(0)))
	case wasm.OpF64Neg:
		return numF64(-f64(0))
	case wasm.OpF64Ceil:
		return numF64(math.Ceil(f64(0)))
	case wasm.OpF64Floor:
		return numF64(math.Floor(f64(0)))
	case wasm.OpF64Trunc:
		return numF64(math.Trunc(f64(0)))
	case wasm.OpF64Nearest:
		return numF64(math.RoundToEven(f64(0)))
	case wasm.OpF64Sqrt:
		return numF64(math.Sqrt(f64(0)))
	case wasm.OpF64Add:
		return numF64(f64(0) + f64(1))
	case wasm.OpF64Sub:
		return numF64(f64(0) - f64(1))
	case wasm.OpF64Mul:
		return numF64(f64(0) * f64(1))
	case wasm.OpF64Div:
		return numF64(f64(0) / f64(1))
	case wasm.OpF64Min:
		return numF64(fminFloat64(f64(0), f64(1)))
	case wasm.OpF64Max:
		return numF64(fmaxFloat64(f64(0), f64(1)))
	case wasm.OpF64Copysign:
		return numF64(math.Copysign(f64(0), f64(1)))

	case wasm.OpI32Eq:
		return boolV(i32(0) == i32(1))
	case wasm.OpI32Ne:
		return boolV(i32(0) != i32(1))
	case wasm.OpI32LtS:
		return boolV(i32(0) < i32(1))
	case wasm.OpI32LtU:
		return boolV(u32(0) < u32(1))
	case wasm.OpI32GtS:
		return boolV(i32(0) > i32(1))
	case wasm.OpI32GtU:
		return boolV(u32(0) > u32(1))
	case wasm.OpI32LeS:
		return boolV(i32(0) <= i32(1))
	case wasm.OpI32LeU:
		return boolV(u32(0) <= u32(1))
	case wasm.OpI32GeS:
		return boolV(i32(0) >= i32(1))
	case wasm.OpI32GeU:
		return boolV(u32(0) >= u32(1))

	case wasm.OpI64Eq:
		return boolV(i64(0) == i64(1))
	case wasm.OpI64Ne:
		return boolV(i64(0) != i64(1))
	case wasm.OpI64LtS:
		return boolV(i64(0) < i64(1))
	case wasm.OpI64LtU:
		return boolV(u64(0) < u64(1))
	case wasm.OpI64GtS:
		return boolV(i64(0) > i64(1))
	case wasm.OpI64GtU:
		return boolV(u64(0) > u64(1))
	case wasm.OpI64LeS:
		return boolV(i64(0) <= i64(1))
	case wasm.OpI64LeU:
		return boolV(u64(0) <= u64(1))
	case wasm.OpI64GeS:
		return boolV(i64(0) >= i64(1))
	case wasm.OpI64GeU:
		return boolV(u64(0) >= u64(1))

	case wasm.OpF32Eq:
		return boolV(f32(0) == f32(1))
	case wasm.OpF32Ne:
		return boolV(f32(0) != f32(1))
	case wasm.OpF32Lt:
		return boolV(f32(0) < f32(1))
	case wasm.OpF32Gt:
		return boolV(f32(0) > f32(1))
	case wasm.OpF32Le:
		return boolV(f32(0) <= f32(1))
	case wasm.OpF32Ge:
		return boolV(f32(0) >= f32(1))

	case wasm.OpF64Eq:
		return boolV(f64(0) == f64(1))
	case wasm.OpF64Ne:
		return boolV(f64(0) != f64(1))
	case wasm.OpF64Lt:
		return boolV(f64(0) < f64(1))
	case wasm.OpF64Gt:
		return boolV(f64(0) > f64(1))
	case wasm.OpF64Le:
		return boolV(f64(0) <= f64(1))
	case wasm.OpF64Ge:
		return boolV(f64(0) >= f64(1))

	case wasm.OpI32WrapI64:
		return numI32(int32(uint32(u64(0))))
	case wasm.OpI64ExtendI32S:
		return numI64(int64(i32(0)))
	case wasm.OpI64ExtendI32U:
		return numU64(uint64(u32(0)))

	case wasm.OpI32TruncF32S:
		return numI32(int32(truncChecked(float64(f32(0)), -2147483648, 2147483647)))
	case wasm.OpI32TruncF32U:
		return numU32(uint32(truncChecked(float64(f32(0)), 0, 4294967295)))
	case wasm.OpI32TruncF64S:
		return numI32(int32(truncChecked(f64(0), -2147483648, 2147483647)))
	case wasm.OpI32TruncF64U:
		return numU32(uint32(truncChecked(f64(0), 0, 4294967295)))
	case wasm.OpI64TruncF32S:
		return numI64(int64(truncChecked(float64(f32(0)), -9223372036854775808, 9223372036854775807)))
	case wasm.OpI64TruncF32U:
		return numU64(uint64(truncChecked(float64(f32(0)), 0, 18446744073709551615)))
	case wasm.OpI64TruncF64S:
		return numI64(int64(truncChecked(f64(0), -9223372036854775808, 9223372036854775807)))
	case wasm.OpI64TruncF64U:
		return numU64(uint64(truncChecked(f64(0), 0, 18446744073709551615)))

	case wasm.OpI32TruncSatF32S:
		return numI32(int32(truncSat(float64(f32(0)), -2147483648, 2147483647)))
	case wasm.OpI32TruncSatF32U:
		return numU32(uint32(truncSat(float64(f32(0)), 0, 4294967295)))
	case wasm.OpI32TruncSatF64S:
		return numI32(int32(truncSat(f64(0), -2147483648, 2147483647)))
	case wasm.OpI32TruncSatF64U:
		return numU32(uint32(truncSat(f64(0), 0, 4294967295)))
	case wasm.OpI64TruncSatF32S:
		return numI64(int64(truncSat(float64(f32(0)), -9223372036854775808, 9223372036854775807)))
	case wasm.OpI64TruncSatF32U:
		return numU64(uint64(truncSat(float64(f32(0)), 0, 18446744073709551615)))
	case wasm.OpI64TruncSatF64S:
		return numI64(int64(truncSat(f64(0), -9223372036854775808, 9223372036854775807)))
	case wasm.OpI64TruncSatF64U:
		return numU64(uint64(truncSat(f64(0), 0, 18446744073709551615)))

	case wasm.OpF32ConvertI32S:
		return numF32(float32(i32(0)))
	case wasm.OpF32ConvertI32U:
		return numF32(float32(u32(0)))
	case wasm.OpF32ConvertI64S:
		return numF32(float32(i64(0)))
	case wasm.OpF32ConvertI64U:
		return numF32(float32(u64(0)))
	case wasm.OpF32DemoteF64:
		return numF32(float32(f64(0)))
	case wasm.OpF64ConvertI32S:
		return numF64(float64(i32(0)))
	case wasm.OpF64ConvertI32U:
		return numF64(float64(u32(0)))
	case wasm.OpF64ConvertI64S:
		return numF64(float64(i64(0)))
	case wasm.OpF64ConvertI64U:
		return numF64(float64(u64(0)))
	case wasm.OpF64PromoteF32:
		return numF64(float64(f32(0)))

	case wasm.OpI32ReinterpretF32:
		return numU32(u32(0))
	case wasm.OpI64ReinterpretF64:
		return numU64(u64(0))
	case wasm.OpF32ReinterpretI32:
		return numU32(u32(0))
	case wasm.OpF64ReinterpretI64:
		return numU64(u64(0))

	case wasm.OpI32Extend8S:
		return numI32(int32(int8(u32(0))))
	case wasm.OpI32Extend16S:
		return numI32(int32(int16(u32(0))))
	case wasm.OpI64Extend8S:
		return numI64(int64(int8(u64(0))))
	case wasm.OpI64Extend16S:
		return numI64(int64(int16(u64(0))))
	case wasm.OpI64Extend32S:
		return numI64(int64(int32(u64(0))))
	}
	panic(wasm.NewStaticError("internal/values: unhandled opcode %s", op.Name()))
}

// truncChecked is *.trunc.*: traps on NaN or out-of-range per spec.md
// §4.6. lo and hi are the target integer range's own limits; a truncated
// value below lo, or at or above hi+1 (computed in float64, so 2^63 and
// 2^64 for the 64-bit targets), traps.
func truncChecked(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		// spec.md §7's trap enum has no separate "invalid conversion"
		// kind; NaN and out-of-range both surface as integer overflow.
		panic(wasm.NewTrap(wasm.TrapIntegerOverflow))
	}
	t := math.Trunc(v)
	if t < lo || t >= hi+1 {
		panic(wasm.NewTrap(wasm.TrapIntegerOverflow))
	}
	return t
}

// truncSat is *.trunc_sat.*: clamps instead of trapping.
func truncSat(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	t := math.Trunc(v)
	switch {
	case t < lo:
		return lo
	case t > hi:
		return hi
	}
	return t
}

func fminFloat32(a, b float32) float32 {
	if math.IsNaN(float64(a)) || math.IsNaN(float64(b)) {
		return float32(math.NaN())
	}
	if a == 0 && b == 0 {
		if math.Signbit(float64(a)) {
			return a
		}
		return b
	}
	if a < b {
		return a
	}
	return b
}

func fmaxFloat32(a, b float32) float32 {
	if math.IsNaN(float64(a)) || math.IsNaN(float64(b)) {
		return float32(math.NaN())
	}
	if a == 0 && b == 0 {
		if math.Signbit(float64(a)) {
			return b
		}
		return a
	}
	if a > b {
		return a
	}
	return b
}

func fminFloat64(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.NaN()
	}
	if a == 0 && b == 0 {
		if math.Signbit(a) {
			return a
		}
		return b
	}
	if a < b {
		return a
	}
	return b
}

func fmaxFloat64(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.NaN()
	}
	if a == 0 && b == 0 {
		if math.Signbit(a) {
			return b
		}
		return a
	}
	if a > b {
		return a
	}
	return b
}

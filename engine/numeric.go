package engine

import (
	"math"

	"golang.org/x/exp/constraints"

	"github.com/wippyai/wasm-compiler/errors"
)

func trap(code errors.TrapCode) *errors.Trap {
	return errors.NewTrap(code)
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func divS[T constraints.Signed](x, y T) T {
	if y == 0 {
		panic(trap(errors.TrapIntegerDivideByZero))
	}
	// the minimum value is the only non-zero value equal to its own negation
	if y == -1 && x != 0 && x == -x {
		panic(trap(errors.TrapIntegerOverflow))
	}
	return x / y
}

func remS[T constraints.Signed](x, y T) T {
	if y == 0 {
		panic(trap(errors.TrapIntegerDivideByZero))
	}
	if y == -1 {
		return 0
	}
	return x % y
}

func divU[T constraints.Unsigned](x, y T) T {
	if y == 0 {
		panic(trap(errors.TrapIntegerDivideByZero))
	}
	return x / y
}

func remU[T constraints.Unsigned](x, y T) T {
	if y == 0 {
		panic(trap(errors.TrapIntegerDivideByZero))
	}
	return x % y
}

// Truncation bounds: trunc(x) converts when lo <= trunc(x) < hi.
// All bounds are exact in float64.
const (
	i32Lo = -2147483648.0
	i32Hi = 2147483648.0
	u32Lo = 0.0
	u32Hi = 4294967296.0
	i64Lo = -9223372036854775808.0
	i64Hi = 9223372036854775808.0
	u64Lo = 0.0
	u64Hi = 18446744073709551616.0
)

// truncTo converts x toward zero, trapping on NaN and out-of-range values.
func truncTo[T constraints.Integer, F constraints.Float](x F, lo, hi float64) T {
	f := float64(x)
	if math.IsNaN(f) {
		panic(trap(errors.TrapInvalidConversionToInteger))
	}
	t := math.Trunc(f)
	if t < lo || t >= hi {
		panic(trap(errors.TrapIntegerOverflow))
	}
	return T(t)
}

// truncSat converts x toward zero, clamping out-of-range values and mapping
// NaN to zero.
func truncSat[T constraints.Integer, F constraints.Float](x F, lo, hi float64, minV, maxV T) T {
	f := float64(x)
	if math.IsNaN(f) {
		return 0
	}
	t := math.Trunc(f)
	if t < lo || t >= hi {
		if t < 0 {
			return minV
		}
		return maxV
	}
	return T(t)
}

func fnearest[F constraints.Float](x F) F {
	return F(math.RoundToEven(float64(x)))
}

// min, max and copysign work on raw bits: a NaN operand yields the
// canonical NaN and copysign never touches the payload.
const (
	canonicalNaN32 uint64 = 0x7FC00000
	canonicalNaN64 uint64 = 0x7FF8000000000000
	signBit32      uint64 = 0x80000000
	signBit64      uint64 = 1 << 63
	mask32         uint64 = 0xFFFFFFFF
)

func f32Min(x, y uint64) uint64 {
	a, b := f32(x), f32(y)
	switch {
	case math.IsNaN(float64(a)) || math.IsNaN(float64(b)):
		return canonicalNaN32
	case a == b:
		// -0 < +0
		return (x | y) & mask32
	case a < b:
		return x & mask32
	}
	return y & mask32
}

func f32Max(x, y uint64) uint64 {
	a, b := f32(x), f32(y)
	switch {
	case math.IsNaN(float64(a)) || math.IsNaN(float64(b)):
		return canonicalNaN32
	case a == b:
		return x & y & mask32
	case a > b:
		return x & mask32
	}
	return y & mask32
}

func f64Min(x, y uint64) uint64 {
	a, b := f64(x), f64(y)
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		return canonicalNaN64
	case a == b:
		return x | y
	case a < b:
		return x
	}
	return y
}

func f64Max(x, y uint64) uint64 {
	a, b := f64(x), f64(y)
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		return canonicalNaN64
	case a == b:
		return x & y
	case a > b:
		return x
	}
	return y
}

func f32Copysign(x, y uint64) uint64 {
	return (x&^signBit32 | y&signBit32) & mask32
}

func f64Copysign(x, y uint64) uint64 {
	return x&^signBit64 | y&signBit64
}

func f32(raw uint64) float32 { return math.Float32frombits(uint32(raw)) }

func f64(raw uint64) float64 { return math.Float64frombits(raw) }

func ofF32(v float32) uint64 { return uint64(math.Float32bits(v)) }

func ofF64(v float64) uint64 { return math.Float64bits(v) }

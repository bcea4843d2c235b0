package engine

import (
	"math"
	"math/bits"

	"github.com/wippyai/wasm-compiler/wasm"
)

type (
	unaryOp  func(x uint64) uint64
	binaryOp func(x, y uint64) uint64
)

// Numeric instructions operate on raw slots. Tables are indexed by opcode
// (or 0xFC sub-opcode for the saturating conversions).
var (
	unaryOps  [256]unaryOp
	binaryOps [256]binaryOp
	satOps    = map[uint32]unaryOp{}
)

func unaryThunk(a int, op unaryOp) thunk {
	return func(fr *frame) int {
		fr.regs[a] = op(fr.regs[a])
		return -1
	}
}

func binaryThunk(a, b int, op binaryOp) thunk {
	return func(fr *frame) int {
		r := fr.regs
		r[a] = op(r[a], r[b])
		return -1
	}
}

func u32(x uint64) uint32 { return uint32(x) }

func i32Bin(op func(x, y uint32) uint32) binaryOp {
	return func(x, y uint64) uint64 { return uint64(op(u32(x), u32(y))) }
}

func i32Cmp(op func(x, y uint32) bool) binaryOp {
	return func(x, y uint64) uint64 { return b2u(op(u32(x), u32(y))) }
}

func i64Cmp(op func(x, y uint64) bool) binaryOp {
	return func(x, y uint64) uint64 { return b2u(op(x, y)) }
}

func f32Bin(op func(x, y float32) float32) binaryOp {
	return func(x, y uint64) uint64 { return ofF32(op(f32(x), f32(y))) }
}

func f64Bin(op func(x, y float64) float64) binaryOp {
	return func(x, y uint64) uint64 { return ofF64(op(f64(x), f64(y))) }
}

func f32Cmp(op func(x, y float32) bool) binaryOp {
	return func(x, y uint64) uint64 { return b2u(op(f32(x), f32(y))) }
}

func f64Cmp(op func(x, y float64) bool) binaryOp {
	return func(x, y uint64) uint64 { return b2u(op(f64(x), f64(y))) }
}

func f32Un(op func(x float32) float32) unaryOp {
	return func(x uint64) uint64 { return ofF32(op(f32(x))) }
}

func f64Un(op func(x float64) float64) unaryOp {
	return func(x uint64) uint64 { return ofF64(op(f64(x))) }
}

func init() {
	// i32
	unaryOps[wasm.OpI32Eqz] = func(x uint64) uint64 { return b2u(u32(x) == 0) }
	unaryOps[wasm.OpI32Clz] = func(x uint64) uint64 { return uint64(bits.LeadingZeros32(u32(x))) }
	unaryOps[wasm.OpI32Ctz] = func(x uint64) uint64 { return uint64(bits.TrailingZeros32(u32(x))) }
	unaryOps[wasm.OpI32Popcnt] = func(x uint64) uint64 { return uint64(bits.OnesCount32(u32(x))) }
	unaryOps[wasm.OpI32Extend8S] = func(x uint64) uint64 { return uint64(uint32(int32(int8(x)))) }
	unaryOps[wasm.OpI32Extend16S] = func(x uint64) uint64 { return uint64(uint32(int32(int16(x)))) }

	binaryOps[wasm.OpI32Eq] = i32Cmp(func(x, y uint32) bool { return x == y })
	binaryOps[wasm.OpI32Ne] = i32Cmp(func(x, y uint32) bool { return x != y })
	binaryOps[wasm.OpI32LtS] = i32Cmp(func(x, y uint32) bool { return int32(x) < int32(y) })
	binaryOps[wasm.OpI32LtU] = i32Cmp(func(x, y uint32) bool { return x < y })
	binaryOps[wasm.OpI32GtS] = i32Cmp(func(x, y uint32) bool { return int32(x) > int32(y) })
	binaryOps[wasm.OpI32GtU] = i32Cmp(func(x, y uint32) bool { return x > y })
	binaryOps[wasm.OpI32LeS] = i32Cmp(func(x, y uint32) bool { return int32(x) <= int32(y) })
	binaryOps[wasm.OpI32LeU] = i32Cmp(func(x, y uint32) bool { return x <= y })
	binaryOps[wasm.OpI32GeS] = i32Cmp(func(x, y uint32) bool { return int32(x) >= int32(y) })
	binaryOps[wasm.OpI32GeU] = i32Cmp(func(x, y uint32) bool { return x >= y })

	binaryOps[wasm.OpI32Add] = i32Bin(func(x, y uint32) uint32 { return x + y })
	binaryOps[wasm.OpI32Sub] = i32Bin(func(x, y uint32) uint32 { return x - y })
	binaryOps[wasm.OpI32Mul] = i32Bin(func(x, y uint32) uint32 { return x * y })
	binaryOps[wasm.OpI32DivS] = i32Bin(func(x, y uint32) uint32 { return uint32(divS(int32(x), int32(y))) })
	binaryOps[wasm.OpI32DivU] = i32Bin(divU[uint32])
	binaryOps[wasm.OpI32RemS] = i32Bin(func(x, y uint32) uint32 { return uint32(remS(int32(x), int32(y))) })
	binaryOps[wasm.OpI32RemU] = i32Bin(remU[uint32])
	binaryOps[wasm.OpI32And] = i32Bin(func(x, y uint32) uint32 { return x & y })
	binaryOps[wasm.OpI32Or] = i32Bin(func(x, y uint32) uint32 { return x | y })
	binaryOps[wasm.OpI32Xor] = i32Bin(func(x, y uint32) uint32 { return x ^ y })
	binaryOps[wasm.OpI32Shl] = i32Bin(func(x, y uint32) uint32 { return x << (y & 31) })
	binaryOps[wasm.OpI32ShrS] = i32Bin(func(x, y uint32) uint32 { return uint32(int32(x) >> (y & 31)) })
	binaryOps[wasm.OpI32ShrU] = i32Bin(func(x, y uint32) uint32 { return x >> (y & 31) })
	binaryOps[wasm.OpI32Rotl] = i32Bin(func(x, y uint32) uint32 { return bits.RotateLeft32(x, int(y&31)) })
	binaryOps[wasm.OpI32Rotr] = i32Bin(func(x, y uint32) uint32 { return bits.RotateLeft32(x, -int(y&31)) })

	// i64
	unaryOps[wasm.OpI64Eqz] = func(x uint64) uint64 { return b2u(x == 0) }
	unaryOps[wasm.OpI64Clz] = func(x uint64) uint64 { return uint64(bits.LeadingZeros64(x)) }
	unaryOps[wasm.OpI64Ctz] = func(x uint64) uint64 { return uint64(bits.TrailingZeros64(x)) }
	unaryOps[wasm.OpI64Popcnt] = func(x uint64) uint64 { return uint64(bits.OnesCount64(x)) }
	unaryOps[wasm.OpI64Extend8S] = func(x uint64) uint64 { return uint64(int64(int8(x))) }
	unaryOps[wasm.OpI64Extend16S] = func(x uint64) uint64 { return uint64(int64(int16(x))) }
	unaryOps[wasm.OpI64Extend32S] = func(x uint64) uint64 { return uint64(int64(int32(x))) }

	binaryOps[wasm.OpI64Eq] = i64Cmp(func(x, y uint64) bool { return x == y })
	binaryOps[wasm.OpI64Ne] = i64Cmp(func(x, y uint64) bool { return x != y })
	binaryOps[wasm.OpI64LtS] = i64Cmp(func(x, y uint64) bool { return int64(x) < int64(y) })
	binaryOps[wasm.OpI64LtU] = i64Cmp(func(x, y uint64) bool { return x < y })
	binaryOps[wasm.OpI64GtS] = i64Cmp(func(x, y uint64) bool { return int64(x) > int64(y) })
	binaryOps[wasm.OpI64GtU] = i64Cmp(func(x, y uint64) bool { return x > y })
	binaryOps[wasm.OpI64LeS] = i64Cmp(func(x, y uint64) bool { return int64(x) <= int64(y) })
	binaryOps[wasm.OpI64LeU] = i64Cmp(func(x, y uint64) bool { return x <= y })
	binaryOps[wasm.OpI64GeS] = i64Cmp(func(x, y uint64) bool { return int64(x) >= int64(y) })
	binaryOps[wasm.OpI64GeU] = i64Cmp(func(x, y uint64) bool { return x >= y })

	binaryOps[wasm.OpI64Add] = func(x, y uint64) uint64 { return x + y }
	binaryOps[wasm.OpI64Sub] = func(x, y uint64) uint64 { return x - y }
	binaryOps[wasm.OpI64Mul] = func(x, y uint64) uint64 { return x * y }
	binaryOps[wasm.OpI64DivS] = func(x, y uint64) uint64 { return uint64(divS(int64(x), int64(y))) }
	binaryOps[wasm.OpI64DivU] = divU[uint64]
	binaryOps[wasm.OpI64RemS] = func(x, y uint64) uint64 { return uint64(remS(int64(x), int64(y))) }
	binaryOps[wasm.OpI64RemU] = remU[uint64]
	binaryOps[wasm.OpI64And] = func(x, y uint64) uint64 { return x & y }
	binaryOps[wasm.OpI64Or] = func(x, y uint64) uint64 { return x | y }
	binaryOps[wasm.OpI64Xor] = func(x, y uint64) uint64 { return x ^ y }
	binaryOps[wasm.OpI64Shl] = func(x, y uint64) uint64 { return x << (y & 63) }
	binaryOps[wasm.OpI64ShrS] = func(x, y uint64) uint64 { return uint64(int64(x) >> (y & 63)) }
	binaryOps[wasm.OpI64ShrU] = func(x, y uint64) uint64 { return x >> (y & 63) }
	binaryOps[wasm.OpI64Rotl] = func(x, y uint64) uint64 { return bits.RotateLeft64(x, int(y&63)) }
	binaryOps[wasm.OpI64Rotr] = func(x, y uint64) uint64 { return bits.RotateLeft64(x, -int(y&63)) }

	// f32
	binaryOps[wasm.OpF32Eq] = f32Cmp(func(x, y float32) bool { return x == y })
	binaryOps[wasm.OpF32Ne] = f32Cmp(func(x, y float32) bool { return x != y })
	binaryOps[wasm.OpF32Lt] = f32Cmp(func(x, y float32) bool { return x < y })
	binaryOps[wasm.OpF32Gt] = f32Cmp(func(x, y float32) bool { return x > y })
	binaryOps[wasm.OpF32Le] = f32Cmp(func(x, y float32) bool { return x <= y })
	binaryOps[wasm.OpF32Ge] = f32Cmp(func(x, y float32) bool { return x >= y })

	unaryOps[wasm.OpF32Abs] = func(x uint64) uint64 { return x & 0x7FFFFFFF }
	unaryOps[wasm.OpF32Neg] = func(x uint64) uint64 { return (x ^ 0x80000000) & 0xFFFFFFFF }
	unaryOps[wasm.OpF32Ceil] = f32Un(func(x float32) float32 { return float32(math.Ceil(float64(x))) })
	unaryOps[wasm.OpF32Floor] = f32Un(func(x float32) float32 { return float32(math.Floor(float64(x))) })
	unaryOps[wasm.OpF32Trunc] = f32Un(func(x float32) float32 { return float32(math.Trunc(float64(x))) })
	unaryOps[wasm.OpF32Nearest] = f32Un(fnearest[float32])
	unaryOps[wasm.OpF32Sqrt] = f32Un(func(x float32) float32 { return float32(math.Sqrt(float64(x))) })

	binaryOps[wasm.OpF32Add] = f32Bin(func(x, y float32) float32 { return x + y })
	binaryOps[wasm.OpF32Sub] = f32Bin(func(x, y float32) float32 { return x - y })
	binaryOps[wasm.OpF32Mul] = f32Bin(func(x, y float32) float32 { return x * y })
	binaryOps[wasm.OpF32Div] = f32Bin(func(x, y float32) float32 { return x / y })
	binaryOps[wasm.OpF32Min] = f32Min
	binaryOps[wasm.OpF32Max] = f32Max
	binaryOps[wasm.OpF32Copysign] = f32Copysign

	// f64
	binaryOps[wasm.OpF64Eq] = f64Cmp(func(x, y float64) bool { return x == y })
	binaryOps[wasm.OpF64Ne] = f64Cmp(func(x, y float64) bool { return x != y })
	binaryOps[wasm.OpF64Lt] = f64Cmp(func(x, y float64) bool { return x < y })
	binaryOps[wasm.OpF64Gt] = f64Cmp(func(x, y float64) bool { return x > y })
	binaryOps[wasm.OpF64Le] = f64Cmp(func(x, y float64) bool { return x <= y })
	binaryOps[wasm.OpF64Ge] = f64Cmp(func(x, y float64) bool { return x >= y })

	unaryOps[wasm.OpF64Abs] = func(x uint64) uint64 { return x &^ (1 << 63) }
	unaryOps[wasm.OpF64Neg] = func(x uint64) uint64 { return x ^ (1 << 63) }
	unaryOps[wasm.OpF64Ceil] = f64Un(math.Ceil)
	unaryOps[wasm.OpF64Floor] = f64Un(math.Floor)
	unaryOps[wasm.OpF64Trunc] = f64Un(math.Trunc)
	unaryOps[wasm.OpF64Nearest] = f64Un(math.RoundToEven)
	unaryOps[wasm.OpF64Sqrt] = f64Un(math.Sqrt)

	binaryOps[wasm.OpF64Add] = f64Bin(func(x, y float64) float64 { return x + y })
	binaryOps[wasm.OpF64Sub] = f64Bin(func(x, y float64) float64 { return x - y })
	binaryOps[wasm.OpF64Mul] = f64Bin(func(x, y float64) float64 { return x * y })
	binaryOps[wasm.OpF64Div] = f64Bin(func(x, y float64) float64 { return x / y })
	binaryOps[wasm.OpF64Min] = f64Min
	binaryOps[wasm.OpF64Max] = f64Max
	binaryOps[wasm.OpF64Copysign] = f64Copysign

	// conversions
	unaryOps[wasm.OpI32WrapI64] = func(x uint64) uint64 { return uint64(u32(x)) }
	unaryOps[wasm.OpI32TruncF32S] = func(x uint64) uint64 { return uint64(uint32(truncTo[int32](f32(x), i32Lo, i32Hi))) }
	unaryOps[wasm.OpI32TruncF32U] = func(x uint64) uint64 { return uint64(truncTo[uint32](f32(x), u32Lo, u32Hi)) }
	unaryOps[wasm.OpI32TruncF64S] = func(x uint64) uint64 { return uint64(uint32(truncTo[int32](f64(x), i32Lo, i32Hi))) }
	unaryOps[wasm.OpI32TruncF64U] = func(x uint64) uint64 { return uint64(truncTo[uint32](f64(x), u32Lo, u32Hi)) }
	unaryOps[wasm.OpI64ExtendI32S] = func(x uint64) uint64 { return uint64(int64(int32(x))) }
	unaryOps[wasm.OpI64ExtendI32U] = func(x uint64) uint64 { return uint64(u32(x)) }
	unaryOps[wasm.OpI64TruncF32S] = func(x uint64) uint64 { return uint64(truncTo[int64](f32(x), i64Lo, i64Hi)) }
	unaryOps[wasm.OpI64TruncF32U] = func(x uint64) uint64 { return truncTo[uint64](f32(x), u64Lo, u64Hi) }
	unaryOps[wasm.OpI64TruncF64S] = func(x uint64) uint64 { return uint64(truncTo[int64](f64(x), i64Lo, i64Hi)) }
	unaryOps[wasm.OpI64TruncF64U] = func(x uint64) uint64 { return truncTo[uint64](f64(x), u64Lo, u64Hi) }
	unaryOps[wasm.OpF32ConvertI32S] = func(x uint64) uint64 { return ofF32(float32(int32(x))) }
	unaryOps[wasm.OpF32ConvertI32U] = func(x uint64) uint64 { return ofF32(float32(u32(x))) }
	unaryOps[wasm.OpF32ConvertI64S] = func(x uint64) uint64 { return ofF32(float32(int64(x))) }
	unaryOps[wasm.OpF32ConvertI64U] = func(x uint64) uint64 { return ofF32(float32(x)) }
	unaryOps[wasm.OpF32DemoteF64] = func(x uint64) uint64 { return ofF32(float32(f64(x))) }
	unaryOps[wasm.OpF64ConvertI32S] = func(x uint64) uint64 { return ofF64(float64(int32(x))) }
	unaryOps[wasm.OpF64ConvertI32U] = func(x uint64) uint64 { return ofF64(float64(u32(x))) }
	unaryOps[wasm.OpF64ConvertI64S] = func(x uint64) uint64 { return ofF64(float64(int64(x))) }
	unaryOps[wasm.OpF64ConvertI64U] = func(x uint64) uint64 { return ofF64(float64(x)) }
	unaryOps[wasm.OpF64PromoteF32] = func(x uint64) uint64 { return ofF64(float64(f32(x))) }

	// reinterpretations keep the bits; i32/f32 already share the low half
	identity := func(x uint64) uint64 { return x }
	unaryOps[wasm.OpI32ReinterpretF32] = identity
	unaryOps[wasm.OpI64ReinterpretF64] = identity
	unaryOps[wasm.OpF32ReinterpretI32] = identity
	unaryOps[wasm.OpF64ReinterpretI64] = identity

	satOps[wasm.MiscI32TruncSatF32S] = func(x uint64) uint64 {
		return uint64(uint32(truncSat(f32(x), i32Lo, i32Hi, int32(math.MinInt32), int32(math.MaxInt32))))
	}
	satOps[wasm.MiscI32TruncSatF32U] = func(x uint64) uint64 {
		return uint64(truncSat(f32(x), u32Lo, u32Hi, uint32(0), uint32(math.MaxUint32)))
	}
	satOps[wasm.MiscI32TruncSatF64S] = func(x uint64) uint64 {
		return uint64(uint32(truncSat(f64(x), i32Lo, i32Hi, int32(math.MinInt32), int32(math.MaxInt32))))
	}
	satOps[wasm.MiscI32TruncSatF64U] = func(x uint64) uint64 {
		return uint64(truncSat(f64(x), u32Lo, u32Hi, uint32(0), uint32(math.MaxUint32)))
	}
	satOps[wasm.MiscI64TruncSatF32S] = func(x uint64) uint64 {
		return uint64(truncSat(f32(x), i64Lo, i64Hi, int64(math.MinInt64), int64(math.MaxInt64)))
	}
	satOps[wasm.MiscI64TruncSatF32U] = func(x uint64) uint64 {
		return truncSat(f32(x), u64Lo, u64Hi, uint64(0), uint64(math.MaxUint64))
	}
	satOps[wasm.MiscI64TruncSatF64S] = func(x uint64) uint64 {
		return uint64(truncSat(f64(x), i64Lo, i64Hi, int64(math.MinInt64), int64(math.MaxInt64)))
	}
	satOps[wasm.MiscI64TruncSatF64U] = func(x uint64) uint64 {
		return truncSat(f64(x), u64Lo, u64Hi, uint64(0), uint64(math.MaxUint64))
	}
}

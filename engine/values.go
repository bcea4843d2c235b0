package engine

import (
	"fmt"
	"math"
	"strconv"

	"github.com/wippyai/wasm-compiler/wasm"
)

// Every value lives in a 64-bit slot. i32 and f32 occupy the low 32 bits
// with the upper half zero; floats are stored as their IEEE-754 bits.

func EncodeI32(v int32) uint64 { return uint64(uint32(v)) }

func EncodeI64(v int64) uint64 { return uint64(v) }

func EncodeF32(v float32) uint64 { return uint64(math.Float32bits(v)) }

func EncodeF64(v float64) uint64 { return math.Float64bits(v) }

func DecodeI32(raw uint64) int32 { return int32(uint32(raw)) }

func DecodeI64(raw uint64) int64 { return int64(raw) }

func DecodeF32(raw uint64) float32 { return math.Float32frombits(uint32(raw)) }

func DecodeF64(raw uint64) float64 { return math.Float64frombits(raw) }

// FormatValue renders a raw slot as its typed value.
func FormatValue(t wasm.ValType, raw uint64) string {
	switch t {
	case wasm.ValI32:
		return strconv.FormatInt(int64(DecodeI32(raw)), 10)
	case wasm.ValI64:
		return strconv.FormatInt(DecodeI64(raw), 10)
	case wasm.ValF32:
		return strconv.FormatFloat(float64(DecodeF32(raw)), 'g', -1, 32)
	case wasm.ValF64:
		return strconv.FormatFloat(DecodeF64(raw), 'g', -1, 64)
	}
	return fmt.Sprintf("0x%x", raw)
}

// ParseValue parses text as a value of type t and returns its raw slot.
// Integers accept the full signed and unsigned range of their width.
func ParseValue(t wasm.ValType, text string) (uint64, error) {
	switch t {
	case wasm.ValI32:
		if v, err := strconv.ParseInt(text, 0, 32); err == nil {
			return EncodeI32(int32(v)), nil
		}
		v, err := strconv.ParseUint(text, 0, 32)
		if err != nil {
			return 0, fmt.Errorf("parse i32 %q: %w", text, err)
		}
		return v, nil
	case wasm.ValI64:
		if v, err := strconv.ParseInt(text, 0, 64); err == nil {
			return EncodeI64(v), nil
		}
		v, err := strconv.ParseUint(text, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("parse i64 %q: %w", text, err)
		}
		return v, nil
	case wasm.ValF32:
		v, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return 0, fmt.Errorf("parse f32 %q: %w", text, err)
		}
		return EncodeF32(float32(v)), nil
	case wasm.ValF64:
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, fmt.Errorf("parse f64 %q: %w", text, err)
		}
		return EncodeF64(v), nil
	}
	return 0, fmt.Errorf("unsupported value type %s", t)
}

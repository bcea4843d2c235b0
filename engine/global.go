package engine

import (
	"fmt"

	"github.com/wippyai/wasm-compiler/wasm"
)

// Global holds one global value in its raw 64-bit slot form.
type Global struct {
	Type wasm.GlobalType
	val  uint64
}

// NewGlobal creates a global with an initial raw value.
func NewGlobal(t wasm.GlobalType, raw uint64) *Global {
	return &Global{Type: t, val: raw}
}

// Get returns the raw value. i32 and f32 occupy the low 32 bits.
func (g *Global) Get() uint64 {
	return g.val
}

// Set stores a raw value. Mutability is enforced by validation, not here.
func (g *Global) Set(raw uint64) {
	g.val = raw
}

// EvalConst evaluates a validated constant expression. global.get reads
// from globals, which must hold at least the imported globals.
func EvalConst(expr []wasm.Instruction, globals []*Global) (uint64, error) {
	if len(expr) != 1 {
		return 0, fmt.Errorf("constant expression has %d instructions", len(expr))
	}
	in := expr[0]
	if in.Opcode == wasm.OpGlobalGet {
		imm, ok := in.Imm.(wasm.GlobalImm)
		if !ok || int(imm.GlobalIdx) >= len(globals) {
			return 0, fmt.Errorf("constant expression reads unknown global")
		}
		return globals[imm.GlobalIdx].val, nil
	}
	return constValue(in)
}

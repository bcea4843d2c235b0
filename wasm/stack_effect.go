package wasm

// StackEffect is the fixed operand contract of an instruction: the kinds it
// pops (bottom to top) and the kinds it pushes.
type StackEffect struct {
	Pops   []ValType
	Pushes []ValType
}

var (
	i32 = ValI32
	i64 = ValI64
	f32 = ValF32
	f64 = ValF64
)

func effect(pops []ValType, pushes ...ValType) *StackEffect {
	return &StackEffect{Pops: pops, Pushes: pushes}
}

func kinds(vs ...ValType) []ValType { return vs }

// stackEffects is indexed by opcode. Nil entries are instructions whose
// effect depends on immediates or on the control stack.
var stackEffects [256]*StackEffect

func register(e *StackEffect, ops ...byte) {
	for _, op := range ops {
		stackEffects[op] = e
	}
}

func init() {
	register(effect(nil), OpNop)
	register(effect(nil, i32), OpI32Const)
	register(effect(nil, i64), OpI64Const)
	register(effect(nil, f32), OpF32Const)
	register(effect(nil, f64), OpF64Const)

	// comparisons
	register(effect(kinds(i32), i32), OpI32Eqz)
	register(effect(kinds(i32, i32), i32),
		OpI32Eq, OpI32Ne, OpI32LtS, OpI32LtU, OpI32GtS, OpI32GtU, OpI32LeS, OpI32LeU, OpI32GeS, OpI32GeU)
	register(effect(kinds(i64), i32), OpI64Eqz)
	register(effect(kinds(i64, i64), i32),
		OpI64Eq, OpI64Ne, OpI64LtS, OpI64LtU, OpI64GtS, OpI64GtU, OpI64LeS, OpI64LeU, OpI64GeS, OpI64GeU)
	register(effect(kinds(f32, f32), i32), OpF32Eq, OpF32Ne, OpF32Lt, OpF32Gt, OpF32Le, OpF32Ge)
	register(effect(kinds(f64, f64), i32), OpF64Eq, OpF64Ne, OpF64Lt, OpF64Gt, OpF64Le, OpF64Ge)

	// arithmetic
	register(effect(kinds(i32), i32), OpI32Clz, OpI32Ctz, OpI32Popcnt, OpI32Extend8S, OpI32Extend16S)
	register(effect(kinds(i32, i32), i32),
		OpI32Add, OpI32Sub, OpI32Mul, OpI32DivS, OpI32DivU, OpI32RemS, OpI32RemU,
		OpI32And, OpI32Or, OpI32Xor, OpI32Shl, OpI32ShrS, OpI32ShrU, OpI32Rotl, OpI32Rotr)
	register(effect(kinds(i64), i64), OpI64Clz, OpI64Ctz, OpI64Popcnt, OpI64Extend8S, OpI64Extend16S, OpI64Extend32S)
	register(effect(kinds(i64, i64), i64),
		OpI64Add, OpI64Sub, OpI64Mul, OpI64DivS, OpI64DivU, OpI64RemS, OpI64RemU,
		OpI64And, OpI64Or, OpI64Xor, OpI64Shl, OpI64ShrS, OpI64ShrU, OpI64Rotl, OpI64Rotr)
	register(effect(kinds(f32), f32),
		OpF32Abs, OpF32Neg, OpF32Ceil, OpF32Floor, OpF32Trunc, OpF32Nearest, OpF32Sqrt)
	register(effect(kinds(f32, f32), f32),
		OpF32Add, OpF32Sub, OpF32Mul, OpF32Div, OpF32Min, OpF32Max, OpF32Copysign)
	register(effect(kinds(f64), f64),
		OpF64Abs, OpF64Neg, OpF64Ceil, OpF64Floor, OpF64Trunc, OpF64Nearest, OpF64Sqrt)
	register(effect(kinds(f64, f64), f64),
		OpF64Add, OpF64Sub, OpF64Mul, OpF64Div, OpF64Min, OpF64Max, OpF64Copysign)

	// conversions
	register(effect(kinds(i64), i32), OpI32WrapI64)
	register(effect(kinds(f32), i32), OpI32TruncF32S, OpI32TruncF32U, OpI32ReinterpretF32)
	register(effect(kinds(f64), i32), OpI32TruncF64S, OpI32TruncF64U)
	register(effect(kinds(i32), i64), OpI64ExtendI32S, OpI64ExtendI32U)
	register(effect(kinds(f32), i64), OpI64TruncF32S, OpI64TruncF32U)
	register(effect(kinds(f64), i64), OpI64TruncF64S, OpI64TruncF64U, OpI64ReinterpretF64)
	register(effect(kinds(i32), f32), OpF32ConvertI32S, OpF32ConvertI32U, OpF32ReinterpretI32)
	register(effect(kinds(i64), f32), OpF32ConvertI64S, OpF32ConvertI64U)
	register(effect(kinds(f64), f32), OpF32DemoteF64)
	register(effect(kinds(i32), f64), OpF64ConvertI32S, OpF64ConvertI32U)
	register(effect(kinds(i64), f64), OpF64ConvertI64S, OpF64ConvertI64U, OpF64ReinterpretI64)
	register(effect(kinds(f32), f64), OpF64PromoteF32)

	// memory
	register(effect(kinds(i32), i32), OpI32Load, OpI32Load8S, OpI32Load8U, OpI32Load16S, OpI32Load16U)
	register(effect(kinds(i32), i64),
		OpI64Load, OpI64Load8S, OpI64Load8U, OpI64Load16S, OpI64Load16U, OpI64Load32S, OpI64Load32U)
	register(effect(kinds(i32), f32), OpF32Load)
	register(effect(kinds(i32), f64), OpF64Load)
	register(effect(kinds(i32, i32)), OpI32Store, OpI32Store8, OpI32Store16)
	register(effect(kinds(i32, i64)), OpI64Store, OpI64Store8, OpI64Store16, OpI64Store32)
	register(effect(kinds(i32, f32)), OpF32Store)
	register(effect(kinds(i32, f64)), OpF64Store)
	register(effect(nil, i32), OpMemorySize)
	register(effect(kinds(i32), i32), OpMemoryGrow)
}

var miscEffects = map[uint32]*StackEffect{
	MiscI32TruncSatF32S: effect(kinds(f32), i32),
	MiscI32TruncSatF32U: effect(kinds(f32), i32),
	MiscI32TruncSatF64S: effect(kinds(f64), i32),
	MiscI32TruncSatF64U: effect(kinds(f64), i32),
	MiscI64TruncSatF32S: effect(kinds(f32), i64),
	MiscI64TruncSatF32U: effect(kinds(f32), i64),
	MiscI64TruncSatF64S: effect(kinds(f64), i64),
	MiscI64TruncSatF64U: effect(kinds(f64), i64),
	MiscMemoryInit:      effect(kinds(i32, i32, i32)),
	MiscDataDrop:        effect(nil),
	MiscMemoryCopy:      effect(kinds(i32, i32, i32)),
	MiscMemoryFill:      effect(kinds(i32, i32, i32)),
	MiscTableInit:       effect(kinds(i32, i32, i32)),
	MiscElemDrop:        effect(nil),
	MiscTableCopy:       effect(kinds(i32, i32, i32)),
	MiscTableSize:       effect(nil, i32),
}

// StackEffectOf returns the fixed stack effect of instr, or nil when the effect
// depends on context (control flow, calls, locals, globals, drop, select).
func StackEffectOf(instr Instruction) *StackEffect {
	if instr.Opcode == OpPrefixMisc {
		imm, ok := instr.Imm.(MiscImm)
		if !ok {
			return nil
		}
		return miscEffects[imm.SubOpcode]
	}
	return stackEffects[instr.Opcode]
}

// MemoryAccessWidth returns the number of bytes a load or store touches, or 0
// for non-memory-access opcodes.
func MemoryAccessWidth(op byte) uint32 {
	switch op {
	case OpI32Load8S, OpI32Load8U, OpI64Load8S, OpI64Load8U, OpI32Store8, OpI64Store8:
		return 1
	case OpI32Load16S, OpI32Load16U, OpI64Load16S, OpI64Load16U, OpI32Store16, OpI64Store16:
		return 2
	case OpI32Load, OpF32Load, OpI64Load32S, OpI64Load32U, OpI32Store, OpF32Store, OpI64Store32:
		return 4
	case OpI64Load, OpF64Load, OpI64Store, OpF64Store:
		return 8
	}
	return 0
}

// UsesMemory reports whether instr requires a memory to be defined.
func UsesMemory(instr Instruction) bool {
	if MemoryAccessWidth(instr.Opcode) != 0 || instr.Opcode == OpMemorySize || instr.Opcode == OpMemoryGrow {
		return true
	}
	if instr.Opcode == OpPrefixMisc {
		if imm, ok := instr.Imm.(MiscImm); ok {
			switch imm.SubOpcode {
			case MiscMemoryInit, MiscMemoryCopy, MiscMemoryFill:
				return true
			}
		}
	}
	return false
}

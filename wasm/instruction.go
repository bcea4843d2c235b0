package wasm

import (
	"errors"
	"fmt"
	"math"

	"github.com/wippyai/wasm-compiler/wasm/internal/binary"
)

// Opcode constants are defined in constants.go

// Instruction represents a decoded WebAssembly instruction.
// Imm holds one of the *Imm records below, or nil for instructions without immediates.
type Instruction struct {
	Imm    any
	Opcode byte
}

// BlockImm holds the block type for block, loop, and if instructions.
// Negative values are the single-byte forms (BlockTypeVoid, BlockTypeI32, ...),
// non-negative values index the type section.
type BlockImm struct {
	Type int32
}

// BranchImm holds the label index for br and br_if instructions.
type BranchImm struct {
	LabelIdx uint32
}

// BrTableImm holds the label table for br_table instruction.
type BrTableImm struct {
	Labels  []uint32
	Default uint32
}

// CallImm holds the function index for call instruction.
type CallImm struct {
	FuncIdx uint32
}

// CallIndirectImm holds type and table indices for call_indirect instruction.
type CallIndirectImm struct {
	TypeIdx  uint32
	TableIdx uint32
}

// LocalImm holds the local index for local.get, local.set, local.tee.
type LocalImm struct {
	LocalIdx uint32
}

// GlobalImm holds the global index for global.get and global.set.
type GlobalImm struct {
	GlobalIdx uint32
}

// MemoryImm holds memory access parameters for load and store instructions.
// Align is the log2 of the declared alignment.
type MemoryImm struct {
	Align  uint32
	Offset uint32
}

// I32Imm holds the constant value for i32.const instruction.
type I32Imm struct {
	Value int32
}

// I64Imm holds the constant value for i64.const instruction.
type I64Imm struct {
	Value int64
}

// F32Imm holds the raw bits of an f32.const so NaN payloads survive re-encoding.
type F32Imm struct {
	Bits uint32
}

// Value returns the constant as a float32.
func (i F32Imm) Value() float32 { return math.Float32frombits(i.Bits) }

// F64Imm holds the raw bits of an f64.const.
type F64Imm struct {
	Bits uint64
}

// Value returns the constant as a float64.
func (i F64Imm) Value() float64 { return math.Float64frombits(i.Bits) }

// MiscImm holds the sub-opcode and index operands for 0xFC prefix instructions.
// Reserved memory index bytes are not stored.
type MiscImm struct {
	Operands  []uint32
	SubOpcode uint32
}

// GetCallTarget returns the call target if this is a call instruction
func (i Instruction) GetCallTarget() (uint32, bool) {
	if i.Opcode == OpCall {
		if imm, ok := i.Imm.(CallImm); ok {
			return imm.FuncIdx, true
		}
	}
	return 0, false
}

// IsIndirectCall returns true if this is a call_indirect instruction
func (i Instruction) IsIndirectCall() bool {
	return i.Opcode == OpCallIndirect
}

var errUnknownOpcode = errors.New("unknown opcode")

// DecodeInstructions decodes a sequence of instructions from raw bytes
func DecodeInstructions(code []byte) ([]Instruction, error) {
	return decodeInstructions(binary.NewReader(code, 0))
}

func decodeInstructions(r *binary.Reader) ([]Instruction, error) {
	// roughly 2 bytes per instruction on average
	instrs := make([]Instruction, 0, r.Len()/2)
	for r.Len() > 0 {
		instr, err := decodeInstruction(r)
		if err != nil {
			return nil, r.WrapError("instruction", err)
		}
		instrs = append(instrs, instr)
	}
	return instrs, nil
}

// decodeConstExpr reads instructions up to and excluding the terminating end.
func decodeConstExpr(r *binary.Reader) ([]Instruction, error) {
	var instrs []Instruction
	for {
		instr, err := decodeInstruction(r)
		if err != nil {
			return nil, r.WrapError("constant expression", err)
		}
		if instr.Opcode == OpEnd {
			return instrs, nil
		}
		instrs = append(instrs, instr)
	}
}

func decodeInstruction(r *binary.Reader) (Instruction, error) {
	op, err := r.ReadByte()
	if err != nil {
		return Instruction{}, err
	}
	instr := Instruction{Opcode: op}

	switch op {
	case OpBlock, OpLoop, OpIf:
		bt, err := r.ReadS33()
		if err != nil {
			return instr, err
		}
		if bt < 0 {
			switch int32(bt) {
			case BlockTypeVoid, BlockTypeI32, BlockTypeI64, BlockTypeF32, BlockTypeF64:
			default:
				return instr, fmt.Errorf("invalid block type %d", bt)
			}
		} else if bt > math.MaxInt32 {
			return instr, fmt.Errorf("block type index %d too large", bt)
		}
		instr.Imm = BlockImm{Type: int32(bt)}

	case OpBr, OpBrIf:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = BranchImm{LabelIdx: idx}

	case OpBrTable:
		count, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		if int(count) > r.Len() {
			return instr, binary.ErrTruncated
		}
		var labels []uint32
		if count > 0 {
			labels = make([]uint32, count)
		}
		for i := range labels {
			if labels[i], err = r.ReadU32(); err != nil {
				return instr, err
			}
		}
		def, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = BrTableImm{Labels: labels, Default: def}

	case OpCall:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = CallImm{FuncIdx: idx}

	case OpCallIndirect:
		typeIdx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		tableIdx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = CallIndirectImm{TypeIdx: typeIdx, TableIdx: tableIdx}

	case OpLocalGet, OpLocalSet, OpLocalTee:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = LocalImm{LocalIdx: idx}

	case OpGlobalGet, OpGlobalSet:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = GlobalImm{GlobalIdx: idx}

	case OpMemorySize, OpMemoryGrow:
		if err := readReserved(r); err != nil {
			return instr, err
		}

	case OpI32Const:
		v, err := r.ReadS32()
		if err != nil {
			return instr, err
		}
		instr.Imm = I32Imm{Value: v}

	case OpI64Const:
		v, err := r.ReadS64()
		if err != nil {
			return instr, err
		}
		instr.Imm = I64Imm{Value: v}

	case OpF32Const:
		v, err := r.ReadU32LE()
		if err != nil {
			return instr, err
		}
		instr.Imm = F32Imm{Bits: v}

	case OpF64Const:
		v, err := r.ReadU64LE()
		if err != nil {
			return instr, err
		}
		instr.Imm = F64Imm{Bits: v}

	case OpPrefixMisc:
		imm, err := readMiscImm(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = imm

	default:
		switch {
		case op >= OpI32Load && op <= OpI64Store32:
			align, err := r.ReadU32()
			if err != nil {
				return instr, err
			}
			offset, err := r.ReadU32()
			if err != nil {
				return instr, err
			}
			instr.Imm = MemoryImm{Align: align, Offset: offset}
		case op >= OpI32Eqz && op <= OpI64Extend32S:
		case op == OpUnreachable, op == OpNop, op == OpElse, op == OpEnd,
			op == OpReturn, op == OpDrop, op == OpSelect:
		default:
			return instr, fmt.Errorf("%w 0x%02x", errUnknownOpcode, op)
		}
	}
	return instr, nil
}

func readMiscImm(r *binary.Reader) (MiscImm, error) {
	sub, err := r.ReadU32()
	if err != nil {
		return MiscImm{}, err
	}
	imm := MiscImm{SubOpcode: sub}
	switch sub {
	case MiscI32TruncSatF32S, MiscI32TruncSatF32U, MiscI32TruncSatF64S, MiscI32TruncSatF64U,
		MiscI64TruncSatF32S, MiscI64TruncSatF32U, MiscI64TruncSatF64S, MiscI64TruncSatF64U:
	case MiscMemoryInit:
		idx, err := r.ReadU32()
		if err != nil {
			return imm, err
		}
		imm.Operands = []uint32{idx}
		err = readReserved(r)
		return imm, err
	case MiscDataDrop, MiscElemDrop, MiscTableSize:
		idx, err := r.ReadU32()
		if err != nil {
			return imm, err
		}
		imm.Operands = []uint32{idx}
	case MiscMemoryCopy:
		if err := readReserved(r); err != nil {
			return imm, err
		}
		return imm, readReserved(r)
	case MiscMemoryFill:
		return imm, readReserved(r)
	case MiscTableInit, MiscTableCopy:
		a, err := r.ReadU32()
		if err != nil {
			return imm, err
		}
		b, err := r.ReadU32()
		if err != nil {
			return imm, err
		}
		imm.Operands = []uint32{a, b}
	default:
		return imm, fmt.Errorf("%w 0xfc %d", errUnknownOpcode, sub)
	}
	return imm, nil
}

func readReserved(r *binary.Reader) error {
	b, err := r.ReadByte()
	if err != nil {
		return err
	}
	if b != 0 {
		return fmt.Errorf("reserved byte must be zero, got 0x%02x", b)
	}
	return nil
}

// EncodeInstructions encodes instructions to bytes
func EncodeInstructions(instrs []Instruction) []byte {
	w := binary.NewWriter()
	encodeInstructions(w, instrs)
	return w.Bytes()
}

func encodeInstructions(w *binary.Writer, instrs []Instruction) {
	for i := range instrs {
		encodeInstruction(w, &instrs[i])
	}
}

func encodeConstExpr(w *binary.Writer, expr []Instruction) {
	encodeInstructions(w, expr)
	w.Byte(OpEnd)
}

// encodeInstruction writes a single instruction. A missing or mistyped
// immediate is written as its zero value; Validate rejects such modules.
func encodeInstruction(w *binary.Writer, instr *Instruction) {
	w.Byte(instr.Opcode)

	switch instr.Opcode {
	case OpBlock, OpLoop, OpIf:
		imm, _ := instr.Imm.(BlockImm)
		w.WriteS64(int64(imm.Type))
	case OpBr, OpBrIf:
		imm, _ := instr.Imm.(BranchImm)
		w.WriteU32(imm.LabelIdx)
	case OpBrTable:
		imm, _ := instr.Imm.(BrTableImm)
		w.WriteU32(uint32(len(imm.Labels)))
		for _, l := range imm.Labels {
			w.WriteU32(l)
		}
		w.WriteU32(imm.Default)
	case OpCall:
		imm, _ := instr.Imm.(CallImm)
		w.WriteU32(imm.FuncIdx)
	case OpCallIndirect:
		imm, _ := instr.Imm.(CallIndirectImm)
		w.WriteU32(imm.TypeIdx)
		w.WriteU32(imm.TableIdx)
	case OpLocalGet, OpLocalSet, OpLocalTee:
		imm, _ := instr.Imm.(LocalImm)
		w.WriteU32(imm.LocalIdx)
	case OpGlobalGet, OpGlobalSet:
		imm, _ := instr.Imm.(GlobalImm)
		w.WriteU32(imm.GlobalIdx)
	case OpMemorySize, OpMemoryGrow:
		w.Byte(0x00)
	case OpI32Const:
		imm, _ := instr.Imm.(I32Imm)
		w.WriteS32(imm.Value)
	case OpI64Const:
		imm, _ := instr.Imm.(I64Imm)
		w.WriteS64(imm.Value)
	case OpF32Const:
		imm, _ := instr.Imm.(F32Imm)
		w.WriteU32LE(imm.Bits)
	case OpF64Const:
		imm, _ := instr.Imm.(F64Imm)
		w.WriteU64LE(imm.Bits)
	case OpPrefixMisc:
		imm, _ := instr.Imm.(MiscImm)
		writeMiscImm(w, imm)
	default:
		if instr.Opcode >= OpI32Load && instr.Opcode <= OpI64Store32 {
			imm, _ := instr.Imm.(MemoryImm)
			w.WriteU32(imm.Align)
			w.WriteU32(imm.Offset)
		}
	}
}

func writeMiscImm(w *binary.Writer, imm MiscImm) {
	w.WriteU32(imm.SubOpcode)
	operand := func(i int) uint32 {
		if i < len(imm.Operands) {
			return imm.Operands[i]
		}
		return 0
	}
	switch imm.SubOpcode {
	case MiscMemoryInit:
		w.WriteU32(operand(0))
		w.Byte(0x00)
	case MiscDataDrop, MiscElemDrop, MiscTableSize:
		w.WriteU32(operand(0))
	case MiscMemoryCopy:
		w.Byte(0x00)
		w.Byte(0x00)
	case MiscMemoryFill:
		w.Byte(0x00)
	case MiscTableInit, MiscTableCopy:
		w.WriteU32(operand(0))
		w.WriteU32(operand(1))
	}
}

package wasm

import (
	"fmt"

	"github.com/wippyai/wasm-compiler/errors"
)

// valTypeUnknown stands for any type on a polymorphic stack.
const valTypeUnknown ValType = 0

type ctrlFrame struct {
	params      []ValType
	results     []ValType
	height      int
	opcode      byte
	unreachable bool
}

// labelTypes returns the values a branch to this frame carries.
func (f *ctrlFrame) labelTypes() []ValType {
	if f.opcode == OpLoop {
		return f.params
	}
	return f.results
}

// funcValidator type-checks one function body against an abstract operand stack.
type funcValidator struct {
	m       *Module
	locals  []ValType
	results []ValType
	vals    []ValType
	ctrls   []ctrlFrame
	funcIdx int
	pc      int
}

func (m *Module) validateFunction(codeIdx int) error {
	funcIdx := m.NumImportedFuncs() + codeIdx
	ft := m.GetFuncType(uint32(funcIdx))
	if ft == nil {
		return invalid(errors.KindUnknownType, []string{fmt.Sprintf("func[%d]", funcIdx)}, "function has no type")
	}
	body := &m.Code[codeIdx]

	total := uint64(len(ft.Params)) + body.NumLocals()
	if total > MaxLocals {
		return invalid(errors.KindInvalidData, []string{fmt.Sprintf("func[%d]", funcIdx)}, "too many locals: %d", total)
	}
	locals := make([]ValType, 0, total)
	locals = append(locals, ft.Params...)
	for _, l := range body.Locals {
		if !l.ValType.Valid() {
			return invalid(errors.KindInvalidData, []string{fmt.Sprintf("func[%d]", funcIdx)}, "invalid local type 0x%02x", byte(l.ValType))
		}
		for j := uint32(0); j < l.Count; j++ {
			locals = append(locals, l.ValType)
		}
	}

	v := &funcValidator{
		m:       m,
		funcIdx: funcIdx,
		locals:  locals,
		results: ft.Results,
	}
	v.pushCtrl(OpBlock, nil, ft.Results)

	for pc, instr := range body.Body {
		v.pc = pc
		if len(v.ctrls) == 0 {
			return v.fail(errors.KindInvalidData, "instructions after final end")
		}
		if err := v.step(instr); err != nil {
			return err
		}
	}
	if len(v.ctrls) != 0 {
		v.pc = len(body.Body)
		return v.fail(errors.KindInvalidData, "function body not terminated by end")
	}
	return nil
}

func (v *funcValidator) fail(kind errors.Kind, format string, args ...any) error {
	return invalid(kind, []string{fmt.Sprintf("func[%d]", v.funcIdx), fmt.Sprintf("instr[%d]", v.pc)}, format, args...)
}

func (v *funcValidator) pushVal(t ValType) {
	v.vals = append(v.vals, t)
}

func (v *funcValidator) pushVals(ts []ValType) {
	v.vals = append(v.vals, ts...)
}

func (v *funcValidator) popVal() (ValType, error) {
	top := &v.ctrls[len(v.ctrls)-1]
	if len(v.vals) == top.height {
		if top.unreachable {
			return valTypeUnknown, nil
		}
		return 0, v.fail(errors.KindTypeMismatch, "stack underflow")
	}
	t := v.vals[len(v.vals)-1]
	v.vals = v.vals[:len(v.vals)-1]
	return t, nil
}

// popExpect pops one value that must be want. The returned type is the actual
// one, which is valTypeUnknown in unreachable code.
func (v *funcValidator) popExpect(want ValType) (ValType, error) {
	got, err := v.popVal()
	if err != nil {
		return 0, fmt.Errorf("expected %s: %w", want, err)
	}
	if got != want && got != valTypeUnknown && want != valTypeUnknown {
		return 0, v.fail(errors.KindTypeMismatch, "type mismatch: expected %s, got %s", want, got)
	}
	return got, nil
}

func (v *funcValidator) popVals(ts []ValType) ([]ValType, error) {
	popped := make([]ValType, len(ts))
	for i := len(ts) - 1; i >= 0; i-- {
		t, err := v.popExpect(ts[i])
		if err != nil {
			return nil, err
		}
		popped[i] = t
	}
	return popped, nil
}

func (v *funcValidator) pushCtrl(op byte, params, results []ValType) {
	v.ctrls = append(v.ctrls, ctrlFrame{
		opcode:  op,
		params:  params,
		results: results,
		height:  len(v.vals),
	})
	v.pushVals(params)
}

func (v *funcValidator) popCtrl() (ctrlFrame, error) {
	frame := v.ctrls[len(v.ctrls)-1]
	avail := len(v.vals) - frame.height
	if !frame.unreachable && avail != len(frame.results) {
		if len(v.ctrls) == 1 {
			return frame, v.fail(errors.KindReturnArityMismatch,
				"function returns %d value(s), %d on stack", len(frame.results), avail)
		}
		return frame, v.fail(errors.KindTypeMismatch,
			"block expects %d result value(s), %d on stack", len(frame.results), avail)
	}
	if _, err := v.popVals(frame.results); err != nil {
		return frame, err
	}
	if len(v.vals) != frame.height {
		return frame, v.fail(errors.KindTypeMismatch, "%d extra value(s) at end of block", len(v.vals)-frame.height)
	}
	v.ctrls = v.ctrls[:len(v.ctrls)-1]
	return frame, nil
}

func (v *funcValidator) setUnreachable() {
	top := &v.ctrls[len(v.ctrls)-1]
	v.vals = v.vals[:top.height]
	top.unreachable = true
}

func (v *funcValidator) label(depth uint32) (*ctrlFrame, error) {
	if int(depth) >= len(v.ctrls) {
		return nil, v.fail(errors.KindUnknownLabel, "unknown label %d (depth %d)", depth, len(v.ctrls))
	}
	return &v.ctrls[len(v.ctrls)-1-int(depth)], nil
}

func immOf[T any](v *funcValidator, instr Instruction) (T, error) {
	imm, ok := instr.Imm.(T)
	if !ok {
		var zero T
		return zero, v.fail(errors.KindInvalidData, "opcode 0x%02x has immediate %T, want %T", instr.Opcode, instr.Imm, zero)
	}
	return imm, nil
}

func (v *funcValidator) step(instr Instruction) error {
	if UsesMemory(instr) && v.m.NumMemories() == 0 {
		return v.fail(errors.KindUndefinedMemory, "memory instruction 0x%02x without a memory", instr.Opcode)
	}

	switch instr.Opcode {
	case OpUnreachable:
		v.setUnreachable()

	case OpBlock, OpLoop:
		imm, err := immOf[BlockImm](v, instr)
		if err != nil {
			return err
		}
		params, results, ok := v.m.BlockType(imm.Type)
		if !ok {
			return v.fail(errors.KindUnknownType, "invalid block type %d", imm.Type)
		}
		if _, err := v.popVals(params); err != nil {
			return err
		}
		v.pushCtrl(instr.Opcode, params, results)

	case OpIf:
		imm, err := immOf[BlockImm](v, instr)
		if err != nil {
			return err
		}
		params, results, ok := v.m.BlockType(imm.Type)
		if !ok {
			return v.fail(errors.KindUnknownType, "invalid block type %d", imm.Type)
		}
		if _, err := v.popExpect(ValI32); err != nil {
			return err
		}
		if _, err := v.popVals(params); err != nil {
			return err
		}
		v.pushCtrl(OpIf, params, results)

	case OpElse:
		if v.ctrls[len(v.ctrls)-1].opcode != OpIf {
			return v.fail(errors.KindInvalidData, "else without matching if")
		}
		frame, err := v.popCtrl()
		if err != nil {
			return err
		}
		v.pushCtrl(OpElse, frame.params, frame.results)

	case OpEnd:
		top := v.ctrls[len(v.ctrls)-1]
		if top.opcode == OpIf && !valTypesEqual(top.params, top.results) {
			return v.fail(errors.KindTypeMismatch, "if without else must not produce results, has %d", len(top.results))
		}
		frame, err := v.popCtrl()
		if err != nil {
			return err
		}
		v.pushVals(frame.results)

	case OpBr:
		imm, err := immOf[BranchImm](v, instr)
		if err != nil {
			return err
		}
		target, err := v.label(imm.LabelIdx)
		if err != nil {
			return err
		}
		if _, err := v.popVals(target.labelTypes()); err != nil {
			return err
		}
		v.setUnreachable()

	case OpBrIf:
		imm, err := immOf[BranchImm](v, instr)
		if err != nil {
			return err
		}
		target, err := v.label(imm.LabelIdx)
		if err != nil {
			return err
		}
		if _, err := v.popExpect(ValI32); err != nil {
			return err
		}
		types := target.labelTypes()
		if _, err := v.popVals(types); err != nil {
			return err
		}
		v.pushVals(types)

	case OpBrTable:
		return v.brTable(instr)

	case OpReturn:
		top := &v.ctrls[len(v.ctrls)-1]
		if avail := len(v.vals) - top.height; !top.unreachable && avail < len(v.results) {
			return v.fail(errors.KindReturnArityMismatch, "return needs %d value(s), %d on stack", len(v.results), avail)
		}
		if _, err := v.popVals(v.results); err != nil {
			return err
		}
		v.setUnreachable()

	case OpCall:
		imm, err := immOf[CallImm](v, instr)
		if err != nil {
			return err
		}
		ft := v.m.GetFuncType(imm.FuncIdx)
		if ft == nil {
			return v.fail(errors.KindUnknownFunction, "call to unknown function %d", imm.FuncIdx)
		}
		if _, err := v.popVals(ft.Params); err != nil {
			return err
		}
		v.pushVals(ft.Results)

	case OpCallIndirect:
		imm, err := immOf[CallIndirectImm](v, instr)
		if err != nil {
			return err
		}
		if int(imm.TableIdx) >= v.m.NumTables() {
			return v.fail(errors.KindUnknownTable, "call_indirect on unknown table %d", imm.TableIdx)
		}
		ft := v.m.TypeAt(imm.TypeIdx)
		if ft == nil {
			return v.fail(errors.KindUnknownType, "call_indirect with unknown type %d", imm.TypeIdx)
		}
		if _, err := v.popExpect(ValI32); err != nil {
			return err
		}
		if _, err := v.popVals(ft.Params); err != nil {
			return err
		}
		v.pushVals(ft.Results)

	case OpDrop:
		if _, err := v.popVal(); err != nil {
			return err
		}

	case OpSelect:
		if _, err := v.popExpect(ValI32); err != nil {
			return err
		}
		t1, err := v.popVal()
		if err != nil {
			return err
		}
		t2, err := v.popVal()
		if err != nil {
			return err
		}
		if t1 != t2 && t1 != valTypeUnknown && t2 != valTypeUnknown {
			return v.fail(errors.KindTypeMismatch, "select operands differ: %s and %s", t2, t1)
		}
		if t1 == valTypeUnknown {
			t1 = t2
		}
		v.pushVal(t1)

	case OpLocalGet, OpLocalSet, OpLocalTee:
		imm, err := immOf[LocalImm](v, instr)
		if err != nil {
			return err
		}
		if int(imm.LocalIdx) >= len(v.locals) {
			return v.fail(errors.KindUnknownLocal, "unknown local %d (have %d)", imm.LocalIdx, len(v.locals))
		}
		t := v.locals[imm.LocalIdx]
		switch instr.Opcode {
		case OpLocalGet:
			v.pushVal(t)
		case OpLocalSet:
			if _, err := v.popExpect(t); err != nil {
				return err
			}
		case OpLocalTee:
			if _, err := v.popExpect(t); err != nil {
				return err
			}
			v.pushVal(t)
		}

	case OpGlobalGet, OpGlobalSet:
		imm, err := immOf[GlobalImm](v, instr)
		if err != nil {
			return err
		}
		gt := v.m.GlobalTypeAt(imm.GlobalIdx)
		if gt == nil {
			return v.fail(errors.KindUnknownGlobal, "unknown global %d", imm.GlobalIdx)
		}
		if instr.Opcode == OpGlobalGet {
			v.pushVal(gt.ValType)
			break
		}
		if !gt.Mutable {
			return v.fail(errors.KindImmutableGlobal, "global.set on immutable global %d", imm.GlobalIdx)
		}
		if _, err := v.popExpect(gt.ValType); err != nil {
			return err
		}

	case OpPrefixMisc:
		imm, err := immOf[MiscImm](v, instr)
		if err != nil {
			return err
		}
		if err := v.checkMisc(imm); err != nil {
			return err
		}
		return v.applyEffect(instr)

	default:
		if width := MemoryAccessWidth(instr.Opcode); width != 0 {
			imm, err := immOf[MemoryImm](v, instr)
			if err != nil {
				return err
			}
			if imm.Align >= 32 || uint64(1)<<imm.Align > uint64(width) {
				return v.fail(errors.KindInvalidAlignment, "alignment 2^%d exceeds natural width %d", imm.Align, width)
			}
		}
		if err := v.checkConstImm(instr); err != nil {
			return err
		}
		return v.applyEffect(instr)
	}
	return nil
}

func (v *funcValidator) applyEffect(instr Instruction) error {
	eff := StackEffectOf(instr)
	if eff == nil {
		return v.fail(errors.KindInvalidData, "unknown opcode 0x%02x", instr.Opcode)
	}
	if _, err := v.popVals(eff.Pops); err != nil {
		return err
	}
	v.pushVals(eff.Pushes)
	return nil
}

func (v *funcValidator) checkConstImm(instr Instruction) error {
	var err error
	switch instr.Opcode {
	case OpI32Const:
		_, err = immOf[I32Imm](v, instr)
	case OpI64Const:
		_, err = immOf[I64Imm](v, instr)
	case OpF32Const:
		_, err = immOf[F32Imm](v, instr)
	case OpF64Const:
		_, err = immOf[F64Imm](v, instr)
	}
	return err
}

func (v *funcValidator) brTable(instr Instruction) error {
	imm, err := immOf[BrTableImm](v, instr)
	if err != nil {
		return err
	}
	if _, err := v.popExpect(ValI32); err != nil {
		return err
	}
	def, err := v.label(imm.Default)
	if err != nil {
		return err
	}
	arity := len(def.labelTypes())
	for _, l := range imm.Labels {
		target, err := v.label(l)
		if err != nil {
			return err
		}
		types := target.labelTypes()
		if len(types) != arity {
			return v.fail(errors.KindTypeMismatch, "br_table targets have different arities: %d and %d", arity, len(types))
		}
		popped, err := v.popVals(types)
		if err != nil {
			return err
		}
		v.pushVals(popped)
	}
	if _, err := v.popVals(def.labelTypes()); err != nil {
		return err
	}
	v.setUnreachable()
	return nil
}

func (v *funcValidator) checkMisc(imm MiscImm) error {
	operand := func(i int) (uint32, error) {
		if i >= len(imm.Operands) {
			return 0, v.fail(errors.KindInvalidData, "0xfc %d: missing operand %d", imm.SubOpcode, i)
		}
		return imm.Operands[i], nil
	}
	checkTable := func(i int) error {
		idx, err := operand(i)
		if err != nil {
			return err
		}
		if int(idx) >= v.m.NumTables() {
			return v.fail(errors.KindUnknownTable, "unknown table %d", idx)
		}
		return nil
	}
	checkElem := func(i int) error {
		idx, err := operand(i)
		if err != nil {
			return err
		}
		if int(idx) >= len(v.m.Elements) {
			return v.fail(errors.KindUnknownElement, "unknown element segment %d", idx)
		}
		return nil
	}

	switch imm.SubOpcode {
	case MiscMemoryInit, MiscDataDrop:
		idx, err := operand(0)
		if err != nil {
			return err
		}
		if v.m.DataCount == nil {
			return v.fail(errors.KindUnknownData, "data count section required")
		}
		if idx >= *v.m.DataCount {
			return v.fail(errors.KindUnknownData, "unknown data segment %d", idx)
		}
	case MiscTableInit:
		if err := checkElem(0); err != nil {
			return err
		}
		return checkTable(1)
	case MiscElemDrop:
		return checkElem(0)
	case MiscTableCopy:
		if err := checkTable(0); err != nil {
			return err
		}
		return checkTable(1)
	case MiscTableSize:
		return checkTable(0)
	}
	return nil
}

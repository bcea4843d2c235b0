package engine

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-compiler/errors"
	"github.com/wippyai/wasm-compiler/wasm"
)

// thunk executes one compiled step. It returns -1 to continue with the next
// step, or the relative depth of the label being branched to.
type thunk func(fr *frame) int

// returnDepth escapes every enclosing block.
const returnDepth = math.MaxInt32

// CompiledFunction is the instance-independent compiled form of one defined
// function. It is immutable and may be shared between instances.
type CompiledFunction struct {
	Type wasm.FuncType
	body []thunk
	// Index is the function's position in the module's function index space.
	Index uint32
	// NumLocals counts parameters and declared locals.
	NumLocals int
	// FrameSize is NumLocals plus the maximum operand stack height.
	FrameSize int
	// Instructions is the number of source instructions compiled.
	Instructions int
}

// Compile translates every function body of m. The module must have passed
// (*wasm.Module).Validate; Compile relies on validation for stack typing and
// index ranges.
func Compile(m *wasm.Module) ([]*CompiledFunction, error) {
	out := make([]*CompiledFunction, len(m.Code))
	imported := uint32(m.NumImportedFuncs())
	for i := range m.Code {
		cf, err := compileFunction(m, imported+uint32(i), &m.Code[i])
		if err != nil {
			return nil, err
		}
		out[i] = cf
		Logger().Debug("function compiled",
			zap.Uint32("index", cf.Index),
			zap.Int("frame_size", cf.FrameSize),
			zap.Int("instructions", cf.Instructions))
	}
	return out, nil
}

// label describes a branch target: where its values go and how many.
type label struct {
	base  int
	arity int
}

// compiler tracks the static operand stack height; height h lives in
// register numLocals+h.
type compiler struct {
	m         *wasm.Module
	body      []wasm.Instruction
	labels    []label
	funcIdx   uint32
	pc        int
	numLocals int
	h         int
	maxH      int
}

func compileFunction(m *wasm.Module, funcIdx uint32, body *wasm.FuncBody) (*CompiledFunction, error) {
	ft := m.GetFuncType(funcIdx)
	if ft == nil {
		return nil, errors.New(errors.PhaseCompile, errors.KindUnknownType).
			Path(fmt.Sprintf("func[%d]", funcIdx)).
			Detail("function has no type").
			Build()
	}
	c := &compiler{
		m:         m,
		body:      body.Body,
		funcIdx:   funcIdx,
		numLocals: len(ft.Params) + int(body.NumLocals()),
		labels:    []label{{base: 0, arity: len(ft.Results)}},
	}
	code, term, err := c.compileSeq()
	if err != nil {
		return nil, err
	}
	if term != wasm.OpEnd {
		return nil, c.fail(errors.KindInvalidData, "function body ends with 0x%02x", term)
	}
	return &CompiledFunction{
		Index:        funcIdx,
		Type:         *ft,
		NumLocals:    c.numLocals,
		FrameSize:    c.numLocals + c.maxH,
		Instructions: len(body.Body),
		body:         code,
	}, nil
}

func (c *compiler) fail(kind errors.Kind, format string, args ...any) error {
	return errors.New(errors.PhaseCompile, kind).
		Path(fmt.Sprintf("func[%d]", c.funcIdx), fmt.Sprintf("instr[%d]", c.pc-1)).
		Detail(format, args...).
		Build()
}

func (c *compiler) slot(h int) int { return c.numLocals + h }

func (c *compiler) top() int { return c.slot(c.h - 1) }

func (c *compiler) push(n int) {
	c.setHeight(c.h + n)
}

func (c *compiler) pop(n int) {
	c.h -= n
}

func (c *compiler) setHeight(h int) {
	c.h = h
	if h > c.maxH {
		c.maxH = h
	}
}

// run executes a compiled sequence and returns the pending branch depth, or -1.
func run(code []thunk, fr *frame) int {
	for _, t := range code {
		if d := t(fr); d >= 0 {
			return d
		}
	}
	return -1
}

// compileSeq compiles instructions up to the else or end closing the current
// block and returns which one it was.
func (c *compiler) compileSeq() ([]thunk, byte, error) {
	var code []thunk
	for c.pc < len(c.body) {
		in := c.body[c.pc]
		c.pc++
		switch in.Opcode {
		case wasm.OpEnd, wasm.OpElse:
			return code, in.Opcode, nil
		}
		t, err := c.compileInstr(in)
		if err != nil {
			return nil, 0, err
		}
		if t != nil {
			code = append(code, t)
		}
		switch in.Opcode {
		case wasm.OpUnreachable, wasm.OpBr, wasm.OpBrTable, wasm.OpReturn:
			c.skipDead()
		}
	}
	return nil, 0, c.fail(errors.KindInvalidData, "unterminated block")
}

// skipDead advances past unreachable instructions to the else or end of the
// current block.
func (c *compiler) skipDead() {
	depth := 0
	for c.pc < len(c.body) {
		switch c.body[c.pc].Opcode {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			depth++
		case wasm.OpElse:
			if depth == 0 {
				return
			}
		case wasm.OpEnd:
			if depth == 0 {
				return
			}
			depth--
		}
		c.pc++
	}
}

func immOf[T any](c *compiler, in wasm.Instruction) (T, error) {
	imm, ok := in.Imm.(T)
	if !ok {
		var zero T
		return zero, c.fail(errors.KindInvalidData, "opcode 0x%02x has immediate %T, want %T", in.Opcode, in.Imm, zero)
	}
	return imm, nil
}

func (c *compiler) compileInstr(in wasm.Instruction) (thunk, error) {
	switch in.Opcode {
	case wasm.OpNop:
		return nil, nil

	case wasm.OpUnreachable:
		return func(*frame) int {
			panic(trap(errors.TrapUnreachableExecuted))
		}, nil

	case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
		return c.compileBlock(in)

	case wasm.OpBr:
		imm, err := immOf[wasm.BranchImm](c, in)
		if err != nil {
			return nil, err
		}
		return c.branch(imm.LabelIdx)

	case wasm.OpBrIf:
		imm, err := immOf[wasm.BranchImm](c, in)
		if err != nil {
			return nil, err
		}
		cond := c.top()
		c.pop(1)
		br, err := c.branch(imm.LabelIdx)
		if err != nil {
			return nil, err
		}
		return func(fr *frame) int {
			if uint32(fr.regs[cond]) == 0 {
				return -1
			}
			return br(fr)
		}, nil

	case wasm.OpBrTable:
		imm, err := immOf[wasm.BrTableImm](c, in)
		if err != nil {
			return nil, err
		}
		idx := c.top()
		c.pop(1)
		targets := make([]thunk, 0, len(imm.Labels)+1)
		for _, l := range append(append([]uint32(nil), imm.Labels...), imm.Default) {
			br, err := c.branch(l)
			if err != nil {
				return nil, err
			}
			targets = append(targets, br)
		}
		last := uint32(len(targets) - 1)
		return func(fr *frame) int {
			i := uint32(fr.regs[idx])
			if i > last {
				i = last
			}
			return targets[i](fr)
		}, nil

	case wasm.OpReturn:
		n := c.labels[0].arity
		src, dst := c.slot(c.h-n), c.slot(0)
		return func(fr *frame) int {
			if src != dst {
				copy(fr.regs[dst:dst+n], fr.regs[src:src+n])
			}
			return returnDepth
		}, nil

	case wasm.OpCall:
		imm, err := immOf[wasm.CallImm](c, in)
		if err != nil {
			return nil, err
		}
		ft := c.m.GetFuncType(imm.FuncIdx)
		if ft == nil {
			return nil, c.fail(errors.KindUnknownFunction, "call to unknown function %d", imm.FuncIdx)
		}
		return c.call(ft, func(fr *frame) *Function { return fr.inst.Funcs[imm.FuncIdx] }), nil

	case wasm.OpCallIndirect:
		imm, err := immOf[wasm.CallIndirectImm](c, in)
		if err != nil {
			return nil, err
		}
		ft := c.m.TypeAt(imm.TypeIdx)
		if ft == nil {
			return nil, c.fail(errors.KindUnknownType, "call_indirect with unknown type %d", imm.TypeIdx)
		}
		want := *ft
		idx := c.top()
		c.pop(1)
		return c.call(ft, func(fr *frame) *Function {
			return indirect(fr.inst.Table, uint32(fr.regs[idx]), want)
		}), nil

	case wasm.OpDrop:
		c.pop(1)
		return nil, nil

	case wasm.OpSelect:
		cond, b := c.slot(c.h-1), c.slot(c.h-2)
		a := c.slot(c.h - 3)
		c.pop(2)
		return func(fr *frame) int {
			r := fr.regs
			if uint32(r[cond]) == 0 {
				r[a] = r[b]
			}
			return -1
		}, nil

	case wasm.OpLocalGet, wasm.OpLocalSet, wasm.OpLocalTee:
		imm, err := immOf[wasm.LocalImm](c, in)
		if err != nil {
			return nil, err
		}
		return c.local(in.Opcode, int(imm.LocalIdx)), nil

	case wasm.OpGlobalGet:
		imm, err := immOf[wasm.GlobalImm](c, in)
		if err != nil {
			return nil, err
		}
		g, dst := imm.GlobalIdx, c.slot(c.h)
		c.push(1)
		return func(fr *frame) int {
			fr.regs[dst] = fr.inst.Globals[g].val
			return -1
		}, nil

	case wasm.OpGlobalSet:
		imm, err := immOf[wasm.GlobalImm](c, in)
		if err != nil {
			return nil, err
		}
		g, src := imm.GlobalIdx, c.top()
		c.pop(1)
		return func(fr *frame) int {
			fr.inst.Globals[g].val = fr.regs[src]
			return -1
		}, nil

	case wasm.OpI32Const, wasm.OpI64Const, wasm.OpF32Const, wasm.OpF64Const:
		raw, err := constValue(in)
		if err != nil {
			return nil, c.fail(errors.KindInvalidData, "%v", err)
		}
		dst := c.slot(c.h)
		c.push(1)
		return func(fr *frame) int {
			fr.regs[dst] = raw
			return -1
		}, nil

	case wasm.OpMemorySize:
		dst := c.slot(c.h)
		c.push(1)
		return memorySizeThunk(dst), nil

	case wasm.OpMemoryGrow:
		return memoryGrowThunk(c.top()), nil

	case wasm.OpPrefixMisc:
		imm, err := immOf[wasm.MiscImm](c, in)
		if err != nil {
			return nil, err
		}
		return c.compileMisc(imm)
	}

	if op := loadOps[in.Opcode]; op != nil {
		imm, err := immOf[wasm.MemoryImm](c, in)
		if err != nil {
			return nil, err
		}
		return loadThunk(c.top(), uint64(imm.Offset), op), nil
	}
	if op := storeOps[in.Opcode]; op != nil {
		imm, err := immOf[wasm.MemoryImm](c, in)
		if err != nil {
			return nil, err
		}
		a, v := c.slot(c.h-2), c.slot(c.h-1)
		c.pop(2)
		return storeThunk(a, v, uint64(imm.Offset), op), nil
	}
	if op := unaryOps[in.Opcode]; op != nil {
		return unaryThunk(c.top(), op), nil
	}
	if op := binaryOps[in.Opcode]; op != nil {
		a, b := c.slot(c.h-2), c.slot(c.h-1)
		c.pop(1)
		return binaryThunk(a, b, op), nil
	}
	return nil, c.fail(errors.KindUnsupportedInstruction, "opcode 0x%02x", in.Opcode)
}

func (c *compiler) compileMisc(imm wasm.MiscImm) (thunk, error) {
	if op, ok := satOps[imm.SubOpcode]; ok {
		return unaryThunk(c.top(), op), nil
	}
	switch imm.SubOpcode {
	case wasm.MiscMemoryInit, wasm.MiscMemoryCopy, wasm.MiscMemoryFill:
		a := c.slot(c.h - 3)
		c.pop(3)
		switch imm.SubOpcode {
		case wasm.MiscMemoryInit:
			if len(imm.Operands) < 1 {
				return nil, c.fail(errors.KindInvalidData, "memory.init without data index")
			}
			return memoryInitThunk(a, imm.Operands[0]), nil
		case wasm.MiscMemoryCopy:
			return memoryCopyThunk(a), nil
		default:
			return memoryFillThunk(a), nil
		}
	case wasm.MiscDataDrop:
		if len(imm.Operands) < 1 {
			return nil, c.fail(errors.KindInvalidData, "data.drop without data index")
		}
		return dataDropThunk(imm.Operands[0]), nil
	case wasm.MiscTableSize:
		dst := c.slot(c.h)
		c.push(1)
		return tableSizeThunk(dst), nil
	case wasm.MiscTableInit:
		return nil, c.fail(errors.KindUnsupportedInstruction, "table.init is not supported")
	case wasm.MiscElemDrop:
		return nil, c.fail(errors.KindUnsupportedInstruction, "elem.drop is not supported")
	case wasm.MiscTableCopy:
		return nil, c.fail(errors.KindUnsupportedInstruction, "table.copy is not supported")
	}
	return nil, c.fail(errors.KindUnsupportedInstruction, "0xfc %d", imm.SubOpcode)
}

func constValue(in wasm.Instruction) (uint64, error) {
	switch imm := in.Imm.(type) {
	case wasm.I32Imm:
		return EncodeI32(imm.Value), nil
	case wasm.I64Imm:
		return EncodeI64(imm.Value), nil
	case wasm.F32Imm:
		return uint64(imm.Bits), nil
	case wasm.F64Imm:
		return imm.Bits, nil
	}
	return 0, fmt.Errorf("constant 0x%02x has immediate %T", in.Opcode, in.Imm)
}

func (c *compiler) local(op byte, idx int) thunk {
	switch op {
	case wasm.OpLocalGet:
		dst := c.slot(c.h)
		c.push(1)
		return func(fr *frame) int {
			fr.regs[dst] = fr.regs[idx]
			return -1
		}
	case wasm.OpLocalSet:
		src := c.top()
		c.pop(1)
		return func(fr *frame) int {
			fr.regs[idx] = fr.regs[src]
			return -1
		}
	default:
		src := c.top()
		return func(fr *frame) int {
			fr.regs[idx] = fr.regs[src]
			return -1
		}
	}
}

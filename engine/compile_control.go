package engine

import (
	"github.com/wippyai/wasm-compiler/errors"
	"github.com/wippyai/wasm-compiler/wasm"
)

// exitBlock maps the depth a block body finished with to what the block
// reports to its parent: depth 0 targets this block and is consumed.
func exitBlock(d int) int {
	if d > 0 {
		return d - 1
	}
	return -1
}

func (c *compiler) compileBlock(in wasm.Instruction) (thunk, error) {
	imm, err := immOf[wasm.BlockImm](c, in)
	if err != nil {
		return nil, err
	}
	params, results, ok := c.m.BlockType(imm.Type)
	if !ok {
		return nil, c.fail(errors.KindUnknownType, "invalid block type %d", imm.Type)
	}

	var cond int
	if in.Opcode == wasm.OpIf {
		cond = c.top()
		c.pop(1)
	}
	entry := c.h - len(params)
	lbl := label{base: entry, arity: len(results)}
	if in.Opcode == wasm.OpLoop {
		lbl.arity = len(params)
	}

	c.labels = append(c.labels, lbl)
	body, term, err := c.compileSeq()
	if err != nil {
		return nil, err
	}
	var els []thunk
	if term == wasm.OpElse {
		c.h = entry + len(params)
		if els, term, err = c.compileSeq(); err != nil {
			return nil, err
		}
	}
	c.labels = c.labels[:len(c.labels)-1]
	if term != wasm.OpEnd {
		return nil, c.fail(errors.KindInvalidData, "block closed by 0x%02x", term)
	}
	c.setHeight(entry + len(results))

	switch in.Opcode {
	case wasm.OpLoop:
		return func(fr *frame) int {
			for {
				if d := run(body, fr); d != 0 {
					return exitBlock(d)
				}
			}
		}, nil
	case wasm.OpIf:
		return func(fr *frame) int {
			if uint32(fr.regs[cond]) != 0 {
				return exitBlock(run(body, fr))
			}
			return exitBlock(run(els, fr))
		}, nil
	default:
		return func(fr *frame) int {
			return exitBlock(run(body, fr))
		}, nil
	}
}

// branch returns a thunk that moves the target label's values into place
// and reports the branch depth. The stack height is left unchanged.
func (c *compiler) branch(depth uint32) (thunk, error) {
	if int(depth) >= len(c.labels) {
		return nil, c.fail(errors.KindUnknownLabel, "unknown label %d", depth)
	}
	target := c.labels[len(c.labels)-1-int(depth)]
	n := target.arity
	src, dst := c.slot(c.h-n), c.slot(target.base)
	d := int(depth)
	if src == dst || n == 0 {
		return func(*frame) int { return d }, nil
	}
	return func(fr *frame) int {
		copy(fr.regs[dst:dst+n], fr.regs[src:src+n])
		return d
	}, nil
}

// call compiles a direct or indirect call of type ft. Arguments occupy the
// top of the stack and are replaced by the results.
func (c *compiler) call(ft *wasm.FuncType, resolve func(fr *frame) *Function) thunk {
	np, nr := len(ft.Params), len(ft.Results)
	base := c.slot(c.h - np)
	c.pop(np)
	c.push(nr)
	return func(fr *frame) int {
		callee := resolve(fr)
		res := callee.call(fr.cs, fr.regs[base:base+np])
		copy(fr.regs[base:base+nr], res)
		return -1
	}
}

func indirect(tbl *Table, idx uint32, want wasm.FuncType) *Function {
	if tbl == nil || idx >= uint32(len(tbl.elems)) {
		panic(trap(errors.TrapUndefinedElement))
	}
	f := tbl.elems[idx]
	if f == nil {
		panic(trap(errors.TrapUninitializedElement))
	}
	if !f.Type.Equal(want) {
		panic(trap(errors.TrapIndirectCallTypeMismatch))
	}
	return f
}

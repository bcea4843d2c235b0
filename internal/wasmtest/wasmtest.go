// Package wasmtest assembles small modules for tests and examples.
package wasmtest

import (
	"math"

	"github.com/wippyai/wasm-compiler/wasm"
)

// Builder accumulates module definitions. Function indices returned by Func
// account for imported functions declared before them.
type Builder struct {
	m wasm.Module
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Type adds (or reuses) a function type and returns its index.
func (b *Builder) Type(params, results []wasm.ValType) uint32 {
	return b.m.AddType(wasm.FuncType{Params: params, Results: results})
}

// ImportFunc declares an imported function and returns its function index.
func (b *Builder) ImportFunc(module, name string, typeIdx uint32) uint32 {
	b.m.Imports = append(b.m.Imports, wasm.Import{
		Module: module,
		Name:   name,
		Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: typeIdx},
	})
	return uint32(b.m.NumImportedFuncs() - 1)
}

// ImportMemory declares an imported memory.
func (b *Builder) ImportMemory(module, name string, minPages uint32, maxPages *uint32) {
	b.m.Imports = append(b.m.Imports, wasm.Import{
		Module: module,
		Name:   name,
		Desc:   wasm.ImportDesc{Kind: wasm.KindMemory, Memory: &wasm.MemoryType{Limits: wasm.Limits{Min: minPages, Max: maxPages}}},
	})
}

// ImportGlobal declares an imported global and returns its global index.
func (b *Builder) ImportGlobal(module, name string, vt wasm.ValType, mutable bool) uint32 {
	b.m.Imports = append(b.m.Imports, wasm.Import{
		Module: module,
		Name:   name,
		Desc:   wasm.ImportDesc{Kind: wasm.KindGlobal, Global: &wasm.GlobalType{ValType: vt, Mutable: mutable}},
	})
	return uint32(b.m.NumImportedGlobals() - 1)
}

// Func adds a function with the given locals and body. A trailing end is
// appended when the body does not already close itself.
func (b *Builder) Func(typeIdx uint32, locals []wasm.ValType, code ...wasm.Instruction) uint32 {
	body := wasm.FuncBody{Locals: compressLocals(locals), Body: Body(code...)}
	b.m.Funcs = append(b.m.Funcs, typeIdx)
	b.m.Code = append(b.m.Code, body)
	return uint32(b.m.NumFuncs() - 1)
}

// Memory declares the module's memory.
func (b *Builder) Memory(minPages uint32, maxPages *uint32) {
	b.m.Memories = append(b.m.Memories, wasm.MemoryType{Limits: wasm.Limits{Min: minPages, Max: maxPages}})
}

// Table declares the module's funcref table.
func (b *Builder) Table(minSize uint32, maxSize *uint32) {
	b.m.Tables = append(b.m.Tables, wasm.TableType{ElemType: wasm.ElemTypeFuncRef, Limits: wasm.Limits{Min: minSize, Max: maxSize}})
}

// Global adds a global initialised by init and returns its global index.
func (b *Builder) Global(vt wasm.ValType, mutable bool, init wasm.Instruction) uint32 {
	b.m.Globals = append(b.m.Globals, wasm.Global{
		Type: wasm.GlobalType{ValType: vt, Mutable: mutable},
		Init: []wasm.Instruction{init},
	})
	return uint32(b.m.NumGlobals() - 1)
}

// Export exports the item of the given kind and index under name.
func (b *Builder) Export(name string, kind byte, idx uint32) {
	b.m.Exports = append(b.m.Exports, wasm.Export{Name: name, Kind: kind, Idx: idx})
}

// Start sets the start function.
func (b *Builder) Start(funcIdx uint32) {
	b.m.Start = &funcIdx
}

// Elements adds an active element segment for table 0.
func (b *Builder) Elements(offset int32, funcs ...uint32) {
	b.m.Elements = append(b.m.Elements, wasm.Element{
		Flags:    wasm.ElemActive,
		Offset:   []wasm.Instruction{I32Const(offset)},
		FuncIdxs: funcs,
	})
}

// Data adds an active data segment for memory 0.
func (b *Builder) Data(offset int32, init []byte) {
	b.m.Data = append(b.m.Data, wasm.DataSegment{
		Flags:  wasm.DataActive,
		Offset: []wasm.Instruction{I32Const(offset)},
		Init:   init,
	})
}

// PassiveData adds a passive data segment and records the data count.
func (b *Builder) PassiveData(init []byte) uint32 {
	b.m.Data = append(b.m.Data, wasm.DataSegment{Flags: wasm.DataPassive, Init: init})
	n := uint32(len(b.m.Data))
	b.m.DataCount = &n
	return n - 1
}

// Module returns the assembled module.
func (b *Builder) Module() *wasm.Module {
	m := b.m
	return &m
}

// Binary returns the encoded module.
func (b *Builder) Binary() []byte {
	return b.m.Encode()
}

// Func1 builds a module exporting a single function under name.
func Func1(name string, params, results []wasm.ValType, code ...wasm.Instruction) *wasm.Module {
	b := NewBuilder()
	f := b.Func(b.Type(params, results), nil, code...)
	b.Export(name, wasm.KindFunc, f)
	return b.Module()
}

// MemoryWrite builds a module with one fixed page of memory exporting
// "Test"(address i32, value T) that stores value with the given store opcode.
func MemoryWrite(store byte, value wasm.ValType, offset uint32) *wasm.Module {
	b := NewBuilder()
	b.Memory(1, Pages(1))
	f := b.Func(b.Type([]wasm.ValType{wasm.ValI32, value}, nil), nil,
		LocalGet(0),
		LocalGet(1),
		Mem(store, 0, offset),
	)
	b.Export("Test", wasm.KindFunc, f)
	return b.Module()
}

// LoopSum builds a module exporting name(n i32) -> i32 that computes
// n + (n-1) + ... + 1 with a loop.
func LoopSum(name string) *wasm.Module {
	i32 := []wasm.ValType{wasm.ValI32}
	b := NewBuilder()
	f := b.Func(b.Type(i32, i32), i32,
		Block(wasm.BlockTypeVoid),
		Loop(wasm.BlockTypeVoid),
		LocalGet(0),
		Op(wasm.OpI32Eqz),
		BrIf(1),
		LocalGet(1),
		LocalGet(0),
		Op(wasm.OpI32Add),
		LocalSet(1),
		LocalGet(0),
		I32Const(1),
		Op(wasm.OpI32Sub),
		LocalSet(0),
		Br(0),
		End(),
		End(),
		LocalGet(1),
	)
	b.Export(name, wasm.KindFunc, f)
	return b.Module()
}

// Pages returns a pointer for optional maxima.
func Pages(n uint32) *uint32 {
	return &n
}

// Body appends the closing end if code does not already end with one at depth 0.
func Body(code ...wasm.Instruction) []wasm.Instruction {
	depth := 0
	for _, in := range code {
		switch in.Opcode {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			depth++
		case wasm.OpEnd:
			depth--
		}
	}
	out := append([]wasm.Instruction(nil), code...)
	if depth >= 0 {
		out = append(out, End())
	}
	return out
}

func compressLocals(locals []wasm.ValType) []wasm.LocalEntry {
	var out []wasm.LocalEntry
	for _, vt := range locals {
		if n := len(out); n > 0 && out[n-1].ValType == vt {
			out[n-1].Count++
			continue
		}
		out = append(out, wasm.LocalEntry{Count: 1, ValType: vt})
	}
	return out
}

// Op returns an instruction without immediates.
func Op(op byte) wasm.Instruction { return wasm.Instruction{Opcode: op} }

// End closes a block or the function body.
func End() wasm.Instruction { return Op(wasm.OpEnd) }

// Else starts the else arm of an if.
func Else() wasm.Instruction { return Op(wasm.OpElse) }

func I32Const(v int32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: v}}
}

func I64Const(v int64) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpI64Const, Imm: wasm.I64Imm{Value: v}}
}

func F32Const(v float32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpF32Const, Imm: wasm.F32Imm{Bits: math.Float32bits(v)}}
}

func F64Const(v float64) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpF64Const, Imm: wasm.F64Imm{Bits: math.Float64bits(v)}}
}

func LocalGet(i uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: i}}
}

func LocalSet(i uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpLocalSet, Imm: wasm.LocalImm{LocalIdx: i}}
}

func LocalTee(i uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpLocalTee, Imm: wasm.LocalImm{LocalIdx: i}}
}

func GlobalGet(i uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpGlobalGet, Imm: wasm.GlobalImm{GlobalIdx: i}}
}

func GlobalSet(i uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpGlobalSet, Imm: wasm.GlobalImm{GlobalIdx: i}}
}

func Call(f uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: f}}
}

func CallIndirect(typeIdx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpCallIndirect, Imm: wasm.CallIndirectImm{TypeIdx: typeIdx}}
}

func Block(bt int32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpBlock, Imm: wasm.BlockImm{Type: bt}}
}

func Loop(bt int32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpLoop, Imm: wasm.BlockImm{Type: bt}}
}

func If(bt int32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpIf, Imm: wasm.BlockImm{Type: bt}}
}

func Br(depth uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpBr, Imm: wasm.BranchImm{LabelIdx: depth}}
}

func BrIf(depth uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpBrIf, Imm: wasm.BranchImm{LabelIdx: depth}}
}

func BrTable(def uint32, labels ...uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpBrTable, Imm: wasm.BrTableImm{Labels: labels, Default: def}}
}

// Mem returns a load or store with log2 alignment align and a constant offset.
func Mem(op byte, align, offset uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: op, Imm: wasm.MemoryImm{Align: align, Offset: offset}}
}

// Misc returns a 0xFC-prefixed instruction.
func Misc(sub uint32, operands ...uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpPrefixMisc, Imm: wasm.MiscImm{SubOpcode: sub, Operands: operands}}
}

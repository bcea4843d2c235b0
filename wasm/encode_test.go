package wasm_test

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/wippyai/wasm-compiler/internal/wasmtest"
	"github.com/wippyai/wasm-compiler/wasm"
)

func roundTrip(t *testing.T, m *wasm.Module) *wasm.Module {
	t.Helper()
	got, err := wasm.DecodeModule(m.Encode())
	if err != nil {
		t.Fatalf("DecodeModule(Encode()): %v", err)
	}
	return got
}

func TestEncode_RoundTrip(t *testing.T) {
	full := func() *wasm.Module {
		b := wasmtest.NewBuilder()
		binop := b.Type([]wasm.ValType{wasm.ValI32, wasm.ValI32}, []wasm.ValType{wasm.ValI32})
		void := b.Type(nil, nil)
		imp := b.ImportFunc("env", "add", binop)
		g := b.ImportGlobal("env", "base", wasm.ValI32, false)
		b.Memory(1, wasmtest.Pages(4))
		b.Table(2, nil)
		counter := b.Global(wasm.ValI64, true, wasmtest.I64Const(-7))
		b.Global(wasm.ValF64, false, wasmtest.F64Const(3.25))

		f := b.Func(binop, []wasm.ValType{wasm.ValI64, wasm.ValI64, wasm.ValF32},
			wasmtest.LocalGet(0),
			wasmtest.LocalGet(1),
			wasmtest.Call(imp),
			wasmtest.Block(wasm.BlockTypeI32),
			wasmtest.I32Const(1),
			wasmtest.LocalGet(0),
			wasmtest.BrTable(0, 0, 0),
			wasmtest.End(),
			wasmtest.Op(wasm.OpI32Add),
			wasmtest.GlobalGet(counter),
			wasmtest.Op(wasm.OpDrop),
			wasmtest.F32Const(1.5),
			wasmtest.Op(wasm.OpDrop),
		)
		start := b.Func(void, nil,
			wasmtest.I32Const(0),
			wasmtest.I32Const(0),
			wasmtest.I32Const(16),
			wasmtest.Misc(wasm.MiscMemoryFill),
			wasmtest.I32Const(0),
			wasmtest.Op(wasm.OpMemorySize),
			wasmtest.Mem(wasm.OpI32Store, 2, 4),
			wasmtest.I32Const(0),
			wasmtest.I32Const(0),
			wasmtest.I32Const(2),
			wasmtest.Misc(wasm.MiscMemoryInit, 0),
			wasmtest.Misc(wasm.MiscDataDrop, 0),
		)
		b.Export("add", wasm.KindFunc, f)
		b.Export("memory", wasm.KindMemory, 0)
		b.Export("base", wasm.KindGlobal, g)
		b.Start(start)
		b.Elements(0, f, imp)
		b.Data(8, []byte("hello"))
		b.PassiveData([]byte{1, 2})
		return b.Module()
	}()

	withSections := wasmtest.Func1("f", nil, nil)
	withSections.Sections = []wasm.RawSection{
		{ID: wasm.SectionCustom, Name: "producers", Data: []byte{0x01}},
		{ID: wasm.SectionCustom, Name: "name", Data: []byte{0x00, 0x02}, After: wasm.SectionExport},
		{ID: 0x42, Data: []byte{0xCA, 0xFE}, After: wasm.SectionCode},
	}

	tests := []struct {
		name string
		m    *wasm.Module
	}{
		{"empty", &wasm.Module{}},
		{"single function", wasmtest.Func1("answer", nil, []wasm.ValType{wasm.ValI32}, wasmtest.I32Const(42))},
		{"memory write", wasmtest.MemoryWrite(wasm.OpI64Store16, wasm.ValI64, 3)},
		{"full", full},
		{"raw sections", withSections},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roundTrip(t, tt.m)
			if !reflect.DeepEqual(got, tt.m) {
				t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, tt.m)
			}
			if again := got.Encode(); !bytes.Equal(again, tt.m.Encode()) {
				t.Error("re-encoding is not stable")
			}
		})
	}
}

func TestEncode_SkipsEmptySections(t *testing.T) {
	m := &wasm.Module{Types: []wasm.FuncType{{}}}
	data := m.Encode()
	want := append(append([]byte(nil), header...), wasm.SectionType, 0x04, 0x01, 0x60, 0x00, 0x00)
	if !bytes.Equal(data, want) {
		t.Errorf("Encode() = % x, want % x", data, want)
	}
}

func TestEncode_FloatBitsPreserved(t *testing.T) {
	nan := wasm.Instruction{Opcode: wasm.OpF32Const, Imm: wasm.F32Imm{Bits: 0x7FA00001}}
	m := wasmtest.Func1("nan", nil, []wasm.ValType{wasm.ValF32}, nan)

	got := roundTrip(t, m)
	imm := got.Code[0].Body[0].Imm.(wasm.F32Imm)
	if imm.Bits != 0x7FA00001 {
		t.Errorf("bits = %#x, want 0x7fa00001", imm.Bits)
	}
}

func TestEncodeInstructions(t *testing.T) {
	instrs := []wasm.Instruction{
		wasmtest.I32Const(-1),
		wasmtest.Mem(wasm.OpI32Load8U, 0, 300),
		wasmtest.Op(wasm.OpMemoryGrow),
		wasmtest.End(),
	}
	data := wasm.EncodeInstructions(instrs)
	want := []byte{0x41, 0x7F, 0x2D, 0x00, 0xAC, 0x02, 0x40, 0x00, 0x0B}
	if !bytes.Equal(data, want) {
		t.Fatalf("EncodeInstructions = % x, want % x", data, want)
	}
	back, err := wasm.DecodeInstructions(data)
	if err != nil {
		t.Fatalf("DecodeInstructions: %v", err)
	}
	if !reflect.DeepEqual(back, instrs) {
		t.Errorf("decoded %+v, want %+v", back, instrs)
	}
}

func TestEncode_KeepsAnchorOfEmptySection(t *testing.T) {
	bin := append(append([]byte(nil), header...),
		wasm.SectionType, 0x01, 0x00,
		wasm.SectionCustom, 0x04, 0x01, 'x', 0xAA, 0xBB,
	)

	m, err := wasm.DecodeModule(bin)
	if err != nil {
		t.Fatalf("DecodeModule: %v", err)
	}
	if len(m.Sections) != 1 || m.Sections[0].After != wasm.SectionType {
		t.Fatalf("sections = %+v, want one custom section after the type section", m.Sections)
	}
	if out := m.Encode(); !bytes.Equal(out, bin) {
		t.Errorf("Encode() = % x, want % x", out, bin)
	}

	got := roundTrip(t, m)
	if !reflect.DeepEqual(got.Sections, m.Sections) {
		t.Errorf("sections = %+v, want %+v", got.Sections, m.Sections)
	}

	// with nothing anchored the empty section is still dropped
	m.Sections = nil
	if out := m.Encode(); !bytes.Equal(out, header) {
		t.Errorf("Encode() = % x, want header only", out)
	}
}

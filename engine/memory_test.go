package engine

import (
	"bytes"
	"context"
	"testing"

	"github.com/wippyai/wasm-compiler/errors"
	"github.com/wippyai/wasm-compiler/internal/wasmtest"
	"github.com/wippyai/wasm-compiler/wasm"
)

func TestMemory_ReadWrite(t *testing.T) {
	mem := NewMemory(1, 2)

	if err := mem.WriteU32(100, 0xDEADBEEF); err != nil {
		t.Fatalf("WriteU32: %v", err)
	}
	v, err := mem.ReadU32(100)
	if err != nil {
		t.Fatalf("ReadU32: %v", err)
	}
	if v != 0xDEADBEEF {
		t.Errorf("ReadU32 = %#x", v)
	}
	b, err := mem.ReadU8(100)
	if err != nil || b != 0xEF {
		t.Errorf("ReadU8 = %#x, %v; want little-endian low byte", b, err)
	}

	if err := mem.WriteU64(wasm.PageSize-8, 1); err != nil {
		t.Errorf("WriteU64 at last word: %v", err)
	}
	if err := mem.WriteU64(wasm.PageSize-7, 1); err == nil {
		t.Error("WriteU64 crossing the end should fail")
	}
	if _, err := mem.Read(wasm.PageSize-4, 8); err == nil {
		t.Error("Read crossing the end should fail")
	}
	if _, err := mem.Read(0xFFFFFFFF, 2); err == nil {
		t.Error("Read near the 32-bit limit should fail")
	}

	if err := mem.Write(10, []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := mem.Read(10, 5)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Read = %q", got)
	}
}

func TestMemory_Grow(t *testing.T) {
	mem := NewMemory(1, 3)

	prev, ok := mem.Grow(1)
	if !ok || prev != 1 {
		t.Fatalf("Grow(1) = %d, %v", prev, ok)
	}
	if mem.Pages() != 2 || mem.Size() != 2*wasm.PageSize {
		t.Errorf("after grow: %d pages, %d bytes", mem.Pages(), mem.Size())
	}
	if _, ok := mem.Grow(2); ok {
		t.Error("Grow past the maximum should fail")
	}
	if mem.Pages() != 2 {
		t.Errorf("failed grow changed size to %d pages", mem.Pages())
	}
	if prev, ok := mem.Grow(0); !ok || prev != 2 {
		t.Errorf("Grow(0) = %d, %v", prev, ok)
	}
}

func TestMemory_MaxClamped(t *testing.T) {
	mem := NewMemory(0, 1<<20)
	if mem.MaxPages() != wasm.MemoryMaxPages {
		t.Errorf("MaxPages = %d, want %d", mem.MaxPages(), wasm.MemoryMaxPages)
	}
}

func TestCompile_MemoryStoreBounds(t *testing.T) {
	m := wasmtest.MemoryWrite(wasm.OpI32Store, wasm.ValI32, 0)
	inst := instantiate(t, m)
	f := export(t, m, inst, "Test")

	if _, err := f.Call(context.Background(), 65532, 0x01020304); err != nil {
		t.Fatalf("store at 65532: %v", err)
	}
	v, _ := inst.Memory.ReadU32(65532)
	if v != 0x01020304 {
		t.Errorf("stored %#x", v)
	}

	_, err := f.Call(context.Background(), 65534, 1)
	if !errors.IsTrap(err, errors.TrapOutOfBoundsMemoryAccess) {
		t.Fatalf("expected out of bounds trap, got %v", err)
	}
}

func TestCompile_MemoryOffsetDoesNotWrap(t *testing.T) {
	m := wasmtest.MemoryWrite(wasm.OpI32Store8, wasm.ValI32, 0xFFFFFFFF)
	inst := instantiate(t, m)

	_, err := export(t, m, inst, "Test").Call(context.Background(), 1, 1)
	if !errors.IsTrap(err, errors.TrapOutOfBoundsMemoryAccess) {
		t.Fatalf("expected out of bounds trap, got %v", err)
	}
	if inst.Memory.Bytes()[0] != 0 {
		t.Error("address wrapped around to zero")
	}
}

func TestCompile_Loads(t *testing.T) {
	tests := []struct {
		name   string
		op     byte
		result wasm.ValType
		want   uint64
	}{
		{"i32.load", wasm.OpI32Load, wasm.ValI32, 0x04030281},
		{"i32.load8_s", wasm.OpI32Load8S, wasm.ValI32, 0xFFFFFF81},
		{"i32.load8_u", wasm.OpI32Load8U, wasm.ValI32, 0x81},
		{"i32.load16_s", wasm.OpI32Load16S, wasm.ValI32, 0x0281},
		{"i64.load8_s", wasm.OpI64Load8S, wasm.ValI64, 0xFFFFFFFFFFFFFF81},
		{"i64.load32_u", wasm.OpI64Load32U, wasm.ValI64, 0x04030281},
		{"i64.load", wasm.OpI64Load, wasm.ValI64, 0x0807060504030281},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := wasmtest.NewBuilder()
			b.Memory(1, nil)
			b.Data(16, []byte{0x81, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08})
			f := b.Func(b.Type(nil, vals(tc.result)), nil,
				wasmtest.I32Const(8),
				wasmtest.Mem(tc.op, 0, 8),
			)
			b.Export("f", wasm.KindFunc, f)

			got, err := callOne(t, b.Module())
			if err != nil {
				t.Fatalf("Call: %v", err)
			}
			if got[0] != tc.want {
				t.Errorf("got %#x, want %#x", got[0], tc.want)
			}
		})
	}
}

func TestCompile_MemoryGrowAndSize(t *testing.T) {
	b := wasmtest.NewBuilder()
	b.Memory(1, wasmtest.Pages(2))
	f := b.Func(b.Type(vals(vI32), vals(vI32, vI32)), nil,
		wasmtest.LocalGet(0),
		wasmtest.Op(wasm.OpMemoryGrow),
		wasmtest.Op(wasm.OpMemorySize),
	)
	b.Export("f", wasm.KindFunc, f)
	m := b.Module()
	inst := instantiate(t, m)
	fn := export(t, m, inst, "f")

	got, err := fn.Call(context.Background(), 1)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got[0] != 1 || got[1] != 2 {
		t.Errorf("grow(1) = %v, want [1 2]", got)
	}

	got, err = fn.Call(context.Background(), 1)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got[0] != 0xFFFFFFFF || got[1] != 2 {
		t.Errorf("grow past max = %#x, want [0xffffffff 2]", got)
	}
}

func TestCompile_BulkMemory(t *testing.T) {
	b := wasmtest.NewBuilder()
	b.Memory(1, nil)
	seg := b.PassiveData([]byte("abcdef"))
	ty := b.Type(vals(vI32, vI32, vI32), nil)
	initF := b.Func(ty, nil,
		wasmtest.LocalGet(0), wasmtest.LocalGet(1), wasmtest.LocalGet(2),
		wasmtest.Misc(wasm.MiscMemoryInit, seg),
	)
	copyF := b.Func(ty, nil,
		wasmtest.LocalGet(0), wasmtest.LocalGet(1), wasmtest.LocalGet(2),
		wasmtest.Misc(wasm.MiscMemoryCopy),
	)
	fillF := b.Func(ty, nil,
		wasmtest.LocalGet(0), wasmtest.LocalGet(1), wasmtest.LocalGet(2),
		wasmtest.Misc(wasm.MiscMemoryFill),
	)
	dropF := b.Func(b.Type(nil, nil), nil, wasmtest.Misc(wasm.MiscDataDrop, seg))
	b.Export("init", wasm.KindFunc, initF)
	b.Export("copy", wasm.KindFunc, copyF)
	b.Export("fill", wasm.KindFunc, fillF)
	b.Export("drop", wasm.KindFunc, dropF)
	m := b.Module()
	inst := instantiate(t, m)
	ctx := context.Background()
	call := func(name string, args ...uint64) error {
		_, err := export(t, m, inst, name).Call(ctx, args...)
		return err
	}
	mem := func(off, n uint32) []byte {
		got, err := inst.Memory.Read(off, n)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		return got
	}

	if err := call("init", 10, 1, 4); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !bytes.Equal(mem(10, 4), []byte("bcde")) {
		t.Errorf("after init: %q", mem(10, 4))
	}

	// overlapping copy moves as if through a temporary buffer
	if err := call("copy", 12, 10, 4); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if !bytes.Equal(mem(10, 6), []byte("bcbcde")) {
		t.Errorf("after copy: %q", mem(10, 6))
	}

	if err := call("fill", 0, 0x1FF, 3); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if !bytes.Equal(mem(0, 4), []byte{0xFF, 0xFF, 0xFF, 0}) {
		t.Errorf("after fill: %x", mem(0, 4))
	}

	if err := call("fill", wasm.PageSize-1, 1, 2); !errors.IsTrap(err, errors.TrapOutOfBoundsMemoryAccess) {
		t.Errorf("fill past end: expected trap, got %v", err)
	}
	if err := call("init", 0, 4, 3); !errors.IsTrap(err, errors.TrapOutOfBoundsMemoryAccess) {
		t.Errorf("init past segment end: expected trap, got %v", err)
	}

	if err := call("drop"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if err := call("init", 0, 0, 0); err != nil {
		t.Errorf("zero-length init after drop: %v", err)
	}
	if err := call("init", 0, 0, 1); !errors.IsTrap(err, errors.TrapOutOfBoundsMemoryAccess) {
		t.Errorf("init after drop: expected trap, got %v", err)
	}
}

func TestCompile_TableSize(t *testing.T) {
	b := wasmtest.NewBuilder()
	b.Table(3, nil)
	f := b.Func(b.Type(nil, vals(vI32)), nil, wasmtest.Misc(wasm.MiscTableSize, 0))
	b.Export("f", wasm.KindFunc, f)

	got, err := callOne(t, b.Module())
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got[0] != 3 {
		t.Errorf("table.size = %d, want 3", got[0])
	}
}

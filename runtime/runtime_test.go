package runtime_test

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/wasm-compiler/engine"
	"github.com/wippyai/wasm-compiler/errors"
	"github.com/wippyai/wasm-compiler/internal/wasmtest"
	"github.com/wippyai/wasm-compiler/linker"
	"github.com/wippyai/wasm-compiler/runtime"
	"github.com/wippyai/wasm-compiler/wasm"
)

var (
	i32 = []wasm.ValType{wasm.ValI32}
	i64 = []wasm.ValType{wasm.ValI64}
)

func sig(params, results []wasm.ValType) wasm.FuncType {
	return wasm.FuncType{Params: params, Results: results}
}

func instantiate(t *testing.T, mod *runtime.Module, imports linker.Imports) *runtime.Instance {
	t.Helper()
	inst, err := mod.Factory()(context.Background(), imports)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	return inst
}

func TestCompile_ReturnsConstant(t *testing.T) {
	ctx := context.Background()
	m := wasmtest.Func1("answer", nil, i32, wasmtest.I32Const(42))

	mod, err := runtime.Compile(ctx, m.Encode(), linker.Interface{"answer": sig(nil, i32)}, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(mod.Unbound()) != 0 {
		t.Errorf("unexpected unbound exports %v", mod.Unbound())
	}

	results, err := instantiate(t, mod, nil).Call(ctx, "answer")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(results) != 1 || results[0] != int32(42) {
		t.Errorf("answer() = %v, want [42]", results)
	}
}

func TestCompile_TypeMismatchNeverCompiles(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	engine.SetLogger(zap.New(core))
	t.Cleanup(func() { engine.SetLogger(nil) })

	ctx := context.Background()
	bad := wasmtest.Func1("f", nil, i64,
		wasmtest.I32Const(1),
		wasmtest.I64Const(2),
		wasmtest.Op(wasm.OpI64Add),
	)

	_, err := runtime.Compile(ctx, bad.Encode(), nil, nil)
	if !errors.HasKind(err, errors.KindTypeMismatch) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
	if n := logs.FilterMessage("function compiled").Len(); n != 0 {
		t.Errorf("compiler ran %d time(s) on an invalid module", n)
	}

	good := wasmtest.Func1("f", nil, i64, wasmtest.I64Const(1), wasmtest.I64Const(2), wasmtest.Op(wasm.OpI64Add))
	if _, err := runtime.Compile(ctx, good.Encode(), nil, nil); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if n := logs.FilterMessage("function compiled").Len(); n != 1 {
		t.Errorf("expected 1 compiled function, observed %d", n)
	}
}

func TestCompile_Malformed(t *testing.T) {
	_, err := runtime.Compile(context.Background(), []byte{0x00, 0x61, 0x73}, nil, nil)
	if !errors.HasKind(err, errors.KindMalformedBinary) {
		t.Fatalf("expected malformed binary, got %v", err)
	}
}

func TestCompile_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := wasmtest.Func1("f", nil, i32, wasmtest.I32Const(1))
	if _, err := runtime.Compile(ctx, m.Encode(), nil, nil); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestInstance_MemoryBounds(t *testing.T) {
	ctx := context.Background()
	m := wasmtest.MemoryWrite(wasm.OpI32Store, wasm.ValI32, 0)
	mod, err := runtime.Compile(ctx, m.Encode(), linker.Interface{"Test": sig([]wasm.ValType{wasm.ValI32, wasm.ValI32}, nil)}, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst := instantiate(t, mod, nil)

	_, err = inst.Call(ctx, "Test", int32(65534), int32(7))
	if !errors.IsTrap(err, errors.TrapOutOfBoundsMemoryAccess) {
		t.Fatalf("store at 65534: expected out of bounds trap, got %v", err)
	}

	if _, err := inst.Call(ctx, "Test", int32(65532), int32(7)); err != nil {
		t.Fatalf("store at 65532: %v", err)
	}
	got, err := inst.Linker().Engine().Memory.ReadU32(65532)
	if err != nil {
		t.Fatalf("ReadU32: %v", err)
	}
	if got != 7 {
		t.Errorf("memory[65532] = %d, want 7", got)
	}
}

func TestCompile_ImportMismatch(t *testing.T) {
	ctx := context.Background()
	b := wasmtest.NewBuilder()
	imp := b.ImportFunc("env", "f", b.Type(i32, i32))
	run := b.Func(b.Type(nil, i32), nil, wasmtest.I32Const(1), wasmtest.Call(imp))
	b.Export("run", wasm.KindFunc, run)
	bin := b.Binary()

	tests := []struct {
		name    string
		imports linker.ImportInterface
		reason  string
	}{
		{"missing", nil, "not provided"},
		{"signature", linker.ImportInterface{"env": {"f": sig(i64, i32)}}, "(i64) -> i32"},
		{"wrong module", linker.ImportInterface{"host": {"f": sig(i32, i32)}}, "not provided"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runtime.Compile(ctx, bin, nil, tt.imports)
			if !errors.HasKind(err, errors.KindUnresolvedImport) {
				t.Fatalf("expected unresolved import, got %v", err)
			}
			var ue *errors.UnresolvedImportsError
			if !errors.As(err, &ue) || len(ue.Imports) != 1 {
				t.Fatalf("expected one unresolved import, got %v", err)
			}
			if got := ue.Imports[0].Reason; !strings.Contains(got, tt.reason) {
				t.Errorf("reason %q does not mention %q", got, tt.reason)
			}
		})
	}

	t.Run("instantiate", func(t *testing.T) {
		mod, err := runtime.Compile(ctx, bin, nil, linker.ImportInterface{"env": {"f": sig(i32, i32)}})
		if err != nil {
			t.Fatalf("Compile: %v", err)
		}
		wrong := linker.Imports{}.Func("env", "f", sig(i64, i32), func(context.Context, []uint64) ([]uint64, error) {
			return []uint64{0}, nil
		})
		_, err = mod.Factory()(ctx, wrong)
		if !errors.HasKind(err, errors.KindUnresolvedImport) {
			t.Fatalf("expected unresolved import, got %v", err)
		}
	})
}

func TestInstance_LoopSumMatchesReference(t *testing.T) {
	ctx := context.Background()
	bin := wasmtest.LoopSum("sum").Encode()
	ref := engine.NewReference(0)

	mod, err := runtime.Compile(ctx, bin, linker.Interface{"sum": sig(i32, i32)}, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst := instantiate(t, mod, nil)

	for _, n := range []int32{0, 1, 10} {
		want, err := ref.Run(ctx, bin, "sum", nil, engine.EncodeI32(n))
		if err != nil {
			t.Fatalf("reference sum(%d): %v", n, err)
		}
		got, err := inst.Call(ctx, "sum", n)
		if err != nil {
			t.Fatalf("sum(%d): %v", n, err)
		}
		if got[0] != engine.DecodeI32(want[0]) {
			t.Errorf("sum(%d) = %v, reference %d", n, got[0], engine.DecodeI32(want[0]))
		}
	}
}

func TestModule_FactoryInstancesAreIndependent(t *testing.T) {
	ctx := context.Background()
	b := wasmtest.NewBuilder()
	g := b.Global(wasm.ValI32, true, wasmtest.I32Const(0))
	f := b.Func(b.Type(nil, i32), nil,
		wasmtest.GlobalGet(g),
		wasmtest.I32Const(1),
		wasmtest.Op(wasm.OpI32Add),
		wasmtest.GlobalSet(g),
		wasmtest.GlobalGet(g),
	)
	b.Export("next", wasm.KindFunc, f)

	mod, err := runtime.Compile(ctx, b.Binary(), nil, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	factory := mod.Factory()
	a := instantiate(t, mod, nil)
	c, err := factory(ctx, nil)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := a.Call(ctx, "next"); err != nil {
			t.Fatalf("next: %v", err)
		}
	}
	got, err := c.Call(ctx, "next")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if got[0] != int32(1) {
		t.Errorf("second instance counter = %v, want 1", got[0])
	}
}

func TestInstance_Call(t *testing.T) {
	ctx := context.Background()
	b := wasmtest.NewBuilder()
	f := b.Func(b.Type([]wasm.ValType{wasm.ValI32, wasm.ValI64, wasm.ValF32, wasm.ValF64}, []wasm.ValType{wasm.ValF64, wasm.ValI64, wasm.ValI32}), nil,
		wasmtest.LocalGet(3),
		wasmtest.LocalGet(1),
		wasmtest.LocalGet(0),
	)
	b.Export("mix", wasm.KindFunc, f)
	b.Export("unused", wasm.KindFunc, f)
	mod, err := runtime.Compile(ctx, b.Binary(), nil, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst := instantiate(t, mod, nil)

	t.Run("conversion", func(t *testing.T) {
		got, err := inst.Call(ctx, "mix", -5, int64(1)<<40, float32(1.5), 2.25)
		if err != nil {
			t.Fatalf("Call: %v", err)
		}
		if got[0] != 2.25 || got[1] != int64(1)<<40 || got[2] != int32(-5) {
			t.Errorf("mix = %v", got)
		}
	})

	t.Run("unsigned", func(t *testing.T) {
		got, err := inst.Call(ctx, "mix", uint32(0xFFFFFFFF), uint64(1), float32(0), 0.0)
		if err != nil {
			t.Fatalf("Call: %v", err)
		}
		if got[2] != int32(-1) {
			t.Errorf("i32 result = %v, want -1", got[2])
		}
	})

	t.Run("arity", func(t *testing.T) {
		_, err := inst.Call(ctx, "mix", int32(1))
		if !errors.HasKind(err, errors.KindInvalidInput) {
			t.Errorf("expected invalid input, got %v", err)
		}
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := inst.Call(ctx, "mix", "one", int64(1), float32(0), 0.0)
		if !errors.HasKind(err, errors.KindTypeMismatch) {
			t.Errorf("expected type mismatch, got %v", err)
		}
	})

	t.Run("f64 for f32", func(t *testing.T) {
		_, err := inst.Call(ctx, "mix", int32(1), int64(1), 1.5, 0.0)
		if !errors.HasKind(err, errors.KindTypeMismatch) {
			t.Errorf("expected type mismatch, got %v", err)
		}
	})

	t.Run("missing export", func(t *testing.T) {
		_, err := inst.CallRaw(ctx, "nope")
		if !errors.HasKind(err, errors.KindNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
	})

	t.Run("raw", func(t *testing.T) {
		got, err := inst.CallRaw(ctx, "mix", engine.EncodeI32(3), 4, engine.EncodeF32(0), engine.EncodeF64(0.5))
		if err != nil {
			t.Fatalf("CallRaw: %v", err)
		}
		if engine.DecodeF64(got[0]) != 0.5 || got[1] != 4 || engine.DecodeI32(got[2]) != 3 {
			t.Errorf("mix = %v", got)
		}
	})
}

func TestRuntime_Options(t *testing.T) {
	rt := runtime.New(
		runtime.WithMaxCallDepth(50),
		runtime.WithMemoryLimitPages(2),
		runtime.WithSemverImports(true),
	)
	want := runtime.Config{MaxCallDepth: 50, MemoryLimitPages: 2, SemverImports: true}
	if got := rt.Config(); got != want {
		t.Errorf("Config() = %+v, want %+v", got, want)
	}
	if got := runtime.New(runtime.WithConfig(want)).Config(); got != want {
		t.Errorf("WithConfig: %+v, want %+v", got, want)
	}
}

func TestRuntime_CallDepth(t *testing.T) {
	ctx := context.Background()
	b := wasmtest.NewBuilder()
	ty := b.Type(nil, nil)
	f := b.Func(ty, nil, wasmtest.Call(0))
	b.Export("loop", wasm.KindFunc, f)

	mod, err := runtime.New(runtime.WithMaxCallDepth(50)).Compile(ctx, b.Binary(), nil, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	_, err = instantiate(t, mod, nil).Call(ctx, "loop")
	if !errors.IsTrap(err, errors.TrapCallStackExhausted) {
		t.Fatalf("expected call stack exhausted, got %v", err)
	}
}

func TestRuntime_MemoryLimit(t *testing.T) {
	ctx := context.Background()
	b := wasmtest.NewBuilder()
	b.Memory(1, nil)
	f := b.Func(b.Type(i32, i32), nil, wasmtest.LocalGet(0), wasmtest.Op(wasm.OpMemoryGrow))
	b.Export("grow", wasm.KindFunc, f)

	mod, err := runtime.New(runtime.WithMemoryLimitPages(2)).Compile(ctx, b.Binary(), nil, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst := instantiate(t, mod, nil)

	got, err := inst.Call(ctx, "grow", int32(1))
	if err != nil {
		t.Fatalf("grow: %v", err)
	}
	if got[0] != int32(1) {
		t.Errorf("grow(1) = %v, want 1", got[0])
	}
	got, err = inst.Call(ctx, "grow", int32(1))
	if err != nil {
		t.Fatalf("grow: %v", err)
	}
	if got[0] != int32(-1) {
		t.Errorf("grow past limit = %v, want -1", got[0])
	}
}

func TestRuntime_RegisteredHostImports(t *testing.T) {
	ctx := context.Background()
	b := wasmtest.NewBuilder()
	imp := b.ImportFunc("env", "add", b.Type([]wasm.ValType{wasm.ValI32, wasm.ValI32}, i32))
	run := b.Func(b.Type(i32, i32), nil, wasmtest.LocalGet(0), wasmtest.I32Const(10), wasmtest.Call(imp))
	b.Export("run", wasm.KindFunc, run)
	bin := b.Binary()

	rt := runtime.New()
	var seen context.Context
	err := rt.RegisterFunc("env", "add", func(ctx context.Context, a, b int32) int32 {
		seen = ctx
		return a + b
	})
	if err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}

	mod, err := rt.Compile(ctx, bin, nil, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst, err := mod.Instantiate(ctx, nil)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	type key struct{}
	callCtx := context.WithValue(ctx, key{}, "marker")
	got, err := inst.Call(callCtx, "run", int32(5))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got[0] != int32(15) {
		t.Errorf("run(5) = %v, want 15", got[0])
	}
	if seen == nil || seen.Value(key{}) != "marker" {
		t.Error("host function did not receive the caller's context")
	}

	t.Run("explicit imports override", func(t *testing.T) {
		over := linker.Imports{}.Func("env", "add", sig([]wasm.ValType{wasm.ValI32, wasm.ValI32}, i32),
			func(_ context.Context, args []uint64) ([]uint64, error) {
				return []uint64{args[0] * args[1]}, nil
			})
		inst, err := mod.Instantiate(ctx, over)
		if err != nil {
			t.Fatalf("Instantiate: %v", err)
		}
		got, err := inst.Call(ctx, "run", int32(5))
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if got[0] != int32(50) {
			t.Errorf("run(5) = %v, want 50", got[0])
		}
	})
}

func TestInstance_ExportsAndMemory(t *testing.T) {
	ctx := context.Background()
	b := wasmtest.NewBuilder()
	b.Memory(1, nil)
	b.Export("memory", wasm.KindMemory, 0)
	b.Data(8, []byte("hello"))
	f := b.Func(b.Type(nil, i32), nil, wasmtest.I32Const(1))
	b.Export("one", wasm.KindFunc, f)

	mod, err := runtime.Compile(ctx, b.Binary(), linker.Interface{"one": sig(nil, i32), "two": sig(nil, i32)}, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if got := mod.Unbound(); len(got) != 1 || got[0] != "two" {
		t.Errorf("Unbound() = %v, want [two]", got)
	}
	inst := instantiate(t, mod, nil)

	mem := inst.Memory("memory")
	if mem == nil {
		t.Fatal("memory export missing")
	}
	data, err := mem.Read(8, 5)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("memory[8:13] = %q, want hello", data)
	}
	if inst.Memory("other") != nil {
		t.Error("unexpected memory for unknown name")
	}

	_, err = inst.Call(ctx, "two")
	if !errors.HasKind(err, errors.KindUnboundExport) {
		t.Errorf("expected unbound export, got %v", err)
	}
	if names := inst.Exports().FuncNames(); len(names) != 1 || names[0] != "one" {
		t.Errorf("FuncNames() = %v", names)
	}
}

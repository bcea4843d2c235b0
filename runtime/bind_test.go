package runtime_test

import (
	"context"
	"testing"

	"github.com/wippyai/wasm-compiler/errors"
	"github.com/wippyai/wasm-compiler/internal/wasmtest"
	"github.com/wippyai/wasm-compiler/runtime"
	"github.com/wippyai/wasm-compiler/wasm"
)

type mathAPI struct {
	Add    func(context.Context, int32, int32) (int32, error)
	Divide func(int32, int32) (int32, error) `wasm:"div"`
	Scale  func(float64) (float64, error)
	Helper func() `wasm:"-"`
	hidden func() (int32, error)
}

func mathModule(t *testing.T) *runtime.Instance {
	t.Helper()
	b := wasmtest.NewBuilder()
	binop := b.Type([]wasm.ValType{wasm.ValI32, wasm.ValI32}, i32)
	add := b.Func(binop, nil, wasmtest.LocalGet(0), wasmtest.LocalGet(1), wasmtest.Op(wasm.OpI32Add))
	div := b.Func(binop, nil, wasmtest.LocalGet(0), wasmtest.LocalGet(1), wasmtest.Op(wasm.OpI32DivS))
	f64 := []wasm.ValType{wasm.ValF64}
	scale := b.Func(b.Type(f64, f64), nil, wasmtest.LocalGet(0), wasmtest.F64Const(2), wasmtest.Op(wasm.OpF64Mul))
	b.Export("add", wasm.KindFunc, add)
	b.Export("div", wasm.KindFunc, div)
	b.Export("scale", wasm.KindFunc, scale)

	iface, err := runtime.InterfaceOf(mathAPI{})
	if err != nil {
		t.Fatalf("InterfaceOf: %v", err)
	}
	mod, err := runtime.Compile(context.Background(), b.Binary(), iface, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return instantiate(t, mod, nil)
}

func TestInterfaceOf(t *testing.T) {
	iface, err := runtime.InterfaceOf(&mathAPI{})
	if err != nil {
		t.Fatalf("InterfaceOf: %v", err)
	}
	names := iface.Names()
	want := []string{"add", "div", "scale"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
	if got := iface["add"].String(); got != "(i32, i32) -> i32" {
		t.Errorf("add = %s", got)
	}

	if _, err := runtime.InterfaceOf(42); !errors.HasKind(err, errors.KindInvalidInput) {
		t.Errorf("expected invalid input for non-struct, got %v", err)
	}
	bad := struct{ F func(string) error }{}
	if _, err := runtime.InterfaceOf(bad); !errors.HasKind(err, errors.KindUnsupported) {
		t.Errorf("expected unsupported for string param, got %v", err)
	}
}

func TestBind(t *testing.T) {
	ctx := context.Background()
	inst := mathModule(t)

	add, err := runtime.Bind[func(context.Context, int32, int32) (int32, error)](inst, "add")
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	got, err := add(ctx, 40, 2)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if got != 42 {
		t.Errorf("add(40, 2) = %d, want 42", got)
	}

	div, err := runtime.Bind[func(int32, int32) (int32, error)](inst, "div")
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if _, err := div(1, 0); !errors.IsTrap(err, errors.TrapIntegerDivideByZero) {
		t.Errorf("expected divide by zero trap, got %v", err)
	}
	if q, err := div(-9, 3); err != nil || q != -3 {
		t.Errorf("div(-9, 3) = %d, %v", q, err)
	}

	t.Run("signature mismatch", func(t *testing.T) {
		_, err := runtime.Bind[func(int64, int64) (int64, error)](inst, "add")
		if !errors.HasKind(err, errors.KindExportSignatureMismatch) {
			t.Errorf("expected signature mismatch, got %v", err)
		}
	})

	t.Run("no error result", func(t *testing.T) {
		_, err := runtime.Bind[func(int32, int32) int32](inst, "add")
		if !errors.HasKind(err, errors.KindInvalidInput) {
			t.Errorf("expected invalid input, got %v", err)
		}
	})

	t.Run("missing export", func(t *testing.T) {
		_, err := runtime.Bind[func() error](inst, "nope")
		if !errors.HasKind(err, errors.KindNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
	})

	t.Run("not a function", func(t *testing.T) {
		_, err := runtime.Bind[int](inst, "add")
		if !errors.HasKind(err, errors.KindTypeMismatch) {
			t.Errorf("expected type mismatch, got %v", err)
		}
	})
}

func TestBindStruct(t *testing.T) {
	ctx := context.Background()
	inst := mathModule(t)

	var api mathAPI
	if err := runtime.BindStruct(inst, &api); err != nil {
		t.Fatalf("BindStruct: %v", err)
	}
	if api.Helper != nil || api.hidden != nil {
		t.Error("skipped fields should stay nil")
	}

	sum, err := api.Add(ctx, 2, 3)
	if err != nil || sum != 5 {
		t.Errorf("Add(2, 3) = %d, %v", sum, err)
	}
	q, err := api.Divide(7, 2)
	if err != nil || q != 3 {
		t.Errorf("Divide(7, 2) = %d, %v", q, err)
	}
	s, err := api.Scale(1.25)
	if err != nil || s != 2.5 {
		t.Errorf("Scale(1.25) = %v, %v", s, err)
	}

	if err := runtime.BindStruct(inst, api); !errors.HasKind(err, errors.KindInvalidInput) {
		t.Errorf("expected invalid input for non-pointer, got %v", err)
	}

	var missing struct {
		Sub func(int32, int32) (int32, error)
	}
	if err := runtime.BindStruct(inst, &missing); !errors.HasKind(err, errors.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

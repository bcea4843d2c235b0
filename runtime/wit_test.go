package runtime

import (
	"testing"

	"github.com/wippyai/wasm-compiler/errors"
	"github.com/wippyai/wasm-compiler/wasm"
)

func TestParseInterface(t *testing.T) {
	witText := `
		package test:example@1.0.0;

		interface calc {
			export add: func(a: s32, b: s32) -> s32;
			export sub: func(x: s32, y: s32) -> s32;
			export get-value: func() -> u64;
		}
	`

	iface, err := ParseInterface(witText)
	if err != nil {
		t.Fatalf("ParseInterface error: %v", err)
	}

	if len(iface) != 3 {
		t.Errorf("expected 3 functions, got %d", len(iface))
	}

	i32, i64 := wasm.ValI32, wasm.ValI64
	want := map[string]wasm.FuncType{
		"add":       {Params: []wasm.ValType{i32, i32}, Results: []wasm.ValType{i32}},
		"sub":       {Params: []wasm.ValType{i32, i32}, Results: []wasm.ValType{i32}},
		"get-value": {Results: []wasm.ValType{i64}},
	}
	for name, sig := range want {
		got, ok := iface[name]
		if !ok {
			t.Errorf("%s function not found", name)
			continue
		}
		if !got.Equal(sig) {
			t.Errorf("%s: got %s, want %s", name, got, sig)
		}
	}
}

func TestParseInterface_NoFunctions(t *testing.T) {
	witText := `
		package test:example@1.0.0;
		interface empty {}
	`

	_, err := ParseInterface(witText)
	if err == nil {
		t.Error("expected error for WIT with no functions")
	}
}

func TestParseInterface_TupleResult(t *testing.T) {
	iface, err := ParseInterface(`export divmod: func(a: s32, b: s32) -> (s32, s32);`)
	if err != nil {
		t.Fatalf("ParseInterface error: %v", err)
	}

	sig, ok := iface["divmod"]
	if !ok {
		t.Fatal("divmod function not found")
	}
	if len(sig.Params) != 2 {
		t.Errorf("expected 2 params, got %d", len(sig.Params))
	}
	if len(sig.Results) != 2 {
		t.Errorf("expected 2 results, got %d", len(sig.Results))
	}
}

func TestParseInterface_NoResult(t *testing.T) {
	iface, err := ParseInterface(`export log: func(level: u8, code: f64);`)
	if err != nil {
		t.Fatalf("ParseInterface error: %v", err)
	}

	sig, ok := iface["log"]
	if !ok {
		t.Fatal("log function not found")
	}
	if len(sig.Params) != 2 || sig.Params[0] != wasm.ValI32 || sig.Params[1] != wasm.ValF64 {
		t.Errorf("unexpected params %v", sig.Params)
	}
	if len(sig.Results) != 0 {
		t.Errorf("expected 0 results, got %d", len(sig.Results))
	}
}

func TestParseInterface_UnsupportedType(t *testing.T) {
	_, err := ParseInterface(`export greet: func(name: string) -> string;`)
	if !errors.HasKind(err, errors.KindUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}

func TestSplitParams(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"a: s32, b: s32", []string{"a: s32", "b: s32"}},
		{"x: u32, y: s32", []string{"x: u32", "y: s32"}},
		{"nested: u64", []string{"nested: u64"}},
		{"", []string{}},
		{" a : s32 , b : s32 ", []string{"a : s32", "b : s32"}},
		{"a: s32, b: f32, c: bool", []string{"a: s32", "b: f32", "c: bool"}},
		{"m: tuple<u32, u64>, n: u8", []string{"m: tuple<u32, u64>", "n: u8"}},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			result := splitParams(tc.input)
			if len(result) != len(tc.expected) {
				t.Errorf("expected %d parts, got %d: %v", len(tc.expected), len(result), result)
				return
			}
			for i, exp := range tc.expected {
				if result[i] != exp {
					t.Errorf("part %d: expected %q, got %q", i, exp, result[i])
				}
			}
		})
	}
}

func TestWitValType(t *testing.T) {
	tests := []struct {
		input string
		want  wasm.ValType
		valid bool
	}{
		{"s32", wasm.ValI32, true},
		{"s64", wasm.ValI64, true},
		{"u8", wasm.ValI32, true},
		{"u16", wasm.ValI32, true},
		{"u32", wasm.ValI32, true},
		{"u64", wasm.ValI64, true},
		{"f32", wasm.ValF32, true},
		{"f64", wasm.ValF64, true},
		{"bool", wasm.ValI32, true},
		{"char", wasm.ValI32, true},
		{" s32 ", wasm.ValI32, true},
		{"string", 0, false},
		{"invalid-type-xyz", 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := witValType(tc.input)
			if tc.valid && err != nil {
				t.Errorf("expected valid, got error: %v", err)
			}
			if !tc.valid && err == nil {
				t.Error("expected error for invalid type")
			}
			if tc.valid && got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

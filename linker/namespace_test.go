package linker

import (
	"context"
	"testing"

	"github.com/wippyai/wasm-compiler/engine"
	"github.com/wippyai/wasm-compiler/wasm"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		input  string
		want   Version
		wantOk bool
	}{
		{"0.2.0", Version{0, 2, 0}, true},
		{"1.0.0", Version{1, 0, 0}, true},
		{"0.2", Version{0, 2, 0}, true},
		{"1", Version{1, 0, 0}, true},
		{"10.20.30", Version{10, 20, 30}, true},
		{"", Version{}, false},
		{"abc", Version{}, false},
		{"1.2.3.4", Version{}, false},
		{"1.a.0", Version{}, false},
		{"+1.0", Version{}, false},
		{"4294967295", Version{4294967295, 0, 0}, true}, // max uint32
		{"4294967296", Version{}, false},                // overflow
		{"1..0", Version{}, false},                      // empty part
		{"1.0.", Version{}, false},                      // trailing dot
	}

	for _, tt := range tests {
		v, ok := ParseVersion(tt.input)
		if ok != tt.wantOk {
			t.Errorf("ParseVersion(%q) ok = %v, want %v", tt.input, ok, tt.wantOk)
		}
		if ok && v != tt.want {
			t.Errorf("ParseVersion(%q) = %v, want %v", tt.input, v, tt.want)
		}
	}
}

func TestVersionCompatible(t *testing.T) {
	tests := []struct {
		have   Version
		want   Version
		compat bool
	}{
		{Version{0, 2, 0}, Version{0, 2, 0}, true},  // exact match
		{Version{0, 2, 1}, Version{0, 2, 0}, true},  // patch higher
		{Version{0, 3, 0}, Version{0, 2, 0}, true},  // minor higher
		{Version{0, 3, 0}, Version{0, 2, 5}, true},  // minor higher, patch lower
		{Version{0, 1, 0}, Version{0, 2, 0}, false}, // minor lower
		{Version{1, 0, 0}, Version{0, 2, 0}, false}, // major different
		{Version{0, 2, 0}, Version{0, 2, 1}, false}, // patch lower
	}

	for _, tt := range tests {
		got := tt.have.Compatible(tt.want)
		if got != tt.compat {
			t.Errorf("Version{%v}.Compatible(%v) = %v, want %v",
				tt.have, tt.want, got, tt.compat)
		}
	}
}

func TestVersionString(t *testing.T) {
	v := Version{1, 2, 3}
	if s := v.String(); s != "1.2.3" {
		t.Errorf("Version{1,2,3}.String() = %q, want %q", s, "1.2.3")
	}
}

func TestParseNameVersion(t *testing.T) {
	tests := []struct {
		input   string
		name    string
		version *Version
	}{
		{"env", "env", nil},
		{"env@1.2.0", "env", &Version{1, 2, 0}},
		{"wasi:io/streams@0.2", "wasi:io/streams", &Version{0, 2, 0}},
		{"env@latest", "env@latest", nil},
	}
	for _, tt := range tests {
		name, v := parseNameVersion(tt.input)
		if name != tt.name {
			t.Errorf("parseNameVersion(%q) name = %q, want %q", tt.input, name, tt.name)
		}
		if (v == nil) != (tt.version == nil) || (v != nil && *v != *tt.version) {
			t.Errorf("parseNameVersion(%q) version = %v, want %v", tt.input, v, tt.version)
		}
	}
}

func constHost(v uint64) engine.HostFunc {
	return func(context.Context, []uint64) ([]uint64, error) {
		return []uint64{v}, nil
	}
}

func TestImportsLookup(t *testing.T) {
	sig := wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}
	im := Imports{}
	im.Func("env", "f", sig, constHost(0))
	im.Func("lib@1.2.0", "f", sig, constHost(120))
	im.Func("lib@1.4.1", "f", sig, constHost(141))
	im.Func("lib@2.0.0", "f", sig, constHost(200))

	tests := []struct {
		module string
		semver bool
		want   uint64
		found  bool
	}{
		{"env", false, 0, true},
		{"env", true, 0, true},
		{"lib@1.2.0", false, 120, true},
		{"lib@1.0.0", false, 0, false},
		{"lib@1.0.0", true, 141, true},
		{"lib@1.3.0", true, 141, true},
		{"lib@1.5.0", true, 0, false},
		{"lib@2.0.0", true, 200, true},
		{"lib", true, 0, false},
		{"other@1.0.0", true, 0, false},
	}

	for _, tt := range tests {
		e, ok := im.Lookup(tt.module, "f", tt.semver)
		if ok != tt.found {
			t.Errorf("Lookup(%q, semver=%v) found = %v, want %v", tt.module, tt.semver, ok, tt.found)
			continue
		}
		if !ok {
			continue
		}
		got, err := e.Func.Call(context.Background())
		if err != nil {
			t.Fatalf("Call: %v", err)
		}
		if got[0] != tt.want {
			t.Errorf("Lookup(%q, semver=%v) resolved to %d, want %d", tt.module, tt.semver, got[0], tt.want)
		}
	}
}

func TestExternKind(t *testing.T) {
	tests := []struct {
		ext  Extern
		kind byte
	}{
		{Extern{Func: engine.NewHostFunction("f", wasm.FuncType{}, constHost(0))}, wasm.KindFunc},
		{Extern{Memory: engine.NewMemory(1, 1)}, wasm.KindMemory},
		{Extern{Table: engine.NewTable(1, nil)}, wasm.KindTable},
		{Extern{Global: engine.NewGlobal(wasm.GlobalType{ValType: wasm.ValI32}, 0)}, wasm.KindGlobal},
	}
	for _, tt := range tests {
		if got := tt.ext.Kind(); got != tt.kind {
			t.Errorf("Kind() = %s, want %s", wasm.KindName(got), wasm.KindName(tt.kind))
		}
	}
}

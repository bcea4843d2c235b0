package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/wippyai/wasm-compiler/engine"
	"github.com/wippyai/wasm-compiler/linker"
	"github.com/wippyai/wasm-compiler/wasm"
)

// importInterface accepts every function import m declares, so modules with
// imports can be compiled from the command line.
func importInterface(m *wasm.Module) linker.ImportInterface {
	ii := make(linker.ImportInterface)
	for _, imp := range m.Imports {
		if imp.Desc.Kind != wasm.KindFunc {
			continue
		}
		ft := m.TypeAt(imp.Desc.TypeIdx)
		if ft == nil {
			continue
		}
		if ii[imp.Module] == nil {
			ii[imp.Module] = make(linker.Interface)
		}
		ii[imp.Module][imp.Name] = *ft
	}
	return ii
}

// stubImports satisfies every import of m. Functions fail when called;
// memories, tables and globals are allocated at their declared minimum.
func stubImports(m *wasm.Module) linker.Imports {
	im := make(linker.Imports)
	for _, imp := range m.Imports {
		switch imp.Desc.Kind {
		case wasm.KindFunc:
			ft := m.TypeAt(imp.Desc.TypeIdx)
			if ft == nil {
				continue
			}
			im.Func(imp.Module, imp.Name, *ft, stubFunc(imp.Module+"."+imp.Name))
		case wasm.KindMemory:
			l := imp.Desc.Memory.Limits
			im.Memory(imp.Module, imp.Name, engine.NewMemory(l.Min, maxOr(l.Max, wasm.MemoryMaxPages)))
		case wasm.KindTable:
			l := imp.Desc.Table.Limits
			im.Table(imp.Module, imp.Name, engine.NewTable(l.Min, l.Max))
		case wasm.KindGlobal:
			im.Global(imp.Module, imp.Name, engine.NewGlobal(*imp.Desc.Global, 0))
		}
	}
	return im
}

// stubHosts is the reference runner's view of the same function stubs.
func stubHosts(m *wasm.Module) map[string]engine.HostFunc {
	hosts := make(map[string]engine.HostFunc)
	for _, imp := range m.Imports {
		if imp.Desc.Kind == wasm.KindFunc {
			key := imp.Module + "." + imp.Name
			hosts[key] = stubFunc(key)
		}
	}
	return hosts
}

func stubFunc(name string) engine.HostFunc {
	return func(context.Context, []uint64) ([]uint64, error) {
		return nil, fmt.Errorf("import %s is not provided", name)
	}
}

func maxOr(p *uint32, def uint32) uint32 {
	if p == nil {
		return def
	}
	return *p
}

// parseArgs converts command line text to raw values of the export's
// parameter types.
func parseArgs(ft wasm.FuncType, text []string) ([]uint64, error) {
	if len(text) != len(ft.Params) {
		return nil, fmt.Errorf("expected %d arguments %s, got %d", len(ft.Params), ft, len(text))
	}
	args := make([]uint64, len(text))
	for i, s := range text {
		v, err := engine.ParseValue(ft.Params[i], strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = v
	}
	return args, nil
}

func formatResults(types []wasm.ValType, raw []uint64) string {
	parts := make([]string, len(raw))
	for i, v := range raw {
		t := wasm.ValI64
		if i < len(types) {
			t = types[i]
		}
		parts[i] = engine.FormatValue(t, v)
	}
	return strings.Join(parts, " ")
}

// exportType returns the signature of the function export name.
func exportType(m *wasm.Module, name string) (wasm.FuncType, error) {
	exp, ok := m.ExportByName(name, wasm.KindFunc)
	if !ok {
		return wasm.FuncType{}, fmt.Errorf("no function export %q", name)
	}
	ft := m.GetFuncType(exp.Idx)
	if ft == nil {
		return wasm.FuncType{}, fmt.Errorf("export %q has no type", name)
	}
	return *ft, nil
}

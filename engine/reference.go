package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-compiler/errors"
	"github.com/wippyai/wasm-compiler/wasm"
)

// Reference runs modules on the wazero interpreter so results of compiled
// code can be checked against an independent implementation.
type Reference struct {
	// MemoryLimitPages caps memory growth; 0 keeps wazero's default.
	MemoryLimitPages uint32
}

// NewReference creates a reference runner.
func NewReference(memoryLimitPages uint32) *Reference {
	return &Reference{MemoryLimitPages: memoryLimitPages}
}

func (r *Reference) runtimeConfig() wazero.RuntimeConfig {
	cfg := wazero.NewRuntimeConfigInterpreter()
	if r.MemoryLimitPages > 0 {
		cfg = cfg.WithMemoryLimitPages(r.MemoryLimitPages)
	}
	return cfg
}

// Run instantiates bin in a fresh wazero runtime and calls export with raw
// arguments. Function imports are served by hosts, keyed "module.name";
// imports without a host trap when called. Memory, table and global imports
// are not supported.
func (r *Reference) Run(ctx context.Context, bin []byte, export string, hosts map[string]HostFunc, args ...uint64) ([]uint64, error) {
	m, err := wasm.DecodeModule(bin)
	if err != nil {
		return nil, err
	}

	rt := wazero.NewRuntimeWithConfig(ctx, r.runtimeConfig())
	defer rt.Close(ctx)

	if err := r.defineImports(ctx, rt, m, hosts); err != nil {
		return nil, err
	}

	compiled, err := rt.CompileModule(ctx, bin)
	if err != nil {
		return nil, fmt.Errorf("reference compile failed: %w", err)
	}
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, fmt.Errorf("reference instantiate failed: %w", classify(err))
	}

	fn := mod.ExportedFunction(export)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "export", export)
	}
	out, err := fn.Call(ctx, args...)
	if err != nil {
		Logger().Debug("reference trap", zap.String("export", export), zap.Error(err))
		return nil, classify(err)
	}
	return out, nil
}

func (r *Reference) defineImports(ctx context.Context, rt wazero.Runtime, m *wasm.Module, hosts map[string]HostFunc) error {
	builders := make(map[string]wazero.HostModuleBuilder)
	var order []string
	for _, imp := range m.Imports {
		if imp.Desc.Kind != wasm.KindFunc {
			return errors.Unsupported(errors.PhaseLinking, "reference "+wasm.KindName(imp.Desc.Kind)+" import "+imp.Module+"."+imp.Name)
		}
		b, ok := builders[imp.Module]
		if !ok {
			b = rt.NewHostModuleBuilder(imp.Module)
			builders[imp.Module] = b
			order = append(order, imp.Module)
		}
		ft := m.TypeAt(imp.Desc.TypeIdx)
		if ft == nil {
			return fmt.Errorf("import %s.%s: unknown type %d", imp.Module, imp.Name, imp.Desc.TypeIdx)
		}
		b.NewFunctionBuilder().
			WithGoModuleFunction(hostHandler(imp.Module+"."+imp.Name, *ft, hosts[imp.Module+"."+imp.Name]), valueTypes(ft.Params), valueTypes(ft.Results)).
			Export(imp.Name)
	}
	for _, name := range order {
		if _, err := builders[name].Instantiate(ctx); err != nil {
			return fmt.Errorf("reference host module %q: %w", name, err)
		}
	}
	return nil
}

func hostHandler(name string, ft wasm.FuncType, fn HostFunc) api.GoModuleFunc {
	np := len(ft.Params)
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		if fn == nil {
			panic(fmt.Errorf("unresolved import %s called", name))
		}
		out, err := fn(ctx, append([]uint64(nil), stack[:np]...))
		if err != nil {
			panic(err)
		}
		copy(stack, out)
	}
}

func valueTypes(vts []wasm.ValType) []api.ValueType {
	out := make([]api.ValueType, len(vts))
	for i, vt := range vts {
		out[i] = api.ValueType(vt)
	}
	return out
}

// wazero reports traps as plain errors; map them to trap codes by message.
var referenceTraps = []struct {
	text string
	code errors.TrapCode
}{
	{"out of bounds memory access", errors.TrapOutOfBoundsMemoryAccess},
	{"integer divide by zero", errors.TrapIntegerDivideByZero},
	{"integer overflow", errors.TrapIntegerOverflow},
	{"indirect call type mismatch", errors.TrapIndirectCallTypeMismatch},
	{"invalid table access", errors.TrapUndefinedElement},
	{"unreachable", errors.TrapUnreachableExecuted},
	{"invalid conversion to integer", errors.TrapInvalidConversionToInteger},
	{"stack overflow", errors.TrapCallStackExhausted},
}

func classify(err error) error {
	msg := err.Error()
	for _, t := range referenceTraps {
		if strings.Contains(msg, t.text) {
			return &errors.Trap{Code: t.code, Cause: err}
		}
	}
	return err
}

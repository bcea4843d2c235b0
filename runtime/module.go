package runtime

import (
	"context"

	"github.com/wippyai/wasm-compiler/engine"
	"github.com/wippyai/wasm-compiler/linker"
	"github.com/wippyai/wasm-compiler/wasm"
)

// Module is a validated, compiled module. It is immutable; any number of
// instances may be created from it, concurrently.
type Module struct {
	rt       *Runtime
	module   *wasm.Module
	exports  linker.Interface
	compiled []*engine.CompiledFunction
	unbound  []string
}

// Wasm returns the decoded module.
func (m *Module) Wasm() *wasm.Module {
	return m.module
}

// Compiled returns the compiled function units, in code section order.
func (m *Module) Compiled() []*engine.CompiledFunction {
	return m.compiled
}

// Unbound lists export descriptor members the module does not provide.
func (m *Module) Unbound() []string {
	return m.unbound
}

// Factory returns a constructor for independent instances of m.
func (m *Module) Factory() func(ctx context.Context, imports linker.Imports) (*Instance, error) {
	return m.Instantiate
}

// Instantiate creates an instance of m. Imports not supplied are taken from
// the runtime's host registry.
func (m *Module) Instantiate(ctx context.Context, imports linker.Imports) (*Instance, error) {
	all := m.rt.hosts.Imports()
	for mod, names := range imports {
		for name, ext := range names {
			all.Define(mod, name, ext)
		}
	}

	cfg := m.rt.cfg
	inst, err := linker.Instantiate(ctx, m.module, m.compiled, all, &linker.Options{
		Exports:          m.exports,
		MaxCallDepth:     cfg.MaxCallDepth,
		MemoryLimitPages: cfg.MemoryLimitPages,
		SemverImports:    cfg.SemverImports,
	})
	if err != nil {
		return nil, err
	}
	return &Instance{module: m, inst: inst}, nil
}

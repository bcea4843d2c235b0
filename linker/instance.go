package linker

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-compiler/engine"
	"github.com/wippyai/wasm-compiler/errors"
	"github.com/wippyai/wasm-compiler/wasm"
)

// Options controls instantiation.
type Options struct {
	// Exports, when set, is bound eagerly: a member exported with a
	// different signature fails instantiation; a missing member is recorded
	// in Exports.Unbound.
	Exports Interface
	// Name labels the instance in logs and traps.
	Name string
	// MaxCallDepth bounds nested calls; 0 selects engine.DefaultMaxCallDepth.
	MaxCallDepth int
	// MemoryLimitPages caps the growth of a memory the module defines.
	// 0 means no cap beyond the declared maximum.
	MemoryLimitPages uint32
	// SemverImports lets a versioned import module resolve to a compatible
	// newer version.
	SemverImports bool
}

// Exports gives access to an instance's exports by kind and name.
type Exports struct {
	Funcs    map[string]*engine.Function
	Memories map[string]*engine.Memory
	Tables   map[string]*engine.Table
	Globals  map[string]*engine.Global
	// Unbound lists descriptor members the module does not export.
	Unbound []string
}

// Func returns the exported function name.
func (e *Exports) Func(name string) (*engine.Function, error) {
	if f, ok := e.Funcs[name]; ok {
		return f, nil
	}
	for _, u := range e.Unbound {
		if u == name {
			return nil, errors.New(errors.PhaseLinking, errors.KindUnboundExport).
				Path(name).
				Detail("export %q is declared by the interface but not provided by the module", name).
				Build()
		}
	}
	return nil, errors.NotFound(errors.PhaseRuntime, "export", name)
}

// Memory returns the exported memory name, or nil.
func (e *Exports) Memory(name string) *engine.Memory {
	return e.Memories[name]
}

// Global returns the exported global name, or nil.
func (e *Exports) Global(name string) *engine.Global {
	return e.Globals[name]
}

// FuncNames returns exported function names in sorted order.
func (e *Exports) FuncNames() []string {
	names := make([]string, 0, len(e.Funcs))
	for n := range e.Funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Instance is an instantiated module.
type Instance struct {
	module  *wasm.Module
	inst    *engine.Instance
	exports *Exports
}

// Exports returns the instance's exports.
func (i *Instance) Exports() *Exports {
	return i.exports
}

// Module returns the module the instance was created from.
func (i *Instance) Module() *wasm.Module {
	return i.module
}

// Engine returns the underlying runtime state.
func (i *Instance) Engine() *engine.Instance {
	return i.inst
}

// Instantiate creates an instance of m. compiled must be engine.Compile(m);
// it is shared, never modified.
func Instantiate(ctx context.Context, m *wasm.Module, compiled []*engine.CompiledFunction, imports Imports, opts *Options) (*Instance, error) {
	if opts == nil {
		opts = &Options{}
	}
	if len(compiled) != len(m.Code) {
		return nil, instError(errors.KindInstantiation, "compile", -1, "",
			fmt.Sprintf("%d compiled function(s) for %d bodies", len(compiled), len(m.Code)), nil)
	}

	r, err := resolveImports(m, imports, opts.SemverImports)
	if err != nil {
		return nil, err
	}

	inst := &engine.Instance{
		Name:         opts.Name,
		MaxCallDepth: opts.MaxCallDepth,
		Memory:       r.memory,
		Table:        r.table,
	}
	if err := allocate(m, inst, r, opts); err != nil {
		return nil, err
	}

	names := functionNames(m, opts.Name)
	inst.Funcs = append(inst.Funcs, r.funcs...)
	for _, cf := range compiled {
		inst.Funcs = append(inst.Funcs, inst.NewFunction(cf, names[cf.Index]))
	}

	if err := initSegments(m, inst); err != nil {
		return nil, err
	}

	if m.Start != nil {
		if _, err := inst.Funcs[*m.Start].Call(ctx); err != nil {
			return nil, instError(errors.KindInstantiation, "start", int(*m.Start), "", "start function failed", err)
		}
	}

	exports, err := bindExports(m, inst, opts.Exports)
	if err != nil {
		return nil, err
	}

	Logger().Debug("instance created",
		zap.String("name", opts.Name),
		zap.Int("funcs", len(inst.Funcs)),
		zap.Int("exports", len(m.Exports)),
		zap.Strings("unbound", exports.Unbound))

	return &Instance{module: m, inst: inst, exports: exports}, nil
}

func allocate(m *wasm.Module, inst *engine.Instance, r *resolved, opts *Options) error {
	if len(m.Memories) > 0 {
		lim := m.Memories[0].Limits
		maxPages := uint32(wasm.MemoryMaxPages)
		if lim.Max != nil {
			maxPages = *lim.Max
		}
		if opts.MemoryLimitPages > 0 && opts.MemoryLimitPages < maxPages {
			maxPages = opts.MemoryLimitPages
		}
		if lim.Min > maxPages {
			return instError(errors.KindInstantiation, "memory", 0, "",
				fmt.Sprintf("memory needs %d page(s), limit is %d", lim.Min, maxPages), nil)
		}
		inst.Memory = engine.NewMemory(lim.Min, maxPages)
	}
	if len(m.Tables) > 0 {
		lim := m.Tables[0].Limits
		inst.Table = engine.NewTable(lim.Min, lim.Max)
	}

	inst.Globals = append(inst.Globals, r.globals...)
	for i, g := range m.Globals {
		raw, err := engine.EvalConst(g.Init, inst.Globals)
		if err != nil {
			return instError(errors.KindInstantiation, "global", len(r.globals)+i, "", "initializer failed", err)
		}
		inst.Globals = append(inst.Globals, engine.NewGlobal(g.Type, raw))
	}
	return nil
}

// functionNames labels each function by its first export name, or by index.
func functionNames(m *wasm.Module, prefix string) map[uint32]string {
	names := make(map[uint32]string, m.NumFuncs())
	for _, e := range m.Exports {
		if e.Kind != wasm.KindFunc {
			continue
		}
		if _, ok := names[e.Idx]; !ok {
			names[e.Idx] = e.Name
		}
	}
	for i := uint32(m.NumImportedFuncs()); i < uint32(m.NumFuncs()); i++ {
		if _, ok := names[i]; !ok {
			names[i] = fmt.Sprintf("func[%d]", i)
		}
		if prefix != "" {
			names[i] = prefix + "." + names[i]
		}
	}
	return names
}

// initSegments checks that every active segment fits before writing any,
// then applies them. Passive data stays available to memory.init.
func initSegments(m *wasm.Module, inst *engine.Instance) error {
	dataOff := make([]uint64, len(m.Data))
	for i := range m.Data {
		d := &m.Data[i]
		if !d.Active() {
			continue
		}
		off, err := engine.EvalConst(d.Offset, inst.Globals)
		if err != nil {
			return instError(errors.KindInstantiation, "data", i, "", "offset failed", err)
		}
		dataOff[i] = uint64(uint32(off))
		if inst.Memory == nil || dataOff[i]+uint64(len(d.Init)) > uint64(len(inst.Memory.Bytes())) {
			size := 0
			if inst.Memory != nil {
				size = len(inst.Memory.Bytes())
			}
			return instError(errors.KindSegmentOutOfBounds, "data", i, "",
				fmt.Sprintf("segment [%d, %d) exceeds memory of %d byte(s)", dataOff[i], dataOff[i]+uint64(len(d.Init)), size), nil)
		}
	}

	elemOff := make([]uint64, len(m.Elements))
	for i := range m.Elements {
		e := &m.Elements[i]
		if !e.Active() {
			continue
		}
		off, err := engine.EvalConst(e.Offset, inst.Globals)
		if err != nil {
			return instError(errors.KindInstantiation, "element", i, "", "offset failed", err)
		}
		elemOff[i] = uint64(uint32(off))
		if inst.Table == nil || elemOff[i]+uint64(len(e.FuncIdxs)) > uint64(inst.Table.Size()) {
			var size uint32
			if inst.Table != nil {
				size = inst.Table.Size()
			}
			return instError(errors.KindSegmentOutOfBounds, "element", i, "",
				fmt.Sprintf("segment [%d, %d) exceeds table of %d element(s)", elemOff[i], elemOff[i]+uint64(len(e.FuncIdxs)), size), nil)
		}
	}

	inst.Data = make([][]byte, len(m.Data))
	for i := range m.Data {
		d := &m.Data[i]
		if !d.Active() {
			inst.Data[i] = d.Init
			continue
		}
		copy(inst.Memory.Bytes()[dataOff[i]:], d.Init)
	}
	for i := range m.Elements {
		e := &m.Elements[i]
		if !e.Active() {
			continue
		}
		for j, fi := range e.FuncIdxs {
			if err := inst.Table.Set(uint32(elemOff[i])+uint32(j), inst.Funcs[fi]); err != nil {
				return instError(errors.KindSegmentOutOfBounds, "element", i, "", "write failed", err)
			}
		}
	}
	return nil
}

func bindExports(m *wasm.Module, inst *engine.Instance, want Interface) (*Exports, error) {
	ex := &Exports{
		Funcs:    make(map[string]*engine.Function),
		Memories: make(map[string]*engine.Memory),
		Tables:   make(map[string]*engine.Table),
		Globals:  make(map[string]*engine.Global),
	}
	for _, e := range m.Exports {
		switch e.Kind {
		case wasm.KindFunc:
			ex.Funcs[e.Name] = inst.Funcs[e.Idx]
		case wasm.KindMemory:
			ex.Memories[e.Name] = inst.Memory
		case wasm.KindTable:
			ex.Tables[e.Name] = inst.Table
		case wasm.KindGlobal:
			ex.Globals[e.Name] = inst.Globals[e.Idx]
		}
	}

	for _, name := range want.Names() {
		sig := want[name]
		f, ok := ex.Funcs[name]
		if !ok {
			ex.Unbound = append(ex.Unbound, name)
			continue
		}
		if !f.Type.Equal(sig) {
			t := f.Type
			return nil, exportMismatch(name, sig, &t)
		}
	}
	return ex, nil
}

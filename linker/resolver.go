package linker

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-compiler/engine"
	"github.com/wippyai/wasm-compiler/errors"
	"github.com/wippyai/wasm-compiler/wasm"
)

// resolved holds the externs bound to a module's imports, in index order.
type resolved struct {
	memory  *engine.Memory
	table   *engine.Table
	funcs   []*engine.Function
	globals []*engine.Global
}

// resolveImports binds every import of m or reports all failures at once.
// No coercion is attempted: kinds and signatures must match exactly.
func resolveImports(m *wasm.Module, imports Imports, semver bool) (*resolved, error) {
	r := &resolved{}
	var failed []errors.UnresolvedImport
	fail := func(imp wasm.Import, format string, args ...any) {
		failed = append(failed, errors.UnresolvedImport{
			Module: imp.Module,
			Name:   imp.Name,
			Reason: fmt.Sprintf(format, args...),
		})
	}

	for _, imp := range m.Imports {
		ext, ok := imports.Lookup(imp.Module, imp.Name, semver)
		if !ok || ext.isZero() {
			fail(imp, "not provided")
			continue
		}
		if ext.Kind() != imp.Desc.Kind {
			fail(imp, "expected %s, got %s", wasm.KindName(imp.Desc.Kind), wasm.KindName(ext.Kind()))
			continue
		}
		switch imp.Desc.Kind {
		case wasm.KindFunc:
			want := m.TypeAt(imp.Desc.TypeIdx)
			if want == nil || !ext.Func.Type.Equal(*want) {
				fail(imp, "expected %s, got %s", sigString(want), ext.Func.Type)
				continue
			}
			r.funcs = append(r.funcs, ext.Func)
		case wasm.KindMemory:
			if reason := memoryMismatch(imp.Desc.Memory.Limits, ext.Memory); reason != "" {
				fail(imp, "%s", reason)
				continue
			}
			r.memory = ext.Memory
		case wasm.KindTable:
			if reason := tableMismatch(imp.Desc.Table.Limits, ext.Table); reason != "" {
				fail(imp, "%s", reason)
				continue
			}
			r.table = ext.Table
		case wasm.KindGlobal:
			want := *imp.Desc.Global
			if ext.Global.Type != want {
				fail(imp, "expected %s, got %s", globalString(want), globalString(ext.Global.Type))
				continue
			}
			r.globals = append(r.globals, ext.Global)
		}
		Logger().Debug("import resolved",
			zap.String("module", imp.Module),
			zap.String("name", imp.Name),
			zap.String("kind", wasm.KindName(imp.Desc.Kind)))
	}

	if len(failed) > 0 {
		return nil, instError(errors.KindUnresolvedImport, "import_resolution", -1, "",
			fmt.Sprintf("%d import(s) could not be resolved", len(failed)),
			&errors.UnresolvedImportsError{Imports: failed})
	}
	return r, nil
}

func memoryMismatch(want wasm.Limits, mem *engine.Memory) string {
	if mem.Pages() < want.Min {
		return fmt.Sprintf("memory has %d page(s), need at least %d", mem.Pages(), want.Min)
	}
	if want.Max != nil && mem.MaxPages() > *want.Max {
		return fmt.Sprintf("memory may grow to %d page(s), import allows %d", mem.MaxPages(), *want.Max)
	}
	return ""
}

func tableMismatch(want wasm.Limits, t *engine.Table) string {
	if t.Size() < want.Min {
		return fmt.Sprintf("table has %d element(s), need at least %d", t.Size(), want.Min)
	}
	if want.Max != nil && (t.Max() == nil || *t.Max() > *want.Max) {
		return fmt.Sprintf("table maximum exceeds %d", *want.Max)
	}
	return ""
}

func globalString(t wasm.GlobalType) string {
	if t.Mutable {
		return "mut " + t.ValType.String()
	}
	return t.ValType.String()
}

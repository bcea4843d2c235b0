package linker

import (
	"sort"

	"github.com/wippyai/wasm-compiler/errors"
	"github.com/wippyai/wasm-compiler/wasm"
)

// Interface describes the functions a consumer expects by name.
type Interface map[string]wasm.FuncType

// Names returns the member names in sorted order.
func (i Interface) Names() []string {
	names := make([]string, 0, len(i))
	for n := range i {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ImportInterface describes the host functions a consumer provides, by
// module then field name.
type ImportInterface map[string]Interface

// Check reports every function import of m that the interface does not
// provide with an identical signature. Non-function imports are not
// described by an ImportInterface and are left to instantiation.
func (ii ImportInterface) Check(m *wasm.Module) error {
	var missing []errors.UnresolvedImport
	for _, imp := range m.Imports {
		if imp.Desc.Kind != wasm.KindFunc {
			continue
		}
		want := m.TypeAt(imp.Desc.TypeIdx)
		have, ok := ii[imp.Module][imp.Name]
		switch {
		case !ok:
			missing = append(missing, errors.UnresolvedImport{Module: imp.Module, Name: imp.Name, Reason: "not provided"})
		case want == nil || !have.Equal(*want):
			missing = append(missing, errors.UnresolvedImport{
				Module: imp.Module,
				Name:   imp.Name,
				Reason: "module expects " + sigString(want) + ", interface provides " + have.String(),
			})
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return instError(errors.KindUnresolvedImport, "import_check", -1, "", "imports do not match the host interface",
		&errors.UnresolvedImportsError{Imports: missing})
}

// Check verifies that every member of the interface is exported by m as a
// function with an identical signature. Members that are absent are
// returned as unbound; a signature mismatch is an error.
func (i Interface) Check(m *wasm.Module) (unbound []string, err error) {
	for _, name := range i.Names() {
		want := i[name]
		e, ok := m.ExportByName(name, wasm.KindFunc)
		if !ok {
			unbound = append(unbound, name)
			continue
		}
		have := m.GetFuncType(e.Idx)
		if have == nil || !have.Equal(want) {
			return nil, exportMismatch(name, want, have)
		}
	}
	return unbound, nil
}

func exportMismatch(name string, want wasm.FuncType, have *wasm.FuncType) error {
	return instError(errors.KindExportSignatureMismatch, "export_binding", -1, name,
		"expected "+want.String()+", module exports "+sigString(have), nil)
}

func sigString(t *wasm.FuncType) string {
	if t == nil {
		return "<unknown type>"
	}
	return t.String()
}

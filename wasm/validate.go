package wasm

import (
	"fmt"

	"github.com/wippyai/wasm-compiler/errors"
)

// Validate checks the module for structural validity and type-checks every
// function body. It returns the first validate-phase *errors.Error found.
func (m *Module) Validate() error {
	if err := m.checkIndices(); err != nil {
		return err
	}
	if err := m.validateCodeCount(); err != nil {
		return err
	}
	if err := m.validateLimits(); err != nil {
		return err
	}
	if err := m.validateExports(); err != nil {
		return err
	}
	if err := m.validateStart(); err != nil {
		return err
	}
	if err := m.validateGlobals(); err != nil {
		return err
	}
	if err := m.validateSegments(); err != nil {
		return err
	}
	for i := range m.Code {
		if err := m.validateFunction(i); err != nil {
			return err
		}
	}
	return nil
}

// DecodeAndValidate parses a WebAssembly binary and validates it.
func DecodeAndValidate(data []byte) (*Module, error) {
	m, err := DecodeModule(data)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func invalid(kind errors.Kind, path []string, format string, args ...any) error {
	return errors.New(errors.PhaseValidate, kind).Path(path...).Detail(format, args...).Build()
}

// checkIndices verifies every index the module refers to is in range.
// DecodeModule runs it too and reports failures as MalformedBinary.
func (m *Module) checkIndices() error {
	numTypes := uint32(len(m.Types))
	numFuncs := uint32(m.NumFuncs())

	for i, typeIdx := range m.Funcs {
		if typeIdx >= numTypes {
			return invalid(errors.KindUnknownType, []string{fmt.Sprintf("func[%d]", i)},
				"invalid type index %d (have %d types)", typeIdx, numTypes)
		}
	}
	for i, imp := range m.Imports {
		if imp.Desc.Kind == KindFunc && imp.Desc.TypeIdx >= numTypes {
			return invalid(errors.KindUnknownType, []string{fmt.Sprintf("import[%d]", i)},
				"invalid type index %d for %s.%s", imp.Desc.TypeIdx, imp.Module, imp.Name)
		}
	}

	for i, exp := range m.Exports {
		var limit uint32
		var kind errors.Kind
		switch exp.Kind {
		case KindFunc:
			limit, kind = numFuncs, errors.KindUnknownFunction
		case KindTable:
			limit, kind = uint32(m.NumTables()), errors.KindUnknownTable
		case KindMemory:
			limit, kind = uint32(m.NumMemories()), errors.KindUndefinedMemory
		case KindGlobal:
			limit, kind = uint32(m.NumGlobals()), errors.KindUnknownGlobal
		default:
			return invalid(errors.KindInvalidData, []string{fmt.Sprintf("export[%d]", i)}, "invalid export kind %d", exp.Kind)
		}
		if exp.Idx >= limit {
			return invalid(kind, []string{fmt.Sprintf("export[%d]", i)},
				"export %q references %s %d (have %d)", exp.Name, KindName(exp.Kind), exp.Idx, limit)
		}
	}

	if m.Start != nil && *m.Start >= numFuncs {
		return invalid(errors.KindUnknownFunction, []string{"start"}, "start function %d out of range", *m.Start)
	}

	for i, e := range m.Elements {
		path := []string{fmt.Sprintf("elem[%d]", i)}
		if e.Active() && e.TableIdx >= uint32(m.NumTables()) {
			return invalid(errors.KindUnknownTable, path, "table %d out of range", e.TableIdx)
		}
		for _, f := range e.FuncIdxs {
			if f >= numFuncs {
				return invalid(errors.KindUnknownFunction, path, "function %d out of range", f)
			}
		}
	}
	for i, d := range m.Data {
		if d.Active() && d.MemIdx >= uint32(m.NumMemories()) {
			return invalid(errors.KindUndefinedMemory, []string{fmt.Sprintf("data[%d]", i)}, "memory %d out of range", d.MemIdx)
		}
	}

	for i := range m.Code {
		for pc, instr := range m.Code[i].Body {
			if err := m.checkInstrIndices(instr, numTypes, numFuncs); err != nil {
				err.Path = []string{fmt.Sprintf("func[%d]", m.NumImportedFuncs()+i), fmt.Sprintf("instr[%d]", pc)}
				return err
			}
		}
	}
	return nil
}

func (m *Module) checkInstrIndices(instr Instruction, numTypes, numFuncs uint32) *errors.Error {
	switch imm := instr.Imm.(type) {
	case CallImm:
		if imm.FuncIdx >= numFuncs {
			return errors.New(errors.PhaseValidate, errors.KindUnknownFunction).
				Detail("call to function %d (have %d)", imm.FuncIdx, numFuncs).Build()
		}
	case CallIndirectImm:
		if imm.TypeIdx >= numTypes {
			return errors.New(errors.PhaseValidate, errors.KindUnknownType).
				Detail("call_indirect type %d (have %d)", imm.TypeIdx, numTypes).Build()
		}
	case BlockImm:
		if imm.Type >= 0 && uint32(imm.Type) >= numTypes {
			return errors.New(errors.PhaseValidate, errors.KindUnknownType).
				Detail("block type %d (have %d)", imm.Type, numTypes).Build()
		}
	}
	return nil
}

func (m *Module) validateCodeCount() error {
	if len(m.Code) != len(m.Funcs) {
		return invalid(errors.KindInvalidData, nil,
			"function and code section have inconsistent lengths: %d vs %d", len(m.Funcs), len(m.Code))
	}
	if m.DataCount != nil && int(*m.DataCount) != len(m.Data) {
		return invalid(errors.KindInvalidData, nil, "data count %d does not match %d data segments", *m.DataCount, len(m.Data))
	}
	return nil
}

func (m *Module) validateLimits() error {
	if n := m.NumMemories(); n > 1 {
		return invalid(errors.KindInvalidData, []string{"memory"}, "multiple memories (%d) are not supported", n)
	}
	if n := m.NumTables(); n > 1 {
		return invalid(errors.KindInvalidData, []string{"table"}, "multiple tables (%d) are not supported", n)
	}
	for i := uint32(0); i < uint32(m.NumMemories()); i++ {
		lim := m.MemoryAt(i).Limits
		path := []string{fmt.Sprintf("memory[%d]", i)}
		if lim.Min > MemoryMaxPages {
			return invalid(errors.KindInvalidLimits, path, "memory size must be at most %d pages, got %d", MemoryMaxPages, lim.Min)
		}
		if lim.Max != nil {
			if *lim.Max > MemoryMaxPages {
				return invalid(errors.KindInvalidLimits, path, "memory size must be at most %d pages, got %d", MemoryMaxPages, *lim.Max)
			}
			if lim.Min > *lim.Max {
				return invalid(errors.KindInvalidLimits, path, "size minimum %d must not be greater than maximum %d", lim.Min, *lim.Max)
			}
		}
	}
	for i, imp := range m.Imports {
		if imp.Desc.Kind == KindTable && imp.Desc.Table == nil ||
			imp.Desc.Kind == KindMemory && imp.Desc.Memory == nil ||
			imp.Desc.Kind == KindGlobal && imp.Desc.Global == nil {
			return invalid(errors.KindInvalidData, []string{fmt.Sprintf("import[%d]", i)}, "import %s.%s has no type", imp.Module, imp.Name)
		}
		if imp.Desc.Kind == KindTable {
			if err := validateTableLimits(imp.Desc.Table.Limits, fmt.Sprintf("import[%d]", i)); err != nil {
				return err
			}
		}
	}
	for i, t := range m.Tables {
		if err := validateTableLimits(t.Limits, fmt.Sprintf("table[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

func validateTableLimits(lim Limits, where string) error {
	if lim.Max != nil && lim.Min > *lim.Max {
		return invalid(errors.KindInvalidLimits, []string{where}, "size minimum %d must not be greater than maximum %d", lim.Min, *lim.Max)
	}
	return nil
}

func (m *Module) validateExports() error {
	seen := make(map[byte]map[string]bool, 4)
	for i, exp := range m.Exports {
		if seen[exp.Kind] == nil {
			seen[exp.Kind] = make(map[string]bool)
		}
		if seen[exp.Kind][exp.Name] {
			return invalid(errors.KindDuplicateExport, []string{fmt.Sprintf("export[%d]", i)},
				"duplicate %s export name %q", KindName(exp.Kind), exp.Name)
		}
		seen[exp.Kind][exp.Name] = true
	}
	return nil
}

func (m *Module) validateStart() error {
	if m.Start == nil {
		return nil
	}
	ft := m.GetFuncType(*m.Start)
	if ft == nil {
		return invalid(errors.KindUnknownFunction, []string{"start"}, "start function %d out of range", *m.Start)
	}
	if len(ft.Params) != 0 || len(ft.Results) != 0 {
		return invalid(errors.KindTypeMismatch, []string{"start"}, "start function must have type () -> (), got %s", ft)
	}
	return nil
}

func (m *Module) validateGlobals() error {
	for i, g := range m.Globals {
		if err := m.validateConstExpr(g.Init, g.Type.ValType, fmt.Sprintf("global[%d]", m.NumImportedGlobals()+i)); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) validateSegments() error {
	for i, e := range m.Elements {
		if e.Active() {
			if err := m.validateConstExpr(e.Offset, ValI32, fmt.Sprintf("elem[%d]", i)); err != nil {
				return err
			}
		}
	}
	for i, d := range m.Data {
		if d.Active() {
			if err := m.validateConstExpr(d.Offset, ValI32, fmt.Sprintf("data[%d]", i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateConstExpr accepts a single constant or a global.get of an imported
// immutable global producing want.
func (m *Module) validateConstExpr(expr []Instruction, want ValType, where string) error {
	path := []string{where}
	if len(expr) != 1 {
		return invalid(errors.KindConstantExpression, path, "constant expression must be a single instruction, got %d", len(expr))
	}
	var got ValType
	instr := expr[0]
	switch instr.Opcode {
	case OpI32Const:
		got = ValI32
	case OpI64Const:
		got = ValI64
	case OpF32Const:
		got = ValF32
	case OpF64Const:
		got = ValF64
	case OpGlobalGet:
		imm, ok := instr.Imm.(GlobalImm)
		if !ok {
			return invalid(errors.KindInvalidData, path, "global.get without index")
		}
		if int(imm.GlobalIdx) >= m.NumImportedGlobals() {
			return invalid(errors.KindUnknownGlobal, path, "constant expression may only read imported globals, got %d", imm.GlobalIdx)
		}
		gt := m.GlobalTypeAt(imm.GlobalIdx)
		if gt.Mutable {
			return invalid(errors.KindConstantExpression, path, "constant expression reads mutable global %d", imm.GlobalIdx)
		}
		got = gt.ValType
	default:
		return invalid(errors.KindConstantExpression, path, "opcode 0x%02x is not constant", instr.Opcode)
	}
	if got != want {
		return invalid(errors.KindTypeMismatch, path, "constant expression has type %s, expected %s", got, want)
	}
	return nil
}

package wasm

import "strings"

// Module represents a parsed WebAssembly module
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32 // Type indices for declared functions
	Tables   []TableType
	Memories []MemoryType
	Globals  []Global
	Exports  []Export
	Start    *uint32
	Elements []Element

	// DataCount holds the count from the DataCount section (ID 12).
	// Required when data indices appear in code (bulk memory operations).
	DataCount *uint32

	Code []FuncBody
	Data []DataSegment

	// Sections holds custom and unknown sections, kept opaque for re-encoding.
	Sections []RawSection
}

// FuncType represents a WebAssembly function signature with parameter and result types.
// Identity is structural: see Equal.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether both signatures have identical parameter and result kinds.
func (f FuncType) Equal(o FuncType) bool {
	return valTypesEqual(f.Params, o.Params) && valTypesEqual(f.Results, o.Results)
}

func (f FuncType) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteString(") -> ")
	switch len(f.Results) {
	case 0:
		b.WriteString("()")
	case 1:
		b.WriteString(f.Results[0].String())
	default:
		b.WriteByte('(')
		for i, r := range f.Results {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(r.String())
		}
		b.WriteByte(')')
	}
	return b.String()
}

func valTypesEqual(a, b []ValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ValType represents a WebAssembly value type.
// See constants.go for ValI32, ValI64, ValF32, ValF64.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	default:
		return "unknown"
	}
}

// Valid reports whether v is one of the four number types.
func (v ValType) Valid() bool {
	switch v {
	case ValI32, ValI64, ValF32, ValF64:
		return true
	}
	return false
}

// Import represents a module import
type Import struct {
	Module string
	Name   string
	Desc   ImportDesc
}

// ImportDesc describes the shape an import must satisfy.
// Exactly one of TypeIdx, Table, Memory or Global is meaningful, selected by Kind.
type ImportDesc struct {
	Table   *TableType
	Memory  *MemoryType
	Global  *GlobalType
	TypeIdx uint32
	Kind    byte
}

// TableType describes a table
type TableType struct {
	Limits   Limits
	ElemType byte
}

// MemoryType describes a memory
type MemoryType struct {
	Limits Limits
}

// Limits describes min/max bounds, in pages for memories and elements for tables.
type Limits struct {
	Max *uint32
	Min uint32
}

// GlobalType describes a global variable type
type GlobalType struct {
	ValType ValType
	Mutable bool
}

// Global represents a global variable with its constant initializer (end excluded).
type Global struct {
	Init []Instruction
	Type GlobalType
}

// Export represents a module export
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// Element segment flags.
const (
	ElemActive         uint32 = 0 // active, table 0, func indices
	ElemPassive        uint32 = 1 // passive, elemkind, func indices
	ElemActiveExplicit uint32 = 2 // active, explicit table, elemkind, func indices
	ElemDeclarative    uint32 = 3 // declarative, elemkind, func indices
)

// Element represents an element segment. Only the func-index encodings are supported.
type Element struct {
	Offset   []Instruction
	FuncIdxs []uint32
	Flags    uint32
	TableIdx uint32
}

// Active reports whether the segment is applied at instantiation.
func (e *Element) Active() bool {
	return e.Flags == ElemActive || e.Flags == ElemActiveExplicit
}

// Data segment flags.
const (
	DataActive         uint32 = 0
	DataPassive        uint32 = 1
	DataActiveExplicit uint32 = 2
)

// DataSegment represents a data segment
type DataSegment struct {
	Offset []Instruction
	Init   []byte
	Flags  uint32
	MemIdx uint32
}

// Active reports whether the segment is applied at instantiation.
func (d *DataSegment) Active() bool {
	return d.Flags != DataPassive
}

// FuncBody represents a function body: local declarations and the decoded
// instruction sequence, including the final end.
type FuncBody struct {
	Locals []LocalEntry
	Body   []Instruction
}

// LocalEntry represents a run of local variables of the same type
type LocalEntry struct {
	Count   uint32
	ValType ValType
}

// NumLocals returns the number of declared locals, excluding parameters.
func (b *FuncBody) NumLocals() uint64 {
	var n uint64
	for _, l := range b.Locals {
		n += uint64(l.Count)
	}
	return n
}

// RawSection is a custom or unknown section preserved as opaque bytes.
// After is the id of the last known section preceding it (0 before any).
type RawSection struct {
	Name  string // custom sections only
	Data  []byte
	ID    byte
	After byte
}

// NumImportedFuncs returns the number of imported functions
func (m *Module) NumImportedFuncs() int {
	return m.numImported(KindFunc)
}

// NumImportedGlobals returns the number of imported globals
func (m *Module) NumImportedGlobals() int {
	return m.numImported(KindGlobal)
}

// NumImportedTables returns the number of imported tables
func (m *Module) NumImportedTables() int {
	return m.numImported(KindTable)
}

// NumImportedMemories returns the number of imported memories
func (m *Module) NumImportedMemories() int {
	return m.numImported(KindMemory)
}

func (m *Module) numImported(kind byte) int {
	count := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == kind {
			count++
		}
	}
	return count
}

// NumFuncs returns the size of the function index space.
func (m *Module) NumFuncs() int { return m.NumImportedFuncs() + len(m.Funcs) }

// NumTables returns the size of the table index space.
func (m *Module) NumTables() int { return m.NumImportedTables() + len(m.Tables) }

// NumMemories returns the size of the memory index space.
func (m *Module) NumMemories() int { return m.NumImportedMemories() + len(m.Memories) }

// NumGlobals returns the size of the global index space.
func (m *Module) NumGlobals() int { return m.NumImportedGlobals() + len(m.Globals) }

// GetFuncType returns the type of a function by its index
func (m *Module) GetFuncType(funcIdx uint32) *FuncType {
	numImported := uint32(m.NumImportedFuncs())
	if funcIdx < numImported {
		for i, imp := range m.Imports {
			if imp.Desc.Kind == KindFunc {
				if funcIdx == 0 {
					return m.TypeAt(m.Imports[i].Desc.TypeIdx)
				}
				funcIdx--
			}
		}
	}
	localIdx := funcIdx - numImported
	if int(localIdx) >= len(m.Funcs) {
		return nil
	}
	return m.TypeAt(m.Funcs[localIdx])
}

// TypeAt returns the function type at typeIdx, or nil if out of range.
func (m *Module) TypeAt(typeIdx uint32) *FuncType {
	if int(typeIdx) >= len(m.Types) {
		return nil
	}
	return &m.Types[typeIdx]
}

// GlobalTypeAt returns the type of the global at idx, or nil if out of range.
func (m *Module) GlobalTypeAt(idx uint32) *GlobalType {
	for i := range m.Imports {
		if m.Imports[i].Desc.Kind != KindGlobal {
			continue
		}
		if idx == 0 {
			return m.Imports[i].Desc.Global
		}
		idx--
	}
	if int(idx) >= len(m.Globals) {
		return nil
	}
	return &m.Globals[idx].Type
}

// MemoryAt returns the memory type at idx, or nil if out of range.
func (m *Module) MemoryAt(idx uint32) *MemoryType {
	for i := range m.Imports {
		if m.Imports[i].Desc.Kind != KindMemory {
			continue
		}
		if idx == 0 {
			return m.Imports[i].Desc.Memory
		}
		idx--
	}
	if int(idx) >= len(m.Memories) {
		return nil
	}
	return &m.Memories[idx]
}

// AddType adds a function type and returns its index, reusing existing if equal
func (m *Module) AddType(ft FuncType) uint32 {
	for i, t := range m.Types {
		if t.Equal(ft) {
			return uint32(i)
		}
	}
	idx := uint32(len(m.Types))
	m.Types = append(m.Types, ft)
	return idx
}

// ExportByName returns the export with the given name and kind.
func (m *Module) ExportByName(name string, kind byte) (Export, bool) {
	for _, e := range m.Exports {
		if e.Name == name && e.Kind == kind {
			return e, true
		}
	}
	return Export{}, false
}

// BlockType resolves a block type immediate to its parameter and result types.
func (m *Module) BlockType(bt int32) (params, results []ValType, ok bool) {
	switch bt {
	case BlockTypeVoid:
		return nil, nil, true
	case BlockTypeI32:
		return nil, []ValType{ValI32}, true
	case BlockTypeI64:
		return nil, []ValType{ValI64}, true
	case BlockTypeF32:
		return nil, []ValType{ValF32}, true
	case BlockTypeF64:
		return nil, []ValType{ValF64}, true
	}
	if bt < 0 {
		return nil, nil, false
	}
	ft := m.TypeAt(uint32(bt))
	if ft == nil {
		return nil, nil, false
	}
	return ft.Params, ft.Results, true
}

// KindName returns the textual name of an import/export kind.
func KindName(kind byte) string {
	switch kind {
	case KindFunc:
		return "func"
	case KindTable:
		return "table"
	case KindMemory:
		return "memory"
	case KindGlobal:
		return "global"
	default:
		return "unknown"
	}
}

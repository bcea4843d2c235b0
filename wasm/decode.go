package wasm

import (
	"fmt"

	"github.com/wippyai/wasm-compiler/errors"
	"github.com/wippyai/wasm-compiler/wasm/internal/binary"
)

// MaxLocals bounds the number of locals (parameters included) a function may declare.
const MaxLocals = 50000

// Parsing errors returned inside a MalformedBinary error.
var (
	ErrInvalidMagic   = errors.Plain("invalid wasm magic number")
	ErrInvalidVersion = errors.Plain("invalid wasm version")
)

// DecodeModule parses a WebAssembly binary module.
// On failure it returns a decode-phase MalformedBinary error and no module.
func DecodeModule(data []byte) (*Module, error) {
	m, err := decodeModule(data)
	if err != nil {
		return nil, errors.Malformed(err, "decode module")
	}
	if err := m.checkIndices(); err != nil {
		return nil, errors.Malformed(err, "index out of range")
	}
	return m, nil
}

func decodeModule(data []byte) (*Module, error) {
	r := binary.NewReader(data, 0)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if magic != Magic {
		return nil, r.WrapError("header", ErrInvalidMagic)
	}
	version, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if version != Version {
		return nil, r.WrapError("header", ErrInvalidVersion)
	}

	m := &Module{}
	var lastOrder int
	var lastKnown byte
	var sawFunc, sawCode bool

	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, r.WrapError("section header", err)
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("section size", err)
		}
		sr, err := r.Sub(int(size))
		if err != nil {
			return nil, r.WrapError("section size", fmt.Errorf("declared %d bytes, %d available", size, r.Len()))
		}

		order := sectionOrder(id)
		if order == 0 {
			raw := RawSection{ID: id, After: lastKnown}
			if id == SectionCustom {
				if raw.Name, err = sr.ReadName(); err != nil {
					return nil, sr.WrapError("custom section", err)
				}
			}
			raw.Data = sr.ReadRemaining()
			m.Sections = append(m.Sections, raw)
			continue
		}
		if order <= lastOrder {
			return nil, r.WrapError("section header", fmt.Errorf("section %d out of order or duplicated", id))
		}
		lastOrder = order
		lastKnown = id

		name := SectionName(id)
		if err := parseSection(sr, m, id); err != nil {
			return nil, sr.WrapError(name, err)
		}
		if sr.Len() != 0 {
			return nil, sr.WrapError(name, fmt.Errorf("section size mismatch: declared %d bytes, %d unconsumed", size, sr.Len()))
		}
		switch id {
		case SectionFunction:
			sawFunc = true
		case SectionCode:
			sawCode = true
		}
	}

	if len(m.Funcs) != len(m.Code) {
		return nil, r.WrapError("module", fmt.Errorf("function and code section have inconsistent lengths: %d vs %d (function section %v, code section %v)",
			len(m.Funcs), len(m.Code), sawFunc, sawCode))
	}
	if m.DataCount != nil && int(*m.DataCount) != len(m.Data) {
		return nil, r.WrapError("module", fmt.Errorf("data count %d does not match %d data segments", *m.DataCount, len(m.Data)))
	}
	return m, nil
}

func parseSection(r *binary.Reader, m *Module, id byte) error {
	switch id {
	case SectionType:
		return parseTypeSection(r, m)
	case SectionImport:
		return parseImportSection(r, m)
	case SectionFunction:
		return parseFunctionSection(r, m)
	case SectionTable:
		return parseTableSection(r, m)
	case SectionMemory:
		return parseMemorySection(r, m)
	case SectionGlobal:
		return parseGlobalSection(r, m)
	case SectionExport:
		return parseExportSection(r, m)
	case SectionStart:
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		m.Start = &idx
		return nil
	case SectionElement:
		return parseElementSection(r, m)
	case SectionDataCount:
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		m.DataCount = &n
		return nil
	case SectionCode:
		return parseCodeSection(r, m)
	case SectionData:
		return parseDataSection(r, m)
	}
	return fmt.Errorf("unknown section ID: 0x%02x", id)
}

// sectionOrder returns the canonical position of a known section, 0 for
// custom and unknown sections.
func sectionOrder(id byte) int {
	for i, known := range canonicalOrder {
		if known == id {
			return i + 1
		}
	}
	return 0
}

var canonicalOrder = []byte{
	SectionType, SectionImport, SectionFunction, SectionTable, SectionMemory,
	SectionGlobal, SectionExport, SectionStart, SectionElement,
	SectionDataCount, SectionCode, SectionData,
}

// SectionName returns a human-readable name for a section id.
func SectionName(id byte) string {
	switch id {
	case SectionCustom:
		return "custom section"
	case SectionType:
		return "type section"
	case SectionImport:
		return "import section"
	case SectionFunction:
		return "function section"
	case SectionTable:
		return "table section"
	case SectionMemory:
		return "memory section"
	case SectionGlobal:
		return "global section"
	case SectionExport:
		return "export section"
	case SectionStart:
		return "start section"
	case SectionElement:
		return "element section"
	case SectionCode:
		return "code section"
	case SectionData:
		return "data section"
	case SectionDataCount:
		return "data count section"
	default:
		return fmt.Sprintf("section %d", id)
	}
}

// readCount reads a vector length. Every element occupies at least one byte,
// so a count larger than the remaining input is rejected before allocating.
func readCount(r *binary.Reader) (int, error) {
	n, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	if int(n) > r.Len() {
		return 0, fmt.Errorf("vector length %d exceeds remaining %d bytes", n, r.Len())
	}
	return int(n), nil
}

func readValType(r *binary.Reader) (ValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	vt := ValType(b)
	if !vt.Valid() {
		return 0, fmt.Errorf("invalid value type 0x%02x", b)
	}
	return vt, nil
}

func readValTypes(r *binary.Reader) ([]ValType, error) {
	n, err := readCount(r)
	if err != nil || n == 0 {
		return nil, err
	}
	out := make([]ValType, n)
	for i := range out {
		if out[i], err = readValType(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func parseTypeSection(r *binary.Reader, m *Module) error {
	n, err := readCount(r)
	if err != nil || n == 0 {
		return err
	}
	m.Types = make([]FuncType, n)
	for i := range m.Types {
		form, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("read type form at index %d: %w", i, err)
		}
		if form != FuncTypeByte {
			return fmt.Errorf("expected functype (0x60), got 0x%02x", form)
		}
		if m.Types[i].Params, err = readValTypes(r); err != nil {
			return err
		}
		if m.Types[i].Results, err = readValTypes(r); err != nil {
			return err
		}
	}
	return nil
}

func parseImportSection(r *binary.Reader, m *Module) error {
	n, err := readCount(r)
	if err != nil || n == 0 {
		return err
	}
	m.Imports = make([]Import, n)
	for i := range m.Imports {
		imp := &m.Imports[i]
		if imp.Module, err = r.ReadName(); err != nil {
			return err
		}
		if imp.Name, err = r.ReadName(); err != nil {
			return err
		}
		if imp.Desc.Kind, err = r.ReadByte(); err != nil {
			return err
		}
		switch imp.Desc.Kind {
		case KindFunc:
			if imp.Desc.TypeIdx, err = r.ReadU32(); err != nil {
				return err
			}
		case KindTable:
			tt, err := readTableType(r)
			if err != nil {
				return err
			}
			imp.Desc.Table = &tt
		case KindMemory:
			lim, err := readLimits(r)
			if err != nil {
				return err
			}
			imp.Desc.Memory = &MemoryType{Limits: lim}
		case KindGlobal:
			gt, err := readGlobalType(r)
			if err != nil {
				return err
			}
			imp.Desc.Global = &gt
		default:
			return fmt.Errorf("invalid import kind 0x%02x", imp.Desc.Kind)
		}
	}
	return nil
}

func parseFunctionSection(r *binary.Reader, m *Module) error {
	n, err := readCount(r)
	if err != nil || n == 0 {
		return err
	}
	m.Funcs = make([]uint32, n)
	for i := range m.Funcs {
		if m.Funcs[i], err = r.ReadU32(); err != nil {
			return err
		}
	}
	return nil
}

func parseTableSection(r *binary.Reader, m *Module) error {
	n, err := readCount(r)
	if err != nil || n == 0 {
		return err
	}
	m.Tables = make([]TableType, n)
	for i := range m.Tables {
		if m.Tables[i], err = readTableType(r); err != nil {
			return err
		}
	}
	return nil
}

func parseMemorySection(r *binary.Reader, m *Module) error {
	n, err := readCount(r)
	if err != nil || n == 0 {
		return err
	}
	m.Memories = make([]MemoryType, n)
	for i := range m.Memories {
		if m.Memories[i].Limits, err = readLimits(r); err != nil {
			return err
		}
	}
	return nil
}

func parseGlobalSection(r *binary.Reader, m *Module) error {
	n, err := readCount(r)
	if err != nil || n == 0 {
		return err
	}
	m.Globals = make([]Global, n)
	for i := range m.Globals {
		if m.Globals[i].Type, err = readGlobalType(r); err != nil {
			return err
		}
		if m.Globals[i].Init, err = decodeConstExpr(r); err != nil {
			return err
		}
	}
	return nil
}

func parseExportSection(r *binary.Reader, m *Module) error {
	n, err := readCount(r)
	if err != nil || n == 0 {
		return err
	}
	m.Exports = make([]Export, n)
	for i := range m.Exports {
		e := &m.Exports[i]
		if e.Name, err = r.ReadName(); err != nil {
			return err
		}
		if e.Kind, err = r.ReadByte(); err != nil {
			return err
		}
		if e.Kind > KindGlobal {
			return fmt.Errorf("invalid export kind 0x%02x", e.Kind)
		}
		if e.Idx, err = r.ReadU32(); err != nil {
			return err
		}
	}
	return nil
}

func parseElementSection(r *binary.Reader, m *Module) error {
	n, err := readCount(r)
	if err != nil || n == 0 {
		return err
	}
	m.Elements = make([]Element, n)
	for i := range m.Elements {
		e := &m.Elements[i]
		if e.Flags, err = r.ReadU32(); err != nil {
			return err
		}
		switch e.Flags {
		case ElemActive:
			if e.Offset, err = decodeConstExpr(r); err != nil {
				return err
			}
		case ElemPassive, ElemDeclarative:
			if err := readElemKind(r); err != nil {
				return err
			}
		case ElemActiveExplicit:
			if e.TableIdx, err = r.ReadU32(); err != nil {
				return err
			}
			if e.Offset, err = decodeConstExpr(r); err != nil {
				return err
			}
			if err := readElemKind(r); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported element segment encoding %d", e.Flags)
		}
		count, err := readCount(r)
		if err != nil {
			return err
		}
		if count > 0 {
			e.FuncIdxs = make([]uint32, count)
			for j := range e.FuncIdxs {
				if e.FuncIdxs[j], err = r.ReadU32(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func readElemKind(r *binary.Reader) error {
	b, err := r.ReadByte()
	if err != nil {
		return err
	}
	if b != 0x00 {
		return fmt.Errorf("unsupported element kind 0x%02x", b)
	}
	return nil
}

func parseCodeSection(r *binary.Reader, m *Module) error {
	n, err := readCount(r)
	if err != nil || n == 0 {
		return err
	}
	m.Code = make([]FuncBody, n)
	for i := range m.Code {
		size, err := r.ReadU32()
		if err != nil {
			return err
		}
		br, err := r.Sub(int(size))
		if err != nil {
			return fmt.Errorf("function body %d: declared %d bytes, %d available", i, size, r.Len())
		}
		if err := parseFuncBody(br, &m.Code[i]); err != nil {
			return br.WrapError(fmt.Sprintf("function body %d", i), err)
		}
	}
	return nil
}

func parseFuncBody(r *binary.Reader, body *FuncBody) error {
	n, err := readCount(r)
	if err != nil {
		return err
	}
	var total uint64
	if n > 0 {
		body.Locals = make([]LocalEntry, n)
		for i := range body.Locals {
			if body.Locals[i].Count, err = r.ReadU32(); err != nil {
				return err
			}
			total += uint64(body.Locals[i].Count)
			if total > MaxLocals {
				return fmt.Errorf("too many locals: %d", total)
			}
			if body.Locals[i].ValType, err = readValType(r); err != nil {
				return err
			}
		}
	}
	if body.Body, err = decodeInstructions(r); err != nil {
		return err
	}
	if len(body.Body) == 0 || body.Body[len(body.Body)-1].Opcode != OpEnd {
		return errors.Plain("function body must end with end")
	}
	return nil
}

func parseDataSection(r *binary.Reader, m *Module) error {
	n, err := readCount(r)
	if err != nil || n == 0 {
		return err
	}
	m.Data = make([]DataSegment, n)
	for i := range m.Data {
		d := &m.Data[i]
		if d.Flags, err = r.ReadU32(); err != nil {
			return err
		}
		switch d.Flags {
		case DataActive:
			if d.Offset, err = decodeConstExpr(r); err != nil {
				return err
			}
		case DataPassive:
		case DataActiveExplicit:
			if d.MemIdx, err = r.ReadU32(); err != nil {
				return err
			}
			if d.Offset, err = decodeConstExpr(r); err != nil {
				return err
			}
		default:
			return fmt.Errorf("invalid data segment flags %d", d.Flags)
		}
		size, err := r.ReadU32()
		if err != nil {
			return err
		}
		if d.Init, err = r.ReadBytes(int(size)); err != nil {
			return err
		}
	}
	return nil
}

func readLimits(r *binary.Reader) (Limits, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	if flag != LimitsNoMax && flag != LimitsHasMax {
		return Limits{}, fmt.Errorf("unsupported limits flags 0x%02x", flag)
	}
	var lim Limits
	if lim.Min, err = r.ReadU32(); err != nil {
		return Limits{}, err
	}
	if flag == LimitsHasMax {
		maxV, err := r.ReadU32()
		if err != nil {
			return Limits{}, err
		}
		lim.Max = &maxV
	}
	return lim, nil
}

func readTableType(r *binary.Reader) (TableType, error) {
	et, err := r.ReadByte()
	if err != nil {
		return TableType{}, err
	}
	if et != ElemTypeFuncRef {
		return TableType{}, fmt.Errorf("unsupported table element type 0x%02x", et)
	}
	lim, err := readLimits(r)
	if err != nil {
		return TableType{}, err
	}
	return TableType{ElemType: et, Limits: lim}, nil
}

func readGlobalType(r *binary.Reader) (GlobalType, error) {
	vt, err := readValType(r)
	if err != nil {
		return GlobalType{}, err
	}
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	if mut > 1 {
		return GlobalType{}, fmt.Errorf("invalid global mutability 0x%02x", mut)
	}
	return GlobalType{ValType: vt, Mutable: mut == 1}, nil
}

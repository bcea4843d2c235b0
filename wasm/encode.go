package wasm

import (
	"github.com/wippyai/wasm-compiler/wasm/internal/binary"
)

// Encode encodes the module to WebAssembly binary format.
// Known sections are written in canonical order and empty ones are omitted
// unless a custom or unknown section is anchored after them. Those are
// re-emitted after the known section they followed.
func (m *Module) Encode() []byte {
	w := binary.NewWriter()

	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	m.writeRawSections(w, 0)
	for _, id := range canonicalOrder {
		data := m.encodeSection(id)
		if data == nil && m.anchors(id) && id != SectionStart && id != SectionDataCount {
			// keep the anchor so the trailing sections decode with the same After
			data = []byte{0}
		}
		if data != nil {
			writeSection(w, id, data)
		}
		m.writeRawSections(w, id)
	}
	return w.Bytes()
}

// anchors reports whether some raw section was positioned after id.
func (m *Module) anchors(id byte) bool {
	for _, s := range m.Sections {
		if s.After == id {
			return true
		}
	}
	return false
}

func (m *Module) writeRawSections(w *binary.Writer, after byte) {
	for _, s := range m.Sections {
		if s.After != after {
			continue
		}
		if s.ID == SectionCustom {
			sec := binary.NewWriter()
			sec.WriteName(s.Name)
			sec.WriteBytes(s.Data)
			writeSection(w, SectionCustom, sec.Bytes())
			continue
		}
		writeSection(w, s.ID, s.Data)
	}
}

// encodeSection returns the payload of a known section, or nil when the
// module has nothing to put in it.
func (m *Module) encodeSection(id byte) []byte {
	sec := binary.NewWriter()

	switch id {
	case SectionType:
		if len(m.Types) == 0 {
			return nil
		}
		sec.WriteU32(uint32(len(m.Types)))
		for _, ft := range m.Types {
			sec.Byte(FuncTypeByte)
			writeValTypes(sec, ft.Params)
			writeValTypes(sec, ft.Results)
		}

	case SectionImport:
		if len(m.Imports) == 0 {
			return nil
		}
		sec.WriteU32(uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			sec.WriteName(imp.Module)
			sec.WriteName(imp.Name)
			sec.Byte(imp.Desc.Kind)
			switch imp.Desc.Kind {
			case KindFunc:
				sec.WriteU32(imp.Desc.TypeIdx)
			case KindTable:
				tt := TableType{ElemType: ElemTypeFuncRef}
				if imp.Desc.Table != nil {
					tt = *imp.Desc.Table
				}
				writeTableType(sec, tt)
			case KindMemory:
				var mt MemoryType
				if imp.Desc.Memory != nil {
					mt = *imp.Desc.Memory
				}
				writeLimits(sec, mt.Limits)
			case KindGlobal:
				gt := GlobalType{ValType: ValI32}
				if imp.Desc.Global != nil {
					gt = *imp.Desc.Global
				}
				writeGlobalType(sec, gt)
			}
		}

	case SectionFunction:
		if len(m.Funcs) == 0 {
			return nil
		}
		sec.WriteU32(uint32(len(m.Funcs)))
		for _, typeIdx := range m.Funcs {
			sec.WriteU32(typeIdx)
		}

	case SectionTable:
		if len(m.Tables) == 0 {
			return nil
		}
		sec.WriteU32(uint32(len(m.Tables)))
		for _, t := range m.Tables {
			writeTableType(sec, t)
		}

	case SectionMemory:
		if len(m.Memories) == 0 {
			return nil
		}
		sec.WriteU32(uint32(len(m.Memories)))
		for _, mem := range m.Memories {
			writeLimits(sec, mem.Limits)
		}

	case SectionGlobal:
		if len(m.Globals) == 0 {
			return nil
		}
		sec.WriteU32(uint32(len(m.Globals)))
		for _, g := range m.Globals {
			writeGlobalType(sec, g.Type)
			encodeConstExpr(sec, g.Init)
		}

	case SectionExport:
		if len(m.Exports) == 0 {
			return nil
		}
		sec.WriteU32(uint32(len(m.Exports)))
		for _, exp := range m.Exports {
			sec.WriteName(exp.Name)
			sec.Byte(exp.Kind)
			sec.WriteU32(exp.Idx)
		}

	case SectionStart:
		if m.Start == nil {
			return nil
		}
		sec.WriteU32(*m.Start)

	case SectionElement:
		if len(m.Elements) == 0 {
			return nil
		}
		sec.WriteU32(uint32(len(m.Elements)))
		for _, e := range m.Elements {
			writeElement(sec, e)
		}

	case SectionDataCount:
		if m.DataCount == nil {
			return nil
		}
		sec.WriteU32(*m.DataCount)

	case SectionCode:
		if len(m.Code) == 0 {
			return nil
		}
		sec.WriteU32(uint32(len(m.Code)))
		for _, body := range m.Code {
			fb := binary.NewWriter()
			fb.WriteU32(uint32(len(body.Locals)))
			for _, l := range body.Locals {
				fb.WriteU32(l.Count)
				fb.Byte(byte(l.ValType))
			}
			encodeInstructions(fb, body.Body)
			sec.WriteVec(fb.Bytes())
		}

	case SectionData:
		if len(m.Data) == 0 {
			return nil
		}
		sec.WriteU32(uint32(len(m.Data)))
		for _, d := range m.Data {
			sec.WriteU32(d.Flags)
			switch d.Flags {
			case DataActive:
				encodeConstExpr(sec, d.Offset)
			case DataActiveExplicit:
				sec.WriteU32(d.MemIdx)
				encodeConstExpr(sec, d.Offset)
			}
			sec.WriteVec(d.Init)
		}

	default:
		return nil
	}
	return sec.Bytes()
}

func writeSection(w *binary.Writer, id byte, data []byte) {
	w.Byte(id)
	w.WriteVec(data)
}

func writeValTypes(w *binary.Writer, types []ValType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}

func writeLimits(w *binary.Writer, l Limits) {
	if l.Max != nil {
		w.Byte(LimitsHasMax)
		w.WriteU32(l.Min)
		w.WriteU32(*l.Max)
		return
	}
	w.Byte(LimitsNoMax)
	w.WriteU32(l.Min)
}

func writeTableType(w *binary.Writer, t TableType) {
	et := t.ElemType
	if et == 0 {
		et = ElemTypeFuncRef
	}
	w.Byte(et)
	writeLimits(w, t.Limits)
}

func writeGlobalType(w *binary.Writer, g GlobalType) {
	w.Byte(byte(g.ValType))
	if g.Mutable {
		w.Byte(1)
	} else {
		w.Byte(0)
	}
}

func writeElement(w *binary.Writer, e Element) {
	w.WriteU32(e.Flags)
	switch e.Flags {
	case ElemActive:
		encodeConstExpr(w, e.Offset)
	case ElemPassive, ElemDeclarative:
		w.Byte(0x00)
	case ElemActiveExplicit:
		w.WriteU32(e.TableIdx)
		encodeConstExpr(w, e.Offset)
		w.Byte(0x00)
	}
	w.WriteU32(uint32(len(e.FuncIdxs)))
	for _, idx := range e.FuncIdxs {
		w.WriteU32(idx)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-compiler/wasm"
)

func readModule(path string) (*wasm.Module, error) {
	bin, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return wasm.DecodeModule(bin)
}

func newInspectCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE",
		Short: "Print the imports, exports and sections of a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := readModule(args[0])
			if err != nil {
				return err
			}
			a.inspect(args[0], m)
			return nil
		},
	}
}

func (a *app) inspect(path string, m *wasm.Module) {
	a.printf("%s %s\n\n", a.render(titleStyle, "Module"), path)

	a.printf("%s\n", a.render(headerStyle, "Types"))
	for i, t := range m.Types {
		a.printf("  %3d %s\n", i, a.render(typeStyle, t.String()))
	}

	if len(m.Imports) > 0 {
		a.printf("\n%s\n", a.render(headerStyle, "Imports"))
		for _, imp := range m.Imports {
			a.printf("  %-7s %s.%s %s\n", wasm.KindName(imp.Desc.Kind),
				imp.Module, a.render(funcStyle, imp.Name), a.render(typeStyle, importDescString(m, imp.Desc)))
		}
	}

	a.printf("\n%s\n", a.render(headerStyle, "Exports"))
	for _, e := range m.Exports {
		desc := ""
		if e.Kind == wasm.KindFunc {
			if ft := m.GetFuncType(e.Idx); ft != nil {
				desc = ft.String()
			}
		}
		a.printf("  %-7s %s %s\n", wasm.KindName(e.Kind), a.render(funcStyle, e.Name), a.render(typeStyle, desc))
	}

	a.printf("\n%s\n", a.render(headerStyle, "Contents"))
	a.printf("  functions %d (%d imported)\n", m.NumFuncs(), m.NumImportedFuncs())
	a.printf("  tables    %d\n", m.NumTables())
	a.printf("  memories  %d\n", m.NumMemories())
	a.printf("  globals   %d\n", m.NumGlobals())
	a.printf("  elements  %d\n", len(m.Elements))
	a.printf("  data      %d\n", len(m.Data))
	if m.Start != nil {
		a.printf("  start     func %d\n", *m.Start)
	}

	if len(m.Sections) > 0 {
		a.printf("\n%s\n", a.render(headerStyle, "Custom sections"))
		for _, s := range m.Sections {
			name := s.Name
			if s.ID != wasm.SectionCustom {
				name = fmt.Sprintf("<unknown id %d>", s.ID)
			}
			a.printf("  %s %d bytes\n", name, len(s.Data))
		}
	}
}

func importDescString(m *wasm.Module, d wasm.ImportDesc) string {
	switch d.Kind {
	case wasm.KindFunc:
		if ft := m.TypeAt(d.TypeIdx); ft != nil {
			return ft.String()
		}
	case wasm.KindMemory:
		return limitsString(d.Memory.Limits)
	case wasm.KindTable:
		return limitsString(d.Table.Limits)
	case wasm.KindGlobal:
		if d.Global.Mutable {
			return "mut " + d.Global.ValType.String()
		}
		return d.Global.ValType.String()
	}
	return ""
}

func limitsString(l wasm.Limits) string {
	if l.Max == nil {
		return fmt.Sprintf("{min %d}", l.Min)
	}
	return fmt.Sprintf("{min %d, max %d}", l.Min, *l.Max)
}

func newValidateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Decode and validate a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := readModule(args[0])
			if err != nil {
				return err
			}
			if err := m.Validate(); err != nil {
				return err
			}
			a.logger.Debug("module valid", zap.String("file", args[0]), zap.Int("functions", m.NumFuncs()))
			a.printf("%s %s\n", a.render(resultStyle, "valid"), args[0])
			return nil
		},
	}
}

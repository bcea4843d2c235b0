package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-compiler/engine"
	"github.com/wippyai/wasm-compiler/errors"
	"github.com/wippyai/wasm-compiler/wasm"
)

func newRunCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run FILE EXPORT [ARGS...]",
		Short: "Compile a module and call one of its exported functions",
		Long: `Compile FILE, instantiate it and call EXPORT with ARGS parsed as the
export's parameter types. Imported functions are stubbed and fail when
called; imported memories, tables and globals are allocated at their
declared minimum.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, mod, err := a.load(ctx, args[0])
			if err != nil {
				return err
			}
			ft, err := exportType(mod.Wasm(), args[1])
			if err != nil {
				return err
			}
			raw, err := parseArgs(ft, args[2:])
			if err != nil {
				return err
			}

			inst, err := mod.Instantiate(ctx, stubImports(mod.Wasm()))
			if err != nil {
				return err
			}
			out, err := inst.CallRaw(ctx, args[1], raw...)
			if err != nil {
				return err
			}
			a.printf("%s\n", a.render(resultStyle, formatResults(ft.Results, out)))
			return nil
		},
	}
}

func newDiffCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "diff FILE EXPORT [ARGS...]",
		Short: "Compare a call against the reference interpreter",
		Long: `Run EXPORT both compiled and on the wazero interpreter and report
whether the results agree. When both trap, the trap codes are compared.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			bin, mod, err := a.load(ctx, args[0])
			if err != nil {
				return err
			}
			ft, err := exportType(mod.Wasm(), args[1])
			if err != nil {
				return err
			}
			raw, err := parseArgs(ft, args[2:])
			if err != nil {
				return err
			}

			var got []uint64
			inst, err := mod.Instantiate(ctx, stubImports(mod.Wasm()))
			if err == nil {
				got, err = inst.CallRaw(ctx, args[1], raw...)
			}
			want, refErr := engine.NewReference(a.cfg.MemoryLimitPages).
				Run(ctx, bin, args[1], stubHosts(mod.Wasm()), raw...)

			a.logger.Debug("diff",
				zap.String("export", args[1]),
				zap.Uint64s("compiled", got),
				zap.Uint64s("reference", want),
				zap.NamedError("compiledErr", err),
				zap.NamedError("referenceErr", refErr))

			compiled := outcome(ft.Results, got, err)
			reference := outcome(ft.Results, want, refErr)
			a.printf("compiled:  %s\n", describe(compiled, err))
			a.printf("reference: %s\n", describe(reference, refErr))
			if compiled != reference {
				return fmt.Errorf("results differ")
			}
			a.printf("%s\n", a.render(resultStyle, "match"))
			return nil
		},
	}
}

// outcome renders a call result so that two runs can be compared as text.
// Traps compare by code. Host failures and other errors compare equal to
// each other, since the interpreter does not classify them.
func outcome(types []wasm.ValType, raw []uint64, err error) string {
	if err != nil {
		if code := errors.TrapCodeOf(err); code != "" && code != errors.TrapHostError {
			return "trap: " + string(code)
		}
		return "error"
	}
	return formatResults(types, raw)
}

func describe(s string, err error) string {
	if err != nil && s == "error" {
		return "error: " + err.Error()
	}
	return s
}

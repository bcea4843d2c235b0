package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-compiler/runtime"
	"github.com/wippyai/wasm-compiler/wasm"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	out    io.Writer
	logger *zap.Logger
	cfg    cliConfig
	tty    bool
}

// render applies style only when writing to a terminal.
func (a *app) render(style lipgloss.Style, s string) string {
	if !a.tty {
		return s
	}
	return style.Render(s)
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// load reads path and compiles it with stub imports accepted for every
// function the module imports.
func (a *app) load(ctx context.Context, path string) ([]byte, *runtime.Module, error) {
	bin, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	m, err := wasm.DecodeModule(bin)
	if err != nil {
		return nil, nil, err
	}
	mod, err := runtime.Compile(ctx, bin, nil, importInterface(m), a.cfg.runtimeOptions()...)
	if err != nil {
		return nil, nil, err
	}
	return bin, mod, nil
}

func newRootCommand() *cobra.Command {
	a := &app{out: os.Stdout}

	root := &cobra.Command{
		Use:   "wasmc",
		Short: "Inspect, validate and run WebAssembly modules",
		Long: `wasmc decodes and validates WebAssembly 1.0 modules, compiles them to
closures and runs their exports.

Configuration is read from flags, WASMC_* environment variables
(WASMC_MAX_CALL_DEPTH, WASMC_LOG_LEVEL, ...) and an optional --config file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := cfg.newLogger()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger
			a.out = cmd.OutOrStdout()
			if f, ok := a.out.(*os.File); ok {
				a.tty = term.IsTerminal(int(f.Fd()))
			}
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	bindFlags(root.PersistentFlags())

	root.AddCommand(
		newInspectCommand(a),
		newValidateCommand(a),
		newRunCommand(a),
		newDiffCommand(a),
		newInteractiveCommand(a),
	)
	return root
}

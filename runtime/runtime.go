package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-compiler/engine"
	"github.com/wippyai/wasm-compiler/errors"
	"github.com/wippyai/wasm-compiler/linker"
	"github.com/wippyai/wasm-compiler/wasm"
)

// Config holds the limits applied to modules compiled by a Runtime.
type Config struct {
	// MaxCallDepth bounds nested calls per invocation; 0 selects
	// engine.DefaultMaxCallDepth.
	MaxCallDepth int
	// MemoryLimitPages caps growth of memories defined by a module.
	// 0 leaves the declared maximum in place.
	MemoryLimitPages uint32
	// SemverImports resolves a versioned import module to the highest
	// compatible version provided.
	SemverImports bool
}

// Option configures a Runtime.
type Option func(*Config)

// WithMaxCallDepth sets Config.MaxCallDepth.
func WithMaxCallDepth(n int) Option {
	return func(c *Config) { c.MaxCallDepth = n }
}

// WithMemoryLimitPages sets Config.MemoryLimitPages.
func WithMemoryLimitPages(pages uint32) Option {
	return func(c *Config) { c.MemoryLimitPages = pages }
}

// WithSemverImports sets Config.SemverImports.
func WithSemverImports(enabled bool) Option {
	return func(c *Config) { c.SemverImports = enabled }
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(c *Config) { *c = cfg }
}

type Runtime struct {
	hosts *HostRegistry
	cfg   Config
}

func New(opts ...Option) *Runtime {
	r := &Runtime{hosts: NewHostRegistry()}
	for _, opt := range opts {
		opt(&r.cfg)
	}
	return r
}

// Config returns the runtime's configuration.
func (r *Runtime) Config() Config {
	return r.cfg
}

// RegisterHost registers all exported methods of h as host functions.
// Method names are converted from PascalCase to kebab-case (GetValue -> get-value).
func (r *Runtime) RegisterHost(h Host) error {
	return r.hosts.RegisterHost(h)
}

func (r *Runtime) RegisterFunc(namespace, name string, fn any) error {
	return r.hosts.RegisterFunc(namespace, name, fn)
}

func (r *Runtime) Hosts() *HostRegistry {
	return r.hosts
}

// Compile decodes, validates and compiles bin. exports describes the
// functions the caller will use; imports describes the functions the caller
// will provide. Registered host functions are added to imports.
//
// Validation completes before any function is compiled: a module that fails
// to type-check never reaches the compiler.
func (r *Runtime) Compile(ctx context.Context, bin []byte, exports linker.Interface, imports linker.ImportInterface) (*Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.PhaseCompile, errors.KindInvalidInput, err, "compilation cancelled")
	}
	m, err := wasm.DecodeModule(bin)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	if err := mergeInterfaces(r.hosts.Interface(), imports).Check(m); err != nil {
		return nil, err
	}
	unbound, err := exports.Check(m)
	if err != nil {
		return nil, err
	}

	compiled, err := engine.Compile(m)
	if err != nil {
		return nil, err
	}

	Logger().Debug("module compiled",
		zap.Int("funcs", len(compiled)),
		zap.Int("imports", len(m.Imports)),
		zap.Int("exports", len(m.Exports)),
		zap.Strings("unbound", unbound))

	return &Module{
		rt:       r,
		module:   m,
		compiled: compiled,
		exports:  exports,
		unbound:  unbound,
	}, nil
}

// Compile compiles bin with a fresh Runtime configured by opts.
func Compile(ctx context.Context, bin []byte, exports linker.Interface, imports linker.ImportInterface, opts ...Option) (*Module, error) {
	return New(opts...).Compile(ctx, bin, exports, imports)
}

// mergeInterfaces returns a copy of base with every member of over added,
// replacing members of the same name.
func mergeInterfaces(base, over linker.ImportInterface) linker.ImportInterface {
	out := make(linker.ImportInterface, len(base)+len(over))
	for _, src := range []linker.ImportInterface{base, over} {
		for mod, funcs := range src {
			if out[mod] == nil {
				out[mod] = make(linker.Interface, len(funcs))
			}
			for name, sig := range funcs {
				out[mod][name] = sig
			}
		}
	}
	return out
}

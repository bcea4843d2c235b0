package runtime

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-compiler/engine"
	"github.com/wippyai/wasm-compiler/errors"
	"github.com/wippyai/wasm-compiler/linker"
)

// Host is the interface for struct-based host modules.
// All exported methods (except Namespace) are registered as host functions.
type Host interface {
	// Namespace returns the import module name (e.g., "env" or "my:pkg/api@1.0.0").
	Namespace() string
}

// ExplicitRegistrar allows hosts to provide exact import names
// when automatic PascalCase-to-kebab-case conversion doesn't apply
// (e.g., "fd_write").
type ExplicitRegistrar interface {
	Register() map[string]any
}

type HostRegistry struct {
	funcs map[string]map[string]*engine.Function
	mu    sync.RWMutex
}

func NewHostRegistry() *HostRegistry {
	return &HostRegistry{
		funcs: make(map[string]map[string]*engine.Function),
	}
}

func (r *HostRegistry) RegisterHost(h Host) error {
	ns := h.Namespace()
	if ns == "" {
		return errors.InvalidInput(errors.PhaseHost, "namespace cannot be empty")
	}

	handlers := make(map[string]any)
	if er, ok := h.(ExplicitRegistrar); ok {
		handlers = er.Register()
	} else {
		rv := reflect.ValueOf(h)
		rt := rv.Type()
		for i := 0; i < rt.NumMethod(); i++ {
			method := rt.Method(i)
			if !method.IsExported() || method.Name == "Namespace" {
				continue
			}
			handlers[toKebabCase(method.Name)] = rv.Method(i).Interface()
		}
	}

	funcs := make(map[string]*engine.Function, len(handlers))
	for name, handler := range handlers {
		f, err := NewHostFunction(ns+"."+name, handler)
		if err != nil {
			return registrationError(ns, name, err)
		}
		funcs[name] = f
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.funcs[ns] == nil {
		r.funcs[ns] = make(map[string]*engine.Function)
	}
	for name, f := range funcs {
		r.funcs[ns][name] = f
	}
	Logger().Debug("host registered", zap.String("namespace", ns), zap.Int("funcs", len(funcs)))
	return nil
}

func (r *HostRegistry) RegisterFunc(namespace, name string, fn any) error {
	if namespace == "" {
		return errors.InvalidInput(errors.PhaseHost, "namespace cannot be empty")
	}
	if name == "" {
		return errors.InvalidInput(errors.PhaseHost, "function name cannot be empty")
	}

	f, err := NewHostFunction(namespace+"."+name, fn)
	if err != nil {
		return registrationError(namespace, name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.funcs[namespace] == nil {
		r.funcs[namespace] = make(map[string]*engine.Function)
	}
	r.funcs[namespace][name] = f

	return nil
}

// Imports returns the registered functions as a fresh linker.Imports.
func (r *HostRegistry) Imports() linker.Imports {
	r.mu.RLock()
	defer r.mu.RUnlock()

	im := make(linker.Imports, len(r.funcs))
	for ns, funcs := range r.funcs {
		for name, f := range funcs {
			im.Define(ns, name, linker.Extern{Func: f})
		}
	}
	return im
}

// Interface describes the registered functions for Compile's import check.
func (r *HostRegistry) Interface() linker.ImportInterface {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ii := make(linker.ImportInterface, len(r.funcs))
	for ns, funcs := range r.funcs {
		ii[ns] = make(linker.Interface, len(funcs))
		for name, f := range funcs {
			ii[ns][name] = f.Type
		}
	}
	return ii
}

// NewHostFunction wraps a Go function as an importable function. Parameters
// and results must be int32, uint32, bool, int64, uint64, float32 or float64.
// A leading context.Context receives the caller's context; a trailing error
// result traps the caller with errors.TrapHostError when non-nil.
func NewHostFunction(name string, fn any) (*engine.Function, error) {
	rv := reflect.ValueOf(fn)
	if !rv.IsValid() || rv.Kind() != reflect.Func || rv.IsNil() {
		return nil, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
			Path(name).
			GoType(fmt.Sprintf("%T", fn)).
			Detail("handler must be a function").
			Build()
	}
	ft := rv.Type()
	sig, err := signatureOf(ft)
	if err != nil {
		return nil, err
	}

	nres := len(sig.Results)
	first := 0
	if sig.hasCtx {
		first = 1
	}
	host := func(ctx context.Context, args []uint64) (res []uint64, err error) {
		defer func() {
			if p := recover(); p != nil {
				if t, ok := p.(*errors.Trap); ok {
					err = t
					return
				}
				err = fmt.Errorf("host function %s panicked: %v", name, p)
			}
		}()

		in := make([]reflect.Value, 0, ft.NumIn())
		if sig.hasCtx {
			in = append(in, reflect.ValueOf(&ctx).Elem())
		}
		for n, a := range args {
			in = append(in, lift(a, ft.In(first+n)))
		}

		out := rv.Call(in)
		if sig.hasErr {
			if e := out[nres]; !e.IsNil() {
				return nil, e.Interface().(error)
			}
		}
		res = make([]uint64, nres)
		for n := range res {
			res[n] = lower(out[n])
		}
		return res, nil
	}
	return engine.NewHostFunction(name, sig.FuncType, host), nil
}

func registrationError(namespace, name string, cause error) error {
	return errors.New(errors.PhaseHost, errors.KindInvalidInput).
		Path(namespace, name).
		Cause(cause).
		Detail("cannot register host function").
		Build()
}

// toKebabCase converts PascalCase to kebab-case.
// Handles acronyms: GetHTTPServer -> get-http-server
func toKebabCase(s string) string {
	if len(s) == 0 {
		return ""
	}

	runes := []rune(s)
	var result strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if unicode.IsUpper(r) {
			acronymEnd := i + 1
			for acronymEnd < len(runes) && unicode.IsUpper(runes[acronymEnd]) {
				acronymEnd++
			}

			if acronymEnd > i+1 {
				// Last uppercase before lowercase starts next word, not part of acronym
				if acronymEnd < len(runes) && unicode.IsLower(runes[acronymEnd]) {
					acronymEnd--
				}
			}

			if i > 0 {
				result.WriteByte('-')
			}

			for j := i; j < acronymEnd; j++ {
				result.WriteRune(unicode.ToLower(runes[j]))
			}
			i = acronymEnd - 1
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

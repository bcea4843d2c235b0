package runtime

import (
	"context"
	"fmt"

	"github.com/wippyai/wasm-compiler/engine"
	"github.com/wippyai/wasm-compiler/errors"
	"github.com/wippyai/wasm-compiler/linker"
)

// Instance is an instantiated Module. Calls into one instance must be
// serialized by the caller; separate instances share nothing.
type Instance struct {
	module *Module
	inst   *linker.Instance
}

// Module returns the module the instance was created from.
func (i *Instance) Module() *Module {
	return i.module
}

// Linker returns the underlying linked instance, for use as another
// module's imports (see linker.Imports.AddInstance).
func (i *Instance) Linker() *linker.Instance {
	return i.inst
}

// Exports returns the instance's exports.
func (i *Instance) Exports() *linker.Exports {
	return i.inst.Exports()
}

// Memory returns the exported memory name, or nil.
func (i *Instance) Memory(name string) *engine.Memory {
	return i.inst.Exports().Memory(name)
}

// CallRaw invokes an exported function with raw slot arguments
// (see engine.EncodeI32 and friends).
func (i *Instance) CallRaw(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	f, err := i.inst.Exports().Func(name)
	if err != nil {
		return nil, err
	}
	return f.Call(ctx, args...)
}

// Call invokes an exported function, converting Go arguments to the
// parameter types and results to int32, int64, float32 or float64.
func (i *Instance) Call(ctx context.Context, name string, args ...any) ([]any, error) {
	f, err := i.inst.Exports().Func(name)
	if err != nil {
		return nil, err
	}
	params := f.Type.Params
	if len(args) != len(params) {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Path(name).
			Detail("expected %d argument(s), got %d", len(params), len(args)).
			Build()
	}

	raw := make([]uint64, len(args))
	for n, a := range args {
		v, ok := encodeArg(a, params[n])
		if !ok {
			return nil, errors.New(errors.PhaseRuntime, errors.KindTypeMismatch).
				Path(name, fmt.Sprintf("arg[%d]", n)).
				GoType(fmt.Sprintf("%T", a)).
				WasmType(params[n].String()).
				Value(a).
				Detail("cannot pass value as %s", params[n]).
				Build()
		}
		raw[n] = v
	}

	res, err := f.Call(ctx, raw...)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(res))
	for n, r := range res {
		out[n] = decodeResult(r, f.Type.Results[n])
	}
	return out, nil
}

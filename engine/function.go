package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-compiler/errors"
	"github.com/wippyai/wasm-compiler/wasm"
)

// HostFunc implements an imported function in Go. Arguments and results use
// the raw slot encoding (see EncodeValue). A non-nil error traps the caller
// with TrapHostError; a returned *errors.Trap propagates unchanged.
type HostFunc func(ctx context.Context, args []uint64) ([]uint64, error)

// Function is a callable function instance: either a compiled unit bound to
// its defining instance, or a host function.
type Function struct {
	Type wasm.FuncType
	Name string
	inst *Instance
	code *CompiledFunction
	host HostFunc
}

// NewHostFunction wraps fn as a function of type t.
func NewHostFunction(name string, t wasm.FuncType, fn HostFunc) *Function {
	return &Function{Type: t, Name: name, host: fn}
}

// IsHost reports whether f is implemented in Go.
func (f *Function) IsHost() bool {
	return f.host != nil
}

// Instance returns the defining instance, nil for host functions.
func (f *Function) Instance() *Instance {
	return f.inst
}

// callState is shared by every frame of one export invocation. It travels in
// the context handed to host functions so that a host calling back into the
// guest continues the same depth count.
type callState struct {
	ctx   context.Context
	depth int
	limit int
}

type callStateKey struct{}

// frame is the register file of one active call: locals first, then the
// operand stack.
type frame struct {
	regs []uint64
	inst *Instance
	cs   *callState
}

// Call invokes f with raw slot arguments. Traps are returned as *errors.Trap;
// other panics are not recovered.
func (f *Function) Call(ctx context.Context, args ...uint64) (results []uint64, err error) {
	if len(args) != len(f.Type.Params) {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Path(f.Name).
			Detail("expected %d argument(s), got %d", len(f.Type.Params), len(args)).
			Build()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cs := &callState{limit: f.inst.callLimit()}
	if parent, ok := ctx.Value(callStateKey{}).(*callState); ok {
		cs.depth = parent.depth
		cs.limit = min(cs.limit, parent.limit)
	}
	cs.ctx = context.WithValue(ctx, callStateKey{}, cs)

	defer func() {
		if r := recover(); r != nil {
			t, ok := r.(*errors.Trap)
			if !ok {
				panic(r)
			}
			if t.Func == "" {
				t.Func = f.Name
			}
			Logger().Debug("trap",
				zap.String("func", f.Name),
				zap.String("code", string(t.Code)),
				zap.Error(t.Cause))
			results, err = nil, t
		}
	}()

	out := f.call(cs, args)
	return append([]uint64(nil), out...), nil
}

// call runs f and returns its results. The returned slice may alias the
// callee frame and must be copied before the next call.
func (f *Function) call(cs *callState, args []uint64) []uint64 {
	if f.host != nil {
		return f.callHost(cs, args)
	}

	cs.depth++
	if cs.depth > cs.limit {
		panic(errors.NewTrap(errors.TrapCallStackExhausted))
	}

	c := f.code
	fr := frame{
		regs: make([]uint64, c.FrameSize),
		inst: f.inst,
		cs:   cs,
	}
	copy(fr.regs, args)
	run(c.body, &fr)

	cs.depth--
	return fr.regs[c.NumLocals : c.NumLocals+len(c.Type.Results)]
}

func (f *Function) callHost(cs *callState, args []uint64) []uint64 {
	in := append([]uint64(nil), args...)
	out, err := f.host(cs.ctx, in)
	if err != nil {
		var t *errors.Trap
		if errors.As(err, &t) {
			panic(t)
		}
		panic(&errors.Trap{Code: errors.TrapHostError, Cause: err, Func: f.Name})
	}
	if len(out) != len(f.Type.Results) {
		panic(&errors.Trap{
			Code:  errors.TrapHostError,
			Cause: fmt.Errorf("host function returned %d value(s), want %d", len(out), len(f.Type.Results)),
			Func:  f.Name,
		})
	}
	return out
}

package runtime

import (
	"context"
	"fmt"
	"reflect"

	"github.com/wippyai/wasm-compiler/engine"
	"github.com/wippyai/wasm-compiler/errors"
	"github.com/wippyai/wasm-compiler/linker"
)

// Bind returns the export name as a Go function of type F. F may take a
// leading context.Context and must return a trailing error, which carries
// traps. Its remaining parameters and results follow NewHostFunction.
//
//	add, err := runtime.Bind[func(context.Context, int32, int32) (int32, error)](inst, "add")
func Bind[F any](inst *Instance, name string) (F, error) {
	var fn F
	v, err := bindFunc(inst, name, reflect.TypeOf(&fn).Elem())
	if err != nil {
		return fn, err
	}
	reflect.ValueOf(&fn).Elem().Set(v)
	return fn, nil
}

// BindStruct fills every func-typed exported field of the struct ptr points
// to with the export named by its `wasm` tag, or the kebab-case field name.
// Fields tagged `wasm:"-"` are skipped.
func BindStruct(inst *Instance, ptr any) error {
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return errors.New(errors.PhaseHost, errors.KindInvalidInput).
			GoType(fmt.Sprintf("%T", ptr)).
			Detail("expected a pointer to a struct").
			Build()
	}
	sv := rv.Elem()
	for _, f := range funcFields(sv.Type()) {
		v, err := bindFunc(inst, f.name, f.typ)
		if err != nil {
			return err
		}
		sv.Field(f.index).Set(v)
	}
	return nil
}

// InterfaceOf derives an export descriptor from a struct (or pointer to
// struct) whose func fields are the exports to bind, as BindStruct names them.
func InterfaceOf(v any) (linker.Interface, error) {
	t := reflect.TypeOf(v)
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, errors.New(errors.PhaseHost, errors.KindInvalidInput).
			GoType(fmt.Sprintf("%T", v)).
			Detail("expected a struct").
			Build()
	}
	iface := make(linker.Interface)
	for _, f := range funcFields(t) {
		sig, err := signatureOf(f.typ)
		if err != nil {
			return nil, err
		}
		iface[f.name] = sig.FuncType
	}
	return iface, nil
}

type funcField struct {
	typ   reflect.Type
	name  string
	index int
}

func funcFields(t reflect.Type) []funcField {
	var out []funcField
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() || sf.Type.Kind() != reflect.Func {
			continue
		}
		name := sf.Tag.Get("wasm")
		if name == "-" {
			continue
		}
		if name == "" {
			name = toKebabCase(sf.Name)
		}
		out = append(out, funcField{typ: sf.Type, name: name, index: i})
	}
	return out
}

func bindFunc(inst *Instance, name string, ft reflect.Type) (reflect.Value, error) {
	sig, err := signatureOf(ft)
	if err != nil {
		return reflect.Value{}, err
	}
	if !sig.hasErr {
		return reflect.Value{}, errors.New(errors.PhaseHost, errors.KindInvalidInput).
			Path(name).
			GoType(ft.String()).
			Detail("bound functions must return a trailing error").
			Build()
	}
	f, err := inst.Exports().Func(name)
	if err != nil {
		return reflect.Value{}, err
	}
	if !f.Type.Equal(sig.FuncType) {
		return reflect.Value{}, errors.New(errors.PhaseHost, errors.KindExportSignatureMismatch).
			Path(name).
			GoType(ft.String()).
			WasmType(f.Type.String()).
			Detail("Go signature is %s", sig.FuncType).
			Build()
	}
	return reflect.MakeFunc(ft, caller(f, ft, sig)), nil
}

func caller(f *engine.Function, ft reflect.Type, sig goSignature) func([]reflect.Value) []reflect.Value {
	nres := len(sig.Results)
	return func(in []reflect.Value) []reflect.Value {
		ctx := context.Background()
		if sig.hasCtx {
			if c, ok := in[0].Interface().(context.Context); ok && c != nil {
				ctx = c
			}
			in = in[1:]
		}
		args := make([]uint64, len(in))
		for n, v := range in {
			args[n] = lower(v)
		}

		out := make([]reflect.Value, nres+1)
		res, err := f.Call(ctx, args...)
		for n := 0; n < nres; n++ {
			if err != nil {
				out[n] = reflect.Zero(ft.Out(n))
				continue
			}
			out[n] = lift(res[n], ft.Out(n))
		}
		out[nres] = reflect.Zero(errorType)
		if err != nil {
			out[nres] = reflect.ValueOf(&err).Elem()
		}
		return out
	}
}

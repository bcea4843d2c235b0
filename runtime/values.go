package runtime

import (
	"context"
	"math"
	"reflect"

	"github.com/wippyai/wasm-compiler/engine"
	"github.com/wippyai/wasm-compiler/errors"
	"github.com/wippyai/wasm-compiler/wasm"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// valTypeOf maps a Go type to the value type carrying it.
func valTypeOf(t reflect.Type) (wasm.ValType, bool) {
	switch t.Kind() {
	case reflect.Int32, reflect.Uint32, reflect.Bool:
		return wasm.ValI32, true
	case reflect.Int64, reflect.Uint64:
		return wasm.ValI64, true
	case reflect.Float32:
		return wasm.ValF32, true
	case reflect.Float64:
		return wasm.ValF64, true
	}
	return 0, false
}

// goSignature is the wasm view of a Go func type: an optional leading
// context.Context and an optional trailing error are not part of it.
type goSignature struct {
	wasm.FuncType
	hasCtx bool
	hasErr bool
}

func signatureOf(ft reflect.Type) (goSignature, error) {
	var sig goSignature
	if ft.Kind() != reflect.Func {
		return sig, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
			GoType(ft.String()).
			Detail("expected a function").
			Build()
	}
	if ft.IsVariadic() {
		return sig, errors.New(errors.PhaseHost, errors.KindUnsupported).
			GoType(ft.String()).
			Detail("variadic functions are not supported").
			Build()
	}

	in := 0
	if ft.NumIn() > 0 && ft.In(0) == contextType {
		sig.hasCtx = true
		in = 1
	}
	for ; in < ft.NumIn(); in++ {
		vt, ok := valTypeOf(ft.In(in))
		if !ok {
			return sig, unsupportedGoType(ft, ft.In(in))
		}
		sig.Params = append(sig.Params, vt)
	}

	out := ft.NumOut()
	if out > 0 && ft.Out(out-1) == errorType {
		sig.hasErr = true
		out--
	}
	for i := 0; i < out; i++ {
		vt, ok := valTypeOf(ft.Out(i))
		if !ok {
			return sig, unsupportedGoType(ft, ft.Out(i))
		}
		sig.Results = append(sig.Results, vt)
	}
	return sig, nil
}

func unsupportedGoType(fn, t reflect.Type) error {
	return errors.New(errors.PhaseHost, errors.KindUnsupported).
		GoType(t.String()).
		Detail("%s has no wasm value type in %s", t, fn).
		Build()
}

// lower converts a Go value of a supported kind to its raw slot encoding.
func lower(v reflect.Value) uint64 {
	switch v.Kind() {
	case reflect.Int32:
		return engine.EncodeI32(int32(v.Int()))
	case reflect.Uint32:
		return uint64(uint32(v.Uint()))
	case reflect.Bool:
		if v.Bool() {
			return 1
		}
		return 0
	case reflect.Int64:
		return engine.EncodeI64(v.Int())
	case reflect.Uint64:
		return v.Uint()
	case reflect.Float32:
		return engine.EncodeF32(float32(v.Float()))
	case reflect.Float64:
		return engine.EncodeF64(v.Float())
	}
	return 0
}

// lift converts a raw slot to a Go value of type t.
func lift(raw uint64, t reflect.Type) reflect.Value {
	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Int32:
		v.SetInt(int64(engine.DecodeI32(raw)))
	case reflect.Uint32:
		v.SetUint(uint64(uint32(raw)))
	case reflect.Bool:
		v.SetBool(uint32(raw) != 0)
	case reflect.Int64:
		v.SetInt(engine.DecodeI64(raw))
	case reflect.Uint64:
		v.SetUint(raw)
	case reflect.Float32:
		v.SetFloat(float64(engine.DecodeF32(raw)))
	case reflect.Float64:
		v.SetFloat(engine.DecodeF64(raw))
	}
	return v
}

// encodeArg converts a dynamically typed argument for a parameter of type t.
// A plain int is accepted for either integer type when it fits.
func encodeArg(v any, t wasm.ValType) (uint64, bool) {
	switch t {
	case wasm.ValI32:
		switch x := v.(type) {
		case int32:
			return engine.EncodeI32(x), true
		case uint32:
			return uint64(x), true
		case bool:
			return lower(reflect.ValueOf(x)), true
		case int:
			if n := int64(x); n >= math.MinInt32 && n <= math.MaxUint32 {
				return uint64(uint32(n)), true
			}
		}
	case wasm.ValI64:
		switch x := v.(type) {
		case int64:
			return engine.EncodeI64(x), true
		case uint64:
			return x, true
		case int:
			return engine.EncodeI64(int64(x)), true
		case int32:
			return engine.EncodeI64(int64(x)), true
		case uint32:
			return uint64(x), true
		}
	case wasm.ValF32:
		if x, ok := v.(float32); ok {
			return engine.EncodeF32(x), true
		}
	case wasm.ValF64:
		switch x := v.(type) {
		case float64:
			return engine.EncodeF64(x), true
		case float32:
			return engine.EncodeF64(float64(x)), true
		}
	}
	return 0, false
}

// decodeResult converts a raw result to its natural Go type.
func decodeResult(raw uint64, t wasm.ValType) any {
	switch t {
	case wasm.ValI32:
		return engine.DecodeI32(raw)
	case wasm.ValI64:
		return engine.DecodeI64(raw)
	case wasm.ValF32:
		return engine.DecodeF32(raw)
	case wasm.ValF64:
		return engine.DecodeF64(raw)
	}
	return raw
}

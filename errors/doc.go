// Package errors provides structured error types for the wasm-compiler library.
//
// Errors are categorized by Phase (decode, validate, compile, linking, runtime)
// and Kind (MalformedBinary, TypeMismatch, UnresolvedImport, ...). The Error
// type carries a location path, Go and wasm type names, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseValidate, errors.KindTypeMismatch).
//		Path("func[2]", "instr[7]").
//		Detail("expected i64, got i32").
//		Build()
//
// Runtime faults are reported as *Trap, never as *Error:
//
//	if errors.IsTrap(err, errors.TrapIntegerDivideByZero) { ... }
//
// All errors implement the standard error interface and support errors.Is/As.
package errors

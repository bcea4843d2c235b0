// Package wasmcompiler decodes, validates and compiles WebAssembly 1.0
// modules into trees of Go closures and runs them without a JIT or an
// interpreter loop.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	wasmcompiler/        Root package with core Memory interfaces
//	├── runtime/         High-level API: compile, instantiate, call, bind
//	├── engine/          Closure compiler, memory, tables, globals, traps
//	├── linker/          Import resolution and instantiation
//	├── wasm/            Binary decoder, encoder and validator
//	├── errors/          Structured error and trap types
//	└── cmd/wasmc/       Command line inspector and runner
//
// # Quick Start
//
// Compile and run a module:
//
//	mod, err := runtime.Compile(ctx, wasmBytes, nil, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	inst, err := mod.Instantiate(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := inst.Call(ctx, "add", int32(40), int32(2))
//	fmt.Println(result) // [42]
//
// # Pipeline
//
// A module passes through four stages, each of which must succeed before
// the next starts:
//
//   - Decode: the binary is parsed into a wasm.Module; malformed input is
//     rejected with a decode error.
//   - Validate: every function body is type-checked against the operand and
//     control stacks. A module that fails here is never compiled.
//   - Compile: each function becomes a closure tree. Compiled modules are
//     immutable and may be instantiated any number of times.
//   - Instantiate: imports are resolved, memory, tables and globals are
//     allocated, segments are copied in and the start function runs.
//
// # Traps
//
// Runtime faults (out of bounds access, division by zero, unreachable,
// call stack exhaustion, host failures) surface as *errors.Trap. A trap ends
// the current call; the instance stays usable.
//
// # Thread Safety
//
// Runtime and Module are safe for concurrent use. Instance is NOT thread-safe
// and should be used by a single goroutine, or access must be synchronized.
//
// # Memory Model
//
// WASM linear memory can only grow, never shrink. Growth is bounded by the
// module's declared maximum and by runtime.WithMemoryLimitPages.
package wasmcompiler

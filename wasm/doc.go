// Package wasm provides the WebAssembly module model, binary codec and
// validator.
//
// # Supported Features
//
//	Core 1.0 (MVP):
//	  - Value types i32, i64, f32, f64
//	  - Functions, one table (funcref), one memory, globals
//	  - Control flow, calls, call_indirect, local/global access
//	  - Import/export of all definitions, start function
//	  - Active data and element segments
//
//	Post-1.0 additions:
//	  - Multi-value block and function types
//	  - Sign extension operators
//	  - Non-trapping float-to-int conversions
//	  - Bulk memory (memory.init/copy/fill, data.drop, passive segments)
//
// Other proposals (reference types, SIMD, threads, GC, exceptions, memory64)
// are rejected at decode time as unknown opcodes or encodings.
//
// # Decoding
//
//	data, _ := os.ReadFile("module.wasm")
//	module, err := wasm.DecodeModule(data)
//
// Decoding is strict: LEB128 values must be minimally encoded, every
// section's declared length must match what it contains, and every index
// must be in range. Failures are *errors.Error with Kind MalformedBinary
// wrapping a position-carrying parse error. Custom and unknown sections are
// kept opaque in Module.Sections.
//
// # Encoding
//
//	encoded := module.Encode()
//
// For every valid module m, DecodeModule(m.Encode()) is structurally equal to m.
//
// # Validation
//
//	if err := module.Validate(); err != nil { ... }
//
// Validate checks module-level structure (limits, exports, start function,
// constant expressions) and type-checks every function body over an
// abstract operand stack driven by StackEffectOf. Errors carry a
// func[i].instr[j] path.
package wasm

// Package engine compiles validated WebAssembly functions into Go closures
// and provides the runtime objects they execute against.
//
// # Compilation
//
// Compile turns each function body into a CompiledFunction: a tree of
// closures ("thunks") over a per-call register file. Locals occupy the first
// registers; operand stack height h maps statically to register
// NumLocals+h, so no runtime stack pointer exists.
//
//	compiled, err := engine.Compile(module) // module.Validate() first
//
// Control flow is structured: each thunk returns -1 to continue or the
// relative depth of a branch target. Blocks consume depth 0 and pass deeper
// branches outward; loops restart on depth 0; return escapes every block.
// A branch copies its label's values down to the label's base register.
//
// # Runtime objects
//
//	Instance  - memory, table, globals, function index space, passive data
//	Function  - a compiled unit bound to an Instance, or a HostFunc
//	Memory    - linear memory, implements wasmcompiler.Memory
//	Table     - funcref table
//	Global    - one raw 64-bit value slot
//
// Values cross the API as raw uint64 slots; EncodeI32/DecodeF64 and friends
// convert.
//
// # Traps
//
// Runtime faults panic with *errors.Trap inside compiled code and are
// recovered by Function.Call, which returns the trap as its error. Other
// panics propagate. A trap ends the current call only; the instance remains
// usable.
//
// # Thread Safety
//
// CompiledFunction values are immutable and may be shared. Instance and its
// objects are NOT thread-safe: serialize calls into one instance.
package engine

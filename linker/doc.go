// Package linker instantiates compiled modules.
//
// # Main Types
//
//   - Imports: externs offered to a module, keyed by module and field name
//   - Interface / ImportInterface: signature descriptors for exports and imports
//   - Instance: an instantiated module with its Exports
//
// # Instantiation Order
//
//  1. Resolve every import (all failures are reported together)
//  2. Allocate memory, table and globals
//  3. Bounds-check every active segment, then apply them
//  4. Run the start function
//  5. Bind exports against the descriptor, if one is given
//
// Nothing is allocated when import resolution fails, and no segment is
// written when any segment is out of bounds.
//
// # Thread Safety
//
// Imports must not be modified during Instantiate. Instance is NOT safe for
// concurrent use.
//
// # Example
//
//	imports := linker.Imports{}
//	imports.Func("env", "log", logType, logFn)
//	inst, err := linker.Instantiate(ctx, m, compiled, imports, &linker.Options{
//		Exports: linker.Interface{"run": runType},
//	})
//	run, _ := inst.Exports().Func("run")
//	results, err := run.Call(ctx)
package linker

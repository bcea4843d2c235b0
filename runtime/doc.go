// Package runtime is the host-facing API: compile a module once, then create
// instances from it and call their exports with Go values.
//
// # Quick Start
//
//	mod, err := runtime.Compile(ctx, wasmBytes,
//	    linker.Interface{"add": addType}, // exports the caller uses
//	    nil,                              // no imports
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	inst, err := mod.Factory()(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	results, err := inst.Call(ctx, "add", int32(2), int32(3))
//	fmt.Println(results[0]) // 5
//
// Compile decodes and validates the whole module before compiling any
// function, then checks the export and import descriptors. Errors are
// *errors.Error values carrying a phase and kind; a failed call returns an
// *errors.Trap.
//
// # Descriptors
//
// Export and import descriptors are plain maps from names to wasm.FuncType.
// They can also be derived:
//
//	iface, err := runtime.ParseInterface(`
//	    export add: func(a: s32, b: s32) -> s32;
//	`)
//
//	type API struct {
//	    Add func(context.Context, int32, int32) (int32, error) `wasm:"add"`
//	}
//	iface, err := runtime.InterfaceOf(API{})
//
// # Host Functions
//
// Go functions over int32, uint32, bool, int64, uint64, float32 and float64
// can be imported directly:
//
//	rt := runtime.New(runtime.WithMaxCallDepth(1000))
//	rt.RegisterFunc("env", "log", func(ctx context.Context, v int32) {
//	    fmt.Println(v)
//	})
//
//	// Or implement the Host interface for a full namespace
//	rt.RegisterHost(myHost)
//
// Registered functions satisfy both the import check in Compile and the
// imports of every instance the Runtime's modules create.
//
// # Typed Bindings
//
//	add, err := runtime.Bind[func(context.Context, int32, int32) (int32, error)](inst, "add")
//	sum, err := add(ctx, 2, 3)
//
//	var api API
//	err = runtime.BindStruct(inst, &api)
//
// # Thread Safety
//
// Runtime and Module are safe for concurrent use. Instances are not: calls
// into a single instance must be serialized by the caller.
package runtime

package engine

// DefaultMaxCallDepth bounds nested calls when an instance sets no limit.
const DefaultMaxCallDepth = 10000

// Instance is the runtime state compiled code executes against.
// The linker populates it; compiled functions only ever read the slices
// and mutate the objects they point to.
type Instance struct {
	Memory *Memory
	Table  *Table
	Name   string

	Globals []*Global
	// Funcs is the full function index space, imports first.
	Funcs []*Function
	// Data holds segment bytes by data index; nil once dropped.
	Data [][]byte

	MaxCallDepth int
}

// NewFunction binds a compiled unit to this instance.
func (inst *Instance) NewFunction(code *CompiledFunction, name string) *Function {
	return &Function{
		Type: code.Type,
		Name: name,
		inst: inst,
		code: code,
	}
}

func (inst *Instance) callLimit() int {
	if inst == nil || inst.MaxCallDepth <= 0 {
		return DefaultMaxCallDepth
	}
	return inst.MaxCallDepth
}

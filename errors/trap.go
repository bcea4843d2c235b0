package errors

import "strings"

// TrapCode identifies the runtime fault that ended an export invocation.
type TrapCode string

const (
	TrapOutOfBoundsMemoryAccess    TrapCode = "out of bounds memory access"
	TrapIntegerDivideByZero        TrapCode = "integer divide by zero"
	TrapIntegerOverflow            TrapCode = "integer overflow"
	TrapIndirectCallTypeMismatch   TrapCode = "indirect call type mismatch"
	TrapUnreachableExecuted        TrapCode = "unreachable executed"
	TrapUndefinedElement           TrapCode = "undefined element"
	TrapUninitializedElement       TrapCode = "uninitialized element"
	TrapInvalidConversionToInteger TrapCode = "invalid conversion to integer"
	TrapCallStackExhausted         TrapCode = "call stack exhausted"
	TrapHostError                  TrapCode = "host function error"
)

// Trap is a runtime fault raised while executing compiled code.
// It is distinct from *Error: a trap ends the current call only.
type Trap struct {
	Cause error
	Code  TrapCode
	// Func is the export or function name being called when the trap surfaced.
	Func string
}

// NewTrap creates a trap with the given code.
func NewTrap(code TrapCode) *Trap {
	return &Trap{Code: code}
}

func (t *Trap) Error() string {
	var b strings.Builder
	b.WriteString("wasm trap: ")
	b.WriteString(string(t.Code))
	if t.Func != "" {
		b.WriteString(" in ")
		b.WriteString(t.Func)
	}
	if t.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(t.Cause.Error())
		b.WriteByte(')')
	}
	return b.String()
}

// Unwrap returns the underlying error
func (t *Trap) Unwrap() error {
	return t.Cause
}

// Is matches another *Trap with the same code. A target with an empty code matches any trap.
func (t *Trap) Is(target error) bool {
	if o, ok := target.(*Trap); ok {
		return o.Code == "" || o.Code == t.Code
	}
	return false
}

// IsTrap reports whether err is a trap with the given code.
func IsTrap(err error, code TrapCode) bool {
	return Is(err, &Trap{Code: code})
}

// TrapCodeOf returns the code of the trap in err's chain, or "".
func TrapCodeOf(err error) TrapCode {
	var t *Trap
	if As(err, &t) {
		return t.Code
	}
	return ""
}

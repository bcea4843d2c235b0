package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDecode   Phase = "decode"   // binary to module model
	PhaseEncode   Phase = "encode"   // module model to binary
	PhaseValidate Phase = "validate" // static type checking
	PhaseCompile  Phase = "compile"  // code generation
	PhaseLinking  Phase = "linking"  // import resolution and instantiation
	PhaseRuntime  Phase = "runtime"  // export invocation
	PhaseHost     Phase = "host"     // host function and binding setup
	PhaseParse    Phase = "parse"    // WIT parsing
)

// Kind categorizes the error
type Kind string

const (
	// decode
	KindMalformedBinary Kind = "malformed_binary"

	// validate
	KindTypeMismatch        Kind = "type_mismatch"
	KindInvalidAlignment    Kind = "invalid_alignment"
	KindUndefinedMemory     Kind = "undefined_memory"
	KindUnknownLabel        Kind = "unknown_label"
	KindReturnArityMismatch Kind = "return_arity_mismatch"
	KindUnknownFunction     Kind = "unknown_function"
	KindUnknownType         Kind = "unknown_type"
	KindUnknownLocal        Kind = "unknown_local"
	KindUnknownGlobal       Kind = "unknown_global"
	KindUnknownTable        Kind = "unknown_table"
	KindUnknownData         Kind = "unknown_data"
	KindUnknownElement      Kind = "unknown_element"
	KindImmutableGlobal     Kind = "immutable_global"
	KindInvalidLimits       Kind = "invalid_limits"
	KindDuplicateExport     Kind = "duplicate_export"
	KindConstantExpression  Kind = "constant_expression"

	// compile
	KindUnsupportedInstruction Kind = "unsupported_instruction"

	// linking
	KindUnresolvedImport        Kind = "unresolved_import"
	KindExportSignatureMismatch Kind = "export_signature_mismatch"
	KindSegmentOutOfBounds      Kind = "segment_out_of_bounds"
	KindUnboundExport           Kind = "unbound_export"

	// general
	KindInvalidData   Kind = "invalid_data"
	KindInvalidInput  Kind = "invalid_input"
	KindNotFound      Kind = "not_found"
	KindUnsupported   Kind = "unsupported"
	KindOutOfBounds   Kind = "out_of_bounds"
	KindInstantiation Kind = "instantiation"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	GoType   string
	WasmType string
	Detail   string
	Path     []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.WasmType != "" {
		b.WriteString(": ")
		switch {
		case e.GoType != "" && e.WasmType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", wasm type ")
			b.WriteString(e.WasmType)
		case e.GoType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		default:
			b.WriteString("wasm type ")
			b.WriteString(e.WasmType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.WasmType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target with an empty Phase matches on Kind alone.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return (t.Phase == "" || e.Phase == t.Phase) && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the location path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// WasmType sets the wasm type or signature
func (b *Builder) WasmType(t string) *Builder {
	b.err.WasmType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HasKind reports whether err's chain contains an *Error of the given kind.
func HasKind(err error, kind Kind) bool {
	return stderrors.Is(err, &Error{Kind: kind})
}

// Is forwards to the standard library errors.Is.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As forwards to the standard library errors.As.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Plain returns a bare error with the given text, as errors.New in the standard library.
func Plain(text string) error { return stderrors.New(text) }

// Convenience constructors for common error patterns

// Malformed creates a decode-phase malformed binary error
func Malformed(cause error, detail string, args ...any) *Error {
	return New(PhaseDecode, KindMalformedBinary).Detail(detail, args...).Cause(cause).Build()
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// UnresolvedImport represents a single import that could not be satisfied
type UnresolvedImport struct {
	Module string
	Name   string
	Reason string
}

// UnresolvedImportsError lists every import that failed to resolve.
type UnresolvedImportsError struct {
	Imports []UnresolvedImport
}

func (e *UnresolvedImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "no unresolved imports"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d unresolved import(s):", len(e.Imports))

	// Group by module for cleaner output
	byModule := make(map[string][]UnresolvedImport)
	var order []string
	for _, imp := range e.Imports {
		if _, exists := byModule[imp.Module]; !exists {
			order = append(order, imp.Module)
		}
		byModule[imp.Module] = append(byModule[imp.Module], imp)
	}

	for _, mod := range order {
		b.WriteString("\n  ")
		b.WriteString(mod)
		b.WriteByte(':')
		for _, imp := range byModule[mod] {
			b.WriteString("\n    - ")
			b.WriteString(imp.Name)
			if imp.Reason != "" {
				b.WriteString(": ")
				b.WriteString(imp.Reason)
			}
		}
	}
	return b.String()
}

// Is reports whether target matches this error type
func (e *UnresolvedImportsError) Is(target error) bool {
	_, ok := target.(*UnresolvedImportsError)
	return ok
}

package linker

import (
	"fmt"
	"strings"

	"github.com/wippyai/wasm-compiler/errors"
)

// InstantiationError provides context when module instantiation fails.
type InstantiationError struct {
	Cause error
	Phase string
	// ImportPath is "module.name" for import failures, the export or segment otherwise.
	ImportPath string
	Reason     string
	// Index is the segment or function index involved, -1 when not applicable.
	Index int
}

func (e *InstantiationError) Error() string {
	var b strings.Builder
	b.WriteString("instantiation failed")

	if e.Phase != "" {
		b.WriteString(" at ")
		b.WriteString(e.Phase)
	}

	if e.Index >= 0 {
		fmt.Fprintf(&b, " (index %d)", e.Index)
	}

	if e.ImportPath != "" {
		b.WriteString(": ")
		b.WriteString(e.ImportPath)
	}

	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}

	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}

	return b.String()
}

func (e *InstantiationError) Unwrap() error {
	return e.Cause
}

// instError wraps an InstantiationError in a linking-phase *errors.Error of kind.
func instError(kind errors.Kind, phase string, index int, path, reason string, cause error) *errors.Error {
	ie := &InstantiationError{
		Phase:      phase,
		Index:      index,
		ImportPath: path,
		Reason:     reason,
		Cause:      cause,
	}
	b := errors.New(errors.PhaseLinking, kind).Detail("%s", reason).Cause(ie)
	if path != "" {
		b = b.Path(path)
	}
	return b.Build()
}

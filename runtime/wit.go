package runtime

import (
	"regexp"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-compiler/errors"
	"github.com/wippyai/wasm-compiler/linker"
	"github.com/wippyai/wasm-compiler/wasm"
)

// Pattern: [export] name: func(params) [-> result];
var witFuncPattern = regexp.MustCompile(`(?:export\s+)?([a-zA-Z_][a-zA-Z0-9_-]*)\s*:\s*func\s*\(([^)]*)\)(?:\s*->\s*([^;]+))?`)

// ParseInterface builds an export descriptor from the function declarations
// in WIT text. Only types with a direct core wasm representation are
// accepted: bool, char and integers up to 32 bits map to i32, 64-bit
// integers to i64, and f32/f64 to themselves.
func ParseInterface(witText string) (linker.Interface, error) {
	iface := make(linker.Interface)

	for _, match := range witFuncPattern.FindAllStringSubmatch(witText, -1) {
		name := match[1]
		paramsStr := strings.TrimSpace(match[2])
		resultStr := strings.TrimSpace(match[3])

		var sig wasm.FuncType
		for _, p := range splitParams(paramsStr) {
			typStr := p
			if idx := strings.LastIndex(p, ":"); idx != -1 {
				typStr = p[idx+1:]
			}
			vt, err := witValType(typStr)
			if err != nil {
				return nil, errors.Wrap(errors.PhaseParse, errors.KindInvalidData, err, "parse param type of "+name)
			}
			sig.Params = append(sig.Params, vt)
		}

		if resultStr != "" && resultStr != "()" {
			parts := []string{resultStr}
			if strings.HasPrefix(resultStr, "(") && strings.HasSuffix(resultStr, ")") {
				parts = splitParams(resultStr[1 : len(resultStr)-1])
			}
			for _, part := range parts {
				vt, err := witValType(part)
				if err != nil {
					return nil, errors.Wrap(errors.PhaseParse, errors.KindInvalidData, err, "parse result type of "+name)
				}
				sig.Results = append(sig.Results, vt)
			}
		}

		iface[name] = sig
	}

	if len(iface) == 0 {
		return nil, errors.InvalidInput(errors.PhaseParse, "no functions found in WIT text")
	}
	return iface, nil
}

// splitParams splits parameter list, handling nested parens.
func splitParams(s string) []string {
	var result []string
	var current strings.Builder
	depth := 0

	for _, ch := range s {
		switch ch {
		case '(', '<':
			depth++
			current.WriteRune(ch)
		case ')', '>':
			depth--
			current.WriteRune(ch)
		case ',':
			if depth == 0 {
				if str := strings.TrimSpace(current.String()); str != "" {
					result = append(result, str)
				}
				current.Reset()
			} else {
				current.WriteRune(ch)
			}
		default:
			current.WriteRune(ch)
		}
	}

	if str := strings.TrimSpace(current.String()); str != "" {
		result = append(result, str)
	}

	return result
}

func witValType(s string) (wasm.ValType, error) {
	s = strings.TrimSpace(s)
	t, err := wit.ParseType(s)
	if err != nil {
		return 0, err
	}
	switch t.(type) {
	case wit.Bool, wit.S8, wit.U8, wit.S16, wit.U16, wit.S32, wit.U32, wit.Char:
		return wasm.ValI32, nil
	case wit.S64, wit.U64:
		return wasm.ValI64, nil
	case wit.F32:
		return wasm.ValF32, nil
	case wit.F64:
		return wasm.ValF64, nil
	}
	return 0, errors.Unsupported(errors.PhaseParse, "WIT type "+s+" in a core module signature")
}

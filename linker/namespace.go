package linker

import (
	"strconv"
	"strings"

	"github.com/wippyai/wasm-compiler/engine"
	"github.com/wippyai/wasm-compiler/wasm"
)

// Version represents a semantic version for import module matching
type Version struct {
	Major uint32
	Minor uint32
	Patch uint32
}

// ParseVersion parses a version string like "0.2.0" or "0.2"
func ParseVersion(s string) (Version, bool) {
	if s == "" {
		return Version{}, false
	}

	var v Version
	parts := strings.Split(s, ".")
	if len(parts) > 3 {
		return Version{}, false
	}

	for i, p := range parts {
		if p == "" || strings.TrimLeft(p, "0123456789") != "" {
			return Version{}, false
		}
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return Version{}, false
		}
		switch i {
		case 0:
			v.Major = uint32(n)
		case 1:
			v.Minor = uint32(n)
		case 2:
			v.Patch = uint32(n)
		}
	}
	return v, true
}

// Compatible returns true if v can satisfy a request for want:
// same major, and not older than want.
func (v Version) Compatible(want Version) bool {
	if v.Major != want.Major {
		return false
	}
	if v.Minor != want.Minor {
		return v.Minor > want.Minor
	}
	return v.Patch >= want.Patch
}

// Less orders versions by precedence.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor < o.Minor
	}
	return v.Patch < o.Patch
}

// String returns the version as "major.minor.patch"
func (v Version) String() string {
	return strconv.FormatUint(uint64(v.Major), 10) + "." +
		strconv.FormatUint(uint64(v.Minor), 10) + "." +
		strconv.FormatUint(uint64(v.Patch), 10)
}

// parseNameVersion splits "name@version" into name and parsed version
func parseNameVersion(s string) (string, *Version) {
	idx := strings.LastIndex(s, "@")
	if idx < 0 {
		return s, nil
	}
	if v, ok := ParseVersion(s[idx+1:]); ok {
		return s[:idx], &v
	}
	return s, nil
}

// Extern is a value that can satisfy an import. Exactly one field is set.
type Extern struct {
	Func   *engine.Function
	Memory *engine.Memory
	Table  *engine.Table
	Global *engine.Global
}

// Kind returns the wasm external kind of e.
func (e Extern) Kind() byte {
	switch {
	case e.Memory != nil:
		return wasm.KindMemory
	case e.Table != nil:
		return wasm.KindTable
	case e.Global != nil:
		return wasm.KindGlobal
	}
	return wasm.KindFunc
}

func (e Extern) isZero() bool {
	return e.Func == nil && e.Memory == nil && e.Table == nil && e.Global == nil
}

// Imports holds the externs offered to a module, by module name then field
// name. Module names may carry a version ("env@1.2.0").
type Imports map[string]map[string]Extern

// Define adds an extern under module.name, replacing any previous one.
func (im Imports) Define(module, name string, e Extern) Imports {
	fields, ok := im[module]
	if !ok {
		fields = make(map[string]Extern)
		im[module] = fields
	}
	fields[name] = e
	return im
}

// Func defines a host function of type t.
func (im Imports) Func(module, name string, t wasm.FuncType, fn engine.HostFunc) Imports {
	return im.Define(module, name, Extern{Func: engine.NewHostFunction(module+"."+name, t, fn)})
}

// Memory defines an imported memory.
func (im Imports) Memory(module, name string, mem *engine.Memory) Imports {
	return im.Define(module, name, Extern{Memory: mem})
}

// Table defines an imported table.
func (im Imports) Table(module, name string, t *engine.Table) Imports {
	return im.Define(module, name, Extern{Table: t})
}

// Global defines an imported global.
func (im Imports) Global(module, name string, g *engine.Global) Imports {
	return im.Define(module, name, Extern{Global: g})
}

// AddInstance offers every export of inst under module.
func (im Imports) AddInstance(module string, inst *Instance) Imports {
	ex := inst.Exports()
	for name, f := range ex.Funcs {
		im.Define(module, name, Extern{Func: f})
	}
	for name, m := range ex.Memories {
		im.Define(module, name, Extern{Memory: m})
	}
	for name, t := range ex.Tables {
		im.Define(module, name, Extern{Table: t})
	}
	for name, g := range ex.Globals {
		im.Define(module, name, Extern{Global: g})
	}
	return im
}

// Lookup finds module.name. With semver set, a versioned request
// ("env@1.0.0") is also satisfied by the newest compatible version of the
// same module ("env@1.3.2").
func (im Imports) Lookup(module, name string, semver bool) (Extern, bool) {
	if fields, ok := im[module]; ok {
		if e, ok := fields[name]; ok {
			return e, true
		}
	}
	if !semver {
		return Extern{}, false
	}
	base, want := parseNameVersion(module)
	if want == nil {
		return Extern{}, false
	}

	var (
		best    Extern
		bestVer *Version
	)
	for key, fields := range im {
		n, have := parseNameVersion(key)
		if n != base || have == nil || !have.Compatible(*want) {
			continue
		}
		e, ok := fields[name]
		if !ok {
			continue
		}
		if bestVer == nil || bestVer.Less(*have) {
			best, bestVer = e, have
		}
	}
	return best, bestVer != nil
}

// Package model holds the data-model types shared by the Script Host,
// Extension Registry, and Tool Dispatcher: the plain descriptor types a
// script's describe_extension() call produces, independent of how the
// script was evaluated.
package model

import "go.starlark.net/starlark"

// ParamType enumerates the parameter/JSON types the spec recognizes.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// ValidParamTypes is the allowed set for ParameterSpec.Type validation.
var ValidParamTypes = map[ParamType]bool{
	TypeString:  true,
	TypeInteger: true,
	TypeNumber:  true,
	TypeBoolean: true,
	TypeArray:   true,
	TypeObject:  true,
}

// ParameterSpec describes one tool parameter.
type ParameterSpec struct {
	Name        string
	Type        ParamType
	Required    bool
	Default     *string // string-encoded; nil means no default
	Description string
}

// ToolDescriptor describes one tool advertised by an extension.
type ToolDescriptor struct {
	Name          string
	Description   string
	Parameters    []ParameterSpec
	HandlerSymbol string // resolved against the extension's FrozenModule globals
}

// ParamByName returns the parameter spec with the given name, or false.
func (t *ToolDescriptor) ParamByName(name string) (ParameterSpec, bool) {
	for _, p := range t.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterSpec{}, false
}

// ExtensionDescriptor describes one loaded extension's metadata.
type ExtensionDescriptor struct {
	Name         string
	Version      string
	Description  string
	ExecWhitelist map[string]bool // command basenames; nil/empty means "no whitelist declared"
	Tools        []ToolDescriptor
}

// FrozenModule is the immutable, concurrency-safe snapshot of a script's
// post-evaluation global environment. Safe for concurrent reads from many
// dispatches; never mutated after construction.
type FrozenModule struct {
	Globals starlark.StringDict
	Dir     string // directory the source file lived in, for data.load_json
	Path    string // absolute source path
}

// Lookup resolves a handler symbol against the module's frozen globals.
// Handlers are stored by name, not by value, so dispatch always re-resolves
// the live callable from the module rather than holding a stale reference.
func (m *FrozenModule) Lookup(symbol string) (starlark.Callable, bool) {
	v, ok := m.Globals[symbol]
	if !ok {
		return nil, false
	}
	fn, ok := v.(starlark.Callable)
	return fn, ok
}

// LoadedExtension is the unit the Registry owns: a descriptor plus the
// frozen module it was built from, plus the source path it came from.
type LoadedExtension struct {
	Descriptor   ExtensionDescriptor
	Module       *FrozenModule
	SourcePath   string
	Digest       string   // SHA-256 content digest of the source file, computed at load; not consulted by the Loader
	Dependencies []string // file stems pulled in via load(), for stale-on-sibling-delete tracking
}

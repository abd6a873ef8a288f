package scripthost

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Extension, Tool, and ToolParameter are injected as globals into every
// script's evaluation environment. They are pure record constructors: no
// side effects, unknown keyword arguments are a TypeError (UnpackArgs's own
// behavior), omitted optional fields default to empty/None. Each builds a
// *starlarkstruct.Struct tagged with a distinct constructor identity so the
// host can recognize and unwrap them after describe_extension() returns,
// without having to hand-roll a starlark.Value implementation for each
// record kind.
var (
	extensionConstructor = starlark.String("Extension")
	toolConstructor       = starlark.String("Tool")
	paramConstructor      = starlark.String("ToolParameter")
)

func extensionBuiltin() *starlark.Builtin {
	return starlark.NewBuiltin("Extension", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			name        string
			version     string
			description string
			tools       *starlark.List
			allowedExec *starlark.List
		)
		if err := starlark.UnpackArgs("Extension", args, kwargs,
			"name", &name,
			"version?", &version,
			"description?", &description,
			"tools?", &tools,
			"allowed_exec?", &allowedExec,
		); err != nil {
			return nil, err
		}
		if name == "" {
			return nil, fmt.Errorf("Extension: name is required and must be non-empty")
		}

		fields := starlark.StringDict{
			"name":         starlark.String(name),
			"version":      starlark.String(version),
			"description":  starlark.String(description),
			"tools":        listOrEmpty(tools),
			"allowed_exec": listOrEmpty(allowedExec),
		}
		return starlarkstruct.FromStringDict(extensionConstructor, fields), nil
	})
}

func toolBuiltin() *starlark.Builtin {
	return starlark.NewBuiltin("Tool", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			name        string
			description string
			handler     starlark.Value
			parameters  *starlark.List
		)
		if err := starlark.UnpackArgs("Tool", args, kwargs,
			"name", &name,
			"description?", &description,
			"handler", &handler,
			"parameters?", &parameters,
		); err != nil {
			return nil, err
		}
		if name == "" {
			return nil, fmt.Errorf("Tool: name is required and must be non-empty")
		}
		callable, ok := handler.(starlark.Callable)
		if !ok {
			return nil, fmt.Errorf("Tool: handler must be a function, got %s", handler.Type())
		}

		fields := starlark.StringDict{
			"name":        starlark.String(name),
			"description": starlark.String(description),
			"handler":     starlark.String(callable.Name()),
			"parameters":  listOrEmpty(parameters),
		}
		return starlarkstruct.FromStringDict(toolConstructor, fields), nil
	})
}

func toolParameterBuiltin() *starlark.Builtin {
	return starlark.NewBuiltin("ToolParameter", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			name        string
			paramType   string
			required    bool
			def         starlark.Value = starlark.None
			description string
		)
		if err := starlark.UnpackArgs("ToolParameter", args, kwargs,
			"name", &name,
			"type", &paramType,
			"required?", &required,
			"default?", &def,
			"description?", &description,
		); err != nil {
			return nil, err
		}
		if name == "" {
			return nil, fmt.Errorf("ToolParameter: name is required and must be non-empty")
		}

		fields := starlark.StringDict{
			"name":        starlark.String(name),
			"type":        starlark.String(paramType),
			"required":    starlark.Bool(required),
			"default":     def,
			"description": starlark.String(description),
		}
		return starlarkstruct.FromStringDict(paramConstructor, fields), nil
	})
}

func listOrEmpty(l *starlark.List) *starlark.List {
	if l == nil {
		return starlark.NewList(nil)
	}
	return l
}

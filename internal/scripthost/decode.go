package scripthost

import (
	"fmt"
	"regexp"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"starmcp-go/internal/errs"
	"starmcp-go/internal/model"
)

var identifierRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// decodeExtension unwraps the *starlarkstruct.Struct returned by
// describe_extension() into a model.ExtensionDescriptor, validating every
// invariant spec.md §4.4 step 4 names: exactly one Extension value, unique
// tool names within it, each handler resolvable in the module, each
// parameter name a valid identifier, each param_type in the allowed set.
func decodeExtension(v starlark.Value, module starlark.StringDict, stem string) (model.ExtensionDescriptor, error) {
	st, ok := v.(*starlarkstruct.Struct)
	if !ok || !structIs(st, extensionConstructor) {
		return model.ExtensionDescriptor{}, errs.Wrap(errs.ErrLoadError,
			"describe_extension() must return an Extension(...) value, got %s", v.Type())
	}

	name, err := attrString(st, "name")
	if err != nil {
		return model.ExtensionDescriptor{}, errs.Wrap(errs.ErrLoadError, "Extension.name: %v", err)
	}
	if name != stem {
		return model.ExtensionDescriptor{}, errs.Wrap(errs.ErrLoadError,
			"Extension name %q does not match file stem %q", name, stem)
	}
	version, _ := attrString(st, "version")
	description, _ := attrString(st, "description")

	whitelist, err := decodeExecWhitelist(st)
	if err != nil {
		return model.ExtensionDescriptor{}, err
	}

	toolsAttr, err := st.Attr("tools")
	if err != nil {
		return model.ExtensionDescriptor{}, errs.Wrap(errs.ErrLoadError, "Extension.tools: %v", err)
	}
	toolsList, ok := toolsAttr.(*starlark.List)
	if !ok {
		return model.ExtensionDescriptor{}, errs.Wrap(errs.ErrLoadError, "Extension.tools must be a list")
	}

	seen := make(map[string]bool, toolsList.Len())
	tools := make([]model.ToolDescriptor, 0, toolsList.Len())
	iter := toolsList.Iterate()
	defer iter.Done()
	var item starlark.Value
	for iter.Next(&item) {
		td, err := decodeTool(item, module)
		if err != nil {
			return model.ExtensionDescriptor{}, err
		}
		if seen[td.Name] {
			return model.ExtensionDescriptor{}, errs.Wrap(errs.ErrLoadError,
				"duplicate tool name %q within extension %q", td.Name, name)
		}
		seen[td.Name] = true
		tools = append(tools, td)
	}

	return model.ExtensionDescriptor{
		Name:          name,
		Version:       version,
		Description:   description,
		ExecWhitelist: whitelist,
		Tools:         tools,
	}, nil
}

func decodeExecWhitelist(st *starlarkstruct.Struct) (map[string]bool, error) {
	attr, err := st.Attr("allowed_exec")
	if err != nil {
		return nil, nil
	}
	list, ok := attr.(*starlark.List)
	if !ok {
		return nil, errs.Wrap(errs.ErrLoadError, "Extension.allowed_exec must be a list of strings")
	}
	if list.Len() == 0 {
		return nil, nil
	}
	whitelist := make(map[string]bool, list.Len())
	iter := list.Iterate()
	defer iter.Done()
	var item starlark.Value
	for iter.Next(&item) {
		s, ok := starlark.AsString(item)
		if !ok {
			return nil, errs.Wrap(errs.ErrLoadError, "Extension.allowed_exec entries must be strings")
		}
		whitelist[s] = true
	}
	return whitelist, nil
}

func decodeTool(v starlark.Value, module starlark.StringDict) (model.ToolDescriptor, error) {
	st, ok := v.(*starlarkstruct.Struct)
	if !ok || !structIs(st, toolConstructor) {
		return model.ToolDescriptor{}, errs.Wrap(errs.ErrLoadError,
			"Extension.tools entries must be Tool(...) values, got %s", v.Type())
	}

	name, err := attrString(st, "name")
	if err != nil || name == "" {
		return model.ToolDescriptor{}, errs.Wrap(errs.ErrLoadError, "Tool.name is required")
	}
	description, _ := attrString(st, "description")
	handlerSymbol, err := attrString(st, "handler")
	if err != nil || handlerSymbol == "" {
		return model.ToolDescriptor{}, errs.Wrap(errs.ErrLoadError, "Tool %q: handler is required", name)
	}
	sym, ok := module[handlerSymbol]
	if !ok {
		return model.ToolDescriptor{}, errs.Wrap(errs.ErrLoadError,
			"Tool %q: handler %q does not resolve to a module-level symbol", name, handlerSymbol)
	}
	if _, ok := sym.(starlark.Callable); !ok {
		return model.ToolDescriptor{}, errs.Wrap(errs.ErrLoadError,
			"Tool %q: handler %q is not callable", name, handlerSymbol)
	}

	paramsAttr, err := st.Attr("parameters")
	if err != nil {
		return model.ToolDescriptor{}, errs.Wrap(errs.ErrLoadError, "Tool %q: parameters: %v", name, err)
	}
	paramsList, ok := paramsAttr.(*starlark.List)
	if !ok {
		return model.ToolDescriptor{}, errs.Wrap(errs.ErrLoadError, "Tool %q: parameters must be a list", name)
	}

	seen := make(map[string]bool, paramsList.Len())
	params := make([]model.ParameterSpec, 0, paramsList.Len())
	iter := paramsList.Iterate()
	defer iter.Done()
	var item starlark.Value
	for iter.Next(&item) {
		ps, err := decodeParameter(item)
		if err != nil {
			return model.ToolDescriptor{}, err
		}
		if seen[ps.Name] {
			return model.ToolDescriptor{}, errs.Wrap(errs.ErrLoadError,
				"duplicate parameter name %q in tool %q", ps.Name, name)
		}
		seen[ps.Name] = true
		params = append(params, ps)
	}

	return model.ToolDescriptor{
		Name:          name,
		Description:   description,
		Parameters:    params,
		HandlerSymbol: handlerSymbol,
	}, nil
}

func decodeParameter(v starlark.Value) (model.ParameterSpec, error) {
	st, ok := v.(*starlarkstruct.Struct)
	if !ok || !structIs(st, paramConstructor) {
		return model.ParameterSpec{}, errs.Wrap(errs.ErrLoadError,
			"Tool.parameters entries must be ToolParameter(...) values, got %s", v.Type())
	}

	name, err := attrString(st, "name")
	if err != nil || name == "" || !identifierRE.MatchString(name) {
		return model.ParameterSpec{}, errs.Wrap(errs.ErrLoadError, "ToolParameter.name %q is not a valid identifier", name)
	}
	typ, err := attrString(st, "type")
	if err != nil {
		return model.ParameterSpec{}, errs.Wrap(errs.ErrLoadError, "ToolParameter %q: type: %v", name, err)
	}
	pt := model.ParamType(typ)
	if !model.ValidParamTypes[pt] {
		return model.ParameterSpec{}, errs.Wrap(errs.ErrLoadError, "ToolParameter %q: invalid type %q", name, typ)
	}
	description, _ := attrString(st, "description")

	requiredAttr, err := st.Attr("required")
	required := false
	if err == nil {
		if b, ok := requiredAttr.(starlark.Bool); ok {
			required = bool(b)
		}
	}

	var def *string
	defAttr, err := st.Attr("default")
	if err == nil && defAttr != starlark.None {
		s, ok := starlark.AsString(defAttr)
		if !ok {
			return model.ParameterSpec{}, errs.Wrap(errs.ErrLoadError,
				"ToolParameter %q: default must be a string (string-encoded), got %s", name, defAttr.Type())
		}
		def = &s
	}

	return model.ParameterSpec{
		Name:        name,
		Type:        pt,
		Required:    required,
		Default:     def,
		Description: description,
	}, nil
}

func structIs(st *starlarkstruct.Struct, constructor starlark.String) bool {
	c, ok := st.Constructor().(starlark.String)
	return ok && c == constructor
}

func attrString(st *starlarkstruct.Struct, name string) (string, error) {
	v, err := st.Attr(name)
	if err != nil {
		return "", err
	}
	s, ok := starlark.AsString(v)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", name)
	}
	return s, nil
}

// Package dispatch implements the Tool Dispatcher: the eight-step
// resolve/validate/invoke/marshal algorithm of spec.md §4.7, bridging a
// JSON-shaped tools/call request into a handler invocation against the
// Extension Registry's live, frozen modules.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.starlark.net/starlark"

	"starmcp-go/internal/bridge"
	"starmcp-go/internal/capability"
	"starmcp-go/internal/errs"
	"starmcp-go/internal/model"
	"starmcp-go/internal/registry"
	"starmcp-go/internal/scripthost"
)

// Result is what a dispatch always produces, on both success and script
// error — shaped per spec.md §4.7 step 7/8 as {content: [...], isError}.
type Result struct {
	Content []ContentItem
	IsError bool
}

// ContentItem is one element of a Result's content sequence.
type ContentItem struct {
	Type string
	Text string
}

// Dispatcher invokes tools against a live Registry. host is used only
// to re-validate a stale extension (spec.md §4.6's dependent-extension
// flag) before dispatching against it.
type Dispatcher struct {
	registry *registry.Registry
	host     *scripthost.Host
	inFlight sync.WaitGroup
}

// New builds a Dispatcher over reg, using host to reload a flagged-stale
// extension's source file before dispatching against it.
func New(reg *registry.Registry, host *scripthost.Host) *Dispatcher {
	return &Dispatcher{registry: reg, host: host}
}

// Drain blocks until every Dispatch call in flight when it was invoked has
// returned, or ctx is canceled — the "bounded by a shutdown timeout" half
// of spec.md §4.8's drain-on-transport-close rule.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch runs toolName with the given JSON-object arguments, honoring
// ctx for cancellation of blocking capability calls. It never returns a Go
// error for a script-level failure — that becomes an isError Result — only
// for dispatcher-level failures (ToolNotFound, ArgumentError, and
// InternalError when the handler symbol no longer resolves).
func (d *Dispatcher) Dispatch(ctx context.Context, toolName string, arguments map[string]any) (Result, error) {
	d.inFlight.Add(1)
	defer d.inFlight.Done()

	ext, tool, ok := d.registry.ResolveTool(toolName)
	if !ok {
		return Result{}, errs.Wrap(errs.ErrToolNotFound, "no tool named %q is registered", toolName)
	}

	if d.registry.IsStale(ext.Descriptor.Name) {
		if reloaded, err := d.host.Load(ext.SourcePath); err == nil {
			if err := d.registry.Install(reloaded); err == nil {
				if freshExt, freshTool, ok := d.registry.ResolveTool(toolName); ok {
					ext, tool = freshExt, freshTool
				}
			}
		}
		// Best-effort re-validation: on failure, the stale-but-previously-
		// valid version stays installed and dispatch proceeds against it.
	}

	coerced, err := coerceArguments(tool, arguments)
	if err != nil {
		return Result{}, err
	}

	handler, ok := ext.Module.Lookup(tool.HandlerSymbol)
	if !ok {
		return Result{}, errs.Wrap(errs.ErrInternalError,
			"tool %q: handler %q no longer resolves in extension %q", toolName, tool.HandlerSymbol, ext.Descriptor.Name)
	}

	argDict := starlark.NewDict(len(coerced))
	for k, v := range coerced {
		_ = argDict.SetKey(starlark.String(k), bridge.FromJSON(v))
	}

	thread := &starlark.Thread{Name: "dispatch:" + toolName}
	capability.WithScriptDir(thread, ext.Module.Dir)
	capability.WithCallContext(thread, &capability.CallContext{
		ExtensionName: ext.Descriptor.Name,
		ExecWhitelist: ext.Descriptor.ExecWhitelist,
		Ctx:           ctx,
	})

	result, callErr := starlark.Call(thread, handler, starlark.Tuple{argDict}, nil)
	if callErr != nil {
		return Result{
			Content: []ContentItem{{Type: "text", Text: "Error: " + callErr.Error()}},
			IsError: true,
		}, nil
	}

	return shapeResult(result), nil
}

// coerceArguments implements spec.md §4.7 step 3: presence/type checks,
// silent drop of unknown arguments, default substitution.
func coerceArguments(tool model.ToolDescriptor, arguments map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(tool.Parameters))
	for _, p := range tool.Parameters {
		v, present := arguments[p.Name]
		if !present {
			if p.Required {
				return nil, errs.Wrap(errs.ErrArgumentError, "missing required argument %q", p.Name)
			}
			if p.Default != nil {
				out[p.Name] = defaultForType(p.Type, *p.Default)
			}
			continue
		}
		if err := checkType(p, v); err != nil {
			return nil, err
		}
		out[p.Name] = v
	}
	return out, nil
}

func checkType(p model.ParameterSpec, v any) error {
	switch p.Type {
	case model.TypeString:
		if _, ok := v.(string); !ok {
			return errs.Wrap(errs.ErrArgumentError, "argument %q must be a string", p.Name)
		}
	case model.TypeBoolean:
		if _, ok := v.(bool); !ok {
			return errs.Wrap(errs.ErrArgumentError, "argument %q must be a boolean", p.Name)
		}
	case model.TypeInteger:
		if !isWholeNumber(v) {
			return errs.Wrap(errs.ErrArgumentError, "argument %q must be an integer", p.Name)
		}
	case model.TypeNumber:
		if !isNumber(v) {
			return errs.Wrap(errs.ErrArgumentError, "argument %q must be a number", p.Name)
		}
	case model.TypeArray:
		if _, ok := v.([]any); !ok {
			return errs.Wrap(errs.ErrArgumentError, "argument %q must be an array", p.Name)
		}
	case model.TypeObject:
		if _, ok := v.(map[string]any); !ok {
			return errs.Wrap(errs.ErrArgumentError, "argument %q must be an object", p.Name)
		}
	}
	return nil
}

// isNumber accepts any JSON numeric representation; a bool is explicitly
// excluded since JSON booleans must never coerce to numbers, per spec.md
// §4.7's "booleans are not integers" rule.
func isNumber(v any) bool {
	switch v.(type) {
	case float64, int, int64:
		return true
	default:
		return false
	}
}

func isWholeNumber(v any) bool {
	switch n := v.(type) {
	case int, int64:
		return true
	case float64:
		return n == float64(int64(n))
	default:
		return false
	}
}

func defaultForType(t model.ParamType, encoded string) any {
	switch t {
	case model.TypeString:
		return encoded
	case model.TypeBoolean:
		return encoded == "true"
	default:
		// integer/number/array/object defaults are string-encoded JSON per
		// spec.md §3; a malformed default degrades to the raw string
		// rather than failing the whole call.
		var v any
		if err := json.Unmarshal([]byte(encoded), &v); err == nil {
			return v
		}
		return encoded
	}
}

// shapeResult implements spec.md §4.7 step 7: marshal via Value Bridge,
// then shape-check for {content: [...]}, wrapping bare values otherwise.
func shapeResult(v starlark.Value) Result {
	jv, err := bridge.ToJSON(v)
	if err != nil {
		return Result{Content: []ContentItem{{Type: "text", Text: "Error: " + err.Error()}}, IsError: true}
	}

	if obj, ok := jv.(map[string]any); ok {
		if rawContent, ok := obj["content"].([]any); ok {
			items := make([]ContentItem, 0, len(rawContent))
			for _, c := range rawContent {
				items = append(items, contentItemFromJSON(c))
			}
			isError, _ := obj["isError"].(bool)
			return Result{Content: items, IsError: isError}
		}
	}

	return Result{Content: []ContentItem{{Type: "text", Text: stringifyJSON(jv)}}}
}

func contentItemFromJSON(v any) ContentItem {
	m, ok := v.(map[string]any)
	if !ok {
		return ContentItem{Type: "text", Text: stringifyJSON(v)}
	}
	typ, _ := m["type"].(string)
	if typ == "" {
		typ = "text"
	}
	text, _ := m["text"].(string)
	return ContentItem{Type: typ, Text: text}
}

func stringifyJSON(v any) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}

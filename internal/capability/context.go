// Package capability implements the host-provided callables injected as
// script globals: time, env, math, json, http, exec, sqlite, postgres,
// data, fuzzy, and (test-mode only) testing. Each module is an independent
// leaf with no dependency on any other capability.
package capability

import (
	"context"

	"go.starlark.net/starlark"
)

// Thread-local keys. Starlark threads carry per-call state via
// Thread.SetLocal/Local — the natural vehicle the spec's own design notes
// call for ("thread-local / task-local context") — rather than through any
// script-visible global, so a script can never introspect its own call
// context (Open Question #2, resolved: no).
const (
	CallContextKey = "starmcp.call_context"
	ScriptDirKey   = "starmcp.script_dir"
)

// CallContext is installed by the Tool Dispatcher into thread-local state
// before invoking a handler, and read by capability modules that need
// per-call scoping: exec for the whitelist check, and exec, http, sqlite
// and postgres for the cancellation signal (via CurrentContext).
// It is scoped to exactly one tool invocation and never stored beyond it.
type CallContext struct {
	ExtensionName string
	ExecWhitelist map[string]bool // nil/empty: no whitelist declared
	RequestID     string
	Ctx           context.Context // cancellation signal for blocking capability calls
}

// WithCallContext installs cc into thread-local state.
func WithCallContext(thread *starlark.Thread, cc *CallContext) {
	thread.SetLocal(CallContextKey, cc)
}

// CurrentCallContext retrieves the CallContext installed by the dispatcher,
// or nil if none is installed (e.g. during top-level script evaluation at
// load time, when no tool call is in flight).
func CurrentCallContext(thread *starlark.Thread) *CallContext {
	v := thread.Local(CallContextKey)
	cc, _ := v.(*CallContext)
	return cc
}

// WithScriptDir installs the loading script's directory into thread-local
// state, so the data capability can resolve data.load_json's relative path
// both during top-level script evaluation and during a dispatched call.
func WithScriptDir(thread *starlark.Thread, dir string) {
	thread.SetLocal(ScriptDirKey, dir)
}

// CurrentScriptDir retrieves the directory installed by WithScriptDir.
func CurrentScriptDir(thread *starlark.Thread) string {
	v := thread.Local(ScriptDirKey)
	dir, _ := v.(string)
	return dir
}

// CurrentContext retrieves the cancellation signal installed on thread's
// CallContext, per spec.md §5's cancellation/timeout rule: a canceled
// tools/call must be observable by a blocking capability call. Returns
// context.Background() when no CallContext is installed (top-level script
// evaluation at load time) or its Ctx field is nil, so callers never need a
// nil check of their own.
func CurrentContext(thread *starlark.Thread) context.Context {
	if cc := CurrentCallContext(thread); cc != nil && cc.Ctx != nil {
		return cc.Ctx
	}
	return context.Background()
}

package capability

import (
	"strings"
	"testing"

	"go.starlark.net/starlark"
)

func TestExecRunDeniedOutsideWhitelist(t *testing.T) {
	thread := &starlark.Thread{}
	WithCallContext(thread, &CallContext{ExecWhitelist: map[string]bool{"ls": true}})

	b := starlark.NewBuiltin("exec.run", execRun)
	_, err := starlark.Call(thread, b, starlark.Tuple{starlark.String("rm")}, nil)
	if err == nil {
		t.Fatal("expected exec.run(\"rm\", ...) to be denied, got nil error")
	}
	if !strings.Contains(err.Error(), "not in the allowed exec whitelist") {
		t.Errorf("error %q does not mention the whitelist rejection", err.Error())
	}
}

func TestExecRunDeniedWithNoWhitelistDeclared(t *testing.T) {
	thread := &starlark.Thread{}
	WithCallContext(thread, &CallContext{})

	b := starlark.NewBuiltin("exec.run", execRun)
	_, err := starlark.Call(thread, b, starlark.Tuple{starlark.String("ls")}, nil)
	if err == nil {
		t.Fatal("expected exec.run to be denied when no whitelist is declared")
	}
}

func TestExecRunAllowed(t *testing.T) {
	thread := &starlark.Thread{}
	WithCallContext(thread, &CallContext{ExecWhitelist: map[string]bool{"echo": true}})

	b := starlark.NewBuiltin("exec.run", execRun)
	result, err := starlark.Call(thread, b, starlark.Tuple{starlark.String("echo"), starlark.NewList([]starlark.Value{starlark.String("hi")})}, nil)
	if err != nil {
		t.Fatalf("expected exec.run(\"echo\", [\"hi\"]) to succeed, got %v", err)
	}

	dict, ok := result.(*starlark.Dict)
	if !ok {
		t.Fatalf("expected *starlark.Dict result, got %T", result)
	}
	success, found, _ := dict.Get(starlark.String("success"))
	if !found {
		t.Fatal("result missing \"success\" key")
	}
	if b, ok := success.(starlark.Bool); !ok || !bool(b) {
		t.Errorf("expected success=True, got %v", success)
	}
}

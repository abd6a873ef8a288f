package capability

import (
	"bytes"
	"fmt"
	"os/exec"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// ExecModule is a hand-built module over os/exec, gated by CheckExec before
// the child process is ever spawned.
func ExecModule() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "exec",
		Members: starlark.StringDict{
			"run": starlark.NewBuiltin("exec.run", execRun),
		},
	}
}

func execRun(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		command  string
		argsList *starlark.List
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "command", &command, "args?", &argsList); err != nil {
		return nil, err
	}

	if err := CheckExec(thread, command); err != nil {
		return nil, err
	}

	ctx := CurrentContext(thread)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var childArgs []string
	if argsList != nil {
		iter := argsList.Iterate()
		defer iter.Done()
		var item starlark.Value
		for iter.Next(&item) {
			s, ok := starlark.AsString(item)
			if !ok {
				return nil, fmt.Errorf("exec.run: args entries must be strings, got %s", item.Type())
			}
			childArgs = append(childArgs, s)
		}
	}

	// CommandContext kills the child (SIGKILL) the moment ctx is canceled,
	// satisfying the "terminate the child" half of the cancellation rule.
	cmd := exec.CommandContext(ctx, command, childArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitCode := 0
	success := true
	if runErr != nil {
		success = false
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	result := starlark.NewDict(4)
	_ = result.SetKey(starlark.String("stdout"), starlark.String(stdout.String()))
	_ = result.SetKey(starlark.String("stderr"), starlark.String(stderr.String()))
	_ = result.SetKey(starlark.String("exit_code"), starlark.MakeInt(exitCode))
	_ = result.SetKey(starlark.String("success"), starlark.Bool(success))
	return result, nil
}

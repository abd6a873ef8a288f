package capability

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// TestingModule is installed only by the Test Runner (internal/testrunner),
// never by the serve-mode Host, per spec.md §4.2's "(test-mode only)" note.
func TestingModule() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "testing",
		Members: starlark.StringDict{
			"eq":       starlark.NewBuiltin("testing.eq", testingEq),
			"ne":       starlark.NewBuiltin("testing.ne", testingNe),
			"is_true":  starlark.NewBuiltin("testing.is_true", testingIsTrue),
			"is_false": starlark.NewBuiltin("testing.is_false", testingIsFalse),
			"contains": starlark.NewBuiltin("testing.contains", testingContains),
			"fail":     starlark.NewBuiltin("testing.fail", testingFail),
		},
	}
}

func testingEq(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var a, c starlark.Value
	var msg string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "a", &a, "b", &c, "msg?", &msg); err != nil {
		return nil, err
	}
	eq, err := starlark.Equal(a, c)
	if err != nil {
		return nil, err
	}
	if !eq {
		return nil, assertionError(msg, "testing.eq: %s != %s", a.String(), c.String())
	}
	return starlark.None, nil
}

func testingNe(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var a, c starlark.Value
	var msg string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "a", &a, "b", &c, "msg?", &msg); err != nil {
		return nil, err
	}
	eq, err := starlark.Equal(a, c)
	if err != nil {
		return nil, err
	}
	if eq {
		return nil, assertionError(msg, "testing.ne: %s == %s", a.String(), c.String())
	}
	return starlark.None, nil
}

func testingIsTrue(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	var msg string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "v", &v, "msg?", &msg); err != nil {
		return nil, err
	}
	if !v.Truth() {
		return nil, assertionError(msg, "testing.is_true: %s is not true", v.String())
	}
	return starlark.None, nil
}

func testingIsFalse(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	var msg string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "v", &v, "msg?", &msg); err != nil {
		return nil, err
	}
	if v.Truth() {
		return nil, assertionError(msg, "testing.is_false: %s is not false", v.String())
	}
	return starlark.None, nil
}

func testingContains(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var container, item starlark.Value
	var msg string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "container", &container, "item", &item, "msg?", &msg); err != nil {
		return nil, err
	}
	iterable, ok := container.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("testing.contains: container of type %s is not iterable", container.Type())
	}
	iter := iterable.Iterate()
	defer iter.Done()
	var elem starlark.Value
	found := false
	for iter.Next(&elem) {
		eq, err := starlark.Equal(elem, item)
		if err != nil {
			return nil, err
		}
		if eq {
			found = true
			break
		}
	}
	if !found {
		return nil, assertionError(msg, "testing.contains: %s not found in %s", item.String(), container.String())
	}
	return starlark.None, nil
}

func testingFail(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var msg string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "msg?", &msg); err != nil {
		return nil, err
	}
	if msg == "" {
		msg = "testing.fail"
	}
	return nil, fmt.Errorf("%s", msg)
}

func assertionError(msg, format string, args ...any) error {
	if msg != "" {
		return fmt.Errorf("%s", msg)
	}
	return fmt.Errorf(format, args...)
}

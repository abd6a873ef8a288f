package capability

import (
	"fmt"
	"os"
	"path/filepath"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"starmcp-go/internal/bridge"
)

// DataModule is a hand-built module exposing load_json(relative_path),
// resolved against the loading script's own directory via the thread-local
// installed by WithScriptDir — set by the Script Host at load time and
// re-installed by the Tool Dispatcher for handler-time calls.
func DataModule() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "data",
		Members: starlark.StringDict{
			"load_json": starlark.NewBuiltin("data.load_json", dataLoadJSON),
		},
	}
}

func dataLoadJSON(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var relPath string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "relative_path", &relPath); err != nil {
		return nil, err
	}

	dir := CurrentScriptDir(thread)
	if dir == "" {
		return nil, fmt.Errorf("data.load_json: no script directory in scope")
	}
	full := filepath.Join(dir, relPath)

	raw, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("data.load_json(%q): %v", relPath, err)
	}

	v, err := bridge.FromJSONBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("data.load_json(%q): invalid JSON: %v", relPath, err)
	}

	return v, nil
}

package capability

import (
	startjson "go.starlark.net/lib/json"
	"go.starlark.net/starlarkstruct"
)

// JSONModule re-exports go.starlark.net's own json module unmodified.
// decode already raises a *starlark.EvalError on malformed input, which
// satisfies the ParseError contract without any wrapping on our part.
func JSONModule() *starlarkstruct.Module {
	return startjson.Module
}

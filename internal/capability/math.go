package capability

import (
	startmath "go.starlark.net/lib/math"
	"go.starlark.net/starlarkstruct"
)

// MathModule re-exports go.starlark.net's own math module unmodified — it
// already provides round, pow, sqrt, and the rest of the numeric surface
// spec.md §4.2 asks for.
func MathModule() *starlarkstruct.Module {
	return startmath.Module
}

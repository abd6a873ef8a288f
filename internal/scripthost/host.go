// Package scripthost evaluates a .star source file against the capability
// globals and the Extension/Tool/ToolParameter builtins, producing a frozen,
// concurrency-safe module snapshot plus the ExtensionDescriptor obtained by
// calling the module's describe_extension(). This is grounded directly on
// go.starlark.net's own starlark.ExecFile + Thread.Load pattern.
package scripthost

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"go.starlark.net/starlark"

	"starmcp-go/internal/capability"
	"starmcp-go/internal/errs"
	"starmcp-go/internal/model"
)

// Host evaluates script files. One Host is shared across the process; it
// carries no mutable state of its own beyond the capability globals handed
// to it at construction, so it is safe for concurrent use across unrelated
// top-level loads (each Load call gets its own loading-set and module
// cache, scoped to that call only — see spec.md design notes on not
// memoizing partially-loaded modules across calls).
type Host struct {
	predeclared starlark.StringDict
}

// New builds a Host with the given capability modules (and, in test mode,
// the testing module) installed as globals, plus the Extension/Tool/
// ToolParameter record constructors.
func New(capabilityModules starlark.StringDict) *Host {
	predeclared := make(starlark.StringDict, len(capabilityModules)+3)
	for k, v := range capabilityModules {
		predeclared[k] = v
	}
	predeclared["Extension"] = extensionBuiltin()
	predeclared["Tool"] = toolBuiltin()
	predeclared["ToolParameter"] = toolParameterBuiltin()
	return &Host{predeclared: predeclared}
}

// evalResult is the shared product of executing a script's top level,
// before any describe_extension() contract is enforced on it.
type evalResult struct {
	globals starlark.StringDict
	thread  *starlark.Thread
	dir     string
	absPath string
	digest  string
	deps    []string
}

// evalFile executes path's top level against the Host's predeclared
// globals, resolving any load() statements relative to path's directory.
// It does not require or call describe_extension() — callers that need an
// Extension decide that on top.
func (h *Host) evalFile(path string) (*evalResult, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrLoadError, "scripthost: %s: %v", path, err)
	}
	dir := filepath.Dir(absPath)
	stem := stemOf(absPath)

	src, err := os.ReadFile(absPath)
	if err != nil {
		return nil, errs.Wrap(errs.ErrLoadError, "scripthost: reading %s: %v", absPath, err)
	}
	srcDigest := digest(src)

	loading := map[string]bool{stem: true}
	cache := map[string]starlark.StringDict{}

	thread := &starlark.Thread{
		Name: stem,
		Load: h.loadResolver(dir, loading, cache),
	}
	capability.WithScriptDir(thread, dir)

	globals, err := starlark.ExecFile(thread, absPath, src, h.predeclared)
	if err != nil {
		return nil, errs.Wrap(errs.ErrLoadError, "scripthost: evaluating %s: %v", absPath, err)
	}

	deps := make([]string, 0, len(cache))
	for name := range cache {
		deps = append(deps, name)
	}

	return &evalResult{
		globals: globals,
		thread:  thread,
		dir:     dir,
		absPath: absPath,
		digest:  srcDigest,
		deps:    deps,
	}, nil
}

// Load evaluates the script at path and returns its LoadedExtension. The
// file stem (basename minus .star) must match the Extension.name the
// script declares, and the script must define describe_extension().
func (h *Host) Load(path string) (*model.LoadedExtension, error) {
	res, err := h.evalFile(path)
	if err != nil {
		return nil, err
	}
	stem := stemOf(res.absPath)

	describe, ok := res.globals["describe_extension"]
	if !ok {
		return nil, errs.Wrap(errs.ErrLoadError, "scripthost: %s: missing describe_extension()", res.absPath)
	}
	fn, ok := describe.(starlark.Callable)
	if !ok {
		return nil, errs.Wrap(errs.ErrLoadError, "scripthost: %s: describe_extension is not callable", res.absPath)
	}

	result, err := starlark.Call(res.thread, fn, nil, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrLoadError, "scripthost: %s: describe_extension() failed: %v", res.absPath, err)
	}

	descriptor, err := decodeExtension(result, res.globals, stem)
	if err != nil {
		return nil, err
	}

	res.globals.Freeze()

	return &model.LoadedExtension{
		Descriptor: descriptor,
		Module: &model.FrozenModule{
			Globals: res.globals,
			Dir:     res.dir,
			Path:    res.absPath,
		},
		SourcePath:   res.absPath,
		Digest:       res.digest,
		Dependencies: res.deps,
	}, nil
}

// LoadModule evaluates path's top level and freezes its globals without
// requiring or calling describe_extension(). This is the Test Runner's
// entry point for *_test.star files, which per spec.md §4.9 carry bare
// test_* functions rather than an Extension declaration.
func (h *Host) LoadModule(path string) (*model.FrozenModule, error) {
	res, err := h.evalFile(path)
	if err != nil {
		return nil, err
	}
	res.globals.Freeze()
	return &model.FrozenModule{
		Globals: res.globals,
		Dir:     res.dir,
		Path:    res.absPath,
	}, nil
}

// loadResolver implements load("name", "symbol") by resolving name to
// <dir>/<name>.star, recursively evaluating it with the same predeclared
// globals, and caching the result. A loading-set guards against cycles;
// per spec.md design notes, partially-loaded modules are never memoized —
// only fully completed ones enter cache, and a module still mid-evaluation
// when re-encountered is a LoadError, not a silently-reused partial result.
func (h *Host) loadResolver(dir string, loading map[string]bool, cache map[string]starlark.StringDict) func(thread *starlark.Thread, module string) (starlark.StringDict, error) {
	var resolve func(name string) (starlark.StringDict, error)
	resolve = func(name string) (starlark.StringDict, error) {
		if cached, ok := cache[name]; ok {
			return cached, nil
		}
		if loading[name] {
			return nil, errs.Wrap(errs.ErrLoadError, "scripthost: cyclic load() involving %q", name)
		}
		loading[name] = true
		defer delete(loading, name)

		path := filepath.Join(dir, name+".star")
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.Wrap(errs.ErrLoadError, "scripthost: load(%q): %v", name, err)
		}

		thread := &starlark.Thread{
			Name: name,
			Load: func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
				return resolve(stemOf(module))
			},
		}
		capability.WithScriptDir(thread, dir)

		globals, err := starlark.ExecFile(thread, path, src, h.predeclared)
		if err != nil {
			return nil, errs.Wrap(errs.ErrLoadError, "scripthost: evaluating %s: %v", path, err)
		}
		cache[name] = globals
		return globals, nil
	}
	return func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
		return resolve(stemOf(module))
	}
}

func stemOf(pathOrName string) string {
	base := filepath.Base(pathOrName)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func digest(src []byte) string {
	sum := sha256.Sum256(src)
	return hex.EncodeToString(sum[:])
}

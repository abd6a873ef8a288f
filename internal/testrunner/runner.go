// Package testrunner implements the alternate test-runner entry mode: load
// every *_test.star file with the testing capability installed, run its
// zero-argument test_* functions sequentially, and tally pass/fail to
// stderr so stdout stays free for the MCP transport in the non-test entry
// mode. Grounded on the Script Host's own load/evaluate shape, reused
// directly rather than re-implemented.
package testrunner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.starlark.net/starlark"

	"starmcp-go/internal/scripthost"
)

// CaseResult is one test_* function's outcome.
type CaseResult struct {
	File   string
	Name   string
	Passed bool
	Err    error
}

// FileResult groups a *_test.star file's cases, including a load failure
// that prevented any of its tests from running.
type FileResult struct {
	Path    string
	LoadErr error
	Cases   []CaseResult
}

// Summary is the overall tally the spec's S6 scenario checks against.
type Summary struct {
	Total  int
	Passed int
	Failed int
}

// Run discovers and executes every *_test.star file under dir, writing
// per-test and summary lines to out, and returns the aggregate tally plus
// the full per-file detail.
func Run(dir string, host *scripthost.Host, out io.Writer) (Summary, []FileResult, error) {
	var paths []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil || info == nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, "_test.star") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return Summary{}, nil, err
	}
	sort.Strings(paths)

	var summary Summary
	var files []FileResult

	for _, path := range paths {
		fr := runFile(path, host, out)
		files = append(files, fr)
		for _, c := range fr.Cases {
			summary.Total++
			if c.Passed {
				summary.Passed++
			} else {
				summary.Failed++
			}
		}
	}

	fmt.Fprintf(out, "Total: %d | Passed: %d | Failed: %d\n", summary.Total, summary.Passed, summary.Failed)
	return summary, files, nil
}

func runFile(path string, host *scripthost.Host, out io.Writer) FileResult {
	module, err := host.LoadModule(path)
	if err != nil {
		fmt.Fprintf(out, "FAIL %s: load error: %v\n", path, err)
		return FileResult{Path: path, LoadErr: err}
	}

	names := testFunctionNames(module.Globals)
	fr := FileResult{Path: path}
	for _, name := range names {
		fr.Cases = append(fr.Cases, runCase(path, name, module.Globals, out))
	}
	return fr
}

// testFunctionNames returns every zero-argument callable global whose name
// starts with test_, sorted for deterministic run order.
func testFunctionNames(globals starlark.StringDict) []string {
	var names []string
	for name, v := range globals {
		if !strings.HasPrefix(name, "test_") {
			continue
		}
		fn, ok := v.(starlark.Callable)
		if !ok {
			continue
		}
		if takesNoArgs(fn) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func takesNoArgs(fn starlark.Callable) bool {
	if rf, ok := fn.(interface{ NumParams() int }); ok {
		return rf.NumParams() == 0
	}
	// Builtins and closures that don't expose NumParams are invoked with no
	// arguments and allowed to fail their own arity check at call time.
	return true
}

func runCase(path, name string, globals starlark.StringDict, out io.Writer) CaseResult {
	fn, _ := globals[name].(starlark.Callable)
	thread := &starlark.Thread{Name: path + ":" + name}

	_, err := starlark.Call(thread, fn, nil, nil)
	if err != nil {
		fmt.Fprintf(out, "FAIL %s::%s: %v\n", path, name, err)
		return CaseResult{File: path, Name: name, Passed: false, Err: err}
	}

	fmt.Fprintf(out, "PASS %s::%s\n", path, name)
	return CaseResult{File: path, Name: name, Passed: true}
}

package capability

import "go.starlark.net/starlark"

// ServeModules returns the capability globals installed for normal
// (non-test) script evaluation: time, env, math, json, http, exec, sqlite,
// postgres, data, fuzzy — unchanged names, per spec.md §9's "single source
// of script compatibility" note.
func ServeModules() starlark.StringDict {
	return starlark.StringDict{
		"time":     TimeModule(),
		"env":      EnvModule(),
		"math":     MathModule(),
		"json":     JSONModule(),
		"http":     HTTPModule(),
		"exec":     ExecModule(),
		"sqlite":   SQLiteModule(),
		"postgres": PostgresModule(),
		"data":     DataModule(),
		"fuzzy":    FuzzyModule(),
	}
}

// TestModules returns ServeModules plus the testing module, for use by the
// Test Runner only.
func TestModules() starlark.StringDict {
	modules := ServeModules()
	modules["testing"] = TestingModule()
	return modules
}

package capability

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.starlark.net/starlark"
)

// CheckExec enforces the exec whitelist rule from spec.md §4.3 against the
// CallContext installed on thread. It is consulted by exec.run before the
// child process is spawned — never after.
func CheckExec(thread *starlark.Thread, command string) error {
	cc := CurrentCallContext(thread)
	if cc == nil || len(cc.ExecWhitelist) == 0 {
		return fmt.Errorf("exec.run(%q): no allowed_exec whitelist declared for this extension; "+
			"add allowed_exec = [%q] to the Extension(...) record to permit it", command, filepath.Base(command))
	}
	base := filepath.Base(command)
	if cc.ExecWhitelist[base] {
		return nil
	}
	allowed := make([]string, 0, len(cc.ExecWhitelist))
	for k := range cc.ExecWhitelist {
		allowed = append(allowed, k)
	}
	sort.Strings(allowed)
	return fmt.Errorf("exec.run(%q): %q is not in the allowed exec whitelist [%s]",
		command, base, strings.Join(allowed, ", "))
}

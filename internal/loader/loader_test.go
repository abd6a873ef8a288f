package loader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"starmcp-go/internal/capability"
	"starmcp-go/internal/events"
	"starmcp-go/internal/registry"
	"starmcp-go/internal/scripthost"
)

func toolFixture(toolName string) string {
	return `
def handle(params):
    return {"content": [{"type": "text", "text": "ok"}]}

def describe_extension():
    return Extension(
        name = "a",
        tools = [Tool(name = "` + toolName + `", handler = handle)],
    )
`
}

func newTestLoader(t *testing.T, dir string) (*Loader, *registry.Registry, *events.Bus) {
	t.Helper()
	host := scripthost.New(capability.ServeModules())
	reg := registry.New()
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	return New(dir, ServeMode, host, reg, bus, 10*time.Millisecond, nil), reg, bus
}

func TestInitialLoadInstallsMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.star"), []byte(toolFixture("t1")), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a_test.star"), []byte(toolFixture("t1")), 0o644); err != nil {
		t.Fatal(err)
	}

	ld, reg, _ := newTestLoader(t, dir)
	loaded := ld.InitialLoad()

	if len(loaded) != 1 {
		t.Fatalf("expected exactly one non-test script loaded, got %v", loaded)
	}
	if _, _, ok := reg.ResolveTool("t1"); !ok {
		t.Error("t1 should be installed after InitialLoad")
	}
}

// TestHotReloadSwapsToolSet mirrors scenario S4: rewriting a.star to export
// t2 instead of t1 makes t1 unresolvable and t2 resolvable once the write
// has been processed.
func TestHotReloadSwapsToolSet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.star")
	if err := os.WriteFile(path, []byte(toolFixture("t1")), 0o644); err != nil {
		t.Fatal(err)
	}

	ld, reg, bus := newTestLoader(t, dir)
	ld.InitialLoad()

	ch := bus.Subscribe(events.ToolsChanged)
	defer bus.Unsubscribe(events.ToolsChanged, ch)

	if err := os.WriteFile(path, []byte(toolFixture("t2")), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ld.loadAndInstall(path); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	select {
	case ev := <-ch:
		if ev.Type != events.ToolsChanged {
			t.Errorf("got event %+v, want ToolsChanged", ev)
		}
	default:
		t.Error("expected a ToolsChanged event to have been published")
	}

	if _, _, ok := reg.ResolveTool("t1"); ok {
		t.Error("t1 should no longer resolve after reload dropped it")
	}
	if _, _, ok := reg.ResolveTool("t2"); !ok {
		t.Error("t2 should resolve after reload introduced it")
	}
}

func TestHandleRemoveDropsExtensionAndFlagsDependents(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.star")
	baseSrc := `
def handle(params):
    return {"content": [{"type": "text", "text": "ok"}]}

def describe_extension():
    return Extension(name = "base", tools = [Tool(name = "base_tool", handler = handle)])
`
	if err := os.WriteFile(basePath, []byte(baseSrc), 0o644); err != nil {
		t.Fatal(err)
	}
	dependentPath := filepath.Join(dir, "dependent.star")
	dependentSrc := `
load("base", "handle")

def dep_handle(params):
    return handle(params)

def describe_extension():
    return Extension(name = "dependent", tools = [Tool(name = "dep_tool", handler = dep_handle)])
`
	if err := os.WriteFile(dependentPath, []byte(dependentSrc), 0o644); err != nil {
		t.Fatal(err)
	}

	ld, reg, _ := newTestLoader(t, dir)
	ld.InitialLoad()

	if reg.IsStale("dependent") {
		t.Fatal("dependent should not start stale")
	}

	ld.handleRemove(basePath)

	if _, _, ok := reg.ResolveTool("base_tool"); ok {
		t.Error("base_tool should be gone after its file was removed")
	}
	if !reg.IsStale("dependent") {
		t.Error("dependent should be flagged stale after its load()-ed sibling was removed")
	}
}

func TestMatchesRespectsMode(t *testing.T) {
	serveLoader, _, _ := newTestLoader(t, t.TempDir())
	if !serveLoader.matches("/x/a.star") {
		t.Error("ServeMode should match a.star")
	}
	if serveLoader.matches("/x/a_test.star") {
		t.Error("ServeMode should not match a_test.star")
	}

	host := scripthost.New(capability.ServeModules())
	reg := registry.New()
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	testLoader := New(t.TempDir(), TestMode, host, reg, bus, 0, nil)
	if !testLoader.matches("/x/a_test.star") {
		t.Error("TestMode should match a_test.star")
	}
	if testLoader.matches("/x/a.star") {
		t.Error("TestMode should not match a.star")
	}
}

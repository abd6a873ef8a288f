package dispatch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starmcp-go/internal/capability"
	"starmcp-go/internal/dispatch"
	"starmcp-go/internal/errs"
	"starmcp-go/internal/model"
	"starmcp-go/internal/registry"
	"starmcp-go/internal/scripthost"
)

func loadFixture(t *testing.T, stem, source string) (*dispatch.Dispatcher, *registry.Registry) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, stem+".star")
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		t.Fatal(err)
	}

	host := scripthost.New(capability.ServeModules())
	ext, err := host.Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	reg := registry.New()
	if err := reg.Install(ext); err != nil {
		t.Fatalf("install failed: %v", err)
	}

	return dispatch.New(reg, host), reg
}

const echoFixture = `
def handle(params):
    message = params.get("message", "Hello from test extension!")
    return {"content": [{"type": "text", "text": message}]}

def describe_extension():
    return Extension(
        name = "echo",
        tools = [
            Tool(
                name = "echo",
                description = "echoes a message",
                handler = handle,
                parameters = [ToolParameter(name = "message", type = "string", required = False)],
            ),
        ],
    )
`

func TestDispatchBasicEcho(t *testing.T) {
	disp, _ := loadFixture(t, "echo", echoFixture)

	result, err := disp.Dispatch(context.Background(), "echo", map[string]any{"message": "hi"})
	if err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected isError result: %+v", result)
	}
	if len(result.Content) != 1 || result.Content[0].Text != "hi" {
		t.Fatalf("got %+v, want single content item with text %q", result.Content, "hi")
	}
}

func TestDispatchDefaultArgument(t *testing.T) {
	disp, _ := loadFixture(t, "echo", echoFixture)

	result, err := disp.Dispatch(context.Background(), "echo", map[string]any{})
	if err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	if result.Content[0].Text != "Hello from test extension!" {
		t.Fatalf("got %q, want default message", result.Content[0].Text)
	}
}

const errorFixture = `
def handle(params):
    return {"content": [{"type": "text", "text": "Error: x"}], "isError": True}

def describe_extension():
    return Extension(
        name = "errtool",
        tools = [Tool(name = "errtool", handler = handle)],
    )
`

func TestDispatchErrorResultSurfacesIsError(t *testing.T) {
	disp, _ := loadFixture(t, "errtool", errorFixture)

	result, err := disp.Dispatch(context.Background(), "errtool", map[string]any{})
	if err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected isError=true")
	}
	if len(result.Content) != 1 || result.Content[0].Text != "Error: x" {
		t.Fatalf("got %+v", result.Content)
	}
}

func TestDispatchUnknownToolReturnsToolNotFound(t *testing.T) {
	disp, _ := loadFixture(t, "echo", echoFixture)

	_, err := disp.Dispatch(context.Background(), "does-not-exist", map[string]any{})
	if err == nil {
		t.Fatal("expected an error for an unregistered tool name")
	}
	assert.ErrorIs(t, err, errs.ErrToolNotFound)
}

const slowFixture = `
def handle(params):
    exec.run("sleep", ["0.2"])
    return {"content": [{"type": "text", "text": "v1-result"}]}

def describe_extension():
    return Extension(name = "slow", tools = [Tool(name = "slow", handler = handle)], allowed_exec = ["sleep"])
`

// TestDispatchCompletesAgainstCapturedExtensionDuringReload mirrors
// scenario S5: a dispatch already in flight against one installed version
// of an extension runs to completion against that captured reference even
// though the registry is reloaded to a new version while the call is still
// running.
func TestDispatchCompletesAgainstCapturedExtensionDuringReload(t *testing.T) {
	disp, reg := loadFixture(t, "slow", slowFixture)

	resultCh := make(chan dispatch.Result, 1)
	errCh := make(chan error, 1)
	go func() {
		result, err := disp.Dispatch(context.Background(), "slow", map[string]any{})
		errCh <- err
		resultCh <- result
	}()

	// Give the dispatch goroutine time to resolve and start its call
	// before swapping in a new version of the same extension.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, reg.Install(extWithEchoTool(t, "reloaded-value")))

	select {
	case err := <-errCh:
		require.NoError(t, err)
		result := <-resultCh
		assert.False(t, result.IsError)
		assert.Equal(t, "v1-result", result.Content[0].Text)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch against the captured extension did not complete")
	}

	// The reload committed underneath the in-flight call: the new version
	// is what subsequent dispatches see.
	result, err := disp.Dispatch(context.Background(), "slow", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "reloaded-value", result.Content[0].Text)
}

func extWithEchoTool(t *testing.T, reply string) *model.LoadedExtension {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "slow.star")
	source := `
def handle(params):
    return {"content": [{"type": "text", "text": "` + reply + `"}]}

def describe_extension():
    return Extension(name = "slow", tools = [Tool(name = "slow", handler = handle)])
`
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		t.Fatal(err)
	}
	host := scripthost.New(capability.ServeModules())
	ext, err := host.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	return ext
}

package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starmcp-go/internal/errs"
	"starmcp-go/internal/model"
)

func extWithTool(extName, toolName string) *model.LoadedExtension {
	return &model.LoadedExtension{
		Descriptor: model.ExtensionDescriptor{
			Name:  extName,
			Tools: []model.ToolDescriptor{{Name: toolName, HandlerSymbol: "handle"}},
		},
	}
}

func TestInstallRejectsCrossExtensionToolNameCollision(t *testing.T) {
	r := New()
	require.NoError(t, r.Install(extWithTool("a", "t1")))

	err := r.Install(extWithTool("b", "t1"))
	require.Error(t, err, "expected a RegistryConflict for a tool name already owned by a different extension")
	assert.ErrorIs(t, err, errs.ErrRegistryConflict)

	// Rejected install must leave prior state untouched.
	ext, tool, ok := r.ResolveTool("t1")
	require.True(t, ok)
	assert.Equal(t, "a", ext.Descriptor.Name)
	assert.Equal(t, "t1", tool.Name)
}

// TestAtomicReloadReplacesToolSet mirrors scenario S4: reloading "a" from
// exporting t1 to exporting t2 makes t1 unresolvable and t2 resolvable in a
// single atomic swap, with no observable half-installed state.
func TestAtomicReloadReplacesToolSet(t *testing.T) {
	r := New()
	require.NoError(t, r.Install(extWithTool("a", "t1")))
	require.NoError(t, r.Install(extWithTool("a", "t2")))

	_, _, ok := r.ResolveTool("t1")
	assert.False(t, ok, "t1 should no longer resolve after reload dropped it")

	_, tool, ok := r.ResolveTool("t2")
	require.True(t, ok, "t2 should resolve after reload introduced it")
	assert.Equal(t, "t2", tool.Name)
}

func TestRemoveDropsExtensionAndItsTools(t *testing.T) {
	r := New()
	require.NoError(t, r.Install(extWithTool("a", "t1")))
	r.Remove("a")

	_, _, ok := r.ResolveTool("t1")
	assert.False(t, ok, "expected t1 to be gone after removing its owning extension")
	assert.Equal(t, 0, r.Size())
}

func TestMarkStaleClearedByReinstall(t *testing.T) {
	r := New()
	require.NoError(t, r.Install(extWithTool("a", "t1")))

	r.MarkStale("a")
	require.True(t, r.IsStale("a"))

	require.NoError(t, r.Install(extWithTool("a", "t1")))
	assert.False(t, r.IsStale("a"), "reinstalling should clear the stale flag")
}

func TestMarkStaleIgnoresUnknownExtension(t *testing.T) {
	r := New()
	r.MarkStale("never-installed")
	assert.False(t, r.IsStale("never-installed"), "marking an uninstalled extension stale should be a no-op")
}

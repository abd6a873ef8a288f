// Package registry holds the live view of all loaded extensions and their
// tools: single-writer, many-reader, grounded on the RWMutex-guarded
// by-name map convention used throughout the teacher's
// internal/upstream connection manager.
package registry

import (
	"sync"

	"starmcp-go/internal/errs"
	"starmcp-go/internal/model"
)

// Registry is safe for concurrent use. Reads never block on other reads;
// writes are serialized by mu and, once committed, are visible atomically —
// a dispatch that already captured a *model.LoadedExtension pointer before
// a write keeps using it, per spec.md §4.5's "any already-started dispatch
// continues against its captured reference".
type Registry struct {
	mu         sync.RWMutex
	extensions map[string]*model.LoadedExtension // extension name -> entry
	tools      map[string]string                 // tool name -> owning extension name
	stale      map[string]bool                   // extension names flagged for re-validation
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		extensions: make(map[string]*model.LoadedExtension),
		tools:      make(map[string]string),
		stale:      make(map[string]bool),
	}
}

// Install adds or replaces the named extension. On a tool-name collision
// with a *different* extension, the write is rejected and prior state is
// left untouched, per spec.md §4.5.
func (r *Registry) Install(ext *model.LoadedExtension) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := ext.Descriptor.Name
	for _, tool := range ext.Descriptor.Tools {
		if owner, exists := r.tools[tool.Name]; exists && owner != name {
			return errs.Wrap(errs.ErrRegistryConflict,
				"tool %q in extension %q collides with tool already owned by extension %q",
				tool.Name, name, owner)
		}
	}

	// Drop this extension's previous tool-name entries before installing
	// the new set, in case a tool was renamed or removed between reloads.
	if prev, ok := r.extensions[name]; ok {
		for _, tool := range prev.Descriptor.Tools {
			delete(r.tools, tool.Name)
		}
	}

	r.extensions[name] = ext
	for _, tool := range ext.Descriptor.Tools {
		r.tools[tool.Name] = name
	}
	delete(r.stale, name)
	return nil
}

// Remove drops the named extension and its tools from the registry.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ext, ok := r.extensions[name]
	if !ok {
		return
	}
	for _, tool := range ext.Descriptor.Tools {
		delete(r.tools, tool.Name)
	}
	delete(r.extensions, name)
	delete(r.stale, name)
}

// MarkStale flags name for re-validation on next dispatch — used when a
// sibling script it load()-ed was deleted or changed underneath it.
func (r *Registry) MarkStale(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.extensions[name]; ok {
		r.stale[name] = true
	}
}

// IsStale reports whether name has been flagged since its last install.
func (r *Registry) IsStale(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stale[name]
}

// ResolveTool returns the LoadedExtension and ToolDescriptor for toolName,
// or false if no extension currently owns a tool by that name. The returned
// pointer is the live shared reference callers should dispatch against —
// safe to hold across a blocking call since it is never mutated in place.
func (r *Registry) ResolveTool(toolName string) (*model.LoadedExtension, model.ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owner, ok := r.tools[toolName]
	if !ok {
		return nil, model.ToolDescriptor{}, false
	}
	ext := r.extensions[owner]
	tool, ok := toolByName(ext, toolName)
	if !ok {
		return nil, model.ToolDescriptor{}, false
	}
	return ext, tool, true
}

func toolByName(ext *model.LoadedExtension, name string) (model.ToolDescriptor, bool) {
	for _, t := range ext.Descriptor.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return model.ToolDescriptor{}, false
}

// Extensions returns a snapshot slice of all currently installed extensions.
func (r *Registry) Extensions() []*model.LoadedExtension {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.LoadedExtension, 0, len(r.extensions))
	for _, ext := range r.extensions {
		out = append(out, ext)
	}
	return out
}

// AllTools returns every tool currently registered, across all extensions,
// for rendering tools/list.
func (r *Registry) AllTools() []model.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.ToolDescriptor
	for _, ext := range r.extensions {
		out = append(out, ext.Descriptor.Tools...)
	}
	return out
}

// Size returns the number of installed extensions, for the status endpoint.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.extensions)
}

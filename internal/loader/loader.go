// Package loader scans an extensions directory, performs the best-effort
// initial load, and watches for create/modify/delete events, installing
// and removing entries in the Extension Registry as they happen. The
// recursive-watch-plus-debounce shape is grounded on panbanda-omen's
// pkg/watch.Watcher (filepath.Walk to seed fsnotify.Watcher.Add, a pending
// map drained by a ticker), adapted from "recompile changed source" to
// "reload changed extension".
package loader

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"starmcp-go/internal/events"
	"starmcp-go/internal/registry"
	"starmcp-go/internal/scripthost"
)

// Mode selects which files the Loader considers.
type Mode int

const (
	// ServeMode includes *.star but excludes *_test.star.
	ServeMode Mode = iota
	// TestMode includes only *_test.star.
	TestMode
)

const tickInterval = 50 * time.Millisecond

// Loader owns the directory scan, the Script Host, the Registry, and the
// fsnotify watcher tying them together.
type Loader struct {
	dir      string
	mode     Mode
	host     *scripthost.Host
	registry *registry.Registry
	bus      *events.Bus
	debounce time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[string]time.Time
}

// New builds a Loader. dir is walked recursively; mode controls which
// files are considered at all (*.star vs *_test.star).
func New(dir string, mode Mode, host *scripthost.Host, reg *registry.Registry, bus *events.Bus, debounce time.Duration, logger *zap.Logger) *Loader {
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	return &Loader{
		dir:      dir,
		mode:     mode,
		host:     host,
		registry: reg,
		bus:      bus,
		debounce: debounce,
		logger:   logger,
		pending:  make(map[string]time.Time),
	}
}

// matches reports whether path is a file the Loader's mode cares about.
func (l *Loader) matches(path string) bool {
	base := filepath.Base(path)
	switch l.mode {
	case TestMode:
		return strings.HasSuffix(base, "_test.star")
	default:
		return strings.HasSuffix(base, ".star") && !strings.HasSuffix(base, "_test.star")
	}
}

// InitialLoad scans dir for matching files, sorted alphabetically for
// deterministic load order, and loads each best-effort: a failing file is
// logged and skipped, never aborts the scan.
func (l *Loader) InitialLoad() []string {
	var paths []string
	_ = filepath.Walk(l.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		if l.matches(path) {
			paths = append(paths, path)
		}
		return nil
	})
	sort.Strings(paths)

	var loaded []string
	for _, path := range paths {
		if err := l.loadAndInstall(path); err != nil {
			if l.logger != nil {
				l.logger.Warn("extension failed to load, skipping", zap.String("path", path), zap.Error(err))
			}
			continue
		}
		loaded = append(loaded, path)
	}
	return loaded
}

func (l *Loader) loadAndInstall(path string) error {
	ext, err := l.host.Load(path)
	if err != nil {
		l.bus.Publish(events.Event{Type: events.ExtensionLoadFailed, Extension: stemOf(path), Message: err.Error()})
		return err
	}
	if err := l.registry.Install(ext); err != nil {
		l.bus.Publish(events.Event{Type: events.ExtensionLoadFailed, Extension: ext.Descriptor.Name, Message: err.Error()})
		return err
	}

	l.bus.Publish(events.Event{Type: events.ExtensionLoaded, Extension: ext.Descriptor.Name})
	l.bus.Publish(events.Event{Type: events.ToolsChanged})
	l.flagDependents(ext.Descriptor.Name)
	return nil
}

// flagDependents marks every installed extension whose Dependencies list
// includes name's stem as stale, per spec.md §4.6's note on dependent
// extensions being "flagged for re-validation on next dispatch".
func (l *Loader) flagDependents(changedStem string) {
	for _, ext := range l.registry.Extensions() {
		if ext.Descriptor.Name == changedStem {
			continue
		}
		for _, dep := range ext.Dependencies {
			if dep == changedStem {
				l.registry.MarkStale(ext.Descriptor.Name)
				break
			}
		}
	}
}

// Start watches dir recursively until ctx is canceled, installing and
// removing registry entries as files change. It never returns nil on a
// normal shutdown; callers select on ctx.Done() and the returned error.
func (l *Loader) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	err = filepath.Walk(l.dir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if info != nil && info.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	go l.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			l.handleEvent(ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if l.logger != nil {
				l.logger.Warn("watch error", zap.Error(err))
			}
		}
	}
}

func (l *Loader) handleEvent(ev fsnotify.Event) {
	if !l.matches(ev.Name) {
		return
	}
	if ev.Op&fsnotify.Remove != 0 || ev.Op&fsnotify.Rename != 0 {
		// Deletions are not debounced: they're unambiguous and we want the
		// registry to reflect removal promptly.
		l.handleRemove(ev.Name)
		return
	}
	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	l.mu.Lock()
	l.pending[ev.Name] = time.Now()
	l.mu.Unlock()
}

func (l *Loader) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.drainPending()
		}
	}
}

func (l *Loader) drainPending() {
	now := time.Now()
	var ready []string

	l.mu.Lock()
	for path, last := range l.pending {
		if now.Sub(last) >= l.debounce {
			ready = append(ready, path)
			delete(l.pending, path)
		}
	}
	l.mu.Unlock()

	for _, path := range ready {
		if err := l.loadAndInstall(path); err != nil && l.logger != nil {
			l.logger.Warn("extension reload failed, keeping previous version", zap.String("path", path), zap.Error(err))
		}
	}
}

func (l *Loader) handleRemove(path string) {
	stem := stemOf(path)
	l.mu.Lock()
	delete(l.pending, path)
	l.mu.Unlock()

	l.registry.Remove(stem)
	l.bus.Publish(events.Event{Type: events.ExtensionRemoved, Extension: stem})
	l.bus.Publish(events.Event{Type: events.ToolsChanged})
	l.flagDependents(stem)
}

func stemOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

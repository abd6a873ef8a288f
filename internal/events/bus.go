// Package events provides a small thread-safe pub/sub bus used to carry
// the Loader/Watcher's "tools_changed" signal (and related lifecycle
// events) out to the MCP Adapter and the optional status endpoint,
// adapted from the teacher's internal/events/bus.go Bus type — the
// publish/subscribe mechanics are domain-agnostic and kept nearly as-is;
// the event-type vocabulary is replaced with this host's own.
package events

import (
	"sync"
	"time"

	"starmcp-go/internal/config"
)

// EventType enumerates the kinds of lifecycle events the bus carries.
type EventType string

const (
	// ToolsChanged fires whenever the registry's tool-name index changes
	// (an extension installed, replaced, or removed). The MCP Adapter
	// converts each occurrence into one notifications/tools/list_changed.
	ToolsChanged EventType = "tools_changed"

	// ExtensionLoaded fires after a successful (re)load.
	ExtensionLoaded EventType = "extension_loaded"

	// ExtensionLoadFailed fires when a (re)load attempt fails; the
	// previous version, if any, remains installed.
	ExtensionLoadFailed EventType = "extension_load_failed"

	// ExtensionRemoved fires when a source file is deleted.
	ExtensionRemoved EventType = "extension_removed"
)

// Event is a single occurrence on the bus.
type Event struct {
	Type      EventType `json:"type"`
	Extension string    `json:"extension,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Bus is a thread-safe, non-blocking pub/sub bus: Publish never blocks on a
// slow subscriber, it drops the event for that subscriber instead.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	closed      bool
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[EventType][]chan Event)}
}

// Subscribe returns a buffered channel receiving events of the given type.
func (b *Bus) Subscribe(eventType EventType) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, config.EventChannelBufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	return ch
}

// Unsubscribe removes a previously obtained subscription channel.
func (b *Bus) Unsubscribe(eventType EventType, ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[eventType]
	if !ok {
		return
	}
	for i, sub := range subs {
		if sub == ch {
			subs[i] = subs[len(subs)-1]
			b.subscribers[eventType] = subs[:len(subs)-1]
			break
		}
	}
	if len(b.subscribers[eventType]) == 0 {
		delete(b.subscribers, eventType)
	}
}

// Publish sends event to every subscriber of event.Type. Slow subscribers
// whose buffer is full have the event dropped for them rather than
// blocking the publisher (the Loader must never stall a reload waiting on
// a status-endpoint viewer).
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, ch := range b.subscribers[event.Type] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close closes the bus and every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}
	b.subscribers = make(map[EventType][]chan Event)
}

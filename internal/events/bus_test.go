package events

import (
	"testing"
	"time"
)

func TestNewBus(t *testing.T) {
	bus := NewBus()
	if bus == nil {
		t.Fatal("NewBus returned nil")
	}
	if bus.subscribers == nil {
		t.Error("subscribers map not initialized")
	}
	if bus.closed {
		t.Error("new bus should not be closed")
	}
}

func TestSubscribeAndPublish(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(ToolsChanged)
	bus.Publish(Event{Type: ToolsChanged, Extension: "foo"})

	select {
	case ev := <-ch:
		if ev.Extension != "foo" {
			t.Errorf("got extension %q, want %q", ev.Extension, "foo")
		}
		if ev.Timestamp.IsZero() {
			t.Error("expected Publish to stamp a non-zero Timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("did not receive published event")
	}
}

func TestPublishOnlyReachesMatchingType(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	toolsCh := bus.Subscribe(ToolsChanged)
	loadedCh := bus.Subscribe(ExtensionLoaded)

	bus.Publish(Event{Type: ToolsChanged})

	select {
	case <-toolsCh:
	case <-time.After(time.Second):
		t.Fatal("expected ToolsChanged subscriber to receive the event")
	}

	select {
	case <-loadedCh:
		t.Fatal("ExtensionLoaded subscriber should not have received a ToolsChanged event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(ExtensionRemoved)
	bus.Unsubscribe(ExtensionRemoved, ch)
	bus.Publish(Event{Type: ExtensionRemoved})

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("unsubscribed channel should not receive further events")
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(ToolsChanged)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			bus.Publish(Event{Type: ToolsChanged})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber channel")
	}
	_ = ch
}

func TestCloseClosesSubscriberChannels(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(ToolsChanged)
	bus.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("channel was never closed")
	}

	// Subscribing after Close returns an already-closed channel.
	ch2 := bus.Subscribe(ToolsChanged)
	select {
	case _, ok := <-ch2:
		if ok {
			t.Fatal("expected post-close subscription to be pre-closed")
		}
	case <-time.After(time.Second):
		t.Fatal("post-close subscription channel never closed")
	}
}

package ws

import (
	"testing"
	"time"
)

func waitEvent(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestHubBroadcast(t *testing.T) {
	h := NewHub()
	defer h.Stop()

	ch1 := make(chan Event, 10)
	ch2 := make(chan Event, 10)
	h.Register("client-1", ch1)
	h.Register("client-2", ch2)

	h.Broadcast(Event{Type: EventStatusChanged, DeviceID: "dev-1"})

	ev1 := waitEvent(t, ch1)
	ev2 := waitEvent(t, ch2)
	if ev1.Type != EventStatusChanged || ev2.Type != EventStatusChanged {
		t.Errorf("unexpected event types: %q, %q", ev1.Type, ev2.Type)
	}
	if ev1.DeviceID != "dev-1" {
		t.Errorf("unexpected device id: %q", ev1.DeviceID)
	}
}

func TestHubUnregisterClosesChannel(t *testing.T) {
	h := NewHub()
	defer h.Stop()

	ch := make(chan Event, 10)
	h.Register("client-1", ch)
	h.Unregister("client-1")

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel, got event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel was not closed")
	}
}

func TestHubSkipsFullClient(t *testing.T) {
	h := NewHub()
	defer h.Stop()

	full := make(chan Event) // unbuffered, never drained
	ok := make(chan Event, 10)
	h.Register("stuck", full)
	h.Register("healthy", ok)

	// Broadcasts must not block on the stuck client
	for i := 0; i < 5; i++ {
		h.Broadcast(Event{Type: EventHeartbeat})
	}

	waitEvent(t, ok)
}

func TestHubStopClosesAllClients(t *testing.T) {
	h := NewHub()

	ch := make(chan Event, 10)
	h.Register("client-1", ch)
	h.Stop()

	select {
	case _, open := <-ch:
		if open {
			// drain any buffered event, then expect close
			for range ch {
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel was not closed on Stop")
	}
}

func TestEventMarshalStampsTimestamp(t *testing.T) {
	ev := Event{Type: EventWipeProgress, DeviceID: "dev-1"}
	data, err := ev.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if ev.Timestamp.IsZero() {
		t.Error("expected timestamp to be stamped")
	}
	if len(data) == 0 {
		t.Error("expected non-empty payload")
	}
}

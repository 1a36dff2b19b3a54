package stream

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryBusDeliversToSessionSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	var got []Event
	sub, err := bus.Subscribe("s1", func(ev Event) { got = append(got, ev) })
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Cancel()

	other, err := bus.Subscribe("s2", func(ev Event) {
		t.Errorf("subscriber for s2 received an s1 event")
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer other.Cancel()

	if err := bus.Publish(context.Background(), Event{Type: EventSessionUpdated, SessionID: "s1"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if len(got) != 1 || got[0].Type != EventSessionUpdated {
		t.Fatalf("expected one session.updated event, got %v", got)
	}
	if got[0].At.IsZero() {
		t.Errorf("expected publish to stamp the event time")
	}
}

func TestMemoryBusCancelStopsDelivery(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	count := 0
	sub, err := bus.Subscribe("s1", func(ev Event) { count++ })
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	bus.Publish(context.Background(), Event{Type: EventUnknownBarcode, SessionID: "s1"})
	sub.Cancel()
	sub.Cancel() // idempotent
	bus.Publish(context.Background(), Event{Type: EventUnknownBarcode, SessionID: "s1"})

	if count != 1 {
		t.Errorf("expected exactly one delivery before cancel, got %d", count)
	}
}

func TestRegistryCancelAll(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	reg := NewRegistry()
	count := 0
	for i := 0; i < 3; i++ {
		sub, err := bus.Subscribe("s1", func(ev Event) { count++ })
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
		reg.Add(sub)
	}

	// Session switch: cancel the old set before subscribing anew.
	reg.CancelAll()
	bus.Publish(context.Background(), Event{Type: EventPresenceChanged, SessionID: "s1"})

	if count != 0 {
		t.Errorf("expected no deliveries after CancelAll, got %d", count)
	}
}

func TestRedisBusRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	bus := NewRedisBus(client, "test:events")

	received := make(chan Event, 1)
	sub, err := bus.Subscribe("s1", func(ev Event) { received <- ev })
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Cancel()

	ev := Event{Type: EventSessionUpdated, SessionID: "s1", Payload: map[string]interface{}{"updated_count": 3}}
	if err := bus.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-received:
		if got.Type != EventSessionUpdated || got.SessionID != "s1" {
			t.Errorf("unexpected event: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestRedisBusCancelStopsDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	bus := NewRedisBus(client, "test:events")

	received := make(chan Event, 4)
	sub, err := bus.Subscribe("s1", func(ev Event) { received <- ev })
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	sub.Cancel()
	bus.Publish(context.Background(), Event{Type: EventSessionDeleted, SessionID: "s1"})

	select {
	case ev := <-received:
		t.Errorf("expected no delivery after cancel, got %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

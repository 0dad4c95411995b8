package sse

import (
	"testing"
	"time"
)

func TestHubBroadcast(t *testing.T) {
	h := NewHub(4)
	defer h.Stop()

	ch, cancel := h.Subscribe()
	defer cancel()
	if h.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", h.SubscriberCount())
	}

	h.Broadcast("settlement.receipt", map[string]string{"tx_hash": "0xabc"})
	select {
	case event := <-ch:
		if event.Type != "settlement.receipt" {
			t.Fatalf("unexpected event type %q", event.Type)
		}
		if event.ID == "" || event.At.IsZero() {
			t.Fatalf("event missing id or timestamp: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestHubSlowSubscriberMissesEvents(t *testing.T) {
	h := NewHub(1)
	defer h.Stop()

	ch, cancel := h.Subscribe()
	defer cancel()

	// second broadcast must not block even though the buffer is full
	h.Broadcast("settlement.receipt", map[string]int{"n": 1})
	h.Broadcast("settlement.receipt", map[string]int{"n": 2})

	<-ch
	select {
	case event := <-ch:
		t.Fatalf("overflowed event was delivered: %+v", event)
	default:
	}
}

func TestHubCancelAndStop(t *testing.T) {
	h := NewHub(4)
	ch1, cancel1 := h.Subscribe()
	ch2, _ := h.Subscribe()

	cancel1()
	if _, open := <-ch1; open {
		t.Fatal("cancelled subscriber channel must be closed")
	}
	if h.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber after cancel, got %d", h.SubscriberCount())
	}

	h.Stop()
	if _, open := <-ch2; open {
		t.Fatal("stop must close remaining subscriber channels")
	}

	// subscribing after stop yields a closed channel, not a hang
	ch3, cancel3 := h.Subscribe()
	defer cancel3()
	if _, open := <-ch3; open {
		t.Fatal("subscribe after stop must return a closed channel")
	}
}

package eventbus

import (
	"testing"
	"time"
)

func TestPublishFiltersByType(t *testing.T) {
	t.Parallel()
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	refresh, unsubRefresh := b.Subscribe(4, UserRefresh)
	defer unsubRefresh()

	b.Publish(Event{Type: EventNotified, Data: "e1"})
	b.Publish(Event{Type: UserRefresh, Data: "u1"})

	if got := (<-all).Type; got != EventNotified {
		t.Fatalf("first event on all = %s", got)
	}
	if got := (<-all).Type; got != UserRefresh {
		t.Fatalf("second event on all = %s", got)
	}
	select {
	case e := <-refresh:
		if e.Data != "u1" || e.Time.IsZero() {
			t.Fatalf("refresh event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("refresh subscriber got nothing")
	}
	select {
	case e := <-refresh:
		t.Fatalf("unexpected event %+v", e)
	default:
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)

	b.Publish(Event{Type: UserRefresh})
	b.Publish(Event{Type: UserRefresh})
	if b.Dropped() != 1 {
		t.Fatalf("Dropped = %d, want 1", b.Dropped())
	}

	unsub()
	unsub()
	// publishing after unsubscribe must not panic
	b.Publish(Event{Type: UserRefresh})
}

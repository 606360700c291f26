package eventbus

import (
	"testing"
	"time"
)

func TestPublishReachesSubscribers(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(4)
	defer unsub()

	b.Publish(Event{Type: TaskStarted, Data: "x"})

	select {
	case e := <-ch:
		if e.Type != TaskStarted || e.Data != "x" {
			t.Fatalf("event = %+v", e)
		}
		if e.Time.IsZero() {
			t.Fatal("publish did not stamp time")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber received nothing")
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(Event{Type: TaskSucceeded})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Type: TaskFailed})
}

func TestRecorderKeepsRecentEvents(t *testing.T) {
	b := New()
	r := NewRecorder(b, 3)
	defer r.Close()

	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: NotifyQueued, Data: i})
	}

	deadline := time.Now().Add(time.Second)
	for {
		recent := r.Recent()
		if len(recent) == 3 {
			if recent[0].Data != 2 || recent[2].Data != 4 {
				t.Fatalf("recent = %v, want [2 3 4]", recent)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("recent = %v, want 3 events", r.Recent())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

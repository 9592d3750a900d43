package bus

import (
	"sync"
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := New()
	defer b.Close()

	var mu sync.Mutex
	got := map[string]int{}
	for _, id := range []string{"a", "b"} {
		id := id
		b.Subscribe(id, func(evt Event) {
			mu.Lock()
			got[id]++
			mu.Unlock()
		})
	}

	b.Publish(Event{Name: "run", Type: "run.started", RunID: "r1"})

	deadline := time.After(time.Second)
	for {
		mu.Lock()
		done := got["a"] == 1 && got["b"] == 1
		mu.Unlock()
		if done {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("subscribers did not all receive the event: %v", got)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	b := New()
	defer b.Close()

	block := make(chan struct{})
	b.Subscribe("slow", func(evt Event) { <-block })

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			b.Publish(Event{Name: "step"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	close(block)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	defer b.Close()

	var mu sync.Mutex
	count := 0
	b.Subscribe("x", func(evt Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	b.Unsubscribe("x")
	b.Publish(Event{Name: "run"})

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("unsubscribed handler still received %d events", count)
	}
}

func TestPublishSetsTimestamp(t *testing.T) {
	b := New()
	defer b.Close()

	got := make(chan Event, 1)
	b.Subscribe("t", func(evt Event) { got <- evt })
	b.Publish(Event{Name: "run"})

	select {
	case evt := <-got:
		if evt.At.IsZero() {
			t.Error("Publish should stamp events with a time")
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

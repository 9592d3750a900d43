package bus

import (
	"sync"
	"time"
)

// Event is one status update broadcast to subscribers.
type Event struct {
	Name    string                 // protocol.EventRun / EventStep / EventTool
	Type    string                 // subtype, e.g. protocol.StepEventFinished
	RunID   string
	At      time.Time
	Payload map[string]interface{}
}

// Handler receives events. Handlers must return quickly; a slow handler is
// skipped rather than allowed to stall the loop.
type Handler func(Event)

// StatusBus broadcasts run progress to subscribers without ever blocking the
// execution loop: each subscriber gets a buffered channel drained by its own
// goroutine, and events are dropped per-subscriber when the buffer is full.
type StatusBus struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	handlers    sync.WaitGroup
	closed      bool
}

const subscriberBuffer = 64

func New() *StatusBus {
	return &StatusBus{subscribers: make(map[string]chan Event)}
}

// Subscribe registers a handler under the given id.
func (b *StatusBus) Subscribe(id string, handler Handler) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.subscribers[id] = ch
	b.mu.Unlock()

	b.handlers.Add(1)
	go func() {
		defer b.handlers.Done()
		for evt := range ch {
			handler(evt)
		}
	}()
}

// Unsubscribe removes a subscriber and stops its drain goroutine.
func (b *StatusBus) Unsubscribe(id string) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Publish broadcasts an event. Never blocks: full subscriber buffers drop
// the event for that subscriber only.
func (b *StatusBus) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Close stops all subscribers after draining buffered events.
func (b *StatusBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	chans := make([]chan Event, 0, len(b.subscribers))
	for id, ch := range b.subscribers {
		chans = append(chans, ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()

	for _, ch := range chans {
		close(ch)
	}
	b.handlers.Wait()
}

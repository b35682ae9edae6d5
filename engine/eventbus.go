package engine

import (
	"log"
	"sync"
)

type EventType int

type Event struct {
	Type    EventType
	Payload any
}

type subscriber struct {
	id    int
	fn    func(Event)
	types map[EventType]bool // nil means every type
}

// EventBus delivers events synchronously, in subscription order, on the
// emitting goroutine.
type EventBus struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscriber
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers fn for every event and returns an id for Unsubscribe.
func (b *EventBus) Subscribe(fn func(Event)) int {
	return b.add(fn, nil)
}

// SubscribeTypes registers fn for the listed event types only.
func (b *EventBus) SubscribeTypes(fn func(Event), types ...EventType) int {
	set := make(map[EventType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return b.add(fn, set)
}

func (b *EventBus) add(fn func(Event), types map[EventType]bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs = append(b.subs, subscriber{id: b.nextID, fn: fn, types: types})
	return b.nextID
}

func (b *EventBus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Emit calls every matching subscriber. A panicking handler is logged and
// does not stop delivery to the rest.
func (b *EventBus) Emit(evt Event) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()
	for _, s := range subs {
		if s.types != nil && !s.types[evt.Type] {
			continue
		}
		b.call(s, evt)
	}
}

func (b *EventBus) call(s subscriber, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("engine: event handler %d panicked on %v: %v", s.id, evt.Type, r)
		}
	}()
	s.fn(evt)
}

package events

import (
	"sync"
)

// Publisher publishes events fire-and-forget.
type Publisher interface {
	Publish(eventType string, eventData any)
}

// Bus fans events out to subscribers. Each delivery runs on its own
// goroutine so a slow subscriber never delays the publisher.
//
// A nil *Bus is valid: Publish and Subscribe are no-ops.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]SafeCallback
	wg          sync.WaitGroup
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]SafeCallback)}
}

// Subscribe registers cb for eventType.
func (b *Bus) Subscribe(eventType string, cb Callback) {
	if b == nil || cb == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], WrapSafe(cb))
}

// Publish implements Publisher.
func (b *Bus) Publish(eventType string, eventData any) {
	if b == nil {
		return
	}

	b.mu.RLock()
	subs := b.subscribers[eventType]
	b.mu.RUnlock()

	for _, cb := range subs {
		b.wg.Add(1)
		go func(cb SafeCallback) {
			defer b.wg.Done()
			cb(eventType, eventData)
		}(cb)
	}
}

// Wait blocks until every in-flight delivery has finished.
func (b *Bus) Wait() {
	if b == nil {
		return
	}
	b.wg.Wait()
}

// SubscriberCount returns the number of subscribers for eventType.
func (b *Bus) SubscriberCount(eventType string) int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[eventType])
}

var _ Publisher = (*Bus)(nil)

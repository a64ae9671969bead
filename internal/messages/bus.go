package messages

import (
	"context"
	"sync"
	"sync/atomic"
)

// Bus fans outbound messages out to in-process subscribers keyed by instance id.
// Slow subscribers lose messages instead of blocking publishers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]chan Message
	nextID atomic.Uint64
	buffer int
}

// NewBus creates a bus whose subscriber channels hold buffer messages.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 16
	}
	return &Bus{
		subs:   make(map[string]map[uint64]chan Message),
		buffer: buffer,
	}
}

// Subscribe returns a channel of messages for instanceID and a func that cancels the subscription.
func (b *Bus) Subscribe(instanceID string) (<-chan Message, func()) {
	id := b.nextID.Add(1)
	ch := make(chan Message, b.buffer)

	b.mu.Lock()
	if b.subs[instanceID] == nil {
		b.subs[instanceID] = make(map[uint64]chan Message)
	}
	b.subs[instanceID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[instanceID], id)
			if len(b.subs[instanceID]) == 0 {
				delete(b.subs, instanceID)
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Publish implements Publisher.
func (b *Bus) Publish(_ context.Context, msg Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[msg.InstanceID] {
		select {
		case ch <- msg:
		default:
			recordBusDrop()
		}
	}
	return nil
}

// SubscriberCount returns the number of live subscriptions for instanceID.
func (b *Bus) SubscriberCount(instanceID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[instanceID])
}

// Fanout publishes to every publisher and returns the first error.
type Fanout []Publisher

// Publish implements Publisher.
func (f Fanout) Publish(ctx context.Context, msg Message) error {
	var firstErr error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Package memory implements an in process broadcast bus. It is used when
// every node runs inside the same process.
package memory

import (
	"context"
	"sync"

	"github.com/ardanlabs/powchain/foundation/blockchain/broadcast"
)

// Bus fans every published message out to all subscribers.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan []byte
}

// New constructs a bus for use.
func New() *Bus {
	return &Bus{
		subs: make(map[int]chan []byte),
	}
}

// Publish delivers a copy of the message to every subscriber. A subscriber
// that has fallen too far behind misses the message.
func (b *Bus) Publish(ctx context.Context, data []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		msg := make([]byte, len(data))
		copy(msg, data)

		select {
		case ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	return nil
}

// Subscribe registers the handler and feeds it messages until the context
// is cancelled.
func (b *Bus) Subscribe(ctx context.Context, handler broadcast.Handler) error {
	const messageBuffer = 100

	ch := make(chan []byte, messageBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()

	for {
		select {
		case msg := <-ch:
			handler(ctx, msg)
		case <-ctx.Done():
			return nil
		}
	}
}

// Subscribers returns the number of active subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs)
}

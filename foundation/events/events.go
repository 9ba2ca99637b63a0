// Package events fans messages out to a changing set of receivers. It backs
// the viewer event feed and the websocket broadcast hub.
package events

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// messageBuffer is how many messages a receiver can fall behind before
// messages to it are dropped.
const messageBuffer = 100

// Events maps receiver ids to their channels.
type Events struct {
	mu      sync.RWMutex
	m       map[string]chan string
	dropped atomic.Uint64
}

// New constructs an empty set of receivers.
func New() *Events {
	return &Events{
		m: make(map[string]chan string),
	}
}

// Shutdown closes and removes every receiver channel.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, ch := range evt.m {
		delete(evt.m, id)
		close(ch)
	}
}

// Acquire registers the id and returns the channel its messages arrive on.
// Acquiring an id twice returns the same channel.
func (evt *Events) Acquire(id string) <-chan string {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	if ch, exists := evt.m[id]; exists {
		return ch
	}

	ch := make(chan string, messageBuffer)
	evt.m[id] = ch

	return ch
}

// Release closes and removes the channel registered for the id.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.m, id)
	close(ch)

	return nil
}

// Count returns the number of registered receivers.
func (evt *Events) Count() int {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	return len(evt.m)
}

// Dropped returns the number of messages that could not be delivered
// because a receiver's buffer was full.
func (evt *Events) Dropped() uint64 {
	return evt.dropped.Load()
}

// Send offers the message to every receiver without blocking and returns
// how many receivers took it.
func (evt *Events) Send(s string) int {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	var delivered int
	for _, ch := range evt.m {
		select {
		case ch <- s:
			delivered++
		default:
			evt.dropped.Add(1)
		}
	}

	return delivered
}

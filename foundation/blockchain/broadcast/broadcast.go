// Package broadcast defines the transport newly mined blocks travel over
// from the canonical node to every replica.
package broadcast

import "context"

// Handler receives one broadcast message.
type Handler func(ctx context.Context, data []byte)

// Publisher sends a message to every subscriber.
type Publisher interface {
	Publish(ctx context.Context, data []byte) error
}

// Subscriber delivers published messages to a handler. Subscribe blocks
// until the context is cancelled and delivers messages in publish order.
type Subscriber interface {
	Subscribe(ctx context.Context, handler Handler) error
}

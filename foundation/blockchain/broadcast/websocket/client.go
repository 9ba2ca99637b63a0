package websocket

import (
	"context"
	"time"

	"github.com/ardanlabs/powchain/foundation/blockchain/broadcast"
	"github.com/ardanlabs/powchain/foundation/clock"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Reconnect backoff bounds.
const (
	minBackoff = 100 * time.Millisecond
	maxBackoff = 10 * time.Second
)

// Client subscribes to a Hub running on the canonical node.
type Client struct {
	log    *zap.Logger
	url    string
	dialer *websocket.Dialer
}

// NewClient constructs a client for the hub at the specified ws:// url.
func NewClient(log *zap.Logger, url string) *Client {
	return &Client{
		log:    log,
		url:    url,
		dialer: websocket.DefaultDialer,
	}
}

// Subscribe connects to the hub and hands every message to the handler.
// Lost connections are redialed with an exponential backoff until the
// context is cancelled.
func (c *Client) Subscribe(ctx context.Context, handler broadcast.Handler) error {
	backoff := minBackoff

	for {
		err := c.stream(ctx, handler, func() { backoff = minBackoff })
		if ctx.Err() != nil {
			return nil
		}

		c.log.Warn("broadcast connection lost", zap.String("url", c.url), zap.Error(err), zap.Duration("retry", backoff))

		if err := clock.SleepWithContext(ctx, backoff); err != nil {
			return nil
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *Client) stream(ctx context.Context, handler broadcast.Handler, connected func()) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	connected()
	c.log.Info("broadcast connected", zap.String("url", c.url))

	// Unblock the read when the context is cancelled.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		handler(ctx, data)
	}
}

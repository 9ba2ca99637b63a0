// Package websocket implements the broadcast transport over websockets. The
// canonical node runs a Hub and every replica connects to it with a Client.
package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/ardanlabs/powchain/foundation/events"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// pingInterval is how often an idle connection is pinged.
const pingInterval = time.Second

// Hub publishes messages to every connected websocket subscriber.
type Hub struct {
	log  *zap.Logger
	evts *events.Events
	ws   websocket.Upgrader
}

// NewHub constructs a hub for use.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:  log,
		evts: events.New(),
		ws: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Publish sends the message to every connected subscriber. Subscribers that
// can't keep up miss the message and recover through gap catch-up.
func (h *Hub) Publish(ctx context.Context, data []byte) error {
	subscribers := h.evts.Count()
	if delivered := h.evts.Send(string(data)); delivered < subscribers {
		h.log.Warn("broadcast message dropped", zap.Int("delivered", delivered), zap.Int("subscribers", subscribers), zap.Uint64("dropped_total", h.evts.Dropped()))
	}
	return nil
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	return h.evts.Count()
}

// Shutdown disconnects every subscriber.
func (h *Hub) Shutdown() {
	h.evts.Shutdown()
}

// Serve upgrades the request and streams published messages to the
// connection until either side goes away.
func (h *Hub) Serve(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	c, err := h.ws.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	id := uuid.NewString()
	ch := h.evts.Acquire(id)
	defer h.evts.Release(id)

	h.log.Info("broadcast subscriber connected", zap.String("id", id), zap.String("remote", r.RemoteAddr))
	defer h.log.Info("broadcast subscriber disconnected", zap.String("id", id))

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return nil
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}

		case <-ctx.Done():
			return nil
		}
	}
}

// ServeHTTP implements the http.Handler interface.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.Serve(r.Context(), w, r); err != nil {
		h.log.Error("broadcast subscribe", zap.Error(err))
	}
}

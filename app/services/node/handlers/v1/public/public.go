// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/powchain/business/sys/validate"
	"github.com/ardanlabs/powchain/business/web/errs"
	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/state"
	"github.com/ardanlabs/powchain/foundation/events"
	"github.com/ardanlabs/powchain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of public node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
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

// Latest returns the last block in the chain.
func (h Handlers) Latest(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	block, ok := h.State.QueryLatest()
	if !ok {
		return errs.NewTrusted(errors.New("chain is empty"), http.StatusNotFound)
	}

	return web.Respond(ctx, w, database.NewBlockData(block), http.StatusOK)
}

// BlockByNumber returns the block at the specified position in the chain.
func (h Handlers) BlockByNumber(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	number, err := strconv.ParseUint(web.Param(r, "number"), 10, 64)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("invalid block number: %w", err), http.StatusBadRequest)
	}

	block, err := h.State.QueryBlockByNumber(ctx, number)
	if err != nil {
		return errs.Classify(err, "block[%d]", number)
	}

	return web.Respond(ctx, w, database.NewBlockData(block), http.StatusOK)
}

// BlockByHash returns the block with the specified hash.
func (h Handlers) BlockByHash(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hash, err := database.ParseHash(web.Param(r, "hash"))
	if err != nil {
		return errs.Classify(err, "parse hash")
	}

	block, err := h.State.QueryBlockByHash(ctx, hash)
	if err != nil {
		return errs.Classify(err, "block[%s]", hash)
	}

	return web.Respond(ctx, w, database.NewBlockData(block), http.StatusOK)
}

// Mine mines a new block using the data query parameter as the payload.
func (h Handlers) Mine(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	req := mineRequest{
		Data: r.URL.Query().Get("data"),
	}

	if err := validate.Check(req); err != nil {
		return err
	}

	return h.mine(ctx, w, []byte(req.Data))
}

// MineWithData mines a new block using the payload provided in the body.
func (h Handlers) MineWithData(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req mineRequest
	if err := web.Decode(r, &req); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	if err := validate.Check(req); err != nil {
		return err
	}

	return h.mine(ctx, w, []byte(req.Data))
}

func (h Handlers) mine(ctx context.Context, w http.ResponseWriter, payload []byte) error {
	h.Log.Infow("mine block", "traceid", web.GetTraceID(ctx), "payload", len(payload))

	block, err := h.State.MineBlock(ctx, payload)
	if err != nil {
		return errs.Classify(err, "mining")
	}

	return web.Respond(ctx, w, database.NewBlockData(block), http.StatusOK)
}

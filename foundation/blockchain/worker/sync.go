package worker

import (
	"context"
	"errors"
)

// bootstrapOperation copies the canonical chain into the local chain once
// at startup. A failure is fatal for the node.
func (w *Worker) bootstrapOperation() {
	w.evHandler("worker: bootstrapOperation: G started")
	defer w.evHandler("worker: bootstrapOperation: G completed")

	err := w.state.Bootstrap(w.ctx)
	switch {
	case err == nil:
		w.evHandler("worker: bootstrapOperation: node synced")

	case errors.Is(err, context.Canceled):
		w.evHandler("worker: bootstrapOperation: cancelled")

	default:
		w.evHandler("worker: bootstrapOperation: ERROR: %s", err)
		select {
		case w.fatal <- err:
		default:
		}
	}
}

// broadcastOperations receives blocks broadcast by the canonical node and
// hands them to the state. Failures are logged and the block is dropped.
func (w *Worker) broadcastOperations() {
	w.evHandler("worker: broadcastOperations: G started")
	defer w.evHandler("worker: broadcastOperations: G completed")

	handler := func(ctx context.Context, data []byte) {
		if w.isShutdown() {
			return
		}

		if err := w.state.ProcessBroadcastBlock(ctx, data); err != nil {
			w.evHandler("worker: broadcastOperations: WARNING: block dropped: %s", err)
		}
	}

	if err := w.subscriber.Subscribe(w.ctx, handler); err != nil {
		w.evHandler("worker: broadcastOperations: ERROR: %s", err)
	}
}

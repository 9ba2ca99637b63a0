package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
)

// job is a request to mine one block. The result is delivered on the job's
// own channel.
type job struct {
	ctx     context.Context
	payload []byte
	result  chan result
}

type result struct {
	block database.Block
	err   error
}

// SubmitMining queues a mining job and waits for the block. Jobs are mined
// one at a time in the order they were submitted.
func (w *Worker) SubmitMining(ctx context.Context, payload []byte) (database.Block, error) {
	if w.isShutdown() {
		return database.Block{}, ErrShutdown
	}

	j := job{
		ctx:     ctx,
		payload: payload,
		result:  make(chan result, 1),
	}

	select {
	case w.jobs <- j:
		w.evHandler("worker: SubmitMining: mining signaled")
	default:
		w.evHandler("worker: SubmitMining: queue full, job rejected")
		return database.Block{}, ErrMiningBusy
	}

	select {
	case r := <-j.result:
		return r.block, r.err
	case <-ctx.Done():
		return database.Block{}, ctx.Err()
	case <-w.shut:
		return database.Block{}, ErrShutdown
	}
}

// miningOperations handles mining.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	for {
		select {
		case j := <-w.jobs:
			if w.isShutdown() {
				j.result <- result{err: ErrShutdown}
				continue
			}
			j.result <- w.runMiningOperation(j)

		case <-w.shut:
			w.evHandler("worker: miningOperations: received shut signal")
			return
		}
	}
}

// runMiningOperation mines a block for the job. The search stops when the
// job's context is cancelled or a cancel is signaled.
func (w *Worker) runMiningOperation(j job) result {
	w.evHandler("worker: runMiningOperation: MINING: started")
	defer w.evHandler("worker: runMiningOperation: MINING: completed")

	// Drain the cancel mining channel before starting.
	select {
	case <-w.cancelMining:
		w.evHandler("worker: runMiningOperation: MINING: drained cancel channel")
	default:
	}

	// Create a context so mining can be cancelled.
	ctx, cancel := context.WithCancel(j.ctx)
	defer cancel()

	// Can't return from this function until these G's are complete.
	var wg sync.WaitGroup
	wg.Add(2)

	// This G exists to cancel the mining operation.
	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		select {
		case <-w.cancelMining:
			w.evHandler("worker: runMiningOperation: MINING: CANCEL: requested")
		case <-w.shut:
		case <-ctx.Done():
		}
	}()

	// This G is performing the mining.
	var res result
	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		t := time.Now()
		block, err := w.state.MineNewBlock(ctx, j.payload)
		duration := time.Since(t)

		w.evHandler("worker: runMiningOperation: MINING: mining duration[%v]", duration)

		if err != nil {
			switch {
			case ctx.Err() != nil:
				w.evHandler("worker: runMiningOperation: MINING: CANCEL: complete")
			default:
				w.evHandler("worker: runMiningOperation: MINING: ERROR: %s", err)
			}
		}

		res = result{block: block, err: err}
	}()

	// Wait for both G's to terminate.
	wg.Wait()

	return res
}

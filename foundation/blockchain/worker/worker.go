// Package worker implements mining and replication for the blockchain.
package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/ardanlabs/powchain/foundation/blockchain/broadcast"
	"github.com/ardanlabs/powchain/foundation/blockchain/state"
)

// maxMiningRequests is the number of mining jobs that can wait behind the
// one being mined.
const maxMiningRequests = 10

// Set of error variables for the worker.
var (
	ErrMiningBusy = errors.New("mining queue is full")
	ErrShutdown   = errors.New("worker is shutting down")
)

// =============================================================================

// Worker manages the POW and replication workflows for the blockchain.
type Worker struct {
	state        State
	subscriber   broadcast.Subscriber
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
	shut         chan struct{}
	jobs         chan job
	cancelMining chan bool
	fatal        chan error
	evHandler    state.EventHandler
}

// Run creates a worker, registers the worker with the state package, and
// starts up all the background processes. The canonical node runs the
// mining goroutine. Every other node runs bootstrap and listens for
// broadcast blocks.
func Run(st *state.State, subscriber broadcast.Subscriber, evHandler state.EventHandler) *Worker {
	w := newWorker(st, subscriber, evHandler)

	// Register this worker with the state package.
	st.Worker = w

	w.start()

	return w
}

func newWorker(st State, subscriber broadcast.Subscriber, evHandler state.EventHandler) *Worker {
	if evHandler == nil {
		evHandler = func(string, ...any) {}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		state:        st,
		subscriber:   subscriber,
		ctx:          ctx,
		cancel:       cancel,
		shut:         make(chan struct{}),
		jobs:         make(chan job, maxMiningRequests),
		cancelMining: make(chan bool, 1),
		fatal:        make(chan error, 1),
		evHandler:    evHandler,
	}
}

func (w *Worker) start() {

	// Load the set of operations we need to run.
	operations := []func(){
		w.miningOperations,
	}

	if !w.state.IsCanonical() {
		operations = append(operations, w.bootstrapOperation)
		if w.subscriber != nil {
			operations = append(operations, w.broadcastOperations)
		}
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutines performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: signal cancel mining")
	w.SignalCancelMining()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.cancel()
	w.wg.Wait()
}

// SignalCancelMining signals the G executing the runMiningOperation function
// to stop immediately.
func (w *Worker) SignalCancelMining() {
	select {
	case w.cancelMining <- true:
	default:
	}
	w.evHandler("worker: SignalCancelMining: MINING: CANCEL: signaled")
}

// Fatal returns a channel that receives the error that stopped replication.
// The node can't serve a consistent chain after this error.
func (w *Worker) Fatal() <-chan error {
	return w.fatal
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}

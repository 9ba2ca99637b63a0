// Package state is the core API for the blockchain and implements all the
// business rules and processing.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ardanlabs/powchain/foundation/blockchain/broadcast"
	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/genesis"
	"go.uber.org/ratelimit"
)

// Set of error variables for node operations.
var (
	ErrNotCanonical = errors.New("only the canonical node can mine blocks")
	ErrDiverged     = errors.New("local chain diverges from the canonical chain")
)

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining and replication.
type Worker interface {
	Shutdown()
	SubmitMining(ctx context.Context, payload []byte) (database.Block, error)
	SignalCancelMining()
}

// Source provides read access to the canonical chain during replication.
type Source interface {
	Count(ctx context.Context) (uint64, error)
	GetBlock(ctx context.Context, number uint64) (database.Block, error)
}

// Metrics records what happens to blocks on this node.
type Metrics interface {
	ObserveMining(difficulty uint32, err error, started time.Time)
	ObserveReplication(outcome string)
	SetChainHeight(nodeID string, height uint64)
}

// Set of outcomes reported for replicated blocks.
const (
	OutcomeAccepted  = "accepted"
	OutcomeRejected  = "rejected"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
)

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	NodeID        database.NodeID
	SyncNodeID    database.NodeID
	Storage       database.Storage
	Source        Source
	Publisher     broadcast.Publisher
	Genesis       genesis.Genesis
	BootstrapRate int
	Metrics       Metrics
	EvHandler     EventHandler
}

// State manages the blockchain database.
type State struct {
	nodeID     database.NodeID
	syncNodeID database.NodeID
	evHandler  EventHandler
	mu         sync.Mutex

	genesis   genesis.Genesis
	policy    database.DifficultyPolicy
	db        *database.Database
	source    Source
	publisher broadcast.Publisher
	limiter   ratelimit.Limiter
	metrics   Metrics

	synced     chan struct{}
	syncedOnce sync.Once

	Worker Worker
}

// New constructs a new blockchain for data management. The canonical node
// writes the genesis block when its chain is empty and starts out synced.
// Every other node starts out bootstrapping.
func New(ctx context.Context, cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if cfg.NodeID == "" || cfg.SyncNodeID == "" {
		return nil, errors.New("node id and sync node id are required")
	}

	if cfg.Storage == nil {
		return nil, errors.New("storage is required")
	}

	db, err := database.New(ctx, cfg.NodeID, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Replicas read the canonical chain from the shared store unless
	// another source has been provided.
	source := cfg.Source
	if source == nil && cfg.NodeID != cfg.SyncNodeID {
		canonical, err := database.New(ctx, cfg.SyncNodeID, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("open canonical database: %w", err)
		}
		source = canonical
	}

	limiter := ratelimit.NewUnlimited()
	if cfg.BootstrapRate > 0 {
		limiter = ratelimit.New(cfg.BootstrapRate)
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}

	state := State{
		nodeID:     cfg.NodeID,
		syncNodeID: cfg.SyncNodeID,
		evHandler:  ev,

		genesis:   cfg.Genesis,
		policy:    cfg.Genesis.Policy(),
		db:        db,
		source:    source,
		publisher: cfg.Publisher,
		limiter:   limiter,
		metrics:   metrics,

		synced: make(chan struct{}),
	}

	if state.IsCanonical() {
		if err := state.writeGenesis(ctx); err != nil {
			return nil, err
		}
		state.markSynced()
	}

	if latest, ok := db.LatestBlock(); ok {
		metrics.SetChainHeight(string(cfg.NodeID), latest.Number)
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	return s.db.Close()
}

// NodeID returns the id of this node.
func (s *State) NodeID() database.NodeID {
	return s.nodeID
}

// SyncNodeID returns the id of the canonical node.
func (s *State) SyncNodeID() database.NodeID {
	return s.syncNodeID
}

// IsCanonical reports if this node produces the authoritative chain.
func (s *State) IsCanonical() bool {
	return s.nodeID == s.syncNodeID
}

// =============================================================================

// writeGenesis writes the genesis block to an empty chain. A chain that
// already exists must start with the same genesis block.
func (s *State) writeGenesis(ctx context.Context) error {
	block, err := s.genesis.Block(ctx)
	if err != nil {
		return err
	}

	if _, ok := s.db.LatestBlock(); ok {
		stored, err := s.db.GetBlock(ctx, 0)
		if err != nil {
			return fmt.Errorf("read genesis: %w", err)
		}

		if stored.Hash != block.Hash {
			s.evHandler("state: writeGenesis: WARNING: stored genesis[%s] differs from genesis file[%s]", stored.Hash, block.Hash)
		}
		return nil
	}

	s.evHandler("state: writeGenesis: blk[%d]: hash[%s]", block.Number, block.Hash)

	if err := s.db.Write(ctx, block); err != nil {
		return fmt.Errorf("write genesis: %w", err)
	}

	return nil
}

type nopMetrics struct{}

func (nopMetrics) ObserveMining(uint32, error, time.Time) {}
func (nopMetrics) ObserveReplication(string)              {}
func (nopMetrics) SetChainHeight(string, uint64)          {}

// Package database handles all the lower level support for maintaining the
// blockchain: the block format, proof of work, validation and the storage
// contract every chain store implements.
package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// NodeID identifies the namespace a node keeps its chain under.
type NodeID string

// Storage interface represents the behavior required to be implemented by any
// package providing support for storing and reading the blockchain. Every
// operation is scoped to a node so one store can hold many chains. Latest
// returns the block with the highest indexed number, or ErrNotFound for an
// empty chain.
type Storage interface {
	Save(ctx context.Context, nodeID NodeID, block Block) error
	GetByHash(ctx context.Context, nodeID NodeID, hash Hash) (Block, error)
	GetByNumber(ctx context.Context, nodeID NodeID, number uint64) (Block, error)
	Count(ctx context.Context, nodeID NodeID) (uint64, error)
	Latest(ctx context.Context, nodeID NodeID) (Block, error)
	Delete(ctx context.Context, nodeID NodeID, hash Hash) error
	Close() error
}

// =============================================================================

// Database manages the chain for a single node on top of a storage backend.
// It caches the latest block so the tail of the chain can be read without a
// trip to storage.
type Database struct {
	mu sync.RWMutex

	nodeID      NodeID
	storage     Storage
	latestBlock Block
	hasLatest   bool
}

// New constructs a database view for the specified node and loads the
// latest block from storage if the chain is not empty.
func New(ctx context.Context, nodeID NodeID, storage Storage) (*Database, error) {
	db := Database{
		nodeID:  nodeID,
		storage: storage,
	}

	block, err := storage.Latest(ctx, nodeID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load latest block: %w", err)
	default:
		db.latestBlock = block
		db.hasLatest = true
	}

	return &db, nil
}

// NodeID returns the namespace this database is bound to.
func (db *Database) NodeID() NodeID {
	return db.nodeID
}

// Close closes the underlying storage.
func (db *Database) Close() error {
	return db.storage.Close()
}

// Write adds a new block to the chain and makes it the latest block.
func (db *Database) Write(ctx context.Context, block Block) error {
	if err := db.storage.Save(ctx, db.nodeID, block); err != nil {
		return fmt.Errorf("save block[%d]: %w", block.Number, err)
	}

	db.UpdateLatestBlock(block)

	return nil
}

// UpdateLatestBlock provides safe access to update the latest block.
func (db *Database) UpdateLatestBlock(block Block) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.latestBlock = block
	db.hasLatest = true
}

// LatestBlock returns the latest block. The boolean is false when the chain
// is still empty.
func (db *Database) LatestBlock() (Block, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.latestBlock, db.hasLatest
}

// GetBlock returns the block at the specified position in the chain.
func (db *Database) GetBlock(ctx context.Context, number uint64) (Block, error) {
	return db.storage.GetByNumber(ctx, db.nodeID, number)
}

// GetBlockByHash returns the block with the specified hash.
func (db *Database) GetBlockByHash(ctx context.Context, hash Hash) (Block, error) {
	return db.storage.GetByHash(ctx, db.nodeID, hash)
}

// Count returns the number of blocks in the chain.
func (db *Database) Count(ctx context.Context) (uint64, error) {
	return db.storage.Count(ctx, db.nodeID)
}

// Delete removes the block with the specified hash. This is an administrative
// operation and can leave the chain with a gap. The cached latest block is
// reloaded from storage.
func (db *Database) Delete(ctx context.Context, hash Hash) error {
	if err := db.storage.Delete(ctx, db.nodeID, hash); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.latestBlock.Hash != hash {
		return nil
	}

	db.latestBlock = Block{}
	db.hasLatest = false

	block, err := db.storage.Latest(ctx, db.nodeID)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return err
	}

	db.latestBlock = block
	db.hasLatest = true

	return nil
}

// Tail returns up to the last n blocks of the chain in ascending order.
func (db *Database) Tail(ctx context.Context, n int) ([]Block, error) {
	latest, ok := db.LatestBlock()
	if !ok || n <= 0 {
		return nil, nil
	}

	blocks := make([]Block, 0, n)
	for i := 0; i < n; i++ {
		if uint64(i) > latest.Number {
			break
		}

		block, err := db.GetBlock(ctx, latest.Number-uint64(i))
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}

	for i, j := 0, len(blocks)-1; i < j; i, j = i+1, j-1 {
		blocks[i], blocks[j] = blocks[j], blocks[i]
	}

	return blocks, nil
}

// ForEach returns an iterator to walk through all the blocks starting with
// the genesis block.
func (db *Database) ForEach(ctx context.Context) *Iterator {
	return &Iterator{ctx: ctx, db: db}
}

// Validate walks the entire chain and validates every block. The number of
// the first failing block is returned with the error.
func (db *Database) Validate(ctx context.Context) (uint64, error) {
	var prev Block

	iter := db.ForEach(ctx)
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return block.Number, err
		}

		switch block.Number {
		case 0:
			err = ValidateGenesis(block)
		default:
			err = block.ValidateBlock(prev, nil)
		}
		if err != nil {
			return block.Number, err
		}

		prev = block
	}

	return 0, nil
}

// =============================================================================

// Iterator walks the chain in order by block number.
type Iterator struct {
	ctx     context.Context
	db      *Database
	current uint64
	eoc     bool
}

// Next retrieves the next block from storage.
func (it *Iterator) Next() (Block, error) {
	if it.eoc {
		return Block{}, errors.New("end of chain")
	}

	block, err := it.db.GetBlock(it.ctx, it.current)
	if errors.Is(err, ErrNotFound) {
		it.eoc = true
		return Block{}, nil
	}
	if err != nil {
		block.Number = it.current
	}

	it.current++

	return block, err
}

// Done returns the end of chain value.
func (it *Iterator) Done() bool {
	return it.eoc
}

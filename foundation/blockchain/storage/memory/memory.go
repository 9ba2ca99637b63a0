// Package memory implements the ability to read and write blocks to memory
// using maps. One value can hold the chains of many nodes.
package memory

import (
	"bytes"
	"context"
	"sync"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
)

// chain holds the blocks for a single node.
type chain struct {
	byHash   map[database.Hash]database.Block
	byNumber map[uint64]database.Hash
}

// Memory represents the serialization implementation for reading and storing
// blocks in memory. This implements the database.Storage interface.
type Memory struct {
	mu     sync.RWMutex
	chains map[database.NodeID]*chain
}

// New constructs a Memory value for use.
func New() *Memory {
	return &Memory{
		chains: make(map[database.NodeID]*chain),
	}
}

// Close in this implementation has nothing to do since everything
// is in memory.
func (m *Memory) Close() error {
	return nil
}

// Save stores the block under the node and indexes it by number. Saving a
// block with a number already in use replaces the index entry.
func (m *Memory) Save(ctx context.Context, nodeID database.NodeID, block database.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, exists := m.chains[nodeID]
	if !exists {
		c = &chain{
			byHash:   make(map[database.Hash]database.Block),
			byNumber: make(map[uint64]database.Hash),
		}
		m.chains[nodeID] = c
	}

	block.Payload = bytes.Clone(block.Payload)

	c.byHash[block.Hash] = block
	c.byNumber[block.Number] = block.Hash

	return nil
}

// GetByHash returns the block with the specified hash.
func (m *Memory) GetByHash(ctx context.Context, nodeID database.NodeID, hash database.Hash) (database.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, exists := m.chains[nodeID]
	if !exists {
		return database.Block{}, database.ErrNotFound
	}

	block, exists := c.byHash[hash]
	if !exists {
		return database.Block{}, database.ErrNotFound
	}

	block.Payload = bytes.Clone(block.Payload)

	return block, nil
}

// GetByNumber returns the block at the specified position in the chain.
func (m *Memory) GetByNumber(ctx context.Context, nodeID database.NodeID, number uint64) (database.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, exists := m.chains[nodeID]
	if !exists {
		return database.Block{}, database.ErrNotFound
	}

	hash, exists := c.byNumber[number]
	if !exists {
		return database.Block{}, database.ErrNotFound
	}

	block := c.byHash[hash]
	block.Payload = bytes.Clone(block.Payload)

	return block, nil
}

// Count returns the number of blocks held for the node.
func (m *Memory) Count(ctx context.Context, nodeID database.NodeID) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, exists := m.chains[nodeID]
	if !exists {
		return 0, nil
	}

	return uint64(len(c.byNumber)), nil
}

// Latest returns the block with the highest indexed number.
func (m *Memory) Latest(ctx context.Context, nodeID database.NodeID) (database.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, exists := m.chains[nodeID]
	if !exists || len(c.byNumber) == 0 {
		return database.Block{}, database.ErrNotFound
	}

	var (
		top   uint64
		first = true
	)
	for number := range c.byNumber {
		if first || number > top {
			top, first = number, false
		}
	}

	block := c.byHash[c.byNumber[top]]
	block.Payload = bytes.Clone(block.Payload)

	return block, nil
}

// Delete removes the block with the specified hash from the node's chain.
func (m *Memory) Delete(ctx context.Context, nodeID database.NodeID, hash database.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, exists := m.chains[nodeID]
	if !exists {
		return database.ErrNotFound
	}

	block, exists := c.byHash[hash]
	if !exists {
		return database.ErrNotFound
	}

	delete(c.byHash, hash)
	if c.byNumber[block.Number] == hash {
		delete(c.byNumber, block.Number)
	}

	return nil
}

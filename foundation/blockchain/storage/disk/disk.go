// Package disk implements the ability to read and write blocks to disk
// writing each block to a separate file.
package disk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
)

// Disk represents the serialization implementation for reading and storing
// blocks in their own separate files on disk. Blocks live under
// <root>/<node>/blocks/<hash>.json and the number index under
// <root>/<node>/numbers/<number>. This implements the database.Storage
// interface.
type Disk struct {
	mu     sync.RWMutex
	dbPath string
}

// New constructs a Disk value for use.
func New(dbPath string) (*Disk, error) {
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, err
	}

	return &Disk{dbPath: dbPath}, nil
}

// Close in this implementation has nothing to do since a new file is
// written to disk for each new block and then immediately closed.
func (d *Disk) Close() error {
	return nil
}

// Save writes the block to its own file and records its hash in the
// number index. Both files are written to a temporary name and renamed into
// place, block first, so a reader sharing the directory never sees a partial
// file or an index entry without its block.
func (d *Disk) Save(ctx context.Context, nodeID database.NodeID, block database.Block) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.makeDirs(nodeID); err != nil {
		return err
	}

	// Marshal the block for writing to disk in a more human readable format.
	data, err := json.MarshalIndent(database.NewBlockData(block), "", "  ")
	if err != nil {
		return err
	}

	if err := writeFile(d.blockPath(nodeID, block.Hash), data); err != nil {
		return fmt.Errorf("write block %s: %w", block.Hash, err)
	}

	if err := writeFile(d.numberPath(nodeID, block.Number), []byte(block.Hash.String())); err != nil {
		return fmt.Errorf("write number index[%d]: %w", block.Number, err)
	}

	return nil
}

// GetByHash reads the block file for the specified hash.
func (d *Disk) GetByHash(ctx context.Context, nodeID database.NodeID, hash database.Hash) (database.Block, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.readBlock(nodeID, hash)
}

// GetByNumber resolves the number through the index and reads the block.
func (d *Disk) GetByNumber(ctx context.Context, nodeID database.NodeID, number uint64) (database.Block, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.blockByNumber(nodeID, number)
}

// Count returns the number of entries in the number index.
func (d *Disk) Count(ctx context.Context, nodeID database.NodeID) (uint64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(d.nodePath(nodeID), "numbers"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	var count uint64
	for _, entry := range entries {
		if _, err := strconv.ParseUint(entry.Name(), 10, 64); err == nil {
			count++
		}
	}

	return count, nil
}

// Latest returns the block with the highest number in the index. Gaps left
// by Delete do not matter.
func (d *Disk) Latest(ctx context.Context, nodeID database.NodeID) (database.Block, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(d.nodePath(nodeID), "numbers"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return database.Block{}, database.ErrNotFound
		}
		return database.Block{}, err
	}

	var (
		top   uint64
		found bool
	)
	for _, entry := range entries {
		n, err := strconv.ParseUint(entry.Name(), 10, 64)
		if err != nil {
			continue
		}
		if !found || n > top {
			top, found = n, true
		}
	}

	if !found {
		return database.Block{}, database.ErrNotFound
	}

	return d.blockByNumber(nodeID, top)
}

// Delete removes the block file and its number index entry.
func (d *Disk) Delete(ctx context.Context, nodeID database.NodeID, hash database.Hash) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	block, err := d.readBlock(nodeID, hash)
	if err != nil {
		return err
	}

	if err := os.Remove(d.blockPath(nodeID, hash)); err != nil {
		return err
	}

	numberPath := d.numberPath(nodeID, block.Number)
	indexed, err := os.ReadFile(numberPath)
	if err == nil && strings.TrimSpace(string(indexed)) == hash.String() {
		if err := os.Remove(numberPath); err != nil {
			return err
		}
	}

	return nil
}

// =============================================================================

func (d *Disk) blockByNumber(nodeID database.NodeID, number uint64) (database.Block, error) {
	data, err := os.ReadFile(d.numberPath(nodeID, number))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return database.Block{}, database.ErrNotFound
		}
		return database.Block{}, err
	}

	hash, err := database.ParseHash(strings.TrimSpace(string(data)))
	if err != nil {
		return database.Block{}, fmt.Errorf("number index[%d]: %w", number, err)
	}

	return d.readBlock(nodeID, hash)
}

func (d *Disk) readBlock(nodeID database.NodeID, hash database.Hash) (database.Block, error) {
	f, err := os.Open(d.blockPath(nodeID, hash))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return database.Block{}, database.ErrNotFound
		}
		return database.Block{}, err
	}
	defer f.Close()

	var blockData database.BlockData
	if err := json.NewDecoder(f).Decode(&blockData); err != nil {
		return database.Block{}, fmt.Errorf("decode block %s: %w", hash, err)
	}

	return database.ToBlock(blockData), nil
}

// writeFile writes data next to path under a temporary name that Count and
// Latest ignore, then renames it over path.
func writeFile(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}

	return nil
}

func (d *Disk) makeDirs(nodeID database.NodeID) error {
	for _, dir := range []string{"blocks", "numbers"} {
		if err := os.MkdirAll(filepath.Join(d.nodePath(nodeID), dir), 0755); err != nil {
			return err
		}
	}
	return nil
}

func (d *Disk) nodePath(nodeID database.NodeID) string {
	return filepath.Join(d.dbPath, string(nodeID))
}

func (d *Disk) blockPath(nodeID database.NodeID, hash database.Hash) string {
	return filepath.Join(d.nodePath(nodeID), "blocks", hash.String()+".json")
}

func (d *Disk) numberPath(nodeID database.NodeID, number uint64) string {
	return filepath.Join(d.nodePath(nodeID), "numbers", strconv.FormatUint(number, 10))
}

// Package clickhouse implements the ability to read and write blocks to a
// ClickHouse database. Blocks are kept in chain_blocks and the number index
// in chain_block_numbers, both scoped by node id.
package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ardanlabs/powchain/foundation/blockchain/database"
)

const (
	insertBlockQuery = `
INSERT INTO chain_blocks (
	node_id,
	hash,
	number,
	timestamp,
	difficulty,
	nonce,
	payload,
	prev_hash
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	insertNumberQuery = `
INSERT INTO chain_block_numbers (
	node_id,
	number,
	hash
) VALUES (?, ?, ?)`

	blockByHashQuery = `
SELECT number, timestamp, difficulty, nonce, payload, hash, prev_hash
FROM chain_blocks FINAL
WHERE node_id = ? AND hash = ?
LIMIT 1`

	hashByNumberQuery = `
SELECT hash
FROM chain_block_numbers FINAL
WHERE node_id = ? AND number = ?
LIMIT 1`

	countQuery = `
SELECT count()
FROM chain_block_numbers FINAL
WHERE node_id = ?`

	latestQuery = `
SELECT hash
FROM chain_block_numbers FINAL
WHERE node_id = ?
ORDER BY number DESC
LIMIT 1`

	deleteBlockQuery = `
DELETE FROM chain_blocks
WHERE node_id = ? AND hash = ?`

	deleteNumberQuery = `
DELETE FROM chain_block_numbers
WHERE node_id = ? AND number = ? AND hash = ?`
)

// Store represents the serialization implementation for reading and storing
// blocks in ClickHouse. This implements the database.Storage interface.
type Store struct {
	conn    Conn
	metrics Metrics
}

// New opens a connection to the database described by the dsn.
func New(dsn string, metrics Metrics) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("clickhouse dsn is required")
	}

	options, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}

	return NewWithConn(conn, metrics), nil
}

// NewWithConn constructs a store on an existing connection.
func NewWithConn(conn Conn, metrics Metrics) *Store {
	if metrics == nil {
		metrics = nopMetrics{}
	}

	return &Store{conn: conn, metrics: metrics}
}

// Close closes the connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Save inserts the block and its number index row. Both tables replace rows
// with the same key so saving a block twice is harmless.
func (s *Store) Save(ctx context.Context, nodeID database.NodeID, block database.Block) error {
	start := time.Now()
	var err error
	defer func() {
		s.metrics.Observe("save", err, start)
	}()

	if err = s.conn.Exec(ctx, insertBlockQuery,
		string(nodeID),
		block.Hash.String(),
		block.Number,
		block.TimeStamp,
		block.Difficulty,
		block.Nonce,
		string(block.Payload),
		block.PrevHash.String(),
	); err != nil {
		return fmt.Errorf("insert block: %w", err)
	}

	if err = s.conn.Exec(ctx, insertNumberQuery, string(nodeID), block.Number, block.Hash.String()); err != nil {
		return fmt.Errorf("insert block number: %w", err)
	}

	return nil
}

// GetByHash returns the block with the specified hash.
func (s *Store) GetByHash(ctx context.Context, nodeID database.NodeID, hash database.Hash) (database.Block, error) {
	start := time.Now()
	var err error
	defer func() {
		s.metrics.Observe("get_by_hash", err, start)
	}()

	var block database.Block
	block, err = s.blockByHash(ctx, nodeID, hash)

	return block, err
}

// GetByNumber resolves the number through the index table and returns the
// block it points at.
func (s *Store) GetByNumber(ctx context.Context, nodeID database.NodeID, number uint64) (database.Block, error) {
	start := time.Now()
	var err error
	defer func() {
		s.metrics.Observe("get_by_number", err, start)
	}()

	var hexHash string
	if err = s.conn.QueryRow(ctx, hashByNumberQuery, string(nodeID), number).Scan(&hexHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = database.ErrNotFound
			return database.Block{}, err
		}
		return database.Block{}, fmt.Errorf("query block number: %w", err)
	}

	var hash database.Hash
	if hash, err = database.ParseHash(hexHash); err != nil {
		return database.Block{}, fmt.Errorf("number index[%d]: %w", number, err)
	}

	var block database.Block
	block, err = s.blockByHash(ctx, nodeID, hash)

	return block, err
}

// Count returns the number of rows in the number index for the node.
func (s *Store) Count(ctx context.Context, nodeID database.NodeID) (uint64, error) {
	start := time.Now()
	var err error
	defer func() {
		s.metrics.Observe("count", err, start)
	}()

	var count uint64
	if err = s.conn.QueryRow(ctx, countQuery, string(nodeID)).Scan(&count); err != nil {
		return 0, fmt.Errorf("query block count: %w", err)
	}

	return count, nil
}

// Latest returns the block the highest number in the index points at.
func (s *Store) Latest(ctx context.Context, nodeID database.NodeID) (database.Block, error) {
	start := time.Now()
	var err error
	defer func() {
		s.metrics.Observe("latest", err, start)
	}()

	var hexHash string
	if err = s.conn.QueryRow(ctx, latestQuery, string(nodeID)).Scan(&hexHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = database.ErrNotFound
			return database.Block{}, err
		}
		return database.Block{}, fmt.Errorf("query latest block: %w", err)
	}

	var hash database.Hash
	if hash, err = database.ParseHash(hexHash); err != nil {
		return database.Block{}, fmt.Errorf("latest index: %w", err)
	}

	var block database.Block
	block, err = s.blockByHash(ctx, nodeID, hash)

	return block, err
}

// Delete removes the block and the index row that points at it.
func (s *Store) Delete(ctx context.Context, nodeID database.NodeID, hash database.Hash) error {
	start := time.Now()
	var err error
	defer func() {
		s.metrics.Observe("delete", err, start)
	}()

	var block database.Block
	if block, err = s.blockByHash(ctx, nodeID, hash); err != nil {
		return err
	}

	if err = s.conn.Exec(ctx, deleteBlockQuery, string(nodeID), hash.String()); err != nil {
		return fmt.Errorf("delete block: %w", err)
	}

	if err = s.conn.Exec(ctx, deleteNumberQuery, string(nodeID), block.Number, hash.String()); err != nil {
		return fmt.Errorf("delete block number: %w", err)
	}

	return nil
}

// =============================================================================

func (s *Store) blockByHash(ctx context.Context, nodeID database.NodeID, hash database.Hash) (database.Block, error) {
	var (
		block   database.Block
		payload string
		hexHash string
		hexPrev string
	)

	row := s.conn.QueryRow(ctx, blockByHashQuery, string(nodeID), hash.String())
	if err := row.Scan(&block.Number, &block.TimeStamp, &block.Difficulty, &block.Nonce, &payload, &hexHash, &hexPrev); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Block{}, database.ErrNotFound
		}
		return database.Block{}, fmt.Errorf("query block: %w", err)
	}

	var err error
	if block.Hash, err = database.ParseHash(hexHash); err != nil {
		return database.Block{}, fmt.Errorf("block hash: %w", err)
	}

	if block.PrevHash, err = database.ParseHash(hexPrev); err != nil {
		return database.Block{}, fmt.Errorf("block prev hash: %w", err)
	}

	block.Payload = []byte(payload)

	return block, nil
}

type nopMetrics struct{}

func (nopMetrics) Observe(string, error, time.Time) {}

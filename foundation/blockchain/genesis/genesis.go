// Package genesis maintains access to the genesis file.
package genesis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date          time.Time `json:"date"`           // Timestamp of the genesis block.
	Payload       string    `json:"payload"`        // Data carried by the genesis block.
	Difficulty    uint32    `json:"difficulty"`     // Difficulty of the genesis block and the first mined block.
	MaxDifficulty uint32    `json:"max_difficulty"` // Upper bound for the difficulty adjustment.
	BlockTime     uint64    `json:"block_time"`     // Target seconds between blocks.
}

// Default returns the genesis used when no file is provided.
func Default() Genesis {
	return Genesis{
		Date:          time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Payload:       "genesis",
		Difficulty:    0,
		MaxDifficulty: database.DefaultMaxDifficulty,
		BlockTime:     uint64(database.DefaultBlockTime / time.Second),
	}
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	genesis := Default()
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("decode genesis %s: %w", path, err)
	}

	if genesis.Difficulty > database.MaxDifficulty || genesis.MaxDifficulty > database.MaxDifficulty {
		return Genesis{}, fmt.Errorf("genesis %s: %w", path, database.ErrInvalidDifficulty)
	}

	return genesis, nil
}

// Block produces the genesis block. Every node derives the same block from
// the same genesis file.
func (g Genesis) Block(ctx context.Context) (database.Block, error) {
	timeStamp := uint64(g.Date.UTC().Unix())
	payload := []byte(g.Payload)

	hash, nonce, err := database.Mine(ctx, timeStamp, payload, database.ZeroHash, g.Difficulty, func(string, ...any) {})
	if err != nil {
		return database.Block{}, fmt.Errorf("mine genesis: %w", err)
	}

	block := database.Block{
		Number:     0,
		TimeStamp:  timeStamp,
		Difficulty: g.Difficulty,
		Nonce:      nonce,
		Payload:    payload,
		Hash:       hash,
		PrevHash:   database.ZeroHash,
	}

	return block, nil
}

// Policy returns the difficulty policy described by the genesis.
func (g Genesis) Policy() database.DifficultyPolicy {
	policy := database.DefaultDifficultyPolicy()
	policy.Baseline = g.Difficulty

	if g.MaxDifficulty > 0 {
		policy.Max = g.MaxDifficulty
	}

	if g.BlockTime > 0 {
		policy.BlockTime = time.Duration(g.BlockTime) * time.Second
	}

	return policy
}

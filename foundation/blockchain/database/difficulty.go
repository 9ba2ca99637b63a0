package database

import "time"

// Default values for the difficulty policy.
const (
	DefaultMaxDifficulty uint32 = 20
	DefaultBlockTime            = 5 * time.Second
)

// DifficultyPolicy decides the difficulty of the next block from the
// interval between the two most recent blocks. Blocks that arrive faster
// than BlockTime make the next block harder by one bit, slower blocks make
// it easier by one bit.
type DifficultyPolicy struct {
	Baseline  uint32
	Max       uint32
	BlockTime time.Duration
}

// DefaultDifficultyPolicy returns the policy used when nothing is configured.
func DefaultDifficultyPolicy() DifficultyPolicy {
	return DifficultyPolicy{
		Baseline:  0,
		Max:       DefaultMaxDifficulty,
		BlockTime: DefaultBlockTime,
	}
}

// Next computes the difficulty of the block that follows last. The prev
// block is the one before last and may be nil when the chain only holds
// genesis.
func (dp DifficultyPolicy) Next(last *Block, prev *Block) uint32 {
	if last == nil || prev == nil {
		return dp.clamp(dp.Baseline)
	}

	var interval uint64
	if last.TimeStamp > prev.TimeStamp {
		interval = last.TimeStamp - prev.TimeStamp
	}

	if time.Duration(interval)*time.Second > dp.blockTime() {
		if last.Difficulty == 0 {
			return 0
		}
		return dp.clamp(last.Difficulty - 1)
	}

	return dp.clamp(last.Difficulty + 1)
}

// NextFromChain computes the next difficulty from the tail of a chain. Only
// the last two blocks are considered.
func (dp DifficultyPolicy) NextFromChain(blocks []Block) uint32 {
	if len(blocks) < 2 {
		return dp.clamp(dp.Baseline)
	}

	last := blocks[len(blocks)-1]
	prev := blocks[len(blocks)-2]

	return dp.Next(&last, &prev)
}

func (dp DifficultyPolicy) clamp(difficulty uint32) uint32 {
	limit := dp.Max
	if limit == 0 || limit > MaxDifficulty {
		limit = MaxDifficulty
	}

	if difficulty > limit {
		return limit
	}

	return difficulty
}

func (dp DifficultyPolicy) blockTime() time.Duration {
	if dp.BlockTime <= 0 {
		return DefaultBlockTime
	}
	return dp.BlockTime
}

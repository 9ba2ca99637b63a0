package state

import (
	"context"
	"fmt"
	"time"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
)

// MineBlock hands the payload to the worker's mining goroutine and waits for
// the result. Cancelling the context abandons the wait and the search.
func (s *State) MineBlock(ctx context.Context, payload []byte) (database.Block, error) {
	if !s.IsCanonical() {
		return database.Block{}, ErrNotCanonical
	}

	return s.Worker.SubmitMining(ctx, payload)
}

// MineNewBlock attempts to create a new block with a proper hash that can become
// the next block in the chain. The new block is published once it has been
// written.
func (s *State) MineNewBlock(ctx context.Context, payload []byte) (database.Block, error) {
	if !s.IsCanonical() {
		return database.Block{}, ErrNotCanonical
	}

	tail, err := s.db.Tail(ctx, 2)
	if err != nil {
		return database.Block{}, fmt.Errorf("read chain tail: %w", err)
	}

	if len(tail) == 0 {
		return database.Block{}, fmt.Errorf("chain has no genesis block")
	}

	difficulty := s.policy.NextFromChain(tail)
	prevBlock := tail[len(tail)-1]

	s.evHandler("state: MineNewBlock: MINING: perform POW: blk[%d]: difficulty[%d]", prevBlock.Number+1, difficulty)

	// Attempt to create a new block by solving the POW puzzle. This can be cancelled.
	start := time.Now()
	block, err := database.POW(ctx, database.POWArgs{
		Difficulty: difficulty,
		PrevBlock:  prevBlock,
		TimeStamp:  nextTimeStamp(prevBlock),
		Payload:    payload,
		EvHandler:  s.evHandler,
	})
	s.metrics.ObserveMining(difficulty, err, start)
	if err != nil {
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	s.evHandler("state: MineNewBlock: MINING: validate and update database")

	s.mu.Lock()
	err = s.validateWrite(ctx, block)
	s.mu.Unlock()

	if err != nil {
		return database.Block{}, err
	}

	s.BroadcastBlock(ctx, block)

	return block, nil
}

// BroadcastBlock publishes the block to every replica. Failures are reported
// but never undo the write.
func (s *State) BroadcastBlock(ctx context.Context, block database.Block) {
	if s.publisher == nil {
		return
	}

	data, err := database.Marshal(block)
	if err != nil {
		s.evHandler("state: BroadcastBlock: ERROR: marshal blk[%d]: %s", block.Number, err)
		return
	}

	if err := s.publisher.Publish(ctx, data); err != nil {
		s.evHandler("state: BroadcastBlock: WARNING: publish blk[%d]: %s", block.Number, err)
		return
	}

	s.evHandler("state: BroadcastBlock: published blk[%d]", block.Number)
}

// ProcessBroadcastBlock takes a block received from the canonical node,
// validates it and if that passes, adds the block to the local blockchain.
// Blocks are ignored until bootstrap has completed and blocks the node
// already holds are ignored as duplicates. A block that arrives ahead of the
// local chain triggers a catch up from the canonical source first.
func (s *State) ProcessBroadcastBlock(ctx context.Context, data []byte) error {
	if s.IsCanonical() {
		return nil
	}

	if !s.IsSynced() {
		s.evHandler("state: ProcessBroadcastBlock: ignored: node is bootstrapping")
		s.metrics.ObserveReplication(OutcomeIgnored)
		return nil
	}

	block, err := database.Unmarshal(data)
	if err != nil {
		s.metrics.ObserveReplication(OutcomeRejected)
		return fmt.Errorf("decode broadcast block: %w", err)
	}

	// Nothing is fetched on behalf of a block that does not carry its own
	// proof of work.
	if err := block.ValidateWork(); err != nil {
		s.evHandler("state: ProcessBroadcastBlock: rejected: blk[%d]: %s", block.Number, err)
		s.metrics.ObserveReplication(OutcomeRejected)
		return err
	}

	s.evHandler("state: ProcessBroadcastBlock: started: prevBlk[%s]: newBlk[%s]: blk[%d]", block.PrevHash, block.Hash, block.Number)
	defer s.evHandler("state: ProcessBroadcastBlock: completed: newBlk[%s]", block.Hash)

	s.mu.Lock()
	defer s.mu.Unlock()

	latest, ok := s.db.LatestBlock()
	if ok && block.Number <= latest.Number {
		s.evHandler("state: ProcessBroadcastBlock: duplicate: blk[%d]: latest[%d]", block.Number, latest.Number)
		s.metrics.ObserveReplication(OutcomeDuplicate)
		return nil
	}

	var next uint64
	if ok {
		next = latest.Number + 1
	}

	for number := next; number < block.Number; number++ {
		s.evHandler("state: ProcessBroadcastBlock: catch up: blk[%d]", number)

		if err := s.copyCanonicalBlock(ctx, number); err != nil {
			s.metrics.ObserveReplication(OutcomeRejected)
			return fmt.Errorf("catch up blk[%d]: %w", number, err)
		}
	}

	if err := s.validateWrite(ctx, block); err != nil {
		s.metrics.ObserveReplication(OutcomeRejected)
		return err
	}

	s.metrics.ObserveReplication(OutcomeAccepted)

	return nil
}

// =============================================================================

// validateWrite takes the block and validates the block against the
// consensus rules. If the block passes, then the block is written to the
// local chain. The caller must hold the lock.
func (s *State) validateWrite(ctx context.Context, block database.Block) error {
	s.evHandler("state: validateWrite: validate blk[%d]", block.Number)

	latest, ok := s.db.LatestBlock()

	switch {
	case !ok:
		if err := database.ValidateGenesis(block); err != nil {
			return err
		}

	default:
		if err := block.ValidateBlock(latest, s.evHandler); err != nil {
			return err
		}
	}

	s.evHandler("state: validateWrite: write to storage")

	if err := s.db.Write(ctx, block); err != nil {
		return err
	}

	s.metrics.SetChainHeight(string(s.nodeID), block.Number)
	s.evHandler("viewer: node[%s]: block: blk[%d]: hash[%s]: difficulty[%d]: nonce[%d]", s.nodeID, block.Number, block.Hash, block.Difficulty, block.Nonce)

	return nil
}

// nextTimeStamp returns the current time in seconds, never earlier than the
// previous block.
func nextTimeStamp(prev database.Block) uint64 {
	now := uint64(time.Now().UTC().Unix())
	if now < prev.TimeStamp {
		return prev.TimeStamp
	}
	return now
}

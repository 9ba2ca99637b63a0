package state

import (
	"context"
	"errors"
	"fmt"
)

// SyncState represents where a node is in the replication protocol.
type SyncState int

// Set of sync states. A node only ever moves from Bootstrapping to Synced.
const (
	Bootstrapping SyncState = iota
	Synced
)

// String implements the fmt.Stringer interface.
func (ss SyncState) String() string {
	switch ss {
	case Synced:
		return "synced"
	default:
		return "bootstrapping"
	}
}

// BootstrapError is returned when bootstrap can't copy a block from the
// canonical chain. The node can't continue without a consistent chain.
type BootstrapError struct {
	Number uint64
	Err    error
}

// Error implements the error interface.
func (be *BootstrapError) Error() string {
	return fmt.Sprintf("bootstrap failed at block %d: %s", be.Number, be.Err)
}

// Unwrap returns the underlying error.
func (be *BootstrapError) Unwrap() error {
	return be.Err
}

// IsBootstrapError checks if an error of type BootstrapError exists.
func IsBootstrapError(err error) bool {
	var be *BootstrapError
	return errors.As(err, &be)
}

// =============================================================================

// SyncState returns the current sync state of the node.
func (s *State) SyncState() SyncState {
	if s.IsSynced() {
		return Synced
	}
	return Bootstrapping
}

// IsSynced reports if bootstrap has completed.
func (s *State) IsSynced() bool {
	select {
	case <-s.synced:
		return true
	default:
		return false
	}
}

// Synced returns a channel that is closed once bootstrap has completed.
func (s *State) Synced() <-chan struct{} {
	return s.synced
}

func (s *State) markSynced() {
	s.syncedOnce.Do(func() {
		close(s.synced)
	})
}

// =============================================================================

// Bootstrap copies every block the canonical node holds at the time of the
// call into the local chain, validating each one against the block before
// it. On success the node is marked synced. A context error is returned as
// is, every other failure is a *BootstrapError naming the block.
func (s *State) Bootstrap(ctx context.Context) error {
	s.evHandler("state: Bootstrap: started")
	defer s.evHandler("state: Bootstrap: completed")

	if s.IsSynced() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.db.Count(ctx)
	if err != nil {
		return &BootstrapError{Number: 0, Err: fmt.Errorf("count local blocks: %w", err)}
	}

	target, err := s.source.Count(ctx)
	if err != nil {
		return &BootstrapError{Number: next, Err: fmt.Errorf("count canonical blocks: %w", err)}
	}

	s.evHandler("state: Bootstrap: local[%d]: canonical[%d]", next, target)

	if err := s.checkDivergence(ctx, next, target); err != nil {
		return err
	}

	for number := next; number < target; number++ {
		s.limiter.Take()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := s.copyCanonicalBlock(ctx, number); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &BootstrapError{Number: number, Err: err}
		}
	}

	s.markSynced()
	s.evHandler("viewer: node[%s]: synced: blocks[%d]", s.nodeID, target)

	return nil
}

// checkDivergence makes sure a partially replicated local chain is still a
// prefix of the canonical chain.
func (s *State) checkDivergence(ctx context.Context, local uint64, target uint64) error {
	latest, ok := s.db.LatestBlock()
	if !ok {
		return nil
	}

	if local > target {
		return &BootstrapError{Number: latest.Number, Err: fmt.Errorf("%w: local holds %d blocks, canonical %d", ErrDiverged, local, target)}
	}

	canonical, err := s.source.GetBlock(ctx, latest.Number)
	if err != nil {
		return &BootstrapError{Number: latest.Number, Err: fmt.Errorf("fetch canonical block: %w", err)}
	}

	if canonical.Hash != latest.Hash {
		return &BootstrapError{Number: latest.Number, Err: fmt.Errorf("%w: local %s, canonical %s", ErrDiverged, latest.Hash, canonical.Hash)}
	}

	return nil
}

// copyCanonicalBlock fetches the block from the canonical source, validates
// it and writes it to the local chain. The caller must hold the lock.
func (s *State) copyCanonicalBlock(ctx context.Context, number uint64) error {
	block, err := s.source.GetBlock(ctx, number)
	if err != nil {
		return fmt.Errorf("fetch canonical block: %w", err)
	}

	if block.Number != number {
		return fmt.Errorf("canonical source returned block %d", block.Number)
	}

	if err := s.validateWrite(ctx, block); err != nil {
		return err
	}

	s.evHandler("state: copyCanonicalBlock: blk[%d]: hash[%s]", block.Number, block.Hash)

	return nil
}

package state

import (
	"context"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/peer"
)

// QueryLatest returns the latest block in the local chain. The boolean is
// false while the chain is empty.
func (s *State) QueryLatest() (database.Block, bool) {
	return s.db.LatestBlock()
}

// QueryBlockByNumber returns the local block at the specified number.
func (s *State) QueryBlockByNumber(ctx context.Context, number uint64) (database.Block, error) {
	return s.db.GetBlock(ctx, number)
}

// QueryBlockByHash returns the local block with the specified hash.
func (s *State) QueryBlockByHash(ctx context.Context, hash database.Hash) (database.Block, error) {
	return s.db.GetBlockByHash(ctx, hash)
}

// QueryCount returns the number of blocks in the local chain.
func (s *State) QueryCount(ctx context.Context) (uint64, error) {
	return s.db.Count(ctx)
}

// QueryStatus returns the status other nodes see for this node.
func (s *State) QueryStatus(ctx context.Context) (peer.PeerStatus, error) {
	count, err := s.db.Count(ctx)
	if err != nil {
		return peer.PeerStatus{}, err
	}

	status := peer.PeerStatus{
		NodeID:     string(s.nodeID),
		BlockCount: count,
		SyncState:  s.SyncState().String(),
	}

	if latest, ok := s.db.LatestBlock(); ok {
		status.LatestBlockHash = latest.Hash.String()
		status.LatestBlockNumber = latest.Number
	}

	return status, nil
}

package worker

import (
	"context"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

// State is the behavior the worker drives on the node's state.
type State interface {
	IsCanonical() bool
	MineNewBlock(ctx context.Context, payload []byte) (database.Block, error)
	Bootstrap(ctx context.Context) error
	ProcessBroadcastBlock(ctx context.Context, data []byte) error
}

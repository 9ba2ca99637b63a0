package memory_test

import (
	"context"
	"testing"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func block(number uint64, payload string, prev database.Hash) database.Block {
	b := database.Block{
		Number:    number,
		TimeStamp: 1_700_000_000 + number,
		Payload:   []byte(payload),
		PrevHash:  prev,
	}
	b.Hash = b.Digest()
	return b
}

func TestMemory_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	genesis := block(0, "genesis", database.ZeroHash)
	next := block(1, "next", genesis.Hash)

	require.NoError(t, store.Save(ctx, "node0", genesis))
	require.NoError(t, store.Save(ctx, "node0", next))

	count, err := store.Count(ctx, "node0")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	got, err := store.GetByNumber(ctx, "node0", 1)
	require.NoError(t, err)
	assert.Equal(t, next, got)

	got, err = store.GetByHash(ctx, "node0", genesis.Hash)
	require.NoError(t, err)
	assert.Equal(t, genesis, got)
}

func TestMemory_NamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	genesis := block(0, "genesis", database.ZeroHash)
	require.NoError(t, store.Save(ctx, "node0", genesis))

	count, err := store.Count(ctx, "node1")
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = store.GetByNumber(ctx, "node1", 0)
	assert.ErrorIs(t, err, database.ErrNotFound)

	_, err = store.GetByHash(ctx, "node1", genesis.Hash)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	genesis := block(0, "genesis", database.ZeroHash)
	require.NoError(t, store.Save(ctx, "node0", genesis))

	got, err := store.GetByNumber(ctx, "node0", 0)
	require.NoError(t, err)
	got.Payload[0] = 'X'

	again, err := store.GetByNumber(ctx, "node0", 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("genesis"), again.Payload)
}

func TestMemory_Delete(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	genesis := block(0, "genesis", database.ZeroHash)
	require.NoError(t, store.Save(ctx, "node0", genesis))

	require.NoError(t, store.Delete(ctx, "node0", genesis.Hash))
	assert.ErrorIs(t, store.Delete(ctx, "node0", genesis.Hash), database.ErrNotFound)

	count, err := store.Count(ctx, "node0")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemory_LatestIgnoresGaps(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	_, err := store.Latest(ctx, "node0")
	assert.ErrorIs(t, err, database.ErrNotFound)

	b0 := block(0, "genesis", database.ZeroHash)
	b1 := block(1, "one", b0.Hash)
	b2 := block(2, "two", b1.Hash)
	for _, b := range []database.Block{b0, b1, b2} {
		require.NoError(t, store.Save(ctx, "node0", b))
	}

	require.NoError(t, store.Delete(ctx, "node0", b1.Hash))

	got, err := store.Latest(ctx, "node0")
	require.NoError(t, err)
	assert.Equal(t, b2, got)
}

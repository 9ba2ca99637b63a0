package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/powchain/foundation/blockchain/state"
	"github.com/ardanlabs/powchain/foundation/blockchain/storage/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newChain mines a short chain into disk storage and reopens it the way the
// commands do.
func newChain(t *testing.T, blocks int) *database.Database {
	t.Helper()
	ctx := context.Background()

	dir := t.TempDir()

	store, err := disk.New(dir)
	require.NoError(t, err)

	g := genesis.Default()
	g.MaxDifficulty = 4

	st, err := state.New(ctx, state.Config{
		NodeID:     "node0",
		SyncNodeID: "node0",
		Storage:    store,
		Genesis:    g,
	})
	require.NoError(t, err)

	for i := 0; i < blocks; i++ {
		_, err := st.MineNewBlock(ctx, []byte("payload"))
		require.NoError(t, err)
	}
	require.NoError(t, st.Shutdown())

	storageKind = "disk"
	dbPath = dir
	nodeID = "node0"

	db, err := openDatabase(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func TestList(t *testing.T) {
	db := newChain(t, 3)

	var buf bytes.Buffer
	require.NoError(t, listRun(context.Background(), &buf, db, 1))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(lines[0]), "1 "))
	assert.Contains(t, lines[2], `payload "payload"`)
}

func TestValidateAndDelete(t *testing.T) {
	ctx := context.Background()
	db := newChain(t, 3)

	var buf bytes.Buffer
	require.NoError(t, validateRun(ctx, &buf, db))
	assert.Contains(t, buf.String(), "valid: 4 blocks")

	block, err := db.GetBlock(ctx, 2)
	require.NoError(t, err)

	buf.Reset()
	require.NoError(t, deleteRun(ctx, &buf, db, block.Hash))
	assert.Contains(t, buf.String(), block.Hash.String())

	_, err = db.GetBlock(ctx, 2)
	assert.ErrorIs(t, err, database.ErrNotFound)

	err = deleteRun(ctx, &buf, db, block.Hash)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestOpenStorageUnknown(t *testing.T) {
	storageKind = "tape"
	defer func() { storageKind = "disk" }()

	_, err := openStorage()
	assert.Error(t, err)
}

func TestWithMultiStatement(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{
			name: "no query",
			dsn:  "clickhouse://localhost:9000/powchain",
			want: "clickhouse://localhost:9000/powchain?x-multi-statement=true",
		},
		{
			name: "existing query",
			dsn:  "clickhouse://localhost:9000/powchain?username=default",
			want: "clickhouse://localhost:9000/powchain?username=default&x-multi-statement=true",
		},
		{
			name: "already set",
			dsn:  "clickhouse://localhost:9000/powchain?x-multi-statement=false",
			want: "clickhouse://localhost:9000/powchain?x-multi-statement=false",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, withMultiStatement(tt.dsn))
		})
	}
}

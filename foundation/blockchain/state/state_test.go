package state_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/powchain/foundation/blockchain/state"
	"github.com/ardanlabs/powchain/foundation/blockchain/storage/memory"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const syncNodeID = database.NodeID("node0")

// recorder captures every published message.
type recorder struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (r *recorder) Publish(ctx context.Context, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.msgs = append(r.msgs, bytes.Clone(data))
	return nil
}

func (r *recorder) last() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.msgs[len(r.msgs)-1]
}

func testGenesis() genesis.Genesis {
	g := genesis.Default()
	g.MaxDifficulty = 4
	return g
}

func newState(t *testing.T, store database.Storage, nodeID database.NodeID, pub *recorder) *state.State {
	t.Helper()

	cfg := state.Config{
		NodeID:     nodeID,
		SyncNodeID: syncNodeID,
		Storage:    store,
		Genesis:    testGenesis(),
	}
	if pub != nil {
		cfg.Publisher = pub
	}

	st, err := state.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct state for %s: %v", failed, nodeID, err)
	}

	return st
}

func mineBlocks(t *testing.T, st *state.State, n int) {
	t.Helper()

	for i := 0; i < n; i++ {
		if _, err := st.MineNewBlock(context.Background(), []byte("payload")); err != nil {
			t.Fatalf("\t%s\tShould be able to mine a block: %v", failed, err)
		}
	}
}

func count(t *testing.T, st *state.State) uint64 {
	t.Helper()

	n, err := st.QueryCount(context.Background())
	if err != nil {
		t.Fatalf("\t%s\tShould be able to count blocks: %v", failed, err)
	}
	return n
}

// =============================================================================

func Test_Canonical(t *testing.T) {
	t.Log("Given the need to run the canonical node.")
	{
		store := memory.New()
		pub := &recorder{}
		canonical := newState(t, store, syncNodeID, pub)

		t.Logf("\tTest 0:\tWhen the node starts on an empty store.")
		{
			if !canonical.IsSynced() || canonical.SyncState() != state.Synced {
				t.Fatalf("\t%s\tTest 0:\tShould start synced.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould start synced.", success)

			latest, ok := canonical.QueryLatest()
			if !ok || latest.Number != 0 || database.ValidateGenesis(latest) != nil {
				t.Fatalf("\t%s\tTest 0:\tShould hold a valid genesis block.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould hold a valid genesis block.", success)
		}

		t.Logf("\tTest 1:\tWhen blocks are mined.")
		{
			mineBlocks(t, canonical, 3)

			if n := count(t, canonical); n != 4 {
				t.Fatalf("\t%s\tTest 1:\tShould hold 4 blocks, got %d.", failed, n)
			}
			t.Logf("\t%s\tTest 1:\tShould hold 4 blocks.", success)

			if len(pub.msgs) != 3 {
				t.Fatalf("\t%s\tTest 1:\tShould publish every mined block, got %d.", failed, len(pub.msgs))
			}
			t.Logf("\t%s\tTest 1:\tShould publish every mined block.", success)

			block, err := database.Unmarshal(pub.last())
			latest, _ := canonical.QueryLatest()
			if err != nil || block.Hash != latest.Hash {
				t.Fatalf("\t%s\tTest 1:\tShould publish the latest block.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould publish the latest block.", success)
		}

		t.Logf("\tTest 2:\tWhen the node restarts.")
		{
			restarted := newState(t, store, syncNodeID, nil)

			if n := count(t, restarted); n != 4 {
				t.Fatalf("\t%s\tTest 2:\tShould keep the existing chain, got %d blocks.", failed, n)
			}
			t.Logf("\t%s\tTest 2:\tShould keep the existing chain.", success)
		}
	}
}

func Test_Bootstrap(t *testing.T) {
	ctx := context.Background()

	t.Log("Given the need to replicate the canonical chain into a fresh node.")
	{
		store := memory.New()
		pub := &recorder{}
		canonical := newState(t, store, syncNodeID, pub)
		mineBlocks(t, canonical, 5)

		replica := newState(t, store, "node1", nil)

		t.Logf("\tTest 0:\tWhen the replica starts.")
		{
			if replica.IsSynced() || replica.SyncState() != state.Bootstrapping {
				t.Fatalf("\t%s\tTest 0:\tShould start bootstrapping.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould start bootstrapping.", success)

			if _, err := replica.MineNewBlock(ctx, []byte("x")); !errors.Is(err, state.ErrNotCanonical) {
				t.Fatalf("\t%s\tTest 0:\tShould refuse to mine, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould refuse to mine.", success)

			mineBlocks(t, canonical, 1)
			before := count(t, replica)
			if err := replica.ProcessBroadcastBlock(ctx, pub.last()); err != nil || count(t, replica) != before {
				t.Fatalf("\t%s\tTest 0:\tShould ignore broadcasts while bootstrapping.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould ignore broadcasts while bootstrapping.", success)
		}

		t.Logf("\tTest 1:\tWhen bootstrap runs.")
		{
			if err := replica.Bootstrap(ctx); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould complete bootstrap: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould complete bootstrap.", success)

			select {
			case <-replica.Synced():
			default:
				t.Fatalf("\t%s\tTest 1:\tShould close the synced channel.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould close the synced channel.", success)

			exp := count(t, canonical)
			if got := count(t, replica); got != exp {
				t.Fatalf("\t%s\tTest 1:\tShould hold %d blocks, got %d.", failed, exp, got)
			}
			t.Logf("\t%s\tTest 1:\tShould hold the same number of blocks.", success)

			for n := uint64(0); n < exp; n++ {
				want, _ := canonical.QueryBlockByNumber(ctx, n)
				got, _ := replica.QueryBlockByNumber(ctx, n)

				wantData, _ := database.Marshal(want)
				gotData, _ := database.Marshal(got)
				if !bytes.Equal(wantData, gotData) {
					t.Fatalf("\t%s\tTest 1:\tShould hold an identical block %d.", failed, n)
				}
			}
			t.Logf("\t%s\tTest 1:\tShould hold identical blocks.", success)
		}

		t.Logf("\tTest 2:\tWhen a valid block is broadcast after sync.")
		{
			mineBlocks(t, canonical, 1)
			before := count(t, replica)

			if err := replica.ProcessBroadcastBlock(ctx, pub.last()); err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould accept the block: %v", failed, err)
			}
			if got := count(t, replica); got != before+1 {
				t.Fatalf("\t%s\tTest 2:\tShould grow by one block, got %d.", failed, got)
			}
			t.Logf("\t%s\tTest 2:\tShould grow by one block.", success)

			if err := replica.ProcessBroadcastBlock(ctx, pub.last()); err != nil || count(t, replica) != before+1 {
				t.Fatalf("\t%s\tTest 2:\tShould ignore the duplicate.", failed)
			}
			t.Logf("\t%s\tTest 2:\tShould ignore the duplicate.", success)
		}

		t.Logf("\tTest 3:\tWhen an invalid block is broadcast after sync.")
		{
			latest, _ := replica.QueryLatest()
			before := count(t, replica)

			bad := database.Block{
				Number:     latest.Number + 1,
				TimeStamp:  latest.TimeStamp + 1,
				Difficulty: 0,
				Payload:    []byte("forged"),
				PrevHash:   latest.Hash,
			}
			bad.Hash = bad.Digest()
			bad.Payload = []byte("tampered")
			data, _ := database.Marshal(bad)

			err := replica.ProcessBroadcastBlock(ctx, data)
			if !database.IsValidationError(err) {
				t.Fatalf("\t%s\tTest 3:\tShould reject the block, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 3:\tShould reject the block.", success)

			if got := count(t, replica); got != before {
				t.Fatalf("\t%s\tTest 3:\tShould leave the chain unchanged, got %d.", failed, got)
			}
			t.Logf("\t%s\tTest 3:\tShould leave the chain unchanged.", success)

			if err := replica.ProcessBroadcastBlock(ctx, []byte("{not json")); err == nil {
				t.Fatalf("\t%s\tTest 3:\tShould reject a malformed message.", failed)
			}
			t.Logf("\t%s\tTest 3:\tShould reject a malformed message.", success)
		}

		t.Logf("\tTest 4:\tWhen a broadcast arrives ahead of the local chain.")
		{
			mineBlocks(t, canonical, 2)
			exp := count(t, canonical)

			if err := replica.ProcessBroadcastBlock(ctx, pub.last()); err != nil {
				t.Fatalf("\t%s\tTest 4:\tShould catch up and accept the block: %v", failed, err)
			}
			if got := count(t, replica); got != exp {
				t.Fatalf("\t%s\tTest 4:\tShould hold %d blocks, got %d.", failed, exp, got)
			}
			t.Logf("\t%s\tTest 4:\tShould catch up with the canonical chain.", success)
		}

		t.Logf("\tTest 5:\tWhen a forged block arrives ahead of the local chain.")
		{
			mineBlocks(t, canonical, 2)
			latest, _ := replica.QueryLatest()
			before := count(t, replica)

			badHash := database.Block{
				Number:     latest.Number + 2,
				TimeStamp:  latest.TimeStamp + 2,
				Difficulty: 0,
				Payload:    []byte("forged"),
				PrevHash:   database.Hash{0xAB},
			}
			badHash.Hash = database.Hash{0x01, 0x02}

			unsolved := badHash
			unsolved.Difficulty = 64
			unsolved.Hash = unsolved.Digest()

			for _, forged := range []database.Block{badHash, unsolved} {
				data, _ := database.Marshal(forged)

				err := replica.ProcessBroadcastBlock(ctx, data)
				if !database.IsValidationError(err) {
					t.Fatalf("\t%s\tTest 5:\tShould reject the block before catching up, got %v.", failed, err)
				}

				if got := count(t, replica); got != before {
					t.Fatalf("\t%s\tTest 5:\tShould not fetch the gap from the canonical chain, got %d blocks, exp %d.", failed, got, before)
				}
			}
			t.Logf("\t%s\tTest 5:\tShould reject the block before catching up.", success)
			t.Logf("\t%s\tTest 5:\tShould not fetch the gap from the canonical chain.", success)
		}
	}
}

func Test_BootstrapFailure(t *testing.T) {
	ctx := context.Background()

	t.Log("Given the need to stop replication on an invalid canonical chain.")
	{
		store := memory.New()
		canonical := newState(t, store, syncNodeID, nil)
		mineBlocks(t, canonical, 4)

		t.Logf("\tTest 0:\tWhen canonical block 2 has been tampered with.")
		{
			block, err := canonical.QueryBlockByNumber(ctx, 2)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to read block 2: %v", failed, err)
			}

			block.Payload = []byte("tampered")
			block.Hash[0] ^= 0xFF
			if err := store.Save(ctx, syncNodeID, block); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to overwrite block 2: %v", failed, err)
			}

			replica := newState(t, store, "node1", nil)

			err = replica.Bootstrap(ctx)

			var be *state.BootstrapError
			if !errors.As(err, &be) {
				t.Fatalf("\t%s\tTest 0:\tShould fail with a bootstrap error, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould fail with a bootstrap error.", success)

			if be.Number != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould name block 2, got %d.", failed, be.Number)
			}
			t.Logf("\t%s\tTest 0:\tShould name block 2.", success)

			if replica.IsSynced() {
				t.Fatalf("\t%s\tTest 0:\tShould not be synced.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould not be synced.", success)

			if got := count(t, replica); got != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould keep the blocks before the failure, got %d.", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould keep the blocks before the failure.", success)
		}
	}
}

func Test_BootstrapDivergence(t *testing.T) {
	ctx := context.Background()

	t.Log("Given the need to detect a replica that diverged from the canonical chain.")
	{
		t.Logf("\tTest 0:\tWhen the replica holds a different genesis block.")
		{
			store := memory.New()
			canonical := newState(t, store, syncNodeID, nil)
			mineBlocks(t, canonical, 1)

			other := database.Block{TimeStamp: 1, Payload: []byte("other genesis")}
			other.Hash = other.Digest()
			if err := store.Save(ctx, "node1", other); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to seed the replica: %v", failed, err)
			}

			replica := newState(t, store, "node1", nil)

			err := replica.Bootstrap(ctx)
			if !errors.Is(err, state.ErrDiverged) || !state.IsBootstrapError(err) {
				t.Fatalf("\t%s\tTest 0:\tShould report divergence, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould report divergence.", success)
		}
	}
}

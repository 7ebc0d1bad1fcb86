package reconcile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/midnight-ntwrk/wallet-core/addresses"
	"github.com/midnight-ntwrk/wallet-core/chaincfg"
	"github.com/midnight-ntwrk/wallet-core/indexerclient"
	"github.com/midnight-ntwrk/wallet-core/utxostore"
	"github.com/midnight-ntwrk/wallet-core/walleterr"
)

func openTestEngine(t *testing.T) (*Engine, *utxostore.Store, addresses.Address) {
	t.Helper()
	store, err := utxostore.Open(filepath.Join(t.TempDir(), "utxo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var payload [32]byte
	payload[0] = 7
	addr := addresses.Address{Network: chaincfg.Undeployed, Payload: payload}

	return New(store, addr), store, addr
}

func TestApplyTransactionUpsertsOwnedOutputs(t *testing.T) {
	e, store, addr := openTestEngine(t)

	var tok [32]byte
	rec := indexerclient.UpdateRecord{
		Kind:        indexerclient.KindTransaction,
		ID:          1,
		BlockHeight: 10,
		CreatedUTXOs: []indexerclient.CreatedUTXO{
			{OutputIndex: 0, Owner: addr.String(), Token: tok, Value: 100},
		},
	}
	require.NoError(t, e.Apply(rec))

	unspent, err := store.Unspent(addr)
	require.NoError(t, err)
	require.Len(t, unspent, 1)
	require.Equal(t, utxostore.Amount(100), unspent[0].Value)

	cursor, err := e.Resume()
	require.NoError(t, err)
	require.Equal(t, uint64(1), cursor)
}

func TestApplyIdempotentOnReplay(t *testing.T) {
	e, store, addr := openTestEngine(t)

	var tok [32]byte
	rec := indexerclient.UpdateRecord{
		Kind:        indexerclient.KindTransaction,
		ID:          1,
		BlockHeight: 10,
		CreatedUTXOs: []indexerclient.CreatedUTXO{
			{OutputIndex: 0, Owner: addr.String(), Token: tok, Value: 100},
		},
	}
	require.NoError(t, e.Apply(rec))
	require.NoError(t, e.Apply(rec))

	unspent, err := store.Unspent(addr)
	require.NoError(t, err)
	require.Len(t, unspent, 1)
}

// TestApplyDetectsReorgOnConflictingSpend covers spec.md §8 S6: a UTXO
// already Confirmed-Spent under one tx_hash, then echoed spent again
// under a different tx_hash, is a reorg. The engine rolls the cursor back
// to the fork point, undoes the now-invalid spend in the store, and once
// the indexer replays the canonical chain's record, the UTXO converges
// to Confirmed-Spent under the correct tx_hash rather than staying stuck
// on the abandoned fork's state.
func TestApplyDetectsReorgOnConflictingSpend(t *testing.T) {
	e, store, addr := openTestEngine(t)

	var tok [32]byte
	ref := utxostore.Ref{OutputIndex: 0}
	require.NoError(t, store.UpsertCreated(utxostore.UTXO{Ref: ref, Owner: addr, Token: utxostore.TokenType(tok), Value: 100, State: utxostore.Available}))

	var firstHash, secondHash [32]byte
	firstHash[0] = 1
	secondHash[0] = 2

	require.NoError(t, store.MarkSpent(ref, utxostore.Spent{Height: 10, TxHash: firstHash}))
	require.NoError(t, e.advanceCursor(5, 10))

	rec := indexerclient.UpdateRecord{
		Kind:          indexerclient.KindTransaction,
		ID:            6,
		TxHash:        secondHash,
		BlockHeight:   11,
		SpentUTXORefs: []indexerclient.SpentRef{{OutputIndex: 0}},
	}
	err := e.Apply(rec)
	require.Error(t, err)
	var reorg *walleterr.ReorgDetected
	require.True(t, asReorg(err, &reorg))

	cursor, err := e.Resume()
	require.NoError(t, err)
	require.Equal(t, uint64(5), cursor) // rolled back to fork point, not advanced to 6

	u, ok, err := store.Get(ref)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, utxostore.Available, u.State) // the abandoned fork's spend was undone
	require.Nil(t, u.SpentAt)

	// Replay forward from the fork point: the indexer re-delivers the
	// canonical chain's record, which no longer conflicts with anything in
	// the store.
	require.NoError(t, e.Apply(rec))

	cursor, err = e.Resume()
	require.NoError(t, err)
	require.Equal(t, uint64(6), cursor)

	u, ok, err = store.Get(ref)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, utxostore.ConfirmedSpent, u.State)
	require.Equal(t, secondHash, [32]byte(u.SpentAt.TxHash)) // converged to the canonical chain's truth
}

func TestApplyIgnoresUnownedOutputs(t *testing.T) {
	e, store, addr := openTestEngine(t)

	var tok [32]byte
	other := addresses.Address{Network: chaincfg.Undeployed}
	rec := indexerclient.UpdateRecord{
		Kind: indexerclient.KindTransaction,
		ID:   1,
		CreatedUTXOs: []indexerclient.CreatedUTXO{
			{OutputIndex: 0, Owner: other.String(), Token: tok, Value: 100},
		},
	}
	require.NoError(t, e.Apply(rec))

	unspent, err := store.Unspent(addr)
	require.NoError(t, err)
	require.Empty(t, unspent)
}

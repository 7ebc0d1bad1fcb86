package submission

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/midnight-ntwrk/wallet-core/addresses"
	"github.com/midnight-ntwrk/wallet-core/chaincfg"
	"github.com/midnight-ntwrk/wallet-core/indexerclient"
	"github.com/midnight-ntwrk/wallet-core/txbuilder"
	"github.com/midnight-ntwrk/wallet-core/utxostore"
	"github.com/midnight-ntwrk/wallet-core/walleterr"
)

// alwaysOK and alwaysFail are minimal requester doubles: the production
// request channel (indexerclient.Client.Request) already retries and backs
// off internally, so the controller only needs to react to its final
// success or failure.
type alwaysOK struct{}

func (alwaysOK) Request(context.Context, string, map[string]any) (json.RawMessage, error) {
	return json.RawMessage(`{"submitTransaction":"ok"}`), nil
}

type alwaysFail struct{}

func (alwaysFail) Request(context.Context, string, map[string]any) (json.RawMessage, error) {
	return nil, walleterr.ErrInvalidResponse
}

func openController(t *testing.T, req requester) (*Controller, *utxostore.Store, addresses.Address) {
	t.Helper()
	store, err := utxostore.Open(filepath.Join(t.TempDir(), "utxo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var payload [32]byte
	payload[0] = 3
	addr := addresses.Address{Network: chaincfg.Undeployed, Payload: payload}

	pending := NewPendingStore(store.DB())
	return NewController(store, pending, req), store, addr
}

func reserveOne(t *testing.T, store *utxostore.Store, addr addresses.Address) []utxostore.Ref {
	t.Helper()
	u := utxostore.UTXO{Ref: utxostore.Ref{OutputIndex: 0}, Owner: addr, Token: utxostore.NativeToken, Value: 100, State: utxostore.Available}
	require.NoError(t, store.UpsertCreated(u))
	refs, _, err := store.Reserve(addr, utxostore.NativeToken, 100)
	require.NoError(t, err)
	return refs
}

func TestSubmitPersistsPendingOnSuccess(t *testing.T) {
	c, store, addr := openController(t, alwaysOK{})
	refs := reserveOne(t, store, addr)

	var txHash [32]byte
	txHash[0] = 9
	tx := &txbuilder.PendingTx{TxHash: txHash, TxBytes: []byte("sealed"), ReservedRefs: refs, TTL: 1000}

	require.NoError(t, c.Submit(context.Background(), tx))

	rec, ok, err := c.pending.Get(txHash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, txbuilder.Submitted, rec.State)

	u, ok, err := store.Get(refs[0])
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, utxostore.Pending, u.State)
}

func TestSubmitReleasesReservationOnFailure(t *testing.T) {
	c, store, addr := openController(t, alwaysFail{})
	refs := reserveOne(t, store, addr)

	var txHash [32]byte
	txHash[0] = 9
	tx := &txbuilder.PendingTx{TxHash: txHash, TxBytes: []byte("sealed"), ReservedRefs: refs, TTL: 1000}

	require.Error(t, c.Submit(context.Background(), tx))

	_, ok, err := c.pending.Get(txHash)
	require.NoError(t, err)
	require.False(t, ok)

	u, ok, err := store.Get(refs[0])
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, utxostore.Available, u.State)
}

func TestApplyEchoFinalizesOnFinalizedRecord(t *testing.T) {
	c, store, addr := openController(t, alwaysOK{})
	refs := reserveOne(t, store, addr)

	var txHash [32]byte
	txHash[0] = 9
	tx := &txbuilder.PendingTx{TxHash: txHash, TxBytes: []byte("sealed"), ReservedRefs: refs, TTL: 1000}
	require.NoError(t, c.Submit(context.Background(), tx))

	require.NoError(t, c.ApplyEcho(indexerclient.UpdateRecord{
		Kind:        indexerclient.KindTransaction,
		TxHash:      txHash,
		BlockHeight: 42,
		Finalized:   true,
	}))

	_, ok, err := c.pending.Get(txHash)
	require.NoError(t, err)
	require.False(t, ok)

	u, ok, err := store.Get(refs[0])
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, utxostore.ConfirmedSpent, u.State)
}

func TestTickAbandonsExpiredSubmitted(t *testing.T) {
	c, store, addr := openController(t, alwaysOK{})
	refs := reserveOne(t, store, addr)

	var txHash [32]byte
	txHash[0] = 9
	tx := &txbuilder.PendingTx{TxHash: txHash, TxBytes: []byte("sealed"), ReservedRefs: refs, TTL: 100}
	require.NoError(t, c.Submit(context.Background(), tx))

	require.NoError(t, c.Tick(200, 0))

	_, ok, err := c.pending.Get(txHash)
	require.NoError(t, err)
	require.False(t, ok)

	u, ok, err := store.Get(refs[0])
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, utxostore.Available, u.State)
}

func TestTickFinalizesAtConfirmationDepth(t *testing.T) {
	c, store, addr := openController(t, alwaysOK{})
	c.WithConfirmationDepth(2)
	refs := reserveOne(t, store, addr)

	var txHash [32]byte
	txHash[0] = 9
	tx := &txbuilder.PendingTx{TxHash: txHash, TxBytes: []byte("sealed"), ReservedRefs: refs, TTL: 1000}
	require.NoError(t, c.Submit(context.Background(), tx))
	require.NoError(t, c.ApplyEcho(indexerclient.UpdateRecord{Kind: indexerclient.KindTransaction, TxHash: txHash, BlockHeight: 10}))

	require.NoError(t, c.Tick(0, 11)) // depth 1, not yet
	_, ok, err := c.pending.Get(txHash)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.Tick(0, 12)) // depth 2, finalize
	_, ok, err = c.pending.Get(txHash)
	require.NoError(t, err)
	require.False(t, ok)
}

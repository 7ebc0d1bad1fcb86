package coinselect

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/midnight-ntwrk/wallet-core/addresses"
	"github.com/midnight-ntwrk/wallet-core/chaincfg"
	"github.com/midnight-ntwrk/wallet-core/utxostore"
	"github.com/midnight-ntwrk/wallet-core/walleterr"
)

func openStore(t *testing.T) (*utxostore.Store, addresses.Address) {
	t.Helper()
	s, err := utxostore.Open(filepath.Join(t.TempDir(), "utxo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	var payload [32]byte
	payload[0] = 1
	return s, addresses.Address{Network: chaincfg.Undeployed, Payload: payload}
}

func TestSelectSmallestFirstWithChange(t *testing.T) {
	store, addr := openStore(t)

	for i, v := range []utxostore.Amount{10, 30, 5} {
		u := utxostore.UTXO{
			Ref:   utxostore.Ref{OutputIndex: uint32(i)},
			Owner: addr,
			Token: utxostore.NativeToken,
			Value: v,
			State: utxostore.Available,
		}
		require.NoError(t, store.UpsertCreated(u))
	}

	sel, err := Select(store, addr, utxostore.NativeToken, 12)
	require.NoError(t, err)
	// Smallest-first: 5 then 10 covers 12, sum 15, change 3.
	require.Len(t, sel.Refs, 2)
	require.Equal(t, utxostore.Amount(3), sel.Change)
}

func TestSelectZeroAmountIsBadParameter(t *testing.T) {
	store, addr := openStore(t)
	_, err := Select(store, addr, utxostore.NativeToken, 0)
	require.ErrorIs(t, err, walleterr.ErrBadParameter)
}

func TestSelectInsufficientFunds(t *testing.T) {
	store, addr := openStore(t)
	u := utxostore.UTXO{Ref: utxostore.Ref{OutputIndex: 0}, Owner: addr, Token: utxostore.NativeToken, Value: 5, State: utxostore.Available}
	require.NoError(t, store.UpsertCreated(u))

	_, err := Select(store, addr, utxostore.NativeToken, 100)
	require.ErrorIs(t, err, walleterr.ErrInsufficientFunds)
}

// Property: whenever Select succeeds, the reserved refs' total value minus
// the reported change equals exactly the requested amount (spec.md §8
// property 6, "selection sums correctly").
func TestPropertySelectionSumsCorrectly(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		store, err := utxostore.Open(filepath.Join(t.TempDir(), "utxo.db"))
		if err != nil {
			rt.Fatalf("Open: %v", err)
		}
		defer store.Close()

		var payload [32]byte
		payload[0] = 1
		addr := addresses.Address{Network: chaincfg.Undeployed, Payload: payload}

		values := rapid.SliceOfN(rapid.IntRange(1, 1000), 1, 8).Draw(rt, "values")
		var total int
		for i, v := range values {
			total += v
			u := utxostore.UTXO{
				Ref:   utxostore.Ref{OutputIndex: uint32(i)},
				Owner: addr,
				Token: utxostore.NativeToken,
				Value: utxostore.Amount(v),
				State: utxostore.Available,
			}
			if err := store.UpsertCreated(u); err != nil {
				rt.Fatalf("UpsertCreated: %v", err)
			}
		}

		required := rapid.IntRange(1, total).Draw(rt, "required")
		sel, err := Select(store, addr, utxostore.NativeToken, utxostore.Amount(required))
		if err != nil {
			rt.Fatalf("Select: %v", err)
		}

		var reserved utxostore.Amount
		for _, ref := range sel.Refs {
			u, ok, err := store.Get(ref)
			if err != nil || !ok {
				rt.Fatalf("Get(%v): ok=%v err=%v", ref, ok, err)
			}
			reserved += u.Value
		}
		if reserved-sel.Change != utxostore.Amount(required) {
			rt.Fatalf("reserved %d - change %d != required %d", reserved, sel.Change, required)
		}
	})
}

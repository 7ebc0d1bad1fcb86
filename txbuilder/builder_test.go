package txbuilder

import (
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/midnight-ntwrk/wallet-core/addresses"
	"github.com/midnight-ntwrk/wallet-core/chaincfg"
	"github.com/midnight-ntwrk/wallet-core/hdkeychain"
	"github.com/midnight-ntwrk/wallet-core/ledger"
	"github.com/midnight-ntwrk/wallet-core/utxostore"
	"github.com/midnight-ntwrk/wallet-core/walleterr"
)

func identity(t *testing.T) hdkeychain.DerivedIdentity {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	var id hdkeychain.DerivedIdentity
	copy(id.PrivateKey[:], priv.Serialize())
	copy(id.PublicKeyCompressed[:], priv.PubKey().SerializeCompressed())
	copy(id.XOnlyPublicKey[:], priv.PubKey().SerializeCompressed()[1:])
	return id
}

func setup(t *testing.T) (*utxostore.Store, hdkeychain.DerivedIdentity, hdkeychain.DerivedIdentity) {
	t.Helper()
	store, err := utxostore.Open(filepath.Join(t.TempDir(), "utxo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, identity(t), identity(t)
}

func TestBuildSendWithChange(t *testing.T) {
	store, sender, change := setup(t)

	senderAddr := addresses.FromXOnlyPublicKey(chaincfg.Undeployed, sender.XOnlyPublicKey)
	u := utxostore.UTXO{Ref: utxostore.Ref{OutputIndex: 0}, Owner: senderAddr, Token: utxostore.NativeToken, Value: 1000, State: utxostore.Available}
	require.NoError(t, store.UpsertCreated(u))

	recipient := identity(t)
	recipientAddr := addresses.FromXOnlyPublicKey(chaincfg.Undeployed, recipient.XOnlyPublicKey)

	req := Request{
		Network:   chaincfg.Undeployed,
		Sender:    sender,
		Change:    change,
		Recipient: recipientAddr.String(),
		Token:     utxostore.NativeToken,
		Amount:    500,
	}

	pending, err := Build(store, ledger.New(), 1_700_000_000, req)
	require.NoError(t, err)
	require.NoError(t, ledger.AssertSealed(pending.TxBytes))
	require.NotEmpty(t, pending.ReservedRefs)
	require.Len(t, pending.ProjectedOutputs, 1)
	require.Equal(t, utxostore.Amount(250), pending.ProjectedOutputs[0].Value)

	unspent, err := store.Unspent(senderAddr)
	require.NoError(t, err)
	require.Empty(t, unspent) // fully reserved, no longer Available
}

func TestBuildRejectsBadRecipientBeforeReserving(t *testing.T) {
	store, sender, change := setup(t)

	senderAddr := addresses.FromXOnlyPublicKey(chaincfg.Undeployed, sender.XOnlyPublicKey)
	u := utxostore.UTXO{Ref: utxostore.Ref{OutputIndex: 0}, Owner: senderAddr, Token: utxostore.NativeToken, Value: 1000, State: utxostore.Available}
	require.NoError(t, store.UpsertCreated(u))

	req := Request{
		Network:   chaincfg.Undeployed,
		Sender:    sender,
		Change:    change,
		Recipient: "not-a-valid-address",
		Token:     utxostore.NativeToken,
		Amount:    500,
	}

	_, err := Build(store, ledger.New(), 1_700_000_000, req)
	require.Error(t, err)

	unspent, err := store.Unspent(senderAddr)
	require.NoError(t, err)
	require.Len(t, unspent, 1) // reservation never happened: recipient fails before selection
}

func TestBuildZeroAmountIsBadParameter(t *testing.T) {
	store, sender, change := setup(t)
	req := Request{Network: chaincfg.Undeployed, Sender: sender, Change: change, Recipient: "x", Amount: 0}
	_, err := Build(store, ledger.New(), 0, req)
	require.ErrorIs(t, err, walleterr.ErrBadParameter)
}

// zeroFee is a FeeEstimator with no cost, used by the exact-arithmetic
// scenarios below so a send's required amount is exactly its stated
// amount, matching spec.md §8's numbers without a fee term folded in.
type zeroFee struct{}

func (zeroFee) EstimateFee(int, int) utxostore.Amount { return 0 }

// TestBuildSelectsSmallestFirstWithNoChange covers spec.md §8 S2: UTXOs
// {100, 50, 200, 75}, a send of 125 reserves exactly {50, 75}, with zero
// change and a sealed tag carrying the ledger's signature scheme marker.
func TestBuildSelectsSmallestFirstWithNoChange(t *testing.T) {
	store, sender, change := setup(t)
	senderAddr := addresses.FromXOnlyPublicKey(chaincfg.Undeployed, sender.XOnlyPublicKey)

	for i, v := range []utxostore.Amount{100, 50, 200, 75} {
		u := utxostore.UTXO{Ref: utxostore.Ref{OutputIndex: uint32(i)}, Owner: senderAddr, Token: utxostore.NativeToken, Value: v, State: utxostore.Available}
		require.NoError(t, store.UpsertCreated(u))
	}

	recipient := identity(t)
	recipientAddr := addresses.FromXOnlyPublicKey(chaincfg.Undeployed, recipient.XOnlyPublicKey)

	req := Request{
		Network:      chaincfg.Undeployed,
		Sender:       sender,
		Change:       change,
		Recipient:    recipientAddr.String(),
		Token:        utxostore.NativeToken,
		Amount:       125,
		FeeEstimator: zeroFee{},
	}

	pending, err := Build(store, ledger.New(), 1_700_000_000, req)
	require.NoError(t, err)
	require.NoError(t, ledger.AssertSealed(pending.TxBytes))
	require.Contains(t, string(pending.TxBytes), "pedersen-schnorr[v1]")
	require.Empty(t, pending.ProjectedOutputs) // zero change: no projected output

	require.Len(t, pending.ReservedRefs, 2)
	var total utxostore.Amount
	for _, ref := range pending.ReservedRefs {
		u, ok, err := store.Get(ref)
		require.NoError(t, err)
		require.True(t, ok)
		total += u.Value
	}
	require.Equal(t, utxostore.Amount(125), total)

	// The 100 and 200 UTXOs stay untouched; only the two smallest were spent.
	unspent, err := store.Unspent(senderAddr)
	require.NoError(t, err)
	require.Len(t, unspent, 2)
}

// TestBuildSpendsBothWithChange covers spec.md §8 S3: UTXOs {100, 100}, a
// send of 150 spends both inputs and returns a change output of 50 to an
// internal-role address.
func TestBuildSpendsBothWithChange(t *testing.T) {
	store, sender, change := setup(t)
	senderAddr := addresses.FromXOnlyPublicKey(chaincfg.Undeployed, sender.XOnlyPublicKey)

	for i := 0; i < 2; i++ {
		u := utxostore.UTXO{Ref: utxostore.Ref{OutputIndex: uint32(i)}, Owner: senderAddr, Token: utxostore.NativeToken, Value: 100, State: utxostore.Available}
		require.NoError(t, store.UpsertCreated(u))
	}

	recipient := identity(t)
	recipientAddr := addresses.FromXOnlyPublicKey(chaincfg.Undeployed, recipient.XOnlyPublicKey)
	changeAddr := addresses.FromXOnlyPublicKey(chaincfg.Undeployed, change.XOnlyPublicKey)

	req := Request{
		Network:      chaincfg.Undeployed,
		Sender:       sender,
		Change:       change,
		Recipient:    recipientAddr.String(),
		Token:        utxostore.NativeToken,
		Amount:       150,
		FeeEstimator: zeroFee{},
	}

	pending, err := Build(store, ledger.New(), 1_700_000_000, req)
	require.NoError(t, err)
	require.Len(t, pending.ReservedRefs, 2) // both 100s spent
	require.Len(t, pending.ProjectedOutputs, 1)
	require.Equal(t, utxostore.Amount(50), pending.ProjectedOutputs[0].Value)
	require.Equal(t, changeAddr, pending.ProjectedOutputs[0].Owner)
}

// TestBuildInsufficientFundsMutatesNothing covers spec.md §8 S4: a single
// 100 UTXO cannot cover a send of 150, and the store is left untouched.
func TestBuildInsufficientFundsMutatesNothing(t *testing.T) {
	store, sender, change := setup(t)
	senderAddr := addresses.FromXOnlyPublicKey(chaincfg.Undeployed, sender.XOnlyPublicKey)
	u := utxostore.UTXO{Ref: utxostore.Ref{OutputIndex: 0}, Owner: senderAddr, Token: utxostore.NativeToken, Value: 100, State: utxostore.Available}
	require.NoError(t, store.UpsertCreated(u))

	recipient := identity(t)
	recipientAddr := addresses.FromXOnlyPublicKey(chaincfg.Undeployed, recipient.XOnlyPublicKey)

	req := Request{
		Network:      chaincfg.Undeployed,
		Sender:       sender,
		Change:       change,
		Recipient:    recipientAddr.String(),
		Token:        utxostore.NativeToken,
		Amount:       150,
		FeeEstimator: zeroFee{},
	}

	_, err := Build(store, ledger.New(), 1_700_000_000, req)
	require.ErrorIs(t, err, walleterr.ErrInsufficientFunds)

	unspent, err := store.Unspent(senderAddr)
	require.NoError(t, err)
	require.Len(t, unspent, 1)
	require.Equal(t, utxostore.Available, unspent[0].State)
}

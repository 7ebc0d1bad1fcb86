// Package txbuilder implements the wallet core's transaction builder
// (spec.md C11): it assembles a signed, sealed transaction from a send
// request, reserving inputs through the coin selector and delegating
// cryptography to the ledger boundary.
package txbuilder

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/midnight-ntwrk/wallet-core/addresses"
	"github.com/midnight-ntwrk/wallet-core/chaincfg"
	"github.com/midnight-ntwrk/wallet-core/coinselect"
	"github.com/midnight-ntwrk/wallet-core/hdkeychain"
	"github.com/midnight-ntwrk/wallet-core/ledger"
	"github.com/midnight-ntwrk/wallet-core/utxostore"
	"github.com/midnight-ntwrk/wallet-core/walleterr"
)

// DefaultTTLWindow is added to the caller's current time to produce a
// transaction's expiry when no override is given (spec.md §4.11 step 4).
const DefaultTTLWindow int64 = 3600

// Request is the input to Build: everything needed to assemble one send
// (spec.md §4.11 "Inputs: sender identity, recipient address, token,
// amount, optional ttl override").
type Request struct {
	Network chaincfg.Network

	// Sender is the NightExternal identity whose UTXOs fund this send and
	// whose key signs it.
	Sender hdkeychain.DerivedIdentity
	// Change is the NightInternal identity any leftover value is returned
	// to (spec.md §4.10 "internal-role address of the sender").
	Change hdkeychain.DerivedIdentity

	Recipient string
	Token     utxostore.TokenType
	Amount    utxostore.Amount

	TTLOverride *int64

	// FeeEstimator is consulted twice: once to size the reservation before
	// the actual input count is known, and again once it is. Defaults to
	// DefaultFeeRate if nil.
	FeeEstimator FeeEstimator
}

// Build runs the full assembly described in spec.md §4.11. now is the
// caller's current Unix time (passed in rather than read from the clock,
// so the builder stays a pure function of its inputs). On any failure
// after inputs are reserved, Build releases the reservation before
// returning.
func Build(store *utxostore.Store, l ledger.Ledger, now int64, req Request) (*PendingTx, error) {
	if req.Amount == 0 {
		return nil, walleterr.ErrBadParameter
	}

	estimator := req.FeeEstimator
	if estimator == nil {
		estimator = DefaultFeeRate
	}

	senderAddr := addresses.FromXOnlyPublicKey(req.Network, req.Sender.XOnlyPublicKey)
	recipientAddr, err := addresses.ValidateRecipient(req.Recipient, req.Network)
	if err != nil {
		return nil, err
	}

	// Size the reservation assuming the common one-input, two-output
	// shape (recipient + change); refined below once the true input count
	// is known (spec.md §4.11 step 2, "deterministic given intent shape").
	initialFee := estimator.EstimateFee(1, 2)

	sel, err := coinselect.Select(store, senderAddr, req.Token, req.Amount+initialFee)
	if err != nil {
		return nil, err
	}

	pending, err := assemble(l, req, now, senderAddr, recipientAddr, sel, estimator, initialFee)
	if err != nil {
		_ = store.Release(sel.Refs)
		return nil, err
	}
	return pending, nil
}

func assemble(
	l ledger.Ledger,
	req Request,
	now int64,
	senderAddr, recipientAddr addresses.Address,
	sel coinselect.Selection,
	estimator FeeEstimator,
	initialFee utxostore.Amount,
) (*PendingTx, error) {
	outputCount := 1
	if sel.Change > 0 {
		outputCount = 2
	}
	actualFee := estimator.EstimateFee(len(sel.Refs), outputCount)

	// True change accounts for the gap between the fee assumed when
	// sizing the reservation and the fee computed from the actual input
	// count (spec.md §4.11 step 2).
	trueChange := int64(sel.Change) + int64(initialFee) - int64(actualFee)
	if trueChange < 0 {
		return nil, walleterr.ErrInsufficientFunds
	}
	change := utxostore.Amount(trueChange)
	if change > 0 && outputCount == 1 {
		outputCount = 2
	}

	ttl := now + DefaultTTLWindow
	if req.TTLOverride != nil {
		ttl = *req.TTLOverride
	}

	outputs := []ledger.Output{{Recipient: recipientAddr.Payload, Token: req.Token, Value: req.Amount}}
	var projected []ProjectedOutput
	if change > 0 {
		changeAddr := addresses.FromXOnlyPublicKey(req.Network, req.Change.XOnlyPublicKey)
		outputs = append(outputs, ledger.Output{Recipient: changeAddr.Payload, Token: req.Token, Value: change})
		projected = append(projected, ProjectedOutput{OutputIndex: 1, Owner: changeAddr, Token: req.Token, Value: change})
	}

	intent := ledger.Intent{
		Inputs:     sel.Refs,
		Outputs:    outputs,
		TTL:        ttl,
		NetworkTag: req.Network.String(),
	}

	digest := l.IntentSigningBytes(intent)

	// Every reserved input in this engine is owned by the same external
	// identity, so there is exactly one distinct signing key; the ledger's
	// seal step nonetheless requires one signature slot per input
	// (spec.md §4.11 step 5).
	privateKey := req.Sender.PrivateKey
	sig, err := l.Sign(privateKey, digest)
	zeroize(&privateKey)
	if err != nil {
		return nil, err
	}
	signatures := make([][64]byte, len(intent.Inputs))
	for i := range signatures {
		signatures[i] = sig
	}

	bindingCommitment := l.BindingCommitment(digest, signatures)
	txBytes, err := l.SealTransaction(intent, signatures, bindingCommitment)
	if err != nil {
		return nil, err
	}
	if err := ledger.AssertSealed(txBytes); err != nil {
		return nil, err
	}

	txHash := [32]byte(chainhash.HashH(txBytes))

	return &PendingTx{
		TxHash:           txHash,
		TxBytes:          txBytes,
		ReservedRefs:     sel.Refs,
		ProjectedOutputs: projected,
		TTL:              ttl,
		State:            Submitted,
	}, nil
}

func zeroize(key *[32]byte) {
	for i := range key {
		key[i] = 0
	}
}

// Package utxostore implements the wallet core's persistent UTXO table
// (spec.md C7): a goleveldb-backed key-value store keyed by
// (intent_hash, output_index) with an Available/Reserved/Pending/
// Confirmed-Spent state machine and atomic reservation.
package utxostore

import (
	"bytes"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/midnight-ntwrk/wallet-core/addresses"
)

// TokenType is a 32-byte token identifier. The all-zero value denotes the
// native token (spec.md §3).
type TokenType [32]byte

// NativeToken is the all-zero TokenType denoting the chain's native asset.
var NativeToken TokenType

// Amount is a token quantity. The spec's value domain is u128; in
// practice total supply fits uint64 and the store documents that bound
// rather than carrying a bignum type through every arithmetic site (see
// DESIGN.md, "Amount width").
type Amount uint64

// Ref is the primary key of a UTXO: its creating intent hash and output
// index within that intent.
type Ref struct {
	IntentHash  chainhash.Hash
	OutputIndex uint32
}

// Less reports whether r sorts before other under the lexicographic
// (intent_hash, output_index) tie-break the coin selector uses for
// deterministic smallest-first selection (spec.md §4.10).
func (r Ref) Less(other Ref) bool {
	if c := bytes.Compare(r.IntentHash[:], other.IntentHash[:]); c != 0 {
		return c < 0
	}
	return r.OutputIndex < other.OutputIndex
}

// State is a UTXO's position in its lifecycle state machine.
type State uint8

const (
	// Available UTXOs are unreserved and spendable.
	Available State = iota
	// Reserved UTXOs have been claimed by an in-progress send.
	Reserved
	// Pending UTXOs are referenced by a submitted, not-yet-finalized
	// transaction.
	Pending
	// ConfirmedSpent UTXOs have been consumed by a finalized transaction.
	ConfirmedSpent
)

func (s State) String() string {
	switch s {
	case Available:
		return "available"
	case Reserved:
		return "reserved"
	case Pending:
		return "pending"
	case ConfirmedSpent:
		return "confirmed-spent"
	default:
		return "unknown"
	}
}

// Created identifies the block and transaction that produced a UTXO.
type Created struct {
	Height uint64
	TxHash chainhash.Hash
}

// Spent identifies the block and transaction that consumed a UTXO, set
// once the UTXO transitions to ConfirmedSpent.
type Spent struct {
	Height uint64
	TxHash chainhash.Hash
}

// UTXO is a single unshielded output as tracked by the store (spec.md §3).
type UTXO struct {
	Ref       Ref
	Owner     addresses.Address
	Token     TokenType
	Value     Amount
	State     State
	CreatedAt Created
	SpentAt   *Spent
}

package txbuilder

import (
	"github.com/midnight-ntwrk/wallet-core/addresses"
	"github.com/midnight-ntwrk/wallet-core/utxostore"
)

// PendingState is a state in the lifecycle of a built, submitted
// transaction (spec.md §4.11 state machine).
type PendingState uint8

const (
	Submitted PendingState = iota
	InBlock
	Finalized
	Failed
	Abandoned
)

// String returns the lower-case state name.
func (s PendingState) String() string {
	switch s {
	case Submitted:
		return "submitted"
	case InBlock:
		return "in-block"
	case Finalized:
		return "finalized"
	case Failed:
		return "failed"
	case Abandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// ProjectedOutput is an output owned by the sender (i.e. a change output)
// that this wallet expects to hold once the transaction finalizes,
// awaiting confirmation from the subscription before it is inserted into
// the store as a real UTXO (spec.md §4.11 step 9, §4.12 "insert projected
// outputs if not already present"). Outputs addressed to a different
// recipient are not projected: their eventual observation, if any, goes
// through the ordinary reconciliation path.
type ProjectedOutput struct {
	OutputIndex uint32
	Owner       addresses.Address
	Token       utxostore.TokenType
	Value       utxostore.Amount
}

// PendingTx is the record the builder hands to the submission controller:
// everything needed to track a built transaction through its lifecycle
// without re-deriving it.
type PendingTx struct {
	TxHash           [32]byte
	TxBytes          []byte
	ReservedRefs     []utxostore.Ref
	ProjectedOutputs []ProjectedOutput
	TTL              int64
	State            PendingState
}

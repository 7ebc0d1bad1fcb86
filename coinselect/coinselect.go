// Package coinselect implements the wallet core's coin selector
// (spec.md C10): smallest-first selection producing an input set and
// change, converted into a reservation through the UTXO store's atomic
// reserve operation.
package coinselect

import (
	"github.com/midnight-ntwrk/wallet-core/addresses"
	"github.com/midnight-ntwrk/wallet-core/utxostore"
	"github.com/midnight-ntwrk/wallet-core/walleterr"
)

// MaxRetries bounds the number of times Select retries a reservation
// that failed because a concurrent selection won the race (spec.md
// §4.10 step 4).
const MaxRetries = 3

// Selection is the result of a successful Select call: reserved input
// refs and any change owed back to the sender.
type Selection struct {
	Refs   []utxostore.Ref
	Change utxostore.Amount
}

// Select atomically reserves Available UTXOs of token owned by address
// that sum to at least requiredAmount, smallest-first with deterministic
// (intent_hash, output_index) tie-breaking (spec.md §4.10). The store's
// Reserve already performs the select-and-transition as one atomic
// operation; Select calls it again, up to MaxRetries attempts in all, while
// it reports ErrInsufficientFunds, so that inputs released by a concurrent
// send between attempts can still be picked up. Any other error is
// returned at once.
func Select(store *utxostore.Store, address addresses.Address, token utxostore.TokenType, requiredAmount utxostore.Amount) (Selection, error) {
	if requiredAmount == 0 {
		return Selection{}, walleterr.ErrBadParameter
	}

	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		refs, change, err := store.Reserve(address, token, requiredAmount)
		if err == nil {
			return Selection{Refs: refs, Change: change}, nil
		}
		lastErr = err
		if err != walleterr.ErrInsufficientFunds {
			return Selection{}, err
		}
	}
	return Selection{}, lastErr
}

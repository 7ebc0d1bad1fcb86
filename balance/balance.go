// Package balance implements the wallet core's balance projection
// (spec.md C9): a reactive view over the UTXO store's Available set,
// aggregated by token.
package balance

import (
	"context"

	"github.com/midnight-ntwrk/wallet-core/addresses"
	"github.com/midnight-ntwrk/wallet-core/utxostore"
)

// ByToken maps a TokenType to the sum of Available UTXO values for that
// token. Zero-balance tokens are omitted (spec.md §4.9).
type ByToken map[utxostore.TokenType]utxostore.Amount

// Snapshot computes the current balance for address directly from the
// store, without subscribing to further changes.
func Snapshot(store *utxostore.Store, address addresses.Address) (ByToken, error) {
	unspent, err := store.Unspent(address)
	if err != nil {
		return nil, err
	}
	return aggregate(unspent), nil
}

func aggregate(unspent []utxostore.UTXO) ByToken {
	out := make(ByToken)
	for _, u := range unspent {
		out[u.Token] += u.Value
	}
	return out
}

// Projection is a live, channel-based view of an address's balance: it
// re-aggregates and emits a new ByToken snapshot every time the store
// publishes a change notification affecting address. Grounded on the
// teacher's idiom of exposing state as plain Go channels rather than
// reaching for a reactive-stream library — no such library appears
// anywhere in the retrieved example pack (see DESIGN.md).
type Projection struct {
	out chan ByToken
}

// Watch starts a Projection for address and returns it. The projection
// runs until ctx is cancelled, at which point its output channel is
// closed.
func Watch(ctx context.Context, store *utxostore.Store, address addresses.Address) (*Projection, error) {
	p := &Projection{out: make(chan ByToken, 1)}

	initial, err := Snapshot(store, address)
	if err != nil {
		return nil, err
	}
	p.out <- initial

	changes := store.Observe(address)
	go func() {
		defer close(p.out)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				snap, err := Snapshot(store, address)
				if err != nil {
					continue
				}
				select {
				case p.out <- snap:
				default:
					// Drop the stale snapshot sitting in the buffer and
					// replace it: observers only ever need the latest
					// balance, never a queue of intermediate ones.
					select {
					case <-p.out:
					default:
					}
					p.out <- snap
				}
			}
		}
	}()

	return p, nil
}

// Snapshots returns the channel on which balance snapshots are
// delivered. The first value is the balance at Watch time, unless a store
// change arrived before it was read, in which case only the newer snapshot
// is delivered.
func (p *Projection) Snapshots() <-chan ByToken {
	return p.out
}

// Package reconcile implements the reconciliation engine (spec.md C8):
// it consumes update records from a subscription.Session, applies them to
// a utxostore.Store, detects reorgs, and resumes cleanly across restarts.
package reconcile

import (
	"context"

	"github.com/btcsuite/btclog"

	"github.com/midnight-ntwrk/wallet-core/addresses"
	"github.com/midnight-ntwrk/wallet-core/indexerclient"
	"github.com/midnight-ntwrk/wallet-core/utxostore"
	"github.com/midnight-ntwrk/wallet-core/walleterr"
)

var log = btclog.Disabled

// UseLogger sets the subsystem logger used by this package.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// ShallowReorgDepth is the default threshold (spec.md §4.8, §9): a reorg
// at or below this many blocks replays from the fork point; deeper than
// this triggers a full resync from cursor 0.
const ShallowReorgDepth = 6

// EchoSink receives every record the engine drains from a subscription,
// alongside the store mutation Apply itself makes. The submission
// controller implements this (spec.md §4.12 "correlating subscription
// echoes") so that a transaction it submitted gets promoted through its
// lifecycle by the same live record stream the reconciliation engine
// already consumes, instead of needing a second subscription.
type EchoSink interface {
	ApplyEcho(indexerclient.UpdateRecord) error
}

// Engine applies update records from one address's subscription session
// to a shared UTXO store.
type Engine struct {
	store   *utxostore.Store
	address addresses.Address
	sink    EchoSink

	shallowDepth uint64
}

// stagedWrites holds the mutations one record produces before any of them
// is applied to the store, so that a malformed record never leaves
// partial per-field writes behind (spec.md §4.8 "store writes are
// per-record atomic"). This mirrors the teacher's ShellChainState
// modified/deleted-map pattern (blockchain/shell_state.go), layered here
// over the store instead of an in-memory base view. Once staging succeeds,
// the writes are applied one store call at a time, not as a single
// batch: a store error partway through leaves the earlier writes in place
// and the cursor unadvanced.
type stagedWrites struct {
	created []utxostore.UTXO
	spent   []spentWrite
}

type spentWrite struct {
	ref utxostore.Ref
	at  utxostore.Spent
}

// New returns an Engine that reconciles update records for address into
// store.
func New(store *utxostore.Store, address addresses.Address) *Engine {
	return &Engine{store: store, address: address, shallowDepth: ShallowReorgDepth}
}

// WithEchoSink attaches sink so that Run fans every drained record to it
// in addition to applying it to the store. Returns the engine for
// chaining at construction time.
func (e *Engine) WithEchoSink(sink EchoSink) *Engine {
	e.sink = sink
	return e
}

// Resume loads the persisted cursor for the engine's address, returning 0
// if none has been saved yet (spec.md §4.8 "Resume").
func (e *Engine) Resume() (uint64, error) {
	ss, err := e.store.LoadSyncState(e.address)
	if err != nil {
		return 0, err
	}
	return ss.Cursor, nil
}

// Run drains session's record channel, applying each record in order
// until ctx is cancelled or the channel closes.
func (e *Engine) Run(ctx context.Context, session subscriptionRecords) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-session.Records():
			if !ok {
				return nil
			}
			if err := e.Apply(rec); err != nil {
				var reorg *walleterr.ReorgDetected
				if asReorg(err, &reorg) {
					log.Warnf("reconcile: reorg detected at depth %d for %s", reorg.Depth, e.address)
				} else {
					log.Errorf("reconcile: malformed record for %s, skipping: %v", e.address, err)
				}
			}
			if e.sink != nil {
				if err := e.sink.ApplyEcho(rec); err != nil {
					log.Errorf("reconcile: echo correlation failed for %s: %v", e.address, err)
				}
			}
		}
	}
}

// subscriptionRecords is the minimal surface Run needs from a
// subscription.Session, so this package does not import subscription
// (which itself imports indexerclient); avoiding that edge keeps the
// dependency graph a DAG matching the dataflow of spec.md §2.
type subscriptionRecords interface {
	Records() <-chan indexerclient.UpdateRecord
}

func asReorg(err error, target **walleterr.ReorgDetected) bool {
	r, ok := err.(*walleterr.ReorgDetected)
	if ok {
		*target = r
	}
	return ok
}

// Apply applies one update record to the store, per the algorithm of
// spec.md §4.8: for a Transaction record, upsert every created UTXO
// addressed to the engine's own address and mark every spent reference,
// then advance the cursor; for a Progress record, just advance the
// cursor. A reorg is detected when a spend references a UTXO already
// marked Confirmed-Spent under a different tx_hash, or when the record
// itself carries a ForkOf marker; Apply returns a *walleterr.ReorgDetected
// in that case after staging no partial writes.
func (e *Engine) Apply(rec indexerclient.UpdateRecord) error {
	switch rec.Kind {
	case indexerclient.KindProgress:
		return e.advanceCursor(rec.LastID, 0)
	case indexerclient.KindTransaction:
		return e.applyTransaction(rec)
	default:
		return nil
	}
}

func (e *Engine) applyTransaction(rec indexerclient.UpdateRecord) error {
	if rec.ForkOf != nil {
		return e.recover(*rec.ForkOf, rec.BlockHeight, rec.BlockHeight)
	}

	ss, err := e.store.LoadSyncState(e.address)
	if err != nil {
		return err
	}

	var staged stagedWrites
	for _, c := range rec.CreatedUTXOs {
		owner, err := addresses.ValidateRecipientAnyNetwork(c.Owner)
		if err != nil || owner != e.address {
			continue // not addressed to a key we own (spec.md §9 "local filter")
		}
		staged.created = append(staged.created, utxostore.UTXO{
			Ref:       utxostore.Ref{IntentHash: rec.TxHash, OutputIndex: c.OutputIndex},
			Owner:     owner,
			Token:     utxostore.TokenType(c.Token),
			Value:     utxostore.Amount(c.Value),
			State:     utxostore.Available,
			CreatedAt: utxostore.Created{Height: rec.BlockHeight, TxHash: rec.TxHash},
		})
	}

	for _, sref := range rec.SpentUTXORefs {
		ref := utxostore.Ref{IntentHash: sref.IntentHash, OutputIndex: sref.OutputIndex}
		reorg, conflictHeight, err := e.detectReorg(ref, rec.TxHash)
		if err != nil {
			return err
		}
		if reorg != nil {
			rollbackHeight := conflictHeight
			if rec.BlockHeight < rollbackHeight {
				rollbackHeight = rec.BlockHeight
			}
			return e.recover(ss.Cursor, rollbackHeight, rec.BlockHeight)
		}
		staged.spent = append(staged.spent, spentWrite{ref: ref, at: utxostore.Spent{Height: rec.BlockHeight, TxHash: rec.TxHash}})
	}

	for _, u := range staged.created {
		if err := e.store.UpsertCreated(u); err != nil {
			return err
		}
	}
	for _, sw := range staged.spent {
		if err := e.store.MarkSpent(sw.ref, sw.at); err != nil {
			return err
		}
	}
	return e.advanceCursor(rec.ID, rec.BlockHeight)
}

// detectReorg reports a reorg if ref is already Confirmed-Spent under a
// tx_hash other than newTxHash (spec.md §4.8), along with the height that
// earlier, now-superseded spend was recorded at: the earliest point the
// store's state is known to diverge from the canonical chain.
func (e *Engine) detectReorg(ref utxostore.Ref, newTxHash [32]byte) (*walleterr.ReorgDetected, uint64, error) {
	u, ok, err := e.store.Get(ref)
	if err != nil {
		return nil, 0, err
	}
	if !ok || u.State != utxostore.ConfirmedSpent || u.SpentAt == nil {
		return nil, 0, nil
	}
	if u.SpentAt.TxHash == newTxHash {
		return nil, 0, nil
	}
	return &walleterr.ReorgDetected{Depth: 1}, u.SpentAt.Height, nil
}

func (e *Engine) advanceCursor(id uint64, height uint64) error {
	ss, err := e.store.LoadSyncState(e.address)
	if err != nil {
		return err
	}
	if id < ss.Cursor {
		return walleterr.ErrCursorRegression
	}
	ss.Cursor = id
	if height > ss.LastHeight {
		ss.LastHeight = height
	}
	return e.store.SaveSyncState(e.address, ss)
}

// recover implements spec.md §4.8's reorg recovery: revert the store's
// UTXO records above rollbackHeight (undoing whatever the abandoned fork
// wrote), truncate the cursor back to forkPoint (or, if the reorg is
// deeper than the engine's shallow threshold, to cursor 0 with a full
// rollback), and let the caller's subscription replay forward from the
// truncated cursor so the canonical chain's writes land again.
func (e *Engine) recover(forkPoint, rollbackHeight, currentHeight uint64) error {
	ss, err := e.store.LoadSyncState(e.address)
	if err != nil {
		return err
	}
	depth := uint64(0)
	if ss.LastHeight > currentHeight {
		depth = ss.LastHeight - currentHeight
	}

	target := forkPoint
	if depth > e.shallowDepth {
		target = 0
		rollbackHeight = 0
		log.Warnf("reconcile: deep reorg (depth %d) for %s, full resync from cursor 0", depth, e.address)
	} else {
		log.Warnf("reconcile: shallow reorg (depth %d) for %s, replaying from %d", depth, e.address, forkPoint)
	}

	if err := e.store.RollbackAbove(e.address, rollbackHeight); err != nil {
		return err
	}
	if err := e.store.SaveSyncState(e.address, utxostore.SyncState{Cursor: target, LastHeight: 0}); err != nil {
		return err
	}
	return &walleterr.ReorgDetected{Depth: depth}
}

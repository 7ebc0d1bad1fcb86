package submission

import (
	"context"
	"encoding/hex"
	"encoding/json"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/midnight-ntwrk/wallet-core/indexerclient"
	"github.com/midnight-ntwrk/wallet-core/txbuilder"
	"github.com/midnight-ntwrk/wallet-core/utxostore"
	"github.com/midnight-ntwrk/wallet-core/walleterr"
)

// requester is the request-channel surface Submit needs: satisfied by
// *indexerclient.Client in production and by any test double that speaks
// the same request/response shape.
type requester interface {
	Request(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error)
}

// submitTransactionMutation is the GraphQL mutation document for spec.md
// §6's submitTransaction(transaction) operation.
const submitTransactionMutation = `
mutation SubmitTransaction($transaction: String!) {
  submitTransaction(transaction: $transaction)
}`

// DefaultConfirmationDepth is the number of blocks above a transaction's
// inclusion height at which it is treated as Finalized (spec.md §4.12).
const DefaultConfirmationDepth uint64 = 6

// Controller tracks submitted transactions from Submitted through
// InBlock to a terminal state, correlating subscription echoes and
// releasing reservations on failure (spec.md C12).
type Controller struct {
	store             *utxostore.Store
	pending           *PendingStore
	client            requester
	confirmationDepth uint64
}

// NewController returns a Controller. pending should be backed by the same
// database handle as store (store.DB()).
func NewController(store *utxostore.Store, pending *PendingStore, client requester) *Controller {
	return &Controller{store: store, pending: pending, client: client, confirmationDepth: DefaultConfirmationDepth}
}

// WithConfirmationDepth overrides the default confirmation depth.
func (c *Controller) WithConfirmationDepth(depth uint64) *Controller {
	c.confirmationDepth = depth
	return c
}

// Submit sends tx over the request channel (which itself retries with
// backoff up to its configured cap per spec.md §4.5) and, on success,
// persists its lifecycle record as Submitted. On transport failure after
// retries are exhausted, Submit releases tx's reservations and returns the
// error without persisting anything (spec.md §4.12).
func (c *Controller) Submit(ctx context.Context, tx *txbuilder.PendingTx) error {
	variables := map[string]any{"transaction": hex.EncodeToString(tx.TxBytes)}
	if _, err := c.client.Request(ctx, submitTransactionMutation, variables); err != nil {
		log.Warnf("submission: submit failed for %x, releasing reservation: %v", tx.TxHash, err)
		_ = c.store.Release(tx.ReservedRefs)
		return err
	}

	if err := c.store.PromotePending(tx.ReservedRefs, tx.TxHash); err != nil {
		return err
	}

	rec := Record{
		TxHash:           tx.TxHash,
		ReservedRefs:     tx.ReservedRefs,
		ProjectedOutputs: tx.ProjectedOutputs,
		TTL:              tx.TTL,
		State:            txbuilder.Submitted,
	}
	return c.pending.Save(rec)
}

// ApplyEcho correlates a subscription record against the outstanding
// pending set: a matching tx_hash promotes Submitted to InBlock, and a
// record carrying the Finalized flag is finalized immediately (spec.md
// §4.12). Finalization by confirmation depth happens in Tick, not here.
func (c *Controller) ApplyEcho(rec indexerclient.UpdateRecord) error {
	if rec.Kind != indexerclient.KindTransaction {
		return nil
	}

	prec, ok, err := c.pending.Get(rec.TxHash)
	if err != nil || !ok {
		return err
	}
	if prec.State != txbuilder.Submitted && prec.State != txbuilder.InBlock {
		return nil
	}

	prec.State = txbuilder.InBlock
	prec.BlockHeight = rec.BlockHeight
	if rec.Finalized {
		return c.finalize(prec)
	}
	return c.pending.Save(prec)
}

// Tick sweeps every persisted pending record, finalizing any that have
// reached confirmation depth and abandoning any whose ttl has passed
// without ever reaching InBlock (spec.md §4.12).
func (c *Controller) Tick(now int64, currentHeight uint64) error {
	records, err := c.pending.List()
	if err != nil {
		return err
	}

	for _, rec := range records {
		switch {
		case rec.State == txbuilder.InBlock && currentHeight >= rec.BlockHeight+c.confirmationDepth:
			if err := c.finalize(rec); err != nil {
				log.Errorf("submission: finalize failed for %x: %v", rec.TxHash, err)
			}
		case rec.State == txbuilder.Submitted && now > rec.TTL:
			if err := c.abandon(rec); err != nil {
				log.Errorf("submission: abandon failed for %x: %v", rec.TxHash, err)
			}
		}
	}
	return nil
}

func (c *Controller) finalize(rec Record) error {
	spentAt := utxostore.Spent{Height: rec.BlockHeight, TxHash: chainhash.Hash(rec.TxHash)}
	for _, ref := range rec.ReservedRefs {
		if err := c.store.MarkSpent(ref, spentAt); err != nil {
			return err
		}
	}
	for _, p := range rec.ProjectedOutputs {
		u := utxostore.UTXO{
			Ref:   utxostore.Ref{IntentHash: chainhash.Hash(rec.TxHash), OutputIndex: p.OutputIndex},
			Owner: p.Owner,
			Token: p.Token,
			Value: p.Value,
			State: utxostore.Available,
		}
		if err := c.store.UpsertCreated(u); err != nil {
			return err
		}
	}
	log.Infof("submission: finalized %x", rec.TxHash)
	return c.pending.Delete(rec.TxHash)
}

func (c *Controller) abandon(rec Record) error {
	if err := c.store.Release(rec.ReservedRefs); err != nil {
		return err
	}
	log.Warnf("submission: abandoned %x: %v", rec.TxHash, walleterr.ErrExpired)
	return c.pending.Delete(rec.TxHash)
}

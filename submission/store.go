// Package submission implements the wallet core's submission controller
// (spec.md C12): submitting a sealed transaction over the indexer's
// request channel, persisting its lifecycle, and correlating subscription
// echoes against the set of outstanding transactions.
package submission

import (
	"encoding/hex"
	"encoding/json"

	"github.com/btcsuite/btclog"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/midnight-ntwrk/wallet-core/addresses"
	"github.com/midnight-ntwrk/wallet-core/txbuilder"
	"github.com/midnight-ntwrk/wallet-core/utxostore"
)

var log = btclog.Disabled

// UseLogger sets the subsystem logger used by this package.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// prefixPending keys the pending-transactions table inside the same
// database handle the UTXO store owns (spec.md §6, "additional goleveldb
// key prefixes... inside the same database handle").
const prefixPending = "pending:"

// Record is the persisted form of a transaction in flight: enough to
// resume lifecycle tracking, release reservations, or insert projected
// outputs after a process restart.
type Record struct {
	TxHash           [32]byte
	ReservedRefs     []utxostore.Ref
	ProjectedOutputs []txbuilder.ProjectedOutput
	TTL              int64
	State            txbuilder.PendingState
	BlockHeight      uint64
}

type storedProjected struct {
	OutputIndex uint32 `json:"outputIndex"`
	Owner       string `json:"owner"`
	Token       string `json:"token"`
	Value       uint64 `json:"value"`
}

type storedRef struct {
	IntentHash  string `json:"intentHash"`
	OutputIndex uint32 `json:"outputIndex"`
}

type storedRecord struct {
	TxHash           string            `json:"txHash"`
	ReservedRefs     []storedRef       `json:"reservedRefs"`
	ProjectedOutputs []storedProjected `json:"projectedOutputs"`
	TTL              int64             `json:"ttl"`
	State            uint8             `json:"state"`
	BlockHeight      uint64            `json:"blockHeight"`
}

func pendingKey(txHash [32]byte) []byte {
	return append([]byte(prefixPending), txHash[:]...)
}

func toStoredRecord(r Record) storedRecord {
	sr := storedRecord{
		TxHash:      hex.EncodeToString(r.TxHash[:]),
		TTL:         r.TTL,
		State:       uint8(r.State),
		BlockHeight: r.BlockHeight,
	}
	for _, ref := range r.ReservedRefs {
		sr.ReservedRefs = append(sr.ReservedRefs, storedRef{IntentHash: ref.IntentHash.String(), OutputIndex: ref.OutputIndex})
	}
	for _, p := range r.ProjectedOutputs {
		sr.ProjectedOutputs = append(sr.ProjectedOutputs, storedProjected{
			OutputIndex: p.OutputIndex,
			Owner:       p.Owner.String(),
			Token:       hex.EncodeToString(p.Token[:]),
			Value:       uint64(p.Value),
		})
	}
	return sr
}

func fromStoredRecord(sr storedRecord) (Record, error) {
	r := Record{TTL: sr.TTL, State: txbuilder.PendingState(sr.State), BlockHeight: sr.BlockHeight}
	if raw, err := hex.DecodeString(sr.TxHash); err == nil {
		copy(r.TxHash[:], raw)
	}
	for _, sref := range sr.ReservedRefs {
		h, err := chainhashFromHex(sref.IntentHash)
		if err != nil {
			return Record{}, err
		}
		r.ReservedRefs = append(r.ReservedRefs, utxostore.Ref{IntentHash: h, OutputIndex: sref.OutputIndex})
	}
	for _, sp := range sr.ProjectedOutputs {
		owner, err := addresses.ValidateRecipientAnyNetwork(sp.Owner)
		if err != nil {
			return Record{}, err
		}
		var token utxostore.TokenType
		if raw, err := hex.DecodeString(sp.Token); err == nil {
			copy(token[:], raw)
		}
		r.ProjectedOutputs = append(r.ProjectedOutputs, txbuilder.ProjectedOutput{
			OutputIndex: sp.OutputIndex,
			Owner:       owner,
			Token:       token,
			Value:       utxostore.Amount(sp.Value),
		})
	}
	return r, nil
}

// PendingStore persists Records in the dedicated "pending:" key range of a
// shared goleveldb handle.
type PendingStore struct {
	db *leveldb.DB
}

// NewPendingStore returns a PendingStore backed by db (normally
// utxostore.Store.DB(), so both tables share one on-disk database).
func NewPendingStore(db *leveldb.DB) *PendingStore {
	return &PendingStore{db: db}
}

// Save persists rec, overwriting any existing record for the same tx hash.
func (p *PendingStore) Save(rec Record) error {
	data, err := json.Marshal(toStoredRecord(rec))
	if err != nil {
		return err
	}
	return p.db.Put(pendingKey(rec.TxHash), data, nil)
}

// Get returns the persisted record for txHash, or (Record{}, false) if
// none exists.
func (p *PendingStore) Get(txHash [32]byte) (Record, bool, error) {
	data, err := p.db.Get(pendingKey(txHash), nil)
	if err == leveldb.ErrNotFound {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var sr storedRecord
	if err := json.Unmarshal(data, &sr); err != nil {
		return Record{}, false, err
	}
	rec, err := fromStoredRecord(sr)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// Delete removes the persisted record for txHash, if any.
func (p *PendingStore) Delete(txHash [32]byte) error {
	return p.db.Delete(pendingKey(txHash), nil)
}

// List returns every persisted pending record, for resuming lifecycle
// tracking after a restart and for the Tick sweep.
func (p *PendingStore) List() ([]Record, error) {
	iter := p.db.NewIterator(util.BytesPrefix([]byte(prefixPending)), nil)
	defer iter.Release()

	var out []Record
	for iter.Next() {
		var sr storedRecord
		if err := json.Unmarshal(iter.Value(), &sr); err != nil {
			return nil, err
		}
		rec, err := fromStoredRecord(sr)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, iter.Error()
}

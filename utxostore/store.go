package utxostore

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"

	"github.com/btcsuite/btclog"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/midnight-ntwrk/wallet-core/addresses"
	"github.com/midnight-ntwrk/wallet-core/walleterr"
)

// log is the package-level subsystem logger, wired up by walletlog.UseLogger.
// It defaults to btclog.Disabled so the package is silent until a host
// process attaches a real backend.
var log = btclog.Disabled

// UseLogger sets the subsystem logger used by this package.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// Key prefixes. Grounded on the write-only spend-index / JSON-valued
// schema of the pack's pebble-based multi-chain UTXO store, adapted to a
// single-chain schema and to goleveldb.
const (
	prefixUTXO = "utxo:" // utxo:<ref> -> JSON UTXO
	prefixAddr = "addr:" // addr:<owner>:<ref> -> empty (secondary index)
	prefixSync = "sync:" // sync:<address> -> JSON syncState
)

// storedUTXO is the JSON wire form of a UTXO record.
type storedUTXO struct {
	IntentHash  string  `json:"intentHash"`
	OutputIndex uint32  `json:"outputIndex"`
	Owner       string  `json:"owner"`
	Network     uint8   `json:"network"`
	Token       string  `json:"token"`
	Value       uint64  `json:"value"`
	State       uint8   `json:"state"`
	CreatedAt   created `json:"createdAt"`
	SpentAt     *spent  `json:"spentAt,omitempty"`
}

type created struct {
	Height uint64 `json:"height"`
	TxHash string `json:"txHash"`
}

type spent struct {
	Height uint64 `json:"height"`
	TxHash string `json:"txHash"`
}

// SyncState is the persisted cursor and tip height for one subscribed
// address (spec.md §6, the "sync-state row").
type SyncState struct {
	Cursor     uint64
	LastHeight uint64
}

// Store is the persistent, serialized-write UTXO table. All mutating
// operations on UTXO records take the same mutex (SaveSyncState does not):
// the spec requires that a transition
// like Available -> Reserved never be observed mid-flight by a concurrent
// caller, and goleveldb batches alone only guarantee atomic durability,
// not mutual exclusion between the read and the write of a
// reserve/release/promote call.
type Store struct {
	db *leveldb.DB

	mu        sync.Mutex
	observers map[addresses.Address][]chan struct{}
}

// Open opens (creating if absent) the goleveldb database at path and
// returns a Store backed by it.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, observers: make(map[addresses.Address][]chan struct{})}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying goleveldb handle so a component that needs its
// own key-prefixed table (the submission controller's pending-transactions
// table) can share the single database file this wallet's data directory
// holds, instead of opening a second one (spec.md §6, "a local database"
// singular).
func (s *Store) DB() *leveldb.DB {
	return s.db
}

func refKey(ref Ref) []byte {
	b := make([]byte, 0, len(prefixUTXO)+32+4)
	b = append(b, prefixUTXO...)
	b = append(b, ref.IntentHash[:]...)
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], ref.OutputIndex)
	return append(b, idx[:]...)
}

func addrKey(owner addresses.Address, ref Ref) []byte {
	b := []byte(prefixAddr)
	b = append(b, owner.Payload[:]...)
	b = append(b, ':')
	return append(b, refKey(ref)...)
}

func addrPrefix(owner addresses.Address) []byte {
	b := []byte(prefixAddr)
	b = append(b, owner.Payload[:]...)
	return append(b, ':')
}

func syncKey(addr addresses.Address) []byte {
	return append([]byte(prefixSync), addr.Payload[:]...)
}

func toStored(u UTXO) storedUTXO {
	sv := storedUTXO{
		IntentHash:  u.Ref.IntentHash.String(),
		OutputIndex: u.Ref.OutputIndex,
		Owner:       u.Owner.String(),
		Network:     uint8(u.Owner.Network),
		Token:       hex.EncodeToString(u.Token[:]),
		Value:       uint64(u.Value),
		State:       uint8(u.State),
		CreatedAt:   created{Height: u.CreatedAt.Height, TxHash: u.CreatedAt.TxHash.String()},
	}
	if u.SpentAt != nil {
		sv.SpentAt = &spent{Height: u.SpentAt.Height, TxHash: u.SpentAt.TxHash.String()}
	}
	return sv
}

// UpsertCreated inserts u if its ref is not already present; idempotent
// per spec.md §4.7. An existing record at the same ref is left untouched.
func (s *Store) UpsertCreated(u UTXO) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := refKey(u.Ref)
	if _, err := s.db.Get(key, nil); err == nil {
		return nil
	} else if err != leveldb.ErrNotFound {
		return err
	}

	data, err := json.Marshal(toStored(u))
	if err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	batch.Put(key, data)
	batch.Put(addrKey(u.Owner, u.Ref), nil)
	if err := s.db.Write(batch, nil); err != nil {
		return err
	}
	s.notify(u.Owner)
	log.Debugf("utxostore: upserted created %s:%d", u.Ref.IntentHash, u.Ref.OutputIndex)
	return nil
}

func (s *Store) getLocked(ref Ref) (*storedUTXO, error) {
	data, err := s.db.Get(refKey(ref), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sv storedUTXO
	if err := json.Unmarshal(data, &sv); err != nil {
		return nil, err
	}
	return &sv, nil
}

func (s *Store) putLocked(sv *storedUTXO) error {
	data, err := json.Marshal(sv)
	if err != nil {
		return err
	}
	return s.db.Put(refKey(refFromStored(sv)), data, nil)
}

func refFromStored(sv *storedUTXO) Ref {
	var r Ref
	h, _ := chainhashFromHex(sv.IntentHash)
	r.IntentHash = h
	r.OutputIndex = sv.OutputIndex
	return r
}

// Get returns the UTXO at ref, or (UTXO{}, false) if no record exists at
// that ref.
func (s *Store) Get(ref Ref) (UTXO, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sv, err := s.getLocked(ref)
	if err != nil {
		return UTXO{}, false, err
	}
	if sv == nil {
		return UTXO{}, false, nil
	}
	u, err := fromStored(*sv)
	if err != nil {
		return UTXO{}, false, err
	}
	return u, true, nil
}

// MarkSpent transitions the UTXO at ref to ConfirmedSpent, idempotent
// per spec.md §4.7. If the UTXO is not present, it is a no-op (a spend of
// a UTXO we never observed being created, e.g. one owned by another
// address on the global event log).
func (s *Store) MarkSpent(ref Ref, spentAt Spent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sv, err := s.getLocked(ref)
	if err != nil {
		return err
	}
	if sv == nil {
		return nil
	}
	if sv.State == uint8(ConfirmedSpent) {
		return nil
	}

	sv.State = uint8(ConfirmedSpent)
	sv.SpentAt = &spent{Height: spentAt.Height, TxHash: spentAt.TxHash.String()}
	if err := s.putLocked(sv); err != nil {
		return err
	}
	owner, _ := addresses.ValidateRecipientAnyNetwork(sv.Owner)
	s.notify(owner)
	return nil
}

// Reserve atomically selects Available UTXOs of token owned by address,
// smallest-first, until their sum is >= amount, transitions them to
// Reserved and returns their refs. It is the only path by which the coin
// selector acquires inputs (spec.md §4.7, §4.10).
func (s *Store) Reserve(owner addresses.Address, token TokenType, amount Amount) ([]Ref, Amount, error) {
	if amount == 0 {
		return nil, 0, walleterr.ErrBadParameter
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	candidates, err := s.listLocked(owner, &token, Available)
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Ref.Less(candidates[j].Ref) })
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Value < candidates[j].Value })

	var sum Amount
	var selected []UTXO
	for _, u := range candidates {
		if sum >= amount {
			break
		}
		selected = append(selected, u)
		sum += u.Value
	}
	if sum < amount {
		return nil, 0, walleterr.ErrInsufficientFunds
	}

	batch := new(leveldb.Batch)
	refs := make([]Ref, 0, len(selected))
	for _, u := range selected {
		u.State = Reserved
		data, err := json.Marshal(toStored(u))
		if err != nil {
			return nil, 0, err
		}
		batch.Put(refKey(u.Ref), data)
		refs = append(refs, u.Ref)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return nil, 0, err
	}
	s.notify(owner)
	return refs, sum - amount, nil
}

// Release transitions the UTXOs at refs from Reserved or Pending back to
// Available.
func (s *Store) Release(refs []Ref) error {
	if err := s.transition(refs, Reserved, Available, nil); err != nil {
		return err
	}
	return s.transition(refs, Pending, Available, nil)
}

// PromotePending transitions refs from Reserved to Pending (spec.md §4.7).
// txHash is not recorded on the UTXO records themselves; the association
// between a tx hash and its inputs lives only in the caller's own records.
func (s *Store) PromotePending(refs []Ref, txHash [32]byte) error {
	return s.transitionTagged(refs, Reserved, Pending, txHash)
}

func (s *Store) transition(refs []Ref, from, to State, _ any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := new(leveldb.Batch)
	var owners []addresses.Address
	for _, ref := range refs {
		sv, err := s.getLocked(ref)
		if err != nil {
			return err
		}
		if sv == nil || State(sv.State) != from {
			continue
		}
		sv.State = uint8(to)
		data, err := json.Marshal(sv)
		if err != nil {
			return err
		}
		batch.Put(refKey(ref), data)
		if owner, err := addresses.ValidateRecipientAnyNetwork(sv.Owner); err == nil {
			owners = append(owners, owner)
		}
	}
	if err := s.db.Write(batch, nil); err != nil {
		return err
	}
	for _, o := range owners {
		s.notify(o)
	}
	return nil
}

func (s *Store) transitionTagged(refs []Ref, from, to State, txHash [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := new(leveldb.Batch)
	var owners []addresses.Address
	for _, ref := range refs {
		sv, err := s.getLocked(ref)
		if err != nil {
			return err
		}
		if sv == nil || State(sv.State) != from {
			continue
		}
		sv.State = uint8(to)
		data, err := json.Marshal(sv)
		if err != nil {
			return err
		}
		batch.Put(refKey(ref), data)
		if owner, err := addresses.ValidateRecipientAnyNetwork(sv.Owner); err == nil {
			owners = append(owners, owner)
		}
	}
	_ = txHash
	if err := s.db.Write(batch, nil); err != nil {
		return err
	}
	for _, o := range owners {
		s.notify(o)
	}
	return nil
}

// RollbackAbove reverts owner's UTXO records to their state as of height,
// undoing everything the reconciliation engine applied from an abandoned
// fork (spec.md §4.8 recovery, scenario S6): a UTXO created at or above
// height only ever existed on the abandoned branch and is deleted
// outright; a UTXO created before height but spent at or above height has
// its spend undone and returns to Available, since the spend that
// consumed it is no longer part of the canonical chain. The caller is
// expected to reset the sync cursor and let the indexer replay forward
// from the fork point afterward, re-applying whatever the canonical chain
// actually did.
func (s *Store) RollbackAbove(owner addresses.Address, height uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	iter := s.db.NewIterator(util.BytesPrefix(addrPrefix(owner)), nil)
	type revert struct {
		ref     Ref
		deleted bool
		sv      *storedUTXO
	}
	var reverts []revert
	for iter.Next() {
		refBytes := append([]byte(nil), iter.Key()[len(addrPrefix(owner)):]...)
		data, err := s.db.Get(refBytes, nil)
		if err == leveldb.ErrNotFound {
			continue
		}
		if err != nil {
			iter.Release()
			return err
		}
		var sv storedUTXO
		if err := json.Unmarshal(data, &sv); err != nil {
			iter.Release()
			return err
		}
		ref := refFromStored(&sv)

		if sv.CreatedAt.Height >= height {
			reverts = append(reverts, revert{ref: ref, deleted: true})
			continue
		}
		if sv.SpentAt != nil && sv.SpentAt.Height >= height {
			sv.State = uint8(Available)
			sv.SpentAt = nil
			reverts = append(reverts, revert{ref: ref, sv: &sv})
		}
	}
	err := iter.Error()
	iter.Release()
	if err != nil {
		return err
	}
	if len(reverts) == 0 {
		return nil
	}

	batch := new(leveldb.Batch)
	for _, r := range reverts {
		if r.deleted {
			batch.Delete(refKey(r.ref))
			batch.Delete(addrKey(owner, r.ref))
			continue
		}
		data, err := json.Marshal(r.sv)
		if err != nil {
			return err
		}
		batch.Put(refKey(r.ref), data)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return err
	}
	log.Debugf("utxostore: rolled back %d record(s) for %s above height %d", len(reverts), owner, height)
	s.notify(owner)
	return nil
}

// Unspent returns the Available UTXOs owned by address, across all
// tokens. Used only by read paths; selection never goes through it
// (spec.md §4.7).
func (s *Store) Unspent(owner addresses.Address) ([]UTXO, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(owner, nil, Available)
}

// listLocked iterates the address secondary index for owner and loads
// each referenced UTXO, filtering to state and, if token is non-nil, to
// that token. Caller must hold s.mu.
func (s *Store) listLocked(owner addresses.Address, token *TokenType, state State) ([]UTXO, error) {
	iter := s.db.NewIterator(util.BytesPrefix(addrPrefix(owner)), nil)
	defer iter.Release()

	var out []UTXO
	for iter.Next() {
		key := iter.Key()
		refBytes := key[len(addrPrefix(owner)):]
		data, err := s.db.Get(refBytes, nil)
		if err == leveldb.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		var sv storedUTXO
		if err := json.Unmarshal(data, &sv); err != nil {
			return nil, err
		}
		if State(sv.State) != state {
			continue
		}
		u, err := fromStored(sv)
		if err != nil {
			continue
		}
		if token != nil && u.Token != *token {
			continue
		}
		out = append(out, u)
	}
	return out, iter.Error()
}

func fromStored(sv storedUTXO) (UTXO, error) {
	h, err := chainhashFromHex(sv.IntentHash)
	if err != nil {
		return UTXO{}, err
	}
	owner, err := addresses.ValidateRecipientAnyNetwork(sv.Owner)
	if err != nil {
		return UTXO{}, err
	}
	var token TokenType
	if raw, err := hex.DecodeString(sv.Token); err == nil {
		copy(token[:], raw)
	}

	u := UTXO{
		Ref:       Ref{IntentHash: h, OutputIndex: sv.OutputIndex},
		Owner:     owner,
		Token:     token,
		Value:     Amount(sv.Value),
		State:     State(sv.State),
		CreatedAt: Created{Height: sv.CreatedAt.Height},
	}
	if ch, err := chainhashFromHex(sv.CreatedAt.TxHash); err == nil {
		u.CreatedAt.TxHash = ch
	}
	if sv.SpentAt != nil {
		sp := Spent{Height: sv.SpentAt.Height}
		if ch, err := chainhashFromHex(sv.SpentAt.TxHash); err == nil {
			sp.TxHash = ch
		}
		u.SpentAt = &sp
	}
	return u, nil
}

// Observe returns a channel that receives a value whenever a write
// affecting owner commits. The channel is never closed by the store;
// callers stop listening by abandoning the returned channel (it is
// buffered, size 1, so a slow consumer never blocks a writer).
func (s *Store) Observe(owner addresses.Address) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{}, 1)
	s.observers[owner] = append(s.observers[owner], ch)
	return ch
}

// notify must be called with s.mu held.
func (s *Store) notify(owner addresses.Address) {
	for _, ch := range s.observers[owner] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// LoadSyncState returns the persisted cursor/height for addr, or the zero
// SyncState if none has been saved yet (spec.md §4.8 "Resume").
func (s *Store) LoadSyncState(addr addresses.Address) (SyncState, error) {
	data, err := s.db.Get(syncKey(addr), nil)
	if err == leveldb.ErrNotFound {
		return SyncState{}, nil
	}
	if err != nil {
		return SyncState{}, err
	}
	var ss SyncState
	if err := json.Unmarshal(data, &ss); err != nil {
		return SyncState{}, err
	}
	return ss, nil
}

// SaveSyncState persists the cursor/height for addr.
func (s *Store) SaveSyncState(addr addresses.Address, ss SyncState) error {
	data, err := json.Marshal(ss)
	if err != nil {
		return err
	}
	return s.db.Put(syncKey(addr), data, nil)
}

// Package wallet is the unshielded wallet core's host-facing facade
// (spec.md §2 "host surface"): it wires components C1 through C12 behind
// the small set of operations an application actually calls — create or
// restore a wallet, read an address or balance, send funds, and start or
// stop syncing an address against an indexer.
package wallet

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/midnight-ntwrk/wallet-core/addresses"
	"github.com/midnight-ntwrk/wallet-core/balance"
	"github.com/midnight-ntwrk/wallet-core/chaincfg"
	"github.com/midnight-ntwrk/wallet-core/hdkeychain"
	"github.com/midnight-ntwrk/wallet-core/indexerclient"
	"github.com/midnight-ntwrk/wallet-core/ledger"
	"github.com/midnight-ntwrk/wallet-core/mnemonic"
	"github.com/midnight-ntwrk/wallet-core/reconcile"
	"github.com/midnight-ntwrk/wallet-core/submission"
	"github.com/midnight-ntwrk/wallet-core/subscription"
	"github.com/midnight-ntwrk/wallet-core/txbuilder"
	"github.com/midnight-ntwrk/wallet-core/utxostore"
	"github.com/midnight-ntwrk/wallet-core/walleterr"
)

// Wallet is one open wallet: its key material, its persistent UTXO/pending
// tables, and whatever address syncs are currently running.
type Wallet struct {
	network   chaincfg.Network
	transport indexerclient.Transport

	store       *utxostore.Store
	pending     *submission.PendingStore
	submissions *submission.Controller
	ledger      ledger.Ledger

	mu     sync.Mutex
	master *hdkeychain.ExtendedKey
	syncs  map[addresses.Address]*runningSync
}

type runningSync struct {
	session *subscription.Session
	cancel  context.CancelFunc
	done    chan struct{}
}

// Open opens (creating if absent) the wallet's on-disk state under dataDir
// and returns a Wallet with no key material loaded; call CreateWallet or
// RestoreWallet before deriving any address.
func Open(dataDir string, network chaincfg.Network, transport indexerclient.Transport) (*Wallet, error) {
	store, err := utxostore.Open(filepath.Join(dataDir, "wallet.db"))
	if err != nil {
		return nil, err
	}
	pendingStore := submission.NewPendingStore(store.DB())

	return &Wallet{
		network:     network,
		transport:   transport,
		store:       store,
		pending:     pendingStore,
		submissions: submission.NewController(store, pendingStore, transport),
		ledger:      ledger.New(),
		syncs:       make(map[addresses.Address]*runningSync),
	}, nil
}

// Close stops every running sync and releases the underlying database.
func (w *Wallet) Close() error {
	w.mu.Lock()
	addrs := make([]addresses.Address, 0, len(w.syncs))
	for a := range w.syncs {
		addrs = append(addrs, a)
	}
	w.mu.Unlock()

	for _, a := range addrs {
		w.stopSyncLocked(a)
	}
	return w.store.Close()
}

// CreateWallet generates a fresh mnemonic of wordCount words (12, 15, 18,
// 21 or 24) and loads the wallet's master key from it, with no passphrase.
func (w *Wallet) CreateWallet(wordCount int) (mnemonic.Mnemonic, error) {
	m, err := mnemonic.Generate(wordCount)
	if err != nil {
		return "", err
	}
	if err := w.RestoreWallet(m, ""); err != nil {
		return "", err
	}
	return m, nil
}

// RestoreWallet loads the wallet's master key from an existing mnemonic
// and optional passphrase.
func (w *Wallet) RestoreWallet(m mnemonic.Mnemonic, passphrase string) error {
	seed := mnemonic.ToSeed(m, passphrase)
	master, err := hdkeychain.MasterFromSeed(seed[:])
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.master = master
	w.mu.Unlock()
	return nil
}

func (w *Wallet) identity(account uint32, role hdkeychain.Role) (*hdkeychain.DerivedIdentity, error) {
	w.mu.Lock()
	master := w.master
	w.mu.Unlock()
	if master == nil {
		return nil, walleterr.ErrNotConnected
	}
	return hdkeychain.Identity(master, account, role, 0)
}

// Address returns the bech32m unshielded address of account's
// NightExternal identity.
func (w *Wallet) Address(account uint32) (string, error) {
	id, err := w.identity(account, hdkeychain.NightExternal)
	if err != nil {
		return "", err
	}
	return addresses.FromXOnlyPublicKey(w.network, id.XOnlyPublicKey).String(), nil
}

// Balances returns account's current balance, by token, summed over its
// Available UTXOs.
func (w *Wallet) Balances(account uint32) (balance.ByToken, error) {
	id, err := w.identity(account, hdkeychain.NightExternal)
	if err != nil {
		return nil, err
	}
	addr := addresses.FromXOnlyPublicKey(w.network, id.XOnlyPublicKey)
	return balance.Snapshot(w.store, addr)
}

// Send builds, seals and submits a transaction moving amount of token from
// account to recipient, reserving inputs and persisting the pending
// lifecycle record along the way (spec.md §4.11, §4.12).
func (w *Wallet) Send(ctx context.Context, account uint32, recipient string, token utxostore.TokenType, amount utxostore.Amount, now int64) (*txbuilder.PendingTx, error) {
	sender, err := w.identity(account, hdkeychain.NightExternal)
	if err != nil {
		return nil, err
	}
	change, err := w.identity(account, hdkeychain.NightInternal)
	if err != nil {
		return nil, err
	}

	req := txbuilder.Request{
		Network:   w.network,
		Sender:    *sender,
		Change:    *change,
		Recipient: recipient,
		Token:     token,
		Amount:    amount,
	}

	pending, err := txbuilder.Build(w.store, w.ledger, now, req)
	if err != nil {
		return nil, err
	}
	if err := w.submissions.Submit(ctx, pending); err != nil {
		return nil, err
	}
	return pending, nil
}

// Tick sweeps the submission controller's pending set (spec.md §4.12
// "every wall-clock tick"). The host application calls this on its own
// timer; the wallet core never starts a background ticker itself.
func (w *Wallet) Tick(now int64, currentHeight uint64) error {
	return w.submissions.Tick(now, currentHeight)
}

// StartSync opens a reconnect-resilient subscription for account's address
// and runs the reconciliation engine against it in the background, resuming
// from whatever cursor was last persisted.
func (w *Wallet) StartSync(ctx context.Context, account uint32) error {
	id, err := w.identity(account, hdkeychain.NightExternal)
	if err != nil {
		return err
	}
	addr := addresses.FromXOnlyPublicKey(w.network, id.XOnlyPublicKey)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.syncs[addr]; ok {
		return fmt.Errorf("wallet: sync already running for %s", addr)
	}

	engine := reconcile.New(w.store, addr).WithEchoSink(w.submissions)
	cursor, err := engine.Resume()
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	session := subscription.Open(runCtx, w.transport, addr.String(), cursor)
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = engine.Run(runCtx, session)
	}()

	w.syncs[addr] = &runningSync{session: session, cancel: cancel, done: done}
	return nil
}

// StopSync cancels the running sync for account's address, if any, and
// waits for its goroutine to exit.
func (w *Wallet) StopSync(account uint32) error {
	id, err := w.identity(account, hdkeychain.NightExternal)
	if err != nil {
		return err
	}
	addr := addresses.FromXOnlyPublicKey(w.network, id.XOnlyPublicKey)

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopSyncLocked(addr)
}

func (w *Wallet) stopSyncLocked(addr addresses.Address) error {
	rs, ok := w.syncs[addr]
	if !ok {
		return nil
	}
	delete(w.syncs, addr)
	rs.cancel()
	rs.session.Close()
	<-rs.done
	return nil
}

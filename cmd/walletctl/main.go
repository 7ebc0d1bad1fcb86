// walletctl is a small command-line demonstration of the wallet core: it
// opens a wallet against a data directory, restores or creates its key
// material from a mnemonic file alongside it, and runs one of a handful
// of commands against an indexer. Grounded on the teacher's own demo
// binary (mining/mobilex/cmd/mobilex-demo/main.go) for its
// context-with-signal-cancellation shape, adapted here to jessevdk/go-flags
// for configuration instead of the stdlib flag package.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/btcsuite/btclog"

	"github.com/midnight-ntwrk/wallet-core/chaincfg"
	"github.com/midnight-ntwrk/wallet-core/indexerclient"
	"github.com/midnight-ntwrk/wallet-core/mnemonic"
	"github.com/midnight-ntwrk/wallet-core/utxostore"
	"github.com/midnight-ntwrk/wallet-core/wallet"
	"github.com/midnight-ntwrk/wallet-core/walletlog"
)

func main() {
	cfg, args, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "walletctl:", err)
		os.Exit(1)
	}
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "walletctl: missing command (address, balance, send, sync)")
		os.Exit(1)
	}

	if cfg.LogFile != "" {
		if err := walletlog.InitLogRotator(cfg.LogFile, 10*1024*1024, 3); err != nil {
			fmt.Fprintln(os.Stderr, "walletctl: log init failed:", err)
			os.Exit(1)
		}
		defer walletlog.Close()
		if cfg.Debug {
			walletlog.SetLevels(btclog.LevelDebug)
		} else {
			walletlog.SetLevels(btclog.LevelInfo)
		}
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		fmt.Fprintln(os.Stderr, "walletctl:", err)
		os.Exit(1)
	}

	network, err := chaincfg.ParseNetwork(cfg.Network)
	if err != nil {
		fmt.Fprintln(os.Stderr, "walletctl:", err)
		os.Exit(1)
	}
	params := chaincfg.ParamsForNetwork(network)
	if cfg.IndexerURL != "" {
		copied := *params
		copied.IndexerBaseURL = cfg.IndexerURL
		params = &copied
	}

	w, err := wallet.Open(cfg.DataDir, network, indexerclient.New(params))
	if err != nil {
		fmt.Fprintln(os.Stderr, "walletctl:", err)
		os.Exit(1)
	}
	defer w.Close()

	if err := loadOrCreateMnemonic(w, cfg.DataDir); err != nil {
		fmt.Fprintln(os.Stderr, "walletctl:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupt
		cancel()
	}()

	if err := runCommand(ctx, w, args); err != nil {
		fmt.Fprintln(os.Stderr, "walletctl:", err)
		os.Exit(1)
	}
}

// mnemonicFileName is the plaintext mnemonic file walletctl keeps next to
// the wallet's database. A production host would hold this behind
// platform keystore, but walletctl is a demonstration binary, not the
// wallet core itself.
const mnemonicFileName = "mnemonic.txt"

func loadOrCreateMnemonic(w *wallet.Wallet, dataDir string) error {
	path := filepath.Join(dataDir, mnemonicFileName)
	data, err := os.ReadFile(path)
	if err == nil {
		return w.RestoreWallet(mnemonic.Mnemonic(string(data)), "")
	}
	if !os.IsNotExist(err) {
		return err
	}

	m, err := w.CreateWallet(12)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(m), 0o600)
}

func runCommand(ctx context.Context, w *wallet.Wallet, args []string) error {
	switch args[0] {
	case "address":
		addr, err := w.Address(0)
		if err != nil {
			return err
		}
		fmt.Println(addr)
		return nil

	case "balance":
		bal, err := w.Balances(0)
		if err != nil {
			return err
		}
		if len(bal) == 0 {
			fmt.Println("(no balance)")
			return nil
		}
		for tok, amt := range bal {
			fmt.Printf("%x: %d\n", tok, amt)
		}
		return nil

	case "send":
		if len(args) != 3 {
			return fmt.Errorf("usage: send <recipient> <amount>")
		}
		var amount utxostore.Amount
		if _, err := fmt.Sscanf(args[2], "%d", &amount); err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[2], err)
		}
		pending, err := w.Send(ctx, 0, args[1], utxostore.NativeToken, amount, time.Now().Unix())
		if err != nil {
			return err
		}
		fmt.Printf("submitted %x\n", pending.TxHash)
		return nil

	case "sync":
		if err := w.StartSync(ctx, 0); err != nil {
			return err
		}
		defer w.StopSync(0)
		fmt.Println("syncing, press Ctrl+C to stop")
		<-ctx.Done()
		return nil

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

package main

import (
	"fmt"
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"

	"github.com/midnight-ntwrk/wallet-core/chaincfg"
)

// config holds walletctl's process-wide options, parsed with
// jessevdk/go-flags the way the btcd/btcwallet family's own config.go
// does: one struct, long flag tags, defaults filled in before parsing.
type config struct {
	DataDir    string `long:"datadir" description:"Directory holding the wallet's on-disk state"`
	Network    string `long:"network" description:"Midnight network: undeployed, test, preview or mainnet" default:"undeployed"`
	IndexerURL string `long:"indexerurl" description:"Override the network's default indexer base URL"`
	LogFile    string `long:"logfile" description:"Rotating log file path"`
	Debug      bool   `long:"debug" description:"Enable debug-level logging"`
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".walletctl")
}

func loadConfig() (*config, []string, error) {
	cfg := &config{DataDir: defaultDataDir()}

	parser := flags.NewParser(cfg, flags.Default)
	parser.Usage = "[OPTIONS] <address|balance|send|sync> [args...]"

	rest, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, nil, err
	}

	net, err := chaincfg.ParseNetwork(cfg.Network)
	if err != nil {
		return nil, nil, fmt.Errorf("walletctl: %w", err)
	}
	cfg.Network = net.String()

	return cfg, rest, nil
}

// Package walletlog wires a single rotating log backend to every
// subsystem package's UseLogger hook. Grounded on the btcd/btcwallet
// family's own log.go idiom: a btclog.Backend writing to both stdout and
// a github.com/jrick/logrotate/rotator-managed file, with one
// btclog.Logger per subsystem tag created from that backend.
package walletlog

import (
	"io"
	"os"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"

	"github.com/midnight-ntwrk/wallet-core/indexerclient"
	"github.com/midnight-ntwrk/wallet-core/reconcile"
	"github.com/midnight-ntwrk/wallet-core/submission"
	"github.com/midnight-ntwrk/wallet-core/subscription"
	"github.com/midnight-ntwrk/wallet-core/utxostore"
)

var logRotator *rotator.Rotator

// logWriter sends formatted log output to both standard output and the
// rotator, matching the teacher family's logWriter type.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	return logRotator.Write(p)
}

var backendLog = btclog.NewBackend(logWriter{})

// subsystemLoggers maps each subsystem's log tag to the UseLogger hook
// InitLogRotator wires it to.
var subsystemLoggers = map[string]func(btclog.Logger){
	"UTXO": utxostore.UseLogger,
	"IDXC": indexerclient.UseLogger,
	"SUBS": subscription.UseLogger,
	"RECN": reconcile.UseLogger,
	"SUBM": submission.UseLogger,
}

// InitLogRotator opens (creating if necessary) a rotating log file at
// logFile, threshold bytes per file, keeping maxRolls old files, and wires
// every subsystem package to a logger backed by it. It must be called
// before any subsystem package logs, normally once at process start.
func InitLogRotator(logFile string, threshold int64, maxRolls int) error {
	r, err := rotator.New(logFile, threshold/1024, false, maxRolls)
	if err != nil {
		return err
	}
	logRotator = r

	for tag, use := range subsystemLoggers {
		use(backendLog.Logger(tag))
	}
	return nil
}

// SetLevels sets every subsystem's logger to level.
func SetLevels(level btclog.Level) {
	for tag, use := range subsystemLoggers {
		logger := backendLog.Logger(tag)
		logger.SetLevel(level)
		use(logger)
	}
}

// DisableAll reverts every subsystem package to its silent default, for
// tests that would otherwise inherit a rotator-backed logger from a prior
// InitLogRotator call in the same process.
func DisableAll() {
	for _, use := range subsystemLoggers {
		use(btclog.Disabled)
	}
}

// Close flushes and closes the underlying log file.
func Close() {
	if logRotator != nil {
		_ = logRotator.Close()
	}
}

var _ io.Writer = logWriter{}

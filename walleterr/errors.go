// Package walleterr collects the error kinds shared across the wallet
// core's components (spec.md §7). Components that only ever raise a
// single sentinel keep it local (e.g. chaincfg.ErrUnknownNetwork); kinds
// raised or matched by more than one component live here so callers can
// use errors.Is/errors.As against one stable set of values regardless of
// which component produced them.
package walleterr

import (
	"errors"
	"fmt"
)

// Input errors: surfaced immediately, never retried.
var (
	ErrBadParameter           = errors.New("walleterr: bad parameter")
	ErrNotAnUnshieldedAddress = errors.New("walleterr: not an unshielded address")
	ErrNetworkMismatch        = errors.New("walleterr: address network mismatch")
	ErrBadLength              = errors.New("walleterr: bad payload length")
	ErrChecksumMismatch       = errors.New("walleterr: checksum mismatch")
)

// Derivation errors: recovered internally per BIP-32 (index is retried),
// exported so tests can assert the recovery path was taken.
var ErrDerivationOutOfRange = errors.New("walleterr: derivation index out of range")

// Funds errors.
var ErrInsufficientFunds = errors.New("walleterr: insufficient funds")

// Transport errors.
var (
	ErrNotConnected      = errors.New("walleterr: not connected")
	ErrHandshakeRejected = errors.New("walleterr: handshake rejected")
	ErrInvalidResponse   = errors.New("walleterr: invalid response")
	ErrTimedOut          = errors.New("walleterr: timed out")
)

// RemoteError carries a structured error returned by the indexer over
// either transport channel.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("walleterr: remote error %s: %s", e.Code, e.Message)
}

// Consistency errors.
var ErrCursorRegression = errors.New("walleterr: cursor regression, operator intervention required")

// ReorgDetected is raised within the reconciliation engine: Engine.Apply
// returns it after recovery has run, and Engine.Run logs it and continues
// with the next record.
type ReorgDetected struct {
	Depth uint64
}

func (e *ReorgDetected) Error() string {
	return fmt.Sprintf("walleterr: reorg detected at depth %d", e.Depth)
}

// Ledger errors.
var (
	ErrSigningFailed           = errors.New("walleterr: signing failed")
	ErrSealFailed              = errors.New("walleterr: seal failed")
	ErrUnsealedBindingRejected = errors.New("walleterr: unsealed binding rejected")
)

// Submission errors.
var ErrExpired = errors.New("walleterr: ttl expired")

// SubmissionRejected carries the indexer's stated reason for refusing a
// submitted transaction.
type SubmissionRejected struct {
	Reason string
}

func (e *SubmissionRejected) Error() string {
	return fmt.Sprintf("walleterr: submission rejected: %s", e.Reason)
}

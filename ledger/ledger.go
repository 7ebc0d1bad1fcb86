// Package ledger is the wallet core's boundary to the external Midnight
// ledger library (spec.md C4): Schnorr signing/verification, the
// canonical intent-signing digest, and sealed-transaction serialization.
// It is the only package in this module permitted to hold the private
// key bytes long enough to produce a signature.
//
// The in-process default implementation is grounded on
// github.com/btcsuite/btcd/btcec/v2/schnorr, the one package in the
// retrieved example pack used for BIP-340 Schnorr signatures over
// Taproot outputs (see the teacher's txscript/taproot_shell.go). It is a
// byte-compatible stand-in sufficient to exercise the testable properties
// of spec.md §8, not a reimplementation of the real Midnight ledger wire
// format; a real codec satisfies the same Ledger interface and can be
// substituted without touching any other component.
package ledger

import (
	"crypto/sha256"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/midnight-ntwrk/wallet-core/utxostore"
	"github.com/midnight-ntwrk/wallet-core/walleterr"
)

// SealedTagPrefix is the required leading ASCII tag of a sealed
// transaction's transcript (spec.md §6). The builder must assert this
// prefix on every transaction it emits.
const SealedTagPrefix = "proof-preimage"

// Sealed binding scheme names; a sealed transaction's tag must contain
// one of these (spec.md §4.4, §9 "Sealed binding").
const (
	BindingPedersenSchnorr = "pedersen-schnorr[v1]"
	BindingEmbeddedFr      = "embedded-fr[v1]"
)

// Output is one (recipient, token, value) entry of an Intent.
type Output struct {
	Recipient [32]byte
	Token     utxostore.TokenType
	Value     utxostore.Amount
}

// Intent is the pre-serialization structure the builder assembles before
// signing and binding (spec.md §3).
type Intent struct {
	Inputs     []utxostore.Ref
	Outputs    []Output
	TTL        int64
	NetworkTag string
}

// Ledger is the stable interface to the external ledger library. All
// methods operate on plain bytes or module-local types; no method may
// retain a caller-supplied private key beyond its own call frame.
type Ledger interface {
	// Sign produces a 64-byte BIP-340-style Schnorr signature of message
	// under privateKey.
	Sign(privateKey [32]byte, message [32]byte) ([64]byte, error)
	// Verify reports whether sig is a valid Schnorr signature of message
	// under publicKey.
	Verify(publicKey [32]byte, message [32]byte, sig [64]byte) bool
	// IntentSigningBytes returns the canonical 32-byte digest the wallet
	// must sign for intent.
	IntentSigningBytes(intent Intent) [32]byte
	// BindingCommitment derives the binding commitment for a sealed
	// transaction from its signing digest and gathered signatures, in
	// signature order.
	BindingCommitment(digest [32]byte, signatures [][64]byte) [32]byte
	// SealTransaction serializes a submittable transaction from intent,
	// signatures (one per input, same order), and a binding commitment.
	SealTransaction(intent Intent, signatures [][64]byte, bindingCommitment [32]byte) ([]byte, error)
}

// Default is the in-process Ledger implementation described above.
type Default struct{}

// New returns the default in-process Ledger.
func New() Ledger {
	return Default{}
}

// Sign implements Ledger.
func (Default) Sign(privateKey [32]byte, message [32]byte) ([64]byte, error) {
	priv, _ := btcec.PrivKeyFromBytes(privateKey[:])
	sig, err := schnorr.Sign(priv, message[:])
	if err != nil {
		return [64]byte{}, walleterr.ErrSigningFailed
	}
	var out [64]byte
	copy(out[:], sig.Serialize())
	return out, nil
}

// Verify implements Ledger.
func (Default) Verify(publicKey [32]byte, message [32]byte, sig [64]byte) bool {
	pub, err := schnorr.ParsePubKey(publicKey[:])
	if err != nil {
		return false
	}
	parsed, err := schnorr.ParseSignature(sig[:])
	if err != nil {
		return false
	}
	return parsed.Verify(message[:], pub)
}

// IntentSigningBytes implements Ledger. The digest covers every field
// that the binding commitment must later tie together: inputs, outputs,
// ttl and network tag, so that no post-signature rearrangement of the
// intent escapes detection.
func (Default) IntentSigningBytes(intent Intent) [32]byte {
	h := sha256.New()
	for _, in := range intent.Inputs {
		h.Write(in.IntentHash[:])
		var idx [4]byte
		idx[0] = byte(in.OutputIndex >> 24)
		idx[1] = byte(in.OutputIndex >> 16)
		idx[2] = byte(in.OutputIndex >> 8)
		idx[3] = byte(in.OutputIndex)
		h.Write(idx[:])
	}
	for _, out := range intent.Outputs {
		h.Write(out.Recipient[:])
		h.Write(out.Token[:])
		var val [8]byte
		for i := 0; i < 8; i++ {
			val[7-i] = byte(out.Value >> (8 * i))
		}
		h.Write(val[:])
	}
	var ttl [8]byte
	for i := 0; i < 8; i++ {
		ttl[7-i] = byte(intent.TTL >> (8 * i))
	}
	h.Write(ttl[:])
	h.Write([]byte(intent.NetworkTag))

	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest
}

// BindingCommitment implements Ledger. Grounded on the same Pedersen-Schnorr
// binding name the sealed tag carries: the commitment is the digest that
// ties the signing bytes to the exact set of signatures gathered for them,
// so any substitution of a signature after the fact changes the
// commitment and fails verification downstream.
func (Default) BindingCommitment(digest [32]byte, signatures [][64]byte) [32]byte {
	h := sha256.New()
	h.Write(digest[:])
	for _, sig := range signatures {
		h.Write(sig[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SealTransaction implements Ledger. The emitted byte string's transcript
// begins with the ASCII tag "proof-preimage:<binding-scheme>:" followed
// by the binding commitment, the signatures in input order, and the
// intent: each input's intent hash followed by each output's recipient and
// token, concatenated without length prefixes (output indices, values, ttl
// and network tag are not included). This is a deliberately simple,
// self-describing wire form: the default implementation's job is to
// exercise the builder's assert-and-fail-closed contract (spec.md §4.11
// step 8), not to match any real wire format byte-for-byte.
func (Default) SealTransaction(intent Intent, signatures [][64]byte, bindingCommitment [32]byte) ([]byte, error) {
	if len(signatures) != len(intent.Inputs) {
		return nil, walleterr.ErrSealFailed
	}

	var b strings.Builder
	b.WriteString(SealedTagPrefix)
	b.WriteByte(':')
	b.WriteString(BindingPedersenSchnorr)
	b.WriteByte(':')

	out := []byte(b.String())
	out = append(out, bindingCommitment[:]...)
	for _, sig := range signatures {
		out = append(out, sig[:]...)
	}
	out = append(out, encodeIntent(intent)...)
	return out, nil
}

func encodeIntent(intent Intent) []byte {
	var out []byte
	for _, in := range intent.Inputs {
		out = append(out, in.IntentHash[:]...)
	}
	for _, o := range intent.Outputs {
		out = append(out, o.Recipient[:]...)
		out = append(out, o.Token[:]...)
	}
	return out
}

// SealedTag extracts the ASCII tag of a sealed transaction — the
// "proof-preimage:<binding-scheme>" prefix up to but not including the
// delimiter before the binding commitment bytes — or the empty string if
// txBytes does not begin with SealedTagPrefix.
func SealedTag(txBytes []byte) string {
	s := string(txBytes)
	if !strings.HasPrefix(s, SealedTagPrefix+":") {
		return ""
	}
	rest := s[len(SealedTagPrefix)+1:]
	end := strings.IndexByte(rest, ':')
	if end < 0 {
		return s
	}
	return s[:len(SealedTagPrefix)+1+end]
}

// AssertSealed returns walleterr.ErrUnsealedBindingRejected unless
// txBytes carries one of the sealed binding-scheme tags (spec.md §4.11
// step 8, §8 property 9). The builder calls this on every transaction it
// emits before returning it to the caller, and the submission controller
// never accepts a transaction that failed this assertion.
func AssertSealed(txBytes []byte) error {
	s := string(txBytes)
	if !strings.HasPrefix(s, SealedTagPrefix+":") {
		return walleterr.ErrUnsealedBindingRejected
	}
	rest := s[len(SealedTagPrefix)+1:]
	if strings.HasPrefix(rest, BindingPedersenSchnorr) || strings.HasPrefix(rest, BindingEmbeddedFr) {
		return nil
	}
	return walleterr.ErrUnsealedBindingRejected
}

// Package mnemonic implements BIP-39 mnemonic generation, validation and
// seed derivation for the wallet core (spec.md C1).
//
// Wordlist handling, entropy generation and checksum validation are
// delegated to github.com/tyler-smith/go-bip39. Seed derivation is not:
// the reference wallet truncates the 64-byte PBKDF2-HMAC-SHA512 output to
// its first 32 bytes, a compatibility contract go-bip39's own NewSeed does
// not implement, so ToSeed calls golang.org/x/crypto/pbkdf2 directly.
package mnemonic

import (
	"crypto/sha512"
	"strings"

	bip39 "github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"

	"github.com/midnight-ntwrk/wallet-core/walleterr"
)

// SeedLen is the length in bytes of the seed returned by ToSeed. The full
// PBKDF2-HMAC-SHA512 output is twice this; the remainder is zeroized and
// discarded (spec.md §3, §9).
const SeedLen = 32

const pbkdf2Iterations = 2048

// wordCountToEntropyBits maps the five valid BIP-39 word counts to the
// entropy size (in bits) that produces them.
var wordCountToEntropyBits = map[int]int{
	12: 128,
	15: 160,
	18: 192,
	21: 224,
	24: 256,
}

// Mnemonic is an ordered, space-joined sequence of BIP-39 words. It is
// never persisted; callers are responsible for wiping the backing string's
// source bytes once a seed has been derived from it.
type Mnemonic string

// Generate draws cryptographically random entropy for the given word
// count and returns the corresponding mnemonic. wordCount must be one of
// 12, 15, 18, 21, 24.
func Generate(wordCount int) (Mnemonic, error) {
	bits, ok := wordCountToEntropyBits[wordCount]
	if !ok {
		return "", walleterr.ErrBadParameter
	}
	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return "", err
	}
	words, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", err
	}
	return Mnemonic(words), nil
}

// Validate reports whether m is a syntactically and checksum-valid BIP-39
// mnemonic, after Unicode normalization and whitespace collapsing. It
// consumes no randomness.
func Validate(m Mnemonic) bool {
	return bip39.IsMnemonicValid(normalize(string(m)))
}

// ToSeed derives the 32-byte seed used by hdkeychain.MasterFromSeed. It
// normalizes m the same way Validate does, runs PBKDF2-HMAC-SHA512 with
// 2048 iterations and salt "mnemonic" + passphrase, then returns only the
// first 32 bytes of the 64-byte result — the remainder is overwritten with
// zeros before the function returns. This truncation is load-bearing: it
// exists so this wallet derives the same keys as the reference wallet for
// the same mnemonic, and must not be "fixed" to return the full 64 bytes.
func ToSeed(m Mnemonic, passphrase string) [SeedLen]byte {
	normalized := normalize(string(m))
	salt := "mnemonic" + normalize(passphrase)

	full := pbkdf2.Key([]byte(normalized), []byte(salt), pbkdf2Iterations, sha512.Size, sha512.New)

	var seed [SeedLen]byte
	copy(seed[:], full[:SeedLen])

	for i := SeedLen; i < len(full); i++ {
		full[i] = 0
	}
	return seed
}

// normalize applies the same pre-checksum transform to every mnemonic and
// passphrase this package touches: Unicode NFKD normalization followed by
// whitespace collapsing, so that "  abandon   abandon  " and
// "abandon abandon" are treated identically (spec.md §4.1).
func normalize(s string) string {
	return strings.Join(strings.Fields(norm.NFKD.String(s)), " ")
}

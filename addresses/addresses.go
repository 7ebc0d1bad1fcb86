// Package addresses implements the Midnight unshielded address codec
// (spec.md C3): bech32m encoding of a 32-byte payload under a
// network-tagged human-readable prefix.
//
// Encoding is grounded on the teacher's own address package
// (addresses.ShellTaprootAddress.String, which calls
// bech32.ConvertBits/bech32.Encode from the same
// github.com/btcsuite/btcd/btcutil/bech32 package used here), generalized
// from bech32 witness-program encoding to the plain bech32m payload
// encoding spec.md requires.
package addresses

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcutil/bech32"

	"github.com/midnight-ntwrk/wallet-core/chaincfg"
	"github.com/midnight-ntwrk/wallet-core/walleterr"
)

func sha256Sum(b []byte) [32]byte {
	return sha256.Sum256(b)
}

// PayloadLen is the fixed length of an unshielded address payload: the
// SHA-256 digest of the owning identity's x-only public key.
const PayloadLen = 32

// Address is a decoded, network-tagged unshielded address.
type Address struct {
	Network chaincfg.Network
	Payload [32]byte
}

// FromXOnlyPublicKey builds the Address owned by the given x-only public
// key on network, per spec.md §3: payload = SHA-256(x_only_public_key).
func FromXOnlyPublicKey(network chaincfg.Network, xOnly [32]byte) Address {
	return Address{Network: network, Payload: sha256Sum(xOnly[:])}
}

// Encode returns the bech32m string form of a: HRP = params.AddressHRP(),
// data = the raw 32-byte payload converted to 5-bit groups.
func Encode(network chaincfg.Network, payload [32]byte) (string, error) {
	params := chaincfg.ParamsForNetwork(network)
	if params == nil {
		return "", walleterr.ErrBadParameter
	}

	data, err := bech32.ConvertBits(payload[:], 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.EncodeM(params.AddressHRP(), data)
}

// String returns the bech32m encoding of a, or the empty string if a's
// network is not one of the four registered networks.
func (a Address) String() string {
	s, err := Encode(a.Network, a.Payload)
	if err != nil {
		return ""
	}
	return s
}

// Decode parses s as a bech32m string and returns its human-readable
// prefix and raw (8-bit) payload, without checking that the prefix names a
// known Midnight network. Corrupting any character of an encoded string
// causes Decode to fail with ErrChecksumMismatch.
func Decode(s string) (hrp string, payload []byte, err error) {
	hrp, data, encoding, decErr := bech32.DecodeGeneric(s)
	if decErr != nil {
		return "", nil, walleterr.ErrChecksumMismatch
	}
	if encoding != bech32.Bech32m {
		return "", nil, walleterr.ErrChecksumMismatch
	}

	payload, err = bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", nil, walleterr.ErrChecksumMismatch
	}
	return hrp, payload, nil
}

// ValidateRecipient decodes s and checks that it is a well-formed
// unshielded address for expectedNetwork. It never partially accepts a
// malformed or wrong-network input: any failure returns the zero Address.
func ValidateRecipient(s string, expectedNetwork chaincfg.Network) (Address, error) {
	hrp, payload, err := Decode(s)
	if err != nil {
		return Address{}, err
	}

	params := chaincfg.ParamsForNetwork(expectedNetwork)
	if params == nil {
		return Address{}, walleterr.ErrBadParameter
	}

	if !hasUnshieldedPrefix(hrp) {
		return Address{}, walleterr.ErrNotAnUnshieldedAddress
	}
	if hrp != params.AddressHRP() {
		return Address{}, walleterr.ErrNetworkMismatch
	}
	if len(payload) != PayloadLen {
		return Address{}, walleterr.ErrBadLength
	}

	addr := Address{Network: expectedNetwork}
	copy(addr.Payload[:], payload)
	return addr, nil
}

// ValidateRecipientAnyNetwork decodes s and accepts it under whichever of
// the four registered networks its HRP names, rather than requiring the
// caller to already know the network. It is used by components that
// persist an Address as its bech32m string and must reconstruct the typed
// value without a separately-stored network tag (spec.md §6 persisted
// state: the stored UTXO owner is the address string itself).
func ValidateRecipientAnyNetwork(s string) (Address, error) {
	hrp, payload, err := Decode(s)
	if err != nil {
		return Address{}, err
	}
	if !hasUnshieldedPrefix(hrp) {
		return Address{}, walleterr.ErrNotAnUnshieldedAddress
	}
	if len(payload) != PayloadLen {
		return Address{}, walleterr.ErrBadLength
	}

	for _, n := range []chaincfg.Network{chaincfg.Undeployed, chaincfg.Test, chaincfg.Preview, chaincfg.Mainnet} {
		if chaincfg.ParamsForNetwork(n).AddressHRP() == hrp {
			addr := Address{Network: n}
			copy(addr.Payload[:], payload)
			return addr, nil
		}
	}
	return Address{}, walleterr.ErrNetworkMismatch
}

func hasUnshieldedPrefix(hrp string) bool {
	const prefix = "mn_addr"
	if len(hrp) < len(prefix) {
		return false
	}
	return hrp[:len(prefix)] == prefix
}

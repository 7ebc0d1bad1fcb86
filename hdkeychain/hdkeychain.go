// Package hdkeychain implements BIP-32 hierarchical deterministic key
// derivation over secp256k1 along the wallet's fixed role schema
// (spec.md C2): m / 44' / 2400' / account' / role / index.
//
// The derivation arithmetic (HMAC-SHA512 over the parent chain code,
// child-key addition mod the curve order, the hardened-vs-normal branch on
// whether the parent's private or public key feeds the HMAC) is grounded
// on the one BIP-32 implementation present anywhere in the retrieved
// example pack (a standalone reference HD wallet built on
// github.com/btcsuite/btcd/btcec/v2), generalized from a single BIP-44
// Bitcoin path to the five-role Midnight schema.
package hdkeychain

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // BIP-32 fingerprints are specified in terms of RIPEMD160(SHA256(.)).

	"github.com/midnight-ntwrk/wallet-core/walleterr"
)

// HardenedOffset is the index at which BIP-32 hardened derivation begins
// (2^31).
const HardenedOffset uint32 = 1 << 31

// Role identifies which of the wallet's five key-material roles a
// DerivedIdentity was derived for (spec.md §3). Only NightExternal
// identities are used for unshielded addresses in this core.
type Role uint32

const (
	NightExternal Role = 0
	NightInternal Role = 1
	Dust          Role = 2
	Zswap         Role = 3
	Metadata      Role = 4
)

// Purpose and CoinType are the two fixed hardened levels of every path
// this package derives: m / 44' / 2400' / account' / role / index.
const (
	Purpose  uint32 = 44
	CoinType uint32 = 2400
)

// ExtendedKey is a BIP-32 extended private key. It is private by
// construction: this package never produces or accepts a public-only
// extended key, since the wallet core only ever needs to sign.
type ExtendedKey struct {
	ChainCode         [32]byte
	Key               [32]byte
	Depth             uint8
	ChildIndex        uint32
	ParentFingerprint [4]byte
}

// MasterFromSeed derives the master extended key from a BIP-39 seed using
// the standard BIP-32 HMAC-SHA512 construction with the fixed key
// "Bitcoin seed" (the literal string is part of the BIP-32 standard
// itself, reused verbatim by every chain that derives keys this way).
func MasterFromSeed(seed []byte) (*ExtendedKey, error) {
	mac := hmac.New(sha512.New, []byte("Bitcoin seed"))
	mac.Write(seed)
	sum := mac.Sum(nil)

	key := sum[:32]
	if !validPrivateKey(key) {
		return nil, walleterr.ErrDerivationOutOfRange
	}

	ek := &ExtendedKey{}
	copy(ek.Key[:], key)
	copy(ek.ChainCode[:], sum[32:])
	return ek, nil
}

// Derive returns the child extended key at the given index, hardened or
// not, of parent. A child key can in principle fall outside the valid
// range (ErrDerivationOutOfRange); per BIP-32 the caller should retry with
// index+1.
func Derive(parent *ExtendedKey, index uint32, hardened bool) (*ExtendedKey, error) {
	childIndex := index
	if hardened {
		childIndex |= HardenedOffset
	}

	var data []byte
	if hardened {
		data = make([]byte, 0, 37)
		data = append(data, 0x00)
		data = append(data, parent.Key[:]...)
	} else {
		pub := compressedPubKey(parent.Key[:])
		data = make([]byte, 0, 37)
		data = append(data, pub...)
	}
	var idxBytes [4]byte
	binary.BigEndian.PutUint32(idxBytes[:], childIndex)
	data = append(data, idxBytes[:]...)

	mac := hmac.New(sha512.New, parent.ChainCode[:])
	mac.Write(data)
	sum := mac.Sum(nil)

	il := new(big.Int).SetBytes(sum[:32])
	curveOrder := btcec.S256().N
	if il.Cmp(curveOrder) >= 0 {
		return nil, walleterr.ErrDerivationOutOfRange
	}

	parentInt := new(big.Int).SetBytes(parent.Key[:])
	childInt := new(big.Int).Add(il, parentInt)
	childInt.Mod(childInt, curveOrder)
	if childInt.Sign() == 0 {
		return nil, walleterr.ErrDerivationOutOfRange
	}

	child := &ExtendedKey{
		Depth:      parent.Depth + 1,
		ChildIndex: childIndex,
	}
	copy(child.ChainCode[:], sum[32:])
	childBytes := childInt.Bytes()
	copy(child.Key[32-len(childBytes):], childBytes)
	copy(child.ParentFingerprint[:], fingerprint(parent))

	return child, nil
}

// DerivedIdentity is the key material and coordinates produced by Identity:
// a fully derived signing key at a fixed (account, role, index) leaf.
type DerivedIdentity struct {
	Role    Role
	Account uint32
	Index   uint32

	PrivateKey          [32]byte
	PublicKeyCompressed [33]byte
	XOnlyPublicKey      [32]byte
}

// Identity derives the DerivedIdentity at m / 44' / 2400' / account' /
// role / index from master, retrying the final, non-hardened index step
// on ErrDerivationOutOfRange by incrementing the index, as BIP-32
// prescribes.
func Identity(master *ExtendedKey, account uint32, role Role, index uint32) (*DerivedIdentity, error) {
	purpose, err := Derive(master, Purpose, true)
	if err != nil {
		return nil, err
	}
	coinType, err := Derive(purpose, CoinType, true)
	if err != nil {
		return nil, err
	}
	acct, err := Derive(coinType, account, true)
	if err != nil {
		return nil, err
	}
	roleKey, err := Derive(acct, uint32(role), false)
	if err != nil {
		return nil, err
	}

	leafIndex := index
	var leaf *ExtendedKey
	for {
		leaf, err = Derive(roleKey, leafIndex, false)
		if err == nil {
			break
		}
		if err != walleterr.ErrDerivationOutOfRange {
			return nil, err
		}
		leafIndex++
	}

	priv, pub := btcec.PrivKeyFromBytes(leaf.Key[:])

	id := &DerivedIdentity{
		Role:    role,
		Account: account,
		Index:   leafIndex,
	}
	copy(id.PrivateKey[:], priv.Serialize())
	copy(id.PublicKeyCompressed[:], pub.SerializeCompressed())
	copy(id.XOnlyPublicKey[:], pub.SerializeCompressed()[1:])
	return id, nil
}

func validPrivateKey(key []byte) bool {
	k := new(big.Int).SetBytes(key)
	return k.Sign() != 0 && k.Cmp(btcec.S256().N) < 0
}

func compressedPubKey(privKey []byte) []byte {
	_, pub := btcec.PrivKeyFromBytes(privKey)
	return pub.SerializeCompressed()
}

// fingerprint returns the BIP-32 key fingerprint (first 4 bytes of
// RIPEMD160(SHA256(compressed public key))) used as ParentFingerprint on
// derived children.
func fingerprint(ek *ExtendedKey) []byte {
	pub := compressedPubKey(ek.Key[:])
	sha := sha256.Sum256(pub)
	r := ripemd160.New()
	r.Write(sha[:])
	return r.Sum(nil)[:4]
}

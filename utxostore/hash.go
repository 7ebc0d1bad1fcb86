package utxostore

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// chainhashFromHex parses the reversed-hex string form chainhash.Hash
// produces from its String method, the form this package's JSON encoding
// uses for every hash field.
func chainhashFromHex(s string) (chainhash.Hash, error) {
	return chainhash.NewHashFromStr(s)
}

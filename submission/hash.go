package submission

import "github.com/btcsuite/btcd/chaincfg/chainhash"

func chainhashFromHex(s string) (chainhash.Hash, error) {
	return chainhash.NewHashFromStr(s)
}

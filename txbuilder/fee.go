package txbuilder

import "github.com/midnight-ntwrk/wallet-core/utxostore"

// FeeEstimator computes the fee owed for a transaction of the given shape.
// Pluggable per spec.md §4.11 step 2 ("currently a constant or table
// lookup... treated as deterministic given intent shape"). Grounded on the
// teacher's mempool.FeeCalculator (mempool/fee.go): a per-byte base rate
// scaled by an estimated size, generalized from Shell's burn/rebate model
// to a deterministic fee computed from input and output counts alone,
// since this engine has no maker-rebate or opcode-fee concept.
type FeeEstimator interface {
	EstimateFee(inputCount, outputCount int) utxostore.Amount
}

// ConstantFeeRate estimates fee as a flat per-input/per-output byte cost,
// mirroring FeeCalculator.EstimateFee's txSize*rate shape with fixed
// per-component byte weights in place of a real serializer.
type ConstantFeeRate struct {
	// BytesPerInput and BytesPerOutput approximate the serialized size
	// contribution of one input or output.
	BytesPerInput  uint64
	BytesPerOutput uint64
	// RatePerByte is the fee charged per estimated byte.
	RatePerByte utxostore.Amount
}

// DefaultFeeRate is the estimator used when the caller supplies none.
var DefaultFeeRate = ConstantFeeRate{BytesPerInput: 150, BytesPerOutput: 50, RatePerByte: 1}

// EstimateFee implements FeeEstimator.
func (r ConstantFeeRate) EstimateFee(inputCount, outputCount int) utxostore.Amount {
	size := uint64(inputCount)*r.BytesPerInput + uint64(outputCount)*r.BytesPerOutput
	return utxostore.Amount(size) * r.RatePerByte
}

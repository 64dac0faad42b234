package builder

import "github.com/holiman/uint256"

// EIP-1559 constants.
const (
	elasticityMultiplier        = 2
	baseFeeMaxChangeDenominator = 8
)

// NextBaseFee computes the base fee of a child block given its parent's gas
// limit, gas used, and base fee, per EIP-1559. All arithmetic is done with
// 256-bit integers to match go-ethereum's own saturating behavior exactly.
func NextBaseFee(parentGasLimit, parentGasUsed uint64, parentBaseFee *uint256.Int) *uint256.Int {
	gasTarget := parentGasLimit / elasticityMultiplier
	if gasTarget == 0 {
		return new(uint256.Int).Set(parentBaseFee)
	}

	parentGasTarget := uint256.NewInt(gasTarget)
	parentGasUsedInt := uint256.NewInt(parentGasUsed)

	switch {
	case parentGasUsed == gasTarget:
		return new(uint256.Int).Set(parentBaseFee)

	case parentGasUsed > gasTarget:
		gasUsedDelta := new(uint256.Int).Sub(parentGasUsedInt, parentGasTarget)
		delta := baseFeeDelta(parentBaseFee, gasUsedDelta, parentGasTarget)
		if delta.IsZero() {
			delta = uint256.NewInt(1)
		}
		return new(uint256.Int).Add(parentBaseFee, delta)

	default:
		gasUsedDelta := new(uint256.Int).Sub(parentGasTarget, parentGasUsedInt)
		delta := baseFeeDelta(parentBaseFee, gasUsedDelta, parentGasTarget)
		if delta.Cmp(parentBaseFee) >= 0 {
			return uint256.NewInt(0)
		}
		return new(uint256.Int).Sub(parentBaseFee, delta)
	}
}

// baseFeeDelta computes floor(parentBaseFee * gasUsedDelta / gasTarget / BASE_FEE_MAX_CHANGE_DENOMINATOR).
func baseFeeDelta(parentBaseFee, gasUsedDelta, gasTarget *uint256.Int) *uint256.Int {
	num := new(uint256.Int).Mul(parentBaseFee, gasUsedDelta)
	num.Div(num, gasTarget)
	num.Div(num, uint256.NewInt(baseFeeMaxChangeDenominator))
	return num
}

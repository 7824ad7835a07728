// Package liquiditymath converts Uniswap V3 tick and liquidity representation
// into token amounts. It deliberately works in float64: the results feed a USD
// valuation, not settlement, so the protocol's exact 256-bit fixed-point
// arithmetic is not required.
package liquiditymath

import "math"

// Q96 is the UQ64.96 fixed-point scale (2^96) as a float64.
const Q96 = 79228162514264337593543950336.0

// SqrtPriceX96FromTick approximates sqrt(1.0001^tick) * 2^96.
func SqrtPriceX96FromTick(tick int64) float64 {
	return math.Pow(1.0001, float64(tick)/2) * Q96
}

// AmountsForLiquidity returns the base-unit (undecimalized) token amounts
// represented by `liquidity` in the range [sqrtA, sqrtB] at current price
// sqrtP, all in X96 scale. The bounds are normalized internally, passing them
// in reverse order is not an error.
//
// Tie-breaks at the range boundaries: sqrtP == sqrtA is treated as below the
// range (amount1 == 0), while sqrtP == sqrtB is handled by the in-range
// branch, whose formulas degenerate to the above-range values there. Both are
// intentional and covered by tests.
func AmountsForLiquidity(sqrtP, sqrtA, sqrtB, liquidity float64) (amount0, amount1 float64) {
	if sqrtA > sqrtB {
		sqrtA, sqrtB = sqrtB, sqrtA
	}

	switch {
	case sqrtP <= sqrtA:
		// Below range: all value sits in token0.
		amount0 = liquidity * (sqrtB - sqrtA) * Q96 / (sqrtB * sqrtA)
	case sqrtP <= sqrtB:
		// In range: value is split at the current price.
		amount0 = liquidity * (sqrtB - sqrtP) * Q96 / (sqrtB * sqrtP)
		amount1 = liquidity * (sqrtP - sqrtA) / Q96
	default:
		// Above range: all value sits in token1.
		amount1 = liquidity * (sqrtB - sqrtA) / Q96
	}

	return amount0, amount1
}

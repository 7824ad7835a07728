package position

import (
	"math"
	"math/big"

	"github.com/defistate/lp-tracker-go/position/liquiditymath"
)

// Value assembles one valued observation from an on-chain snapshot and the
// resolved USD quotes for the pair. It is pure: price resolution and
// persistence are the caller's concern, so a failed collaborator never leaves
// a half-built observation behind.
func Value(key string, snap *Snapshot, quote0, quote1 PriceQuote) Observation {
	sqrtLower := liquiditymath.SqrtPriceX96FromTick(snap.TickLower)
	sqrtUpper := liquiditymath.SqrtPriceX96FromTick(snap.TickUpper)
	sqrtCurrent := bigToFloat(snap.SqrtPriceX96)

	amount0Base, amount1Base := liquiditymath.AmountsForLiquidity(
		sqrtCurrent, sqrtLower, sqrtUpper, bigToFloat(snap.Liquidity),
	)

	scale0 := math.Pow(10, float64(snap.Token0.Decimals))
	scale1 := math.Pow(10, float64(snap.Token1.Decimals))

	obs := Observation{
		Key:          key,
		Amount0:      amount0Base / scale0,
		Amount1:      amount1Base / scale1,
		Owed0:        bigToFloat(snap.TokensOwed0) / scale0,
		Owed1:        bigToFloat(snap.TokensOwed1) / scale1,
		Price0Source: quote0.Source,
		Price1Source: quote1.Source,
	}

	obs.USD0 = obs.Total0() * quote0.USD
	obs.USD1 = obs.Total1() * quote1.USD
	obs.TotalUSD = obs.USD0 + obs.USD1

	// Rewards are valued from the owed fee amounts alone, independent of the
	// in-range holdings.
	obs.RewardsUSD = obs.Owed0*quote0.USD + obs.Owed1*quote1.USD

	return obs
}

func bigToFloat(x *big.Int) float64 {
	f, _ := new(big.Float).SetInt(x).Float64()
	return f
}

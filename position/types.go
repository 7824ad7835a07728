package position

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidTickRange = errors.New("tickLower must not exceed tickUpper")
	ErrNegativeField    = errors.New("snapshot fields must be non-negative")
)

// TokenMeta describes one side of the pool's pair.
type TokenMeta struct {
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
	Symbol   string         `json:"symbol"`
}

// Snapshot is a single on-chain read of a concentrated-liquidity position,
// immutable once constructed. All big.Int fields are owned by the snapshot
// and must not be mutated by callers.
type Snapshot struct {
	TickLower    int64     `json:"tickLower"`
	TickUpper    int64     `json:"tickUpper"`
	Liquidity    *big.Int  `json:"liquidity"`
	TokensOwed0  *big.Int  `json:"tokensOwed0"`
	TokensOwed1  *big.Int  `json:"tokensOwed1"`
	SqrtPriceX96 *big.Int  `json:"sqrtPriceX96"`
	Token0       TokenMeta `json:"token0"`
	Token1       TokenMeta `json:"token1"`
}

// NewSnapshot validates the invariants of a raw position read and returns an
// immutable Snapshot. Nil big.Int fields are treated as zero.
func NewSnapshot(
	tickLower, tickUpper int64,
	liquidity, tokensOwed0, tokensOwed1, sqrtPriceX96 *big.Int,
	token0, token1 TokenMeta,
) (*Snapshot, error) {
	if tickLower > tickUpper {
		return nil, fmt.Errorf("%w: got [%d, %d]", ErrInvalidTickRange, tickLower, tickUpper)
	}

	snap := &Snapshot{
		TickLower:    tickLower,
		TickUpper:    tickUpper,
		Liquidity:    orZero(liquidity),
		TokensOwed0:  orZero(tokensOwed0),
		TokensOwed1:  orZero(tokensOwed1),
		SqrtPriceX96: orZero(sqrtPriceX96),
		Token0:       token0,
		Token1:       token1,
	}

	for _, field := range []*big.Int{snap.Liquidity, snap.TokensOwed0, snap.TokensOwed1, snap.SqrtPriceX96} {
		if field.Sign() < 0 {
			return nil, ErrNegativeField
		}
	}

	return snap, nil
}

func orZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

// PriceSource records the provenance of a USD quote so that a degraded
// valuation (price 0.0 because no source answered) remains distinguishable
// from a genuinely worthless holding.
type PriceSource string

const (
	SourcePrimary     PriceSource = "primary"
	SourceFallback    PriceSource = "fallback"
	SourceUnavailable PriceSource = "unavailable"
)

// PriceQuote is one resolved USD price for a token symbol.
type PriceQuote struct {
	Symbol string      `json:"symbol"`
	USD    float64     `json:"usd"`
	Source PriceSource `json:"source"`
}

// Observation is one valued row of the position history. Amount0/Amount1 are
// the in-range holdings, Owed0/Owed1 the uncollected fees, all normalized to
// token units. The persisted amount columns carry Amount+Owed totals; see
// history.CSVStore.
type Observation struct {
	Key          string      `json:"key"`
	Amount0      float64     `json:"amount0"`
	Amount1      float64     `json:"amount1"`
	Owed0        float64     `json:"owed0"`
	Owed1        float64     `json:"owed1"`
	USD0         float64     `json:"usd0"`
	USD1         float64     `json:"usd1"`
	TotalUSD     float64     `json:"totalUsd"`
	RewardsUSD   float64     `json:"rewardsUsd"`
	CompoundUSD  float64     `json:"compoundUsd"`
	Price0Source PriceSource `json:"price0Source"`
	Price1Source PriceSource `json:"price1Source"`
}

// Total0 returns the full token0 holding, in-range amount plus owed fees.
func (o Observation) Total0() float64 { return o.Amount0 + o.Owed0 }

// Total1 returns the full token1 holding, in-range amount plus owed fees.
func (o Observation) Total1() float64 { return o.Amount1 + o.Owed1 }

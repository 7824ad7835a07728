package oracle

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/defistate/lp-tracker-go/position"
	"github.com/defistate/lp-tracker-go/position/liquiditymath"
)

// PrimarySource is the external USD feed. ok=false means "answered, no usable
// value"; err means the endpoint is unreachable and the run must abort.
type PrimarySource interface {
	USDPrice(ctx context.Context, id string) (price float64, ok bool, err error)
}

// Resolver turns the pair's token metadata into tagged USD quotes.
//
// Resolution order per token: recognized USD-pegged stablecoins quote 1.0
// from the primary source by definition; otherwise the configured feed id is
// looked up; on an empty answer the pool's own ratio is used, which is only
// meaningful when the counterpart is a stablecoin; failing all of that the
// quote is Unavailable with price 0.0 — degraded, never dropped.
type Resolver struct {
	primary PrimarySource
	feedIDs map[string]string   // upper-cased symbol -> feed id
	stables map[string]struct{} // upper-cased stablecoin symbols
}

// NewResolver builds a resolver. feedIDs maps token symbols to primary-feed
// identifiers; stableSymbols lists the symbols treated as worth exactly 1 USD.
func NewResolver(primary PrimarySource, feedIDs map[string]string, stableSymbols []string) *Resolver {
	ids := make(map[string]string, len(feedIDs))
	for sym, id := range feedIDs {
		ids[strings.ToUpper(sym)] = id
	}
	stables := make(map[string]struct{}, len(stableSymbols))
	for _, sym := range stableSymbols {
		stables[strings.ToUpper(sym)] = struct{}{}
	}
	return &Resolver{primary: primary, feedIDs: ids, stables: stables}
}

// Resolve produces the two quotes for a snapshot's pair. The only error case
// is an unreachable primary endpoint.
func (r *Resolver) Resolve(ctx context.Context, snap *position.Snapshot) (quote0, quote1 position.PriceQuote, err error) {
	quote0, err = r.resolveToken(ctx, snap, true)
	if err != nil {
		return position.PriceQuote{}, position.PriceQuote{}, err
	}
	quote1, err = r.resolveToken(ctx, snap, false)
	if err != nil {
		return position.PriceQuote{}, position.PriceQuote{}, err
	}
	return quote0, quote1, nil
}

func (r *Resolver) resolveToken(ctx context.Context, snap *position.Snapshot, token0 bool) (position.PriceQuote, error) {
	meta := snap.Token0
	other := snap.Token1
	if !token0 {
		meta, other = other, meta
	}
	symbol := strings.ToUpper(meta.Symbol)

	if _, isStable := r.stables[symbol]; isStable {
		return position.PriceQuote{Symbol: meta.Symbol, USD: 1.0, Source: position.SourcePrimary}, nil
	}

	if id, configured := r.feedIDs[symbol]; configured {
		price, ok, err := r.primary.USDPrice(ctx, id)
		if err != nil {
			return position.PriceQuote{}, fmt.Errorf("resolve %s: %w", meta.Symbol, err)
		}
		if ok {
			return position.PriceQuote{Symbol: meta.Symbol, USD: price, Source: position.SourcePrimary}, nil
		}
	}

	// Primary had nothing: the pool ratio prices this token only when the
	// other side of the pair is a stablecoin.
	if _, otherStable := r.stables[strings.ToUpper(other.Symbol)]; otherStable {
		if price, ok := poolRatioUSD(snap, token0); ok {
			return position.PriceQuote{Symbol: meta.Symbol, USD: price, Source: position.SourceFallback}, nil
		}
	}

	return position.PriceQuote{Symbol: meta.Symbol, USD: 0.0, Source: position.SourceUnavailable}, nil
}

// poolRatioUSD derives a token's price from the pool's current sqrt price:
// one token0 is worth (sqrtP/Q96)^2 * 10^(dec0-dec1) token1.
func poolRatioUSD(snap *position.Snapshot, token0 bool) (float64, bool) {
	sqrtP, _ := new(big.Float).SetInt(snap.SqrtPriceX96).Float64()
	ratio := math.Pow(sqrtP/liquiditymath.Q96, 2) *
		math.Pow(10, float64(snap.Token0.Decimals)-float64(snap.Token1.Decimals))

	if token0 {
		return ratio, ratio > 0
	}
	if ratio == 0 {
		return 0, false
	}
	return 1 / ratio, true
}

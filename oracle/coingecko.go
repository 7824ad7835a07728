// Package oracle resolves USD prices for the pool's pair: a CoinGecko-style
// HTTP feed as the primary source, with the pool's own quoted ratio as a
// fallback against stablecoins. Every quote carries its provenance.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ErrUnreachable marks a price endpoint that did not answer at all (DNS,
// connect, timeout). Unlike an answered-but-empty response it aborts the run.
var ErrUnreachable = errors.New("price endpoint unreachable")

// DefaultTimeout bounds every price lookup; an endpoint that hangs must not
// hang the run.
const DefaultTimeout = 20 * time.Second

// CoinGecko queries the /api/v3/simple/price endpoint.
type CoinGecko struct {
	baseURL string
	client  *http.Client
}

// NewCoinGecko creates a client against baseURL (e.g.
// "https://api.coingecko.com"). A non-positive timeout falls back to
// DefaultTimeout.
func NewCoinGecko(baseURL string, timeout time.Duration) *CoinGecko {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CoinGecko{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// USDPrice looks up the USD price for a CoinGecko coin id. ok is false when
// the endpoint answered but had no usable value for the id; err is non-nil
// only for transport-level failures.
func (g *CoinGecko) USDPrice(ctx context.Context, id string) (price float64, ok bool, err error) {
	query := url.Values{}
	query.Set("ids", id)
	query.Set("vs_currencies", "usd")
	endpoint := g.baseURL + "/api/v3/simple/price?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, false, fmt.Errorf("build price request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// The endpoint is alive but declined; treat as no usable value.
		return 0, false, nil
	}

	var payload map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, false, nil
	}

	price, found := payload[id]["usd"]
	if !found || price < 0 {
		return 0, false, nil
	}
	return price, true, nil
}

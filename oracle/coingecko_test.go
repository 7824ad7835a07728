package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoinGeckoUSDPrice(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v3/simple/price", r.URL.Path)
			assert.Equal(t, "hyperliquid", r.URL.Query().Get("ids"))
			assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
			w.Write([]byte(`{"hyperliquid":{"usd":44.37}}`))
		}))
		defer server.Close()

		gecko := NewCoinGecko(server.URL, time.Second)
		price, ok, err := gecko.USDPrice(context.Background(), "hyperliquid")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 44.37, price)
	})

	t.Run("non-200 is unavailable, not fatal", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		gecko := NewCoinGecko(server.URL, time.Second)
		_, ok, err := gecko.USDPrice(context.Background(), "hyperliquid")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("missing id is unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		gecko := NewCoinGecko(server.URL, time.Second)
		_, ok, err := gecko.USDPrice(context.Background(), "hyperliquid")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unreachable endpoint is fatal", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close() // refuse connections

		gecko := NewCoinGecko(server.URL, time.Second)
		_, _, err := gecko.USDPrice(context.Background(), "hyperliquid")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnreachable)
	})

	t.Run("slow endpoint times out as unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer server.Close()

		gecko := NewCoinGecko(server.URL, 20*time.Millisecond)
		_, _, err := gecko.USDPrice(context.Background(), "hyperliquid")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnreachable)
	})
}

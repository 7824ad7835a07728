package history

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/lp-tracker-go/position"
)

// Requires a reachable Postgres; set LP_TRACKER_TEST_DSN to run.
func TestPostgresStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("LP_TRACKER_TEST_DSN")
	if dsn == "" {
		t.Skip("LP_TRACKER_TEST_DSN not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	store := NewPostgresStore(pool)
	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.Save(ctx, nil)) // start clean

	series := Series{
		{
			Key: "2025-09-01", Amount0: 10, Amount1: 250, USD0: 20, USD1: 250,
			TotalUSD: 270, RewardsUSD: 0, CompoundUSD: 270,
			Price0Source: position.SourcePrimary, Price1Source: position.SourcePrimary,
		},
		{
			Key: "2025-09-02", Amount0: 10.1, Amount1: 251, USD0: 20.2, USD1: 251,
			TotalUSD: 271.2, RewardsUSD: 1.2, CompoundUSD: 271.2,
			Price0Source: position.SourceFallback, Price1Source: position.SourcePrimary,
		},
	}

	require.NoError(t, store.Save(ctx, series))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "2025-09-01", loaded[0].Key)
	assert.Equal(t, 271.2, loaded[1].TotalUSD)
	assert.Equal(t, position.SourceFallback, loaded[1].Price0Source)

	// Save replaces, not appends.
	require.NoError(t, store.Save(ctx, series[:1]))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}

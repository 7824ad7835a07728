package tracker

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/lp-tracker-go/history"
	"github.com/defistate/lp-tracker-go/position"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type fakeReader struct {
	snap *position.Snapshot
	err  error
}

func (f *fakeReader) Snapshot(context.Context, *big.Int) (*position.Snapshot, error) {
	return f.snap, f.err
}

type fakeResolver struct {
	quote0, quote1 position.PriceQuote
	err            error
}

func (f *fakeResolver) Resolve(context.Context, *position.Snapshot) (position.PriceQuote, position.PriceQuote, error) {
	return f.quote0, f.quote1, f.err
}

type memStore struct {
	series  history.Series
	saves   int
	loadErr error
	saveErr error
}

func (m *memStore) Load(context.Context) (history.Series, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make(history.Series, len(m.series))
	copy(out, m.series)
	return out, nil
}

func (m *memStore) Save(_ context.Context, series history.Series) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.series = series
	m.saves++
	return nil
}

type fakeChart struct {
	path string
	err  error
}

func (f *fakeChart) Render(history.Series, string) (string, error) { return f.path, f.err }

func testSnapshot(t *testing.T) *position.Snapshot {
	t.Helper()
	snap, err := position.NewSnapshot(-100, 100,
		big.NewInt(1_000_000), big.NewInt(0), big.NewInt(0),
		new(big.Int).Lsh(big.NewInt(1), 96),
		position.TokenMeta{Decimals: 18, Symbol: "HYPE"},
		position.TokenMeta{Decimals: 18, Symbol: "USDT"},
	)
	require.NoError(t, err)
	return snap
}

func fixedClock(value string) func() time.Time {
	return func() time.Time {
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			panic(err)
		}
		return t
	}
}

func newTestTracker(t *testing.T, cfg Config) *Tracker {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}
	if cfg.TokenID == 0 {
		cfg.TokenID = 101400
	}
	if cfg.Granularity == "" {
		cfg.Granularity = GranularityRun
	}
	tr, err := New(cfg)
	require.NoError(t, err)
	return tr
}

func TestPeriodKey(t *testing.T) {
	jst, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	t.Run("daily keys by calendar day in the configured zone", func(t *testing.T) {
		tr := newTestTracker(t, Config{
			Reader:      &fakeReader{},
			Resolver:    &fakeResolver{},
			Store:       &memStore{},
			Granularity: GranularityDaily,
			Location:    jst,
		})

		// 18:00 UTC on the 4th is already the 5th in JST.
		ts, _ := time.Parse(time.RFC3339, "2025-09-04T18:00:00Z")
		assert.Equal(t, "2025-09-05", tr.PeriodKey(ts))
	})

	t.Run("run granularity keys every invocation", func(t *testing.T) {
		tr := newTestTracker(t, Config{
			Reader:   &fakeReader{},
			Resolver: &fakeResolver{},
			Store:    &memStore{},
		})

		ts, _ := time.Parse(time.RFC3339, "2025-09-04T18:00:00+09:00")
		assert.Equal(t, "2025-09-04T09:00:00Z", tr.PeriodKey(ts))
	})
}

func TestNew(t *testing.T) {
	t.Run("daily granularity needs a location", func(t *testing.T) {
		_, err := New(Config{
			Reader:      &fakeReader{},
			Resolver:    &fakeResolver{},
			Store:       &memStore{},
			Logger:      nopLogger{},
			TokenID:     1,
			Granularity: GranularityDaily,
		})
		require.Error(t, err)
	})

	t.Run("unknown granularity rejected", func(t *testing.T) {
		_, err := New(Config{
			Reader:      &fakeReader{},
			Resolver:    &fakeResolver{},
			Store:       &memStore{},
			Logger:      nopLogger{},
			TokenID:     1,
			Granularity: Granularity("hourly"),
		})
		require.Error(t, err)
	})
}

func TestRun(t *testing.T) {
	quotes := &fakeResolver{
		quote0: position.PriceQuote{Symbol: "HYPE", USD: 2.0, Source: position.SourcePrimary},
		quote1: position.PriceQuote{Symbol: "USDT", USD: 1.0, Source: position.SourcePrimary},
	}

	t.Run("one upsert per run, persisted and summarized", func(t *testing.T) {
		store := &memStore{}
		var summary bytes.Buffer
		tr := newTestTracker(t, Config{
			Reader:      &fakeReader{snap: testSnapshot(t)},
			Resolver:    quotes,
			Store:       store,
			Chart:       &fakeChart{path: "lp_value_2025-09-04.png"},
			Summary:     &summary,
			HistoryPath: "lp_history.csv",
			Now:         fixedClock("2025-09-04T03:00:00Z"),
		})

		require.NoError(t, tr.Run(context.Background()))

		require.Len(t, store.series, 1)
		assert.Equal(t, 1, store.saves)
		assert.Equal(t, "2025-09-04T03:00:00Z", store.series[0].Key)
		assert.Greater(t, store.series[0].TotalUSD, 0.0)
		assert.Contains(t, summary.String(), "lp_history.csv")
		assert.Contains(t, summary.String(), "lp_value_2025-09-04.png")
	})

	t.Run("rerun in the same period replaces the row", func(t *testing.T) {
		store := &memStore{}
		cfg := Config{
			Reader:   &fakeReader{snap: testSnapshot(t)},
			Resolver: quotes,
			Store:    store,
			Now:      fixedClock("2025-09-04T03:00:00Z"),
		}
		tr := newTestTracker(t, cfg)

		require.NoError(t, tr.Run(context.Background()))
		require.NoError(t, tr.Run(context.Background()))

		assert.Len(t, store.series, 1)
		assert.Equal(t, 2, store.saves)
	})

	t.Run("reader failure aborts before any write", func(t *testing.T) {
		store := &memStore{}
		tr := newTestTracker(t, Config{
			Reader:   &fakeReader{err: errors.New("rpc unreachable")},
			Resolver: quotes,
			Store:    store,
		})

		require.Error(t, tr.Run(context.Background()))
		assert.Zero(t, store.saves)
	})

	t.Run("price resolution failure aborts before any write", func(t *testing.T) {
		store := &memStore{}
		tr := newTestTracker(t, Config{
			Reader:   &fakeReader{snap: testSnapshot(t)},
			Resolver: &fakeResolver{err: errors.New("oracle timeout")},
			Store:    store,
		})

		require.Error(t, tr.Run(context.Background()))
		assert.Zero(t, store.saves)
	})

	t.Run("corrupt history aborts before any write", func(t *testing.T) {
		store := &memStore{loadErr: history.ErrCorruptSeries}
		tr := newTestTracker(t, Config{
			Reader:   &fakeReader{snap: testSnapshot(t)},
			Resolver: quotes,
			Store:    store,
		})

		err := tr.Run(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, history.ErrCorruptSeries)
		assert.Zero(t, store.saves)
	})

	t.Run("chart failure does not fail a persisted run", func(t *testing.T) {
		store := &memStore{}
		tr := newTestTracker(t, Config{
			Reader:   &fakeReader{snap: testSnapshot(t)},
			Resolver: quotes,
			Store:    store,
			Chart:    &fakeChart{err: errors.New("no fonts")},
		})

		require.NoError(t, tr.Run(context.Background()))
		assert.Equal(t, 1, store.saves)
	})

	t.Run("degraded price is persisted with its source tag", func(t *testing.T) {
		store := &memStore{}
		tr := newTestTracker(t, Config{
			Reader: &fakeReader{snap: testSnapshot(t)},
			Resolver: &fakeResolver{
				quote0: position.PriceQuote{Symbol: "HYPE", Source: position.SourceUnavailable},
				quote1: position.PriceQuote{Symbol: "USDT", USD: 1.0, Source: position.SourcePrimary},
			},
			Store: store,
		})

		require.NoError(t, tr.Run(context.Background()))
		require.Len(t, store.series, 1)
		assert.Equal(t, position.SourceUnavailable, store.series[0].Price0Source)
	})

	t.Run("compound column is recomputed across runs", func(t *testing.T) {
		store := &memStore{series: history.Series{
			{Key: "2025-09-03", TotalUSD: 1000, RewardsUSD: 0, CompoundUSD: 1000},
		}}
		tr := newTestTracker(t, Config{
			Reader:   &fakeReader{snap: testSnapshot(t)},
			Resolver: quotes,
			Store:    store,
			Now:      fixedClock("2025-09-04T03:00:00Z"),
		})

		require.NoError(t, tr.Run(context.Background()))
		require.Len(t, store.series, 2)
		assert.Equal(t, 1000.0, store.series[0].CompoundUSD)
		assert.InDelta(t, 1000.0+store.series[1].RewardsUSD, store.series[1].CompoundUSD, 1e-9)
	})
}

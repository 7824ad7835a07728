// Package tracker orchestrates one run of the position tracker: snapshot the
// chain, resolve prices, value the position, merge it into the history, and
// render the outputs. A run is a single transaction against the store; any
// fatal error aborts before anything is persisted.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/defistate/lp-tracker-go/history"
	"github.com/defistate/lp-tracker-go/metrics"
	"github.com/defistate/lp-tracker-go/position"
	"github.com/defistate/lp-tracker-go/reporter"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SnapshotReader reads the position's on-chain state.
type SnapshotReader interface {
	Snapshot(ctx context.Context, tokenID *big.Int) (*position.Snapshot, error)
}

// PriceResolver produces tagged USD quotes for the snapshot's pair.
type PriceResolver interface {
	Resolve(ctx context.Context, snap *position.Snapshot) (quote0, quote1 position.PriceQuote, err error)
}

// ChartRenderer draws the series and returns the image path.
type ChartRenderer interface {
	Render(series history.Series, periodKey string) (string, error)
}

// Granularity selects how runs are keyed into history rows.
type Granularity string

const (
	// GranularityDaily keys one row per calendar day in the configured
	// location; a re-run within the same day replaces that day's row.
	GranularityDaily Granularity = "daily"
	// GranularityRun keys every invocation separately by UTC timestamp.
	GranularityRun Granularity = "run"
)

// Config wires one Tracker. All collaborators are explicit; there is no
// process-wide client state.
type Config struct {
	Reader   SnapshotReader
	Resolver PriceResolver
	Store    history.Store
	Chart    ChartRenderer
	Logger   Logger
	Metrics  *metrics.Metrics

	TokenID     uint64
	Granularity Granularity
	Location    *time.Location

	// HistoryPath is only echoed in the operator summary.
	HistoryPath string
	// Summary receives the per-run console line; nil disables it.
	Summary io.Writer

	// Now allows tests to pin the clock; time.Now when nil.
	Now func() time.Time
}

func (c *Config) validate() error {
	if c.Reader == nil {
		return errors.New("config: Reader is required")
	}
	if c.Resolver == nil {
		return errors.New("config: Resolver is required")
	}
	if c.Store == nil {
		return errors.New("config: Store is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.TokenID == 0 {
		return errors.New("config: TokenID is required")
	}
	if c.Granularity != GranularityDaily && c.Granularity != GranularityRun {
		return fmt.Errorf("config: unknown granularity %q", c.Granularity)
	}
	if c.Granularity == GranularityDaily && c.Location == nil {
		return errors.New("config: Location is required for daily granularity")
	}
	return nil
}

// Tracker runs the valuation pipeline.
type Tracker struct {
	cfg Config
	now func() time.Time
}

// New validates the wiring and returns a Tracker.
func New(cfg Config) (*Tracker, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Tracker{cfg: cfg, now: now}, nil
}

// PeriodKey returns the history key for a run starting at t.
func (tr *Tracker) PeriodKey(t time.Time) string {
	if tr.cfg.Granularity == GranularityRun {
		return t.UTC().Format(time.RFC3339)
	}
	return t.In(tr.cfg.Location).Format("2006-01-02")
}

// Run executes one fetch-value-persist-render cycle. Everything before Save
// is side-effect free; a failure anywhere leaves the persisted series
// untouched.
func (tr *Tracker) Run(ctx context.Context) error {
	start := tr.now()
	err := tr.run(ctx, start)
	if tr.cfg.Metrics != nil {
		tr.cfg.Metrics.ObserveRun(start, err)
	}
	return err
}

func (tr *Tracker) run(ctx context.Context, start time.Time) error {
	key := tr.PeriodKey(start)
	log := tr.cfg.Logger

	snap, err := tr.cfg.Reader.Snapshot(ctx, new(big.Int).SetUint64(tr.cfg.TokenID))
	if err != nil {
		return fmt.Errorf("snapshot position %d: %w", tr.cfg.TokenID, err)
	}
	log.Debug("position snapshot read",
		"tickLower", snap.TickLower, "tickUpper", snap.TickUpper,
		"liquidity", snap.Liquidity.String(),
		"pair", snap.Token0.Symbol+"/"+snap.Token1.Symbol)

	quote0, quote1, err := tr.cfg.Resolver.Resolve(ctx, snap)
	if err != nil {
		return fmt.Errorf("resolve prices: %w", err)
	}
	if quote0.Source == position.SourceUnavailable || quote1.Source == position.SourceUnavailable {
		log.Warn("price unavailable, valuation degraded",
			"source0", quote0.Source, "source1", quote1.Source)
	}

	obs := position.Value(key, snap, quote0, quote1)

	series, err := tr.cfg.Store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	series = history.Upsert(series, obs)

	if err := tr.cfg.Store.Save(ctx, series); err != nil {
		return fmt.Errorf("save history: %w", err)
	}

	imagePath := ""
	if tr.cfg.Chart != nil {
		imagePath, err = tr.cfg.Chart.Render(series, key)
		if err != nil {
			// The series is already durable; a failed chart is not worth
			// reporting the whole run as lost.
			log.Error("chart rendering failed", "error", err)
			imagePath = ""
		}
	}

	if tr.cfg.Metrics != nil {
		tr.cfg.Metrics.LastTotalUSD.Set(obs.TotalUSD)
		tr.cfg.Metrics.LastRewardsUSD.Set(obs.RewardsUSD)
	}

	logArgs := []any{
		"period", key,
		"totalUsd", obs.TotalUSD,
		"rewardsUsd", obs.RewardsUSD,
		"rows", len(series),
		"image", imagePath,
	}
	if yields, ok := history.DailyYield(series); ok[len(series)-1] {
		logArgs = append(logArgs, "periodYieldPct", yields[len(series)-1])
	}
	log.Info("run complete", logArgs...)

	if tr.cfg.Summary != nil {
		reporter.Summary(tr.cfg.Summary, obs, tr.cfg.HistoryPath, imagePath)
	}

	return nil
}

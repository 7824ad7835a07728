package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/defistate/lp-tracker-go/position"
)

// PostgresStore persists the series in a single table, ordered by insertion.
// It implements the same replace-the-whole-series contract as CSVStore, which
// keeps the derived columns trivially consistent: the series is small (one
// row per day) and rewritten inside one transaction per run.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed store on an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the history table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS lp_history (
			seq           BIGSERIAL PRIMARY KEY,
			period_key    TEXT NOT NULL,
			amount0       DOUBLE PRECISION NOT NULL,
			amount1       DOUBLE PRECISION NOT NULL,
			usd0          DOUBLE PRECISION NOT NULL,
			usd1          DOUBLE PRECISION NOT NULL,
			total_usd     DOUBLE PRECISION NOT NULL,
			rewards_usd   DOUBLE PRECISION NOT NULL,
			compound_usd  DOUBLE PRECISION NOT NULL,
			price0_source TEXT NOT NULL DEFAULT '',
			price1_source TEXT NOT NULL DEFAULT ''
		)`)
	if err != nil {
		return fmt.Errorf("ensure lp_history schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) (Series, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT period_key, amount0, amount1, usd0, usd1,
		       total_usd, rewards_usd, compound_usd,
		       price0_source, price1_source
		FROM lp_history ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("load lp_history: %w", err)
	}
	defer rows.Close()

	var series Series
	for rows.Next() {
		var obs position.Observation
		var src0, src1 string
		if err := rows.Scan(&obs.Key, &obs.Amount0, &obs.Amount1, &obs.USD0, &obs.USD1,
			&obs.TotalUSD, &obs.RewardsUSD, &obs.CompoundUSD, &src0, &src1); err != nil {
			return nil, fmt.Errorf("%w: scan lp_history: %v", ErrCorruptSeries, err)
		}
		obs.Price0Source = position.PriceSource(src0)
		obs.Price1Source = position.PriceSource(src1)
		series = append(series, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load lp_history: %w", err)
	}
	return series, nil
}

func (s *PostgresStore) Save(ctx context.Context, series Series) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin lp_history save: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM lp_history`); err != nil {
		return fmt.Errorf("clear lp_history: %w", err)
	}

	for _, obs := range series {
		_, err := tx.Exec(ctx, `
			INSERT INTO lp_history (period_key, amount0, amount1, usd0, usd1,
			                        total_usd, rewards_usd, compound_usd,
			                        price0_source, price1_source)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			obs.Key, obs.Total0(), obs.Total1(), obs.USD0, obs.USD1,
			obs.TotalUSD, obs.RewardsUSD, obs.CompoundUSD,
			string(obs.Price0Source), string(obs.Price1Source),
		)
		if err != nil {
			return fmt.Errorf("insert lp_history row %s: %w", obs.Key, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit lp_history save: %w", err)
	}
	return nil
}

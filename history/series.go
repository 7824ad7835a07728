// Package history maintains the append-only per-period series of valued
// observations and its derived columns.
package history

import (
	"github.com/defistate/lp-tracker-go/position"
)

// Series is the ordered position history. Insertion order is chronological
// order and every period key appears at most once, subject to the last-row
// matching rule documented on Upsert.
type Series []position.Observation

// Upsert merges one observation into the series and recomputes the derived
// compound column. Re-running within the same period replaces the last row
// instead of duplicating it.
//
// Key equality is only checked against the last row. That assumes period keys
// arrive in non-decreasing order; a late write with an older key appends a
// duplicate rather than updating the earlier row. This is a known limitation
// kept for schema compatibility with manually edited history files.
func Upsert(series Series, obs position.Observation) Series {
	switch {
	case len(series) == 0:
		series = append(series, obs)
	case series[len(series)-1].Key == obs.Key:
		series[len(series)-1] = obs
	default:
		series = append(series, obs)
	}

	RecomputeCompound(series)
	return series
}

// RecomputeCompound rewrites the compound column over the whole series:
// compound[i] = total[0] + sum(rewards[0..i]). It is a pure function of the
// series to date, never authoritative input.
func RecomputeCompound(series Series) {
	if len(series) == 0 {
		return
	}

	base := series[0].TotalUSD
	var accrued float64
	for i := range series {
		accrued += series[i].RewardsUSD
		series[i].CompoundUSD = base + accrued
	}
}

// DailyYield returns the per-period percentage change of total value. The
// entry for i==0 has no predecessor and is reported as ok=false via a
// parallel validity slice.
func DailyYield(series Series) (yields []float64, ok []bool) {
	yields = make([]float64, len(series))
	ok = make([]bool, len(series))

	for i := 1; i < len(series); i++ {
		prev := series[i-1].TotalUSD
		if prev == 0 {
			continue
		}
		yields[i] = (series[i].TotalUSD - prev) / prev * 100
		ok[i] = true
	}

	return yields, ok
}

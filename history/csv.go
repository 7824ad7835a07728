package history

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/defistate/lp-tracker-go/position"
)

// legacy files predate the price-source columns
const (
	csvColumnsLegacy = 8
	csvColumns       = 10
)

// CSVStore persists the series as one CSV file, one row per period. The
// column layout is fixed for backward compatibility with files written by
// earlier deployments (and occasionally edited by hand):
//
//	date,<sym0>,<sym1>,<sym0>_usd,<sym1>_usd,total_usd,rewards_usd,compound_usd[,price0_source,price1_source]
//
// The amount columns hold the full holdings (in-range plus owed fees), so a
// reloaded row carries its total in Amount and zero in Owed. The derived
// columns only need totals and rewards, which survive the round trip exactly.
type CSVStore struct {
	path    string
	symbol0 string
	symbol1 string
}

// NewCSVStore creates a store writing to path, labeling the per-token columns
// with the pair's symbols.
func NewCSVStore(path, symbol0, symbol1 string) *CSVStore {
	return &CSVStore{path: path, symbol0: symbol0, symbol1: symbol1}
}

func (s *CSVStore) header() []string {
	return []string{
		"date",
		s.symbol0,
		s.symbol1,
		s.symbol0 + "_usd",
		s.symbol1 + "_usd",
		"total_usd",
		"rewards_usd",
		"compound_usd",
		"price0_source",
		"price1_source",
	}
}

// Load reads the persisted series. A missing file is an empty series; a file
// that cannot be parsed is fatal and wrapped in ErrCorruptSeries.
func (s *CSVStore) Load(_ context.Context) (Series, error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return Series{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", s.path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptSeries, s.path, err)
	}
	if len(records) == 0 {
		return Series{}, nil
	}

	headerLen := len(records[0])
	if headerLen != csvColumns && headerLen != csvColumnsLegacy {
		return nil, fmt.Errorf("%w: %s: header has %d columns", ErrCorruptSeries, s.path, headerLen)
	}
	if records[0][0] != "date" {
		return nil, fmt.Errorf("%w: %s: unexpected header %q", ErrCorruptSeries, s.path, records[0][0])
	}

	series := make(Series, 0, len(records)-1)
	for i, record := range records[1:] {
		obs, err := s.decodeRow(record)
		if err != nil {
			return nil, fmt.Errorf("%w: %s row %d: %v", ErrCorruptSeries, s.path, i+2, err)
		}
		series = append(series, obs)
	}

	return series, nil
}

func (s *CSVStore) decodeRow(record []string) (position.Observation, error) {
	if len(record) != csvColumns && len(record) != csvColumnsLegacy {
		return position.Observation{}, fmt.Errorf("row has %d columns", len(record))
	}

	values := make([]float64, 7)
	for i := range values {
		v, err := strconv.ParseFloat(record[i+1], 64)
		if err != nil {
			return position.Observation{}, fmt.Errorf("column %d: %v", i+1, err)
		}
		values[i] = v
	}

	obs := position.Observation{
		Key:         record[0],
		Amount0:     values[0],
		Amount1:     values[1],
		USD0:        values[2],
		USD1:        values[3],
		TotalUSD:    values[4],
		RewardsUSD:  values[5],
		CompoundUSD: values[6],
	}

	if len(record) == csvColumns {
		obs.Price0Source = position.PriceSource(record[8])
		obs.Price1Source = position.PriceSource(record[9])
	}

	return obs, nil
}

// Save atomically replaces the persisted file: the series is written to a
// temporary file in the same directory and renamed over the target, so a
// failed run never leaves a truncated history behind.
func (s *CSVStore) Save(_ context.Context, series Series) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp history: %w", err)
	}
	defer os.Remove(tmp.Name())

	writer := csv.NewWriter(tmp)
	if err := writer.Write(s.header()); err != nil {
		tmp.Close()
		return fmt.Errorf("write history header: %w", err)
	}
	for _, obs := range series {
		if err := writer.Write(encodeRow(obs)); err != nil {
			tmp.Close()
			return fmt.Errorf("write history row %s: %w", obs.Key, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp history: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace history %s: %w", s.path, err)
	}
	return nil
}

func encodeRow(obs position.Observation) []string {
	return []string{
		obs.Key,
		formatFloat(obs.Total0()),
		formatFloat(obs.Total1()),
		formatFloat(obs.USD0),
		formatFloat(obs.USD1),
		formatFloat(obs.TotalUSD),
		formatFloat(obs.RewardsUSD),
		formatFloat(obs.CompoundUSD),
		string(obs.Price0Source),
		string(obs.Price1Source),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

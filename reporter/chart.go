// Package reporter renders the position history for humans: a per-period
// chart image and a one-line console summary.
package reporter

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/defistate/lp-tracker-go/history"
)

var ErrEmptySeries = errors.New("cannot chart an empty series")

// Chart renders the total-value and compound curves to a PNG whose filename
// embeds the run's period key: different periods get different files, the
// same period overwrites its own file on re-run.
type Chart struct {
	dir string
}

// NewChart creates a renderer writing images into dir.
func NewChart(dir string) *Chart {
	return &Chart{dir: dir}
}

// Render draws the series and returns the path of the written image.
func (c *Chart) Render(series history.Series, periodKey string) (string, error) {
	if len(series) == 0 {
		return "", ErrEmptySeries
	}

	totals := make(plotter.XYs, len(series))
	compounds := make(plotter.XYs, len(series))
	labels := make([]string, len(series))
	for i, obs := range series {
		totals[i] = plotter.XY{X: float64(i), Y: obs.TotalUSD}
		compounds[i] = plotter.XY{X: float64(i), Y: obs.CompoundUSD}
		labels[i] = obs.Key
	}

	p := plot.New()
	p.Title.Text = "LP Position Value & Compound"
	p.X.Label.Text = "Period"
	p.Y.Label.Text = "USD Value"
	p.NominalX(labels...)

	totalLine, err := plotter.NewLine(totals)
	if err != nil {
		return "", fmt.Errorf("build total line: %w", err)
	}

	compoundLine, err := plotter.NewLine(compounds)
	if err != nil {
		return "", fmt.Errorf("build compound line: %w", err)
	}
	compoundLine.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(totalLine, compoundLine)
	p.Legend.Add("Total USD", totalLine)
	p.Legend.Add("Compound (from rewards)", compoundLine)
	p.Legend.Top = true

	path := filepath.Join(c.dir, FileName(periodKey))
	if err := p.Save(9*vg.Inch, 5*vg.Inch, path); err != nil {
		return "", fmt.Errorf("save chart %s: %w", path, err)
	}
	return path, nil
}

// FileName returns the image name for a period key. Timestamp keys contain
// characters that are unsafe in filenames and are replaced.
func FileName(periodKey string) string {
	safe := strings.NewReplacer(":", "-", "/", "-", " ", "_").Replace(periodKey)
	return "lp_value_" + safe + ".png"
}

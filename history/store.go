package history

import (
	"context"
	"errors"
)

// ErrCorruptSeries marks a persisted history that cannot be decoded. The
// store never attempts partial repair; operator intervention is required.
var ErrCorruptSeries = errors.New("persisted history is corrupt")

// Store persists the full series. Load on a store that has never been written
// returns an empty series and no error. Save replaces the persisted state
// atomically: a failed save leaves the previous state intact.
type Store interface {
	Load(ctx context.Context) (Series, error)
	Save(ctx context.Context, series Series) error
}

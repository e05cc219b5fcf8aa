// Package history loads the full factory discharge record for the batch
// consumers (backtrack attribution and the anti-cheat audit). Two providers
// exist: the CSV archive directory and a Postgres readings table.
package history

import (
	"context"

	"github.com/cetp/sentinel/internal/ingest"
	"github.com/cetp/sentinel/internal/stream"
)

// Loader yields the complete factory history, ordered by time within each
// factory's series.
type Loader interface {
	Load(ctx context.Context) ([]stream.FactoryRow, error)
}

// CSVLoader reads every factory_*.csv under a directory.
type CSVLoader struct {
	Dir string
}

func (l CSVLoader) Load(ctx context.Context) ([]stream.FactoryRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ingest.LoadFactoryRows(l.Dir)
}

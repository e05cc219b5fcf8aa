package history

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq"

	"github.com/cetp/sentinel/internal/stream"
)

// PostgresLoader reads the factory_readings table. Schema:
//
//	factory_readings(factory_id text, time text, cod, bod, ph, tss double precision null)
//
// Null channel values map to nil pointers exactly as the CSV path does.
type PostgresLoader struct {
	DSN    string
	logger *log.Logger
}

func NewPostgresLoader(dsn string) *PostgresLoader {
	return &PostgresLoader{
		DSN:    dsn,
		logger: log.New(log.Writer(), "[HISTORY] ", log.LstdFlags),
	}
}

func (l *PostgresLoader) Load(ctx context.Context) ([]stream.FactoryRow, error) {
	db, err := sql.Open("postgres", l.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT factory_id, time, cod, bod, ph, tss FROM factory_readings ORDER BY time, factory_id`)
	if err != nil {
		return nil, fmt.Errorf("query factory_readings: %w", err)
	}
	defer rows.Close()

	var out []stream.FactoryRow
	for rows.Next() {
		var (
			r                 stream.FactoryRow
			cod, bod, ph, tss sql.NullFloat64
		)
		if err := rows.Scan(&r.FactoryID, &r.Time, &cod, &bod, &ph, &tss); err != nil {
			return nil, fmt.Errorf("scan factory_readings row: %w", err)
		}
		r.COD = nullToPtr(cod)
		r.BOD = nullToPtr(bod)
		r.PH = nullToPtr(ph)
		r.TSS = nullToPtr(tss)
		if r.COD != nil {
			r.Status = stream.StatusNormal
		} else {
			r.Status = stream.StatusBlackout
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate factory_readings: %w", err)
	}
	l.logger.Printf("loaded %d factory rows from postgres", len(out))
	return out, nil
}

func nullToPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// Package backtrack answers "who discharged it": for each CETP shock event
// it rewinds the pipe travel time and searches the factory discharge history
// inside a tolerance window around that instant, attributing the shock to
// the worst COD discharge found there.
package backtrack

import (
	"log"
	"sort"
	"time"

	"github.com/cetp/sentinel/internal/config"
	"github.com/cetp/sentinel/internal/stream"
)

// indexedRow is a factory reading positioned on the millisecond axis.
// Rows with a null COD are excluded at build time; a silent sensor can
// never be attributed.
type indexedRow struct {
	ms  int64
	row stream.FactoryRow
}

// Index is an immutable time-sorted view over the factory history.
type Index struct {
	rows       []indexedRow
	timeFormat string
}

func NewIndex(rows []stream.FactoryRow, timeFormat string) *Index {
	idx := &Index{timeFormat: timeFormat}
	for _, r := range rows {
		if r.COD == nil {
			continue
		}
		ts, ok := stream.ParseTime(r.Time, timeFormat)
		if !ok {
			continue
		}
		idx.rows = append(idx.rows, indexedRow{ms: ts.UnixMilli(), row: r})
	}
	sort.SliceStable(idx.rows, func(i, j int) bool { return idx.rows[i].ms < idx.rows[j].ms })
	return idx
}

// Len reports how many attributable rows the index holds.
func (idx *Index) Len() int { return len(idx.rows) }

// between returns the rows with ms in [lo, hi], located by binary search.
func (idx *Index) between(lo, hi int64) []indexedRow {
	start := sort.Search(len(idx.rows), func(i int) bool { return idx.rows[i].ms >= lo })
	end := sort.Search(len(idx.rows), func(i int) bool { return idx.rows[i].ms > hi })
	return idx.rows[start:end]
}

// Attributor resolves shock events against a factory index.
type Attributor struct {
	idx        *Index
	travel     time.Duration
	tolerance  time.Duration
	timeFormat string
	logger     *log.Logger
}

func NewAttributor(idx *Index, cfg config.CETPConfig, timeFormat string) *Attributor {
	return &Attributor{
		idx:        idx,
		travel:     time.Duration(cfg.PipeTravelMinutes) * time.Minute,
		tolerance:  time.Duration(cfg.ASOFToleranceSeconds) * time.Second,
		timeFormat: timeFormat,
		logger:     log.New(log.Writer(), "[BACKTRACK] ", log.LstdFlags),
	}
}

// Attribute builds the evidence record for one shock event. The candidate
// set is every attributable factory row within the tolerance window around
// the backtracked instant; the winner has the highest COD, with ties broken
// by the latest timestamp, then the lexicographically smallest factory id.
// An empty candidate set yields a record with null attribution fields.
func (a *Attributor) Attribute(runID string, ev stream.ShockEvent) stream.EvidenceRecord {
	rec := stream.EvidenceRecord{
		RunID:         runID,
		LoggedAt:      time.Now().UTC().Format(time.RFC3339),
		CETPEventTime: ev.Time,
		CETPCOD:       stream.Round2(ev.CODValue),
		BreachMag:     stream.Round2(ev.BreachMag),
		AlertLevel:    ev.AlertLevel,
	}

	ts, ok := stream.ParseTime(ev.Time, a.timeFormat)
	if !ok {
		a.logger.Printf("unparseable shock time %q; attribution skipped", ev.Time)
		return rec
	}
	target := ts.Add(-a.travel)
	rec.BacktrackTime = target.Format(a.timeFormat)

	lo := target.Add(-a.tolerance).UnixMilli()
	hi := target.Add(a.tolerance).UnixMilli()
	candidates := a.idx.between(lo, hi)
	if len(candidates) == 0 {
		a.logger.Printf("no factory reading within ±%s of %s; shock unattributed",
			a.tolerance, rec.BacktrackTime)
		return rec
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		switch {
		case *c.row.COD > *best.row.COD:
			best = c
		case *c.row.COD == *best.row.COD && c.ms > best.ms:
			best = c
		case *c.row.COD == *best.row.COD && c.ms == best.ms && c.row.FactoryID < best.row.FactoryID:
			best = c
		}
	}

	rec.AttributedFactory = stream.Str(best.row.FactoryID)
	rec.FactoryCOD = stream.Float(stream.Round2(*best.row.COD))
	if best.row.BOD != nil {
		rec.FactoryBOD = stream.Float(stream.Round2(*best.row.BOD))
	}
	if best.row.TSS != nil {
		rec.FactoryTSS = stream.Float(stream.Round2(*best.row.TSS))
	}
	a.logger.Printf("shock at %s attributed to %s (cod=%.2f at %s)",
		ev.Time, best.row.FactoryID, *best.row.COD, best.row.Time)
	return rec
}

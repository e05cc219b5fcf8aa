// Package anticheat runs the batch tamper audit over factory discharge
// history. Three independent detectors sweep tumbling time windows per
// factory: frozen sensors (zero variance), dilution gaming (COD drops while
// TSS holds), and reporting blackouts (sustained null streaks).
package anticheat

import (
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/cetp/sentinel/internal/config"
	"github.com/cetp/sentinel/internal/stream"
)

// frozenEpsilon is the spread below which a COD channel is considered stuck.
const frozenEpsilon = 1e-4

type timedRow struct {
	ms  int64
	row stream.FactoryRow
}

type Detector struct {
	cfg        config.AntiCheatConfig
	timeFormat string
	logger     *log.Logger
}

func New(cfg config.AntiCheatConfig, timeFormat string) *Detector {
	return &Detector{
		cfg:        cfg,
		timeFormat: timeFormat,
		logger:     log.New(log.Writer(), "[TAMPER] ", log.LstdFlags),
	}
}

// Run executes all three detectors over the full history and returns the
// combined findings ordered by window end. Each finding is also echoed to
// the console for the on-duty operator.
func (d *Detector) Run(runID string, rows []stream.FactoryRow) []stream.TamperRecord {
	byFactory := d.groupByFactory(rows)

	factoryIDs := make([]string, 0, len(byFactory))
	for id := range byFactory {
		factoryIDs = append(factoryIDs, id)
	}
	sort.Strings(factoryIDs)

	loggedAt := time.Now().UTC().Format(time.RFC3339)
	var out []stream.TamperRecord
	for _, id := range factoryIDs {
		series := byFactory[id]
		out = append(out, d.detectZeroVariance(runID, loggedAt, id, series)...)
		out = append(out, d.detectDilution(runID, loggedAt, id, series)...)
		out = append(out, d.detectBlackout(runID, loggedAt, id, series)...)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].WindowEnd < out[j].WindowEnd })
	for _, rec := range out {
		fmt.Printf("[TAMPER] %s | Factory: %s | Window: %s\n", rec.TamperType, rec.FactoryID, rec.WindowEnd)
	}
	d.logger.Printf("audit complete: %d finding(s) across %d factories", len(out), len(factoryIDs))
	return out
}

func (d *Detector) groupByFactory(rows []stream.FactoryRow) map[string][]timedRow {
	byFactory := make(map[string][]timedRow)
	for _, r := range rows {
		ts, ok := stream.ParseTime(r.Time, d.timeFormat)
		if !ok {
			continue
		}
		byFactory[r.FactoryID] = append(byFactory[r.FactoryID], timedRow{ms: ts.UnixMilli(), row: r})
	}
	for id := range byFactory {
		series := byFactory[id]
		sort.SliceStable(series, func(i, j int) bool { return series[i].ms < series[j].ms })
		byFactory[id] = series
	}
	return byFactory
}

// tumble partitions a time-sorted series into fixed windows aligned on the
// epoch. Windows are identified by their end time; empty windows between
// readings are skipped.
func tumble(series []timedRow, sizeMS int64) map[int64][]timedRow {
	buckets := make(map[int64][]timedRow)
	for _, tr := range series {
		end := (tr.ms/sizeMS)*sizeMS + sizeMS
		buckets[end] = append(buckets[end], tr)
	}
	return buckets
}

func sortedKeys(buckets map[int64][]timedRow) []int64 {
	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (d *Detector) fmtMS(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(d.timeFormat)
}

// detectZeroVariance flags windows where a factory's COD channel reports at
// least two samples whose spread is effectively zero, i.e. a frozen or
// looped sensor feed.
func (d *Detector) detectZeroVariance(runID, loggedAt, factoryID string, series []timedRow) []stream.TamperRecord {
	sizeMS := int64(d.cfg.ZeroVarianceMinutes) * 60_000
	buckets := tumble(series, sizeMS)

	var out []stream.TamperRecord
	for _, end := range sortedKeys(buckets) {
		codMin := math.Inf(1)
		codMax := math.Inf(-1)
		n := 0
		for _, tr := range buckets[end] {
			if tr.row.COD == nil {
				continue
			}
			v := *tr.row.COD
			codMin = math.Min(codMin, v)
			codMax = math.Max(codMax, v)
			n++
		}
		if n < 2 || codMax-codMin >= frozenEpsilon {
			continue
		}
		out = append(out, stream.TamperRecord{
			RunID:      runID,
			LoggedAt:   loggedAt,
			TamperType: stream.TamperZeroVariance,
			FactoryID:  factoryID,
			WindowEnd:  d.fmtMS(end),
			CODMax:     stream.Float(codMax),
			CODMin:     stream.Float(codMin),
			CODRange:   stream.Float(codMax - codMin),
			RowCount:   stream.Int(n),
		})
	}
	return out
}

// detectDilution compares consecutive windows: a sharp COD drop while TSS
// holds steady is the signature of water dilution upstream of the COD probe.
// The previous qualifying window is the baseline.
func (d *Detector) detectDilution(runID, loggedAt, factoryID string, series []timedRow) []stream.TamperRecord {
	sizeMS := int64(d.cfg.DilutionWindowMinutes) * 60_000
	buckets := tumble(series, sizeMS)

	type windowMeans struct {
		end      int64
		cod, tss float64
	}
	var windows []windowMeans
	for _, end := range sortedKeys(buckets) {
		var codSum, tssSum float64
		n := 0
		for _, tr := range buckets[end] {
			if tr.row.COD == nil || tr.row.TSS == nil {
				continue
			}
			codSum += *tr.row.COD
			tssSum += *tr.row.TSS
			n++
		}
		if n < 3 {
			continue
		}
		windows = append(windows, windowMeans{end: end, cod: codSum / float64(n), tss: tssSum / float64(n)})
	}

	var out []stream.TamperRecord
	for i := 1; i < len(windows); i++ {
		prev, cur := windows[i-1], windows[i]
		codDropped := cur.cod <= prev.cod*(1-d.cfg.CODDropFraction)
		tssStable := cur.tss >= prev.tss*(1-d.cfg.TSSStableFraction)
		if !codDropped || !tssStable {
			continue
		}
		out = append(out, stream.TamperRecord{
			RunID:       runID,
			LoggedAt:    loggedAt,
			TamperType:  stream.TamperDilution,
			FactoryID:   factoryID,
			WindowEnd:   d.fmtMS(cur.end),
			MeanCOD:     stream.Float(cur.cod),
			MeanTSS:     stream.Float(cur.tss),
			BaselineCOD: stream.Float(prev.cod),
			BaselineTSS: stream.Float(prev.tss),
		})
	}
	return out
}

// detectBlackout counts null COD rows against the full reporting stream.
// The trailing partial window is skipped so a file that simply ends mid
// window cannot read as a blackout.
func (d *Detector) detectBlackout(runID, loggedAt, factoryID string, series []timedRow) []stream.TamperRecord {
	if len(series) == 0 {
		return nil
	}
	sizeMS := int64(d.cfg.BlackoutMinMinutes) * 60_000
	buckets := tumble(series, sizeMS)
	lastMS := series[len(series)-1].ms

	var out []stream.TamperRecord
	for _, end := range sortedKeys(buckets) {
		if end > lastMS {
			continue
		}
		total := len(buckets[end])
		nulls := 0
		for _, tr := range buckets[end] {
			if tr.row.COD == nil {
				nulls++
			}
		}
		ratio := float64(nulls) / float64(total)
		if ratio < d.cfg.BlackoutNullRatio {
			continue
		}
		out = append(out, stream.TamperRecord{
			RunID:         runID,
			LoggedAt:      loggedAt,
			TamperType:    stream.TamperBlackout,
			FactoryID:     factoryID,
			WindowEnd:     d.fmtMS(end),
			TotalRows:     stream.Int(total),
			BlackoutRows:  stream.Int(nulls),
			BlackoutRatio: stream.Float(ratio),
		})
	}
	return out
}

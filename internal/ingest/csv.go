// Package ingest reads the append-only MPCB CSV exports and normalizes them
// into the stream row types. Two access patterns are supported: replay
// (read everything, then EOF) and tail (fsnotify-driven follow of appended
// bytes). Per-file insertion order is always preserved.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cetp/sentinel/internal/stream"
)

// CETPColumnMap renames raw MPCB export headers to canonical column names.
// Clean exports already carry the canonical names; both are accepted.
var CETPColumnMap = map[string]string{
	"S. No":                        "s_no",
	"Time":                         "time",
	"CETP_INLET-COD - (mg/l) Raw":  "cetp_inlet_cod",
	"CETP_INLET-BOD - (mg/l) Raw":  "cetp_inlet_bod",
	"CETP_INLET-pH - (pH) Raw":     "cetp_inlet_ph",
	"CETP_INLET-TSS - (mg/l) Raw":  "cetp_inlet_tss",
	"CETP_OUTLET-COD - (mg/l) Raw": "cetp_outlet_cod",
	"CETP_OUTLET-BOD - (mg/l) Raw": "cetp_outlet_bod",
	"CETP_OUTLET-pH - (pH) Raw":    "cetp_outlet_ph",
	"CETP_OUTLET-TSS - (mg/l) Raw": "cetp_outlet_tss",
}

// FactoryColumnMap renames raw factory export headers to canonical names.
var FactoryColumnMap = map[string]string{
	"S. No":            "s_no",
	"Time":             "time",
	"factory_id":       "factory_id",
	"COD - (mg/l) Raw": "cod",
	"BOD - (mg/l) Raw": "bod",
	"pH - (pH) Raw":    "ph",
	"TSS - (mg/l) Raw": "tss",
}

// ParseNullFloat parses a numeric CSV cell with tolerance for the null
// markers the MPCB exports use. Blank, "NA", "nan" and unparseable or
// non-finite values all map to nil, never to an error.
func ParseNullFloat(cell string) *float64 {
	s := strings.TrimSpace(cell)
	if s == "" {
		return nil
	}
	switch strings.ToLower(s) {
	case "na", "nan", "null", "none":
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// canonicalHeader maps a raw header cell through the rename map, falling
// back to a trimmed lowercase form so clean exports pass through unchanged.
func canonicalHeader(cell string, rename map[string]string) string {
	if canon, ok := rename[strings.TrimSpace(cell)]; ok {
		return canon
	}
	return strings.ToLower(strings.TrimSpace(cell))
}

// headerIndex resolves the position of each canonical column in the header.
func headerIndex(header []string, rename map[string]string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, cell := range header {
		idx[canonicalHeader(cell, rename)] = i
	}
	return idx
}

func cellAt(rec []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return rec[i]
}

func parseSeqNo(cell string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(cell), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// parseCETPRecord builds one CETPRow from a raw CSV record.
func parseCETPRecord(rec []string, idx map[string]int) stream.CETPRow {
	return stream.CETPRow{
		SeqNo:     parseSeqNo(cellAt(rec, idx, "s_no")),
		Time:      strings.TrimSpace(cellAt(rec, idx, "time")),
		InletCOD:  ParseNullFloat(cellAt(rec, idx, "cetp_inlet_cod")),
		InletBOD:  ParseNullFloat(cellAt(rec, idx, "cetp_inlet_bod")),
		InletPH:   ParseNullFloat(cellAt(rec, idx, "cetp_inlet_ph")),
		InletTSS:  ParseNullFloat(cellAt(rec, idx, "cetp_inlet_tss")),
		OutletCOD: ParseNullFloat(cellAt(rec, idx, "cetp_outlet_cod")),
		OutletBOD: ParseNullFloat(cellAt(rec, idx, "cetp_outlet_bod")),
		OutletPH:  ParseNullFloat(cellAt(rec, idx, "cetp_outlet_ph")),
		OutletTSS: ParseNullFloat(cellAt(rec, idx, "cetp_outlet_tss")),
	}
}

// parseFactoryRecord builds one FactoryRow and tags its status: NORMAL for
// a numeric COD, BLACKOUT for a null COD (sensor silence).
func parseFactoryRecord(rec []string, idx map[string]int) stream.FactoryRow {
	row := stream.FactoryRow{
		SeqNo:     parseSeqNo(cellAt(rec, idx, "s_no")),
		Time:      strings.TrimSpace(cellAt(rec, idx, "time")),
		FactoryID: strings.TrimSpace(cellAt(rec, idx, "factory_id")),
		COD:       ParseNullFloat(cellAt(rec, idx, "cod")),
		BOD:       ParseNullFloat(cellAt(rec, idx, "bod")),
		PH:        ParseNullFloat(cellAt(rec, idx, "ph")),
		TSS:       ParseNullFloat(cellAt(rec, idx, "tss")),
	}
	if row.COD != nil {
		row.Status = stream.StatusNormal
	} else {
		row.Status = stream.StatusBlackout
	}
	return row
}

// ReadCETPFile reads one CETP CSV fully, preserving row order.
func ReadCETPFile(path string) ([]stream.CETPRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cetp csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read cetp header: %w", err)
	}
	idx := headerIndex(header, CETPColumnMap)

	var rows []stream.CETPRow
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed line; the rest of the file is still usable.
			continue
		}
		rows = append(rows, parseCETPRecord(rec, idx))
	}
	return rows, nil
}

// ReadFactoryFile reads one factory CSV fully, preserving row order.
func ReadFactoryFile(path string) ([]stream.FactoryRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open factory csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read factory header: %w", err)
	}
	idx := headerIndex(header, FactoryColumnMap)

	var rows []stream.FactoryRow
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		rows = append(rows, parseFactoryRecord(rec, idx))
	}
	return rows, nil
}

// ListCETPFiles returns the CSV files of a CETP data directory, sorted.
func ListCETPFiles(dir string) ([]string, error) {
	return listCSVFiles(dir, "*.csv")
}

// ListFactoryFiles returns the factory_*.csv files of a directory, sorted.
func ListFactoryFiles(dir string) ([]string, error) {
	return listCSVFiles(dir, "factory_*.csv")
}

func listCSVFiles(dir, pattern string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("data directory %s: %w", dir, err)
	}
	paths, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// LoadFactoryRows reads every factory CSV in dir into one slice, file by
// file in sorted filename order. BLACKOUT rows are retained.
func LoadFactoryRows(dir string) ([]stream.FactoryRow, error) {
	paths, err := ListFactoryFiles(dir)
	if err != nil {
		return nil, err
	}
	var all []stream.FactoryRow
	for _, p := range paths {
		rows, err := ReadFactoryFile(p)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
	}
	return all, nil
}

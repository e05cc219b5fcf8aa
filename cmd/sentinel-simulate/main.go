// Command sentinel-simulate generates the demo dataset: a cleaned CETP
// export plus four factory discharge CSVs exercising every detector — one
// honest factory, one shock discharger, one frozen sensor, one reporting
// blackout. Deterministic for a given seed.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/cetp/sentinel/internal/config"
	"github.com/cetp/sentinel/internal/ingest"
	"github.com/cetp/sentinel/internal/stream"
)

const (
	exitOK            = 0
	exitConfigInvalid = 1
	exitWriteFailed   = 2
)

// Shock discharges surface at the CETP inlet at these times; the guilty
// factory discharged one pipe-travel earlier.
var spikeTimes = []string{"2026-02-01 12:23", "2026-02-01 11:35"}

const (
	timelineStart = "2026-02-01 10:00"
	timelineEnd   = "2026-02-01 14:00"
	shockMinutes  = 6
	blackoutMins  = 20
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	cetpRaw := flag.String("cetp-raw", "", "raw MPCB CETP export to clean and reuse as the timeline")
	outDir := flag.String("out-dir", "data", "output root (cetp/ and factories/ are created under it)")
	seed := flag.Int64("seed", 42, "RNG seed")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return exitConfigInvalid
	}

	rng := rand.New(rand.NewSource(*seed))

	cetpRows, err := buildCETPTimeline(*cetpRaw, cfg, rng)
	if err != nil {
		logger.Error("timeline build failed", "error", err)
		return exitWriteFailed
	}

	cetpDir := filepath.Join(*outDir, "cetp")
	factoryDir := filepath.Join(*outDir, "factories")
	for _, dir := range []string{cetpDir, factoryDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("create output dir failed", "dir", dir, "error", err)
			return exitWriteFailed
		}
	}

	if err := writeCETP(filepath.Join(cetpDir, "cetp_clean.csv"), cetpRows); err != nil {
		logger.Error("cetp write failed", "error", err)
		return exitWriteFailed
	}

	// Fixed generation order keeps the shared RNG stream deterministic.
	sim := &simulator{cfg: cfg, rng: rng, timeline: cetpRows}
	factories := []struct {
		id  string
		gen func(i int, row stream.CETPRow) []string
	}{
		{"FACTORY_A", sim.honest},
		{"FACTORY_B", sim.shock},
		{"FACTORY_C", sim.frozen},
		{"FACTORY_D", sim.blackout},
	}
	for _, fac := range factories {
		path := filepath.Join(factoryDir, "factory_"+fac.id[len("FACTORY_"):]+".csv")
		if err := sim.writeFactory(path, fac.id, fac.gen); err != nil {
			logger.Error("factory write failed", "factory", fac.id, "error", err)
			return exitWriteFailed
		}
	}

	logger.Info("simulation written",
		"cetp_rows", len(cetpRows),
		"cetp_dir", cetpDir,
		"factory_dir", factoryDir,
		"seed", *seed)
	return exitOK
}

// buildCETPTimeline either cleans a raw MPCB export or synthesizes a
// minute-resolution inlet series with the two shock spikes.
func buildCETPTimeline(rawPath string, cfg *config.Config, rng *rand.Rand) ([]stream.CETPRow, error) {
	if rawPath != "" {
		return ingest.ReadCETPFile(rawPath)
	}

	start, _ := stream.ParseTime(timelineStart, cfg.Input.TimeFormat)
	end, _ := stream.ParseTime(timelineEnd, cfg.Input.TimeFormat)

	spikes := make([]time.Time, 0, len(spikeTimes))
	for _, s := range spikeTimes {
		t, _ := stream.ParseTime(s, cfg.Input.TimeFormat)
		spikes = append(spikes, t)
	}

	var rows []stream.CETPRow
	seq := int64(1)
	for t := start; !t.After(end); t = t.Add(time.Minute) {
		row := stream.CETPRow{
			SeqNo: seq,
			Time:  t.Format(cfg.Input.TimeFormat),
		}
		seq++

		// Sparse telemetry gaps the analyzers really produce.
		if rng.Float64() < 0.02 {
			rows = append(rows, row)
			continue
		}

		cod := cfg.CETP.CODBaseline + rng.NormFloat64()*8
		for _, sp := range spikes {
			if !t.Before(sp) && t.Before(sp.Add(shockMinutes*time.Minute)) {
				cod = 450 + rng.NormFloat64()*5
			}
		}
		bod := cod*0.38 + rng.NormFloat64()*3
		ph := 7.3 + rng.NormFloat64()*0.2
		tss := 160 + rng.NormFloat64()*12

		row.InletCOD = stream.Float(stream.Round2(cod))
		row.InletBOD = stream.Float(stream.Round2(bod))
		row.InletPH = stream.Float(stream.Round2(ph))
		row.InletTSS = stream.Float(stream.Round2(tss))
		row.OutletCOD = stream.Float(stream.Round2(cod * 0.35))
		row.OutletBOD = stream.Float(stream.Round2(bod * 0.30))
		row.OutletPH = stream.Float(stream.Round2(7.1 + rng.NormFloat64()*0.1))
		row.OutletTSS = stream.Float(stream.Round2(tss * 0.40))
		rows = append(rows, row)
	}
	return rows, nil
}

type simulator struct {
	cfg      *config.Config
	rng      *rand.Rand
	timeline []stream.CETPRow
}

func (s *simulator) travel() time.Duration {
	return time.Duration(s.cfg.CETP.PipeTravelMinutes) * time.Minute
}

func (s *simulator) spikeAt(i int) (time.Time, bool) {
	t, ok := stream.ParseTime(s.timeline[i].Time, s.cfg.Input.TimeFormat)
	return t, ok
}

// inWindow reports whether timeline row i falls in [from, from+minutes).
func (s *simulator) inWindow(i int, from time.Time, minutes int) bool {
	t, ok := s.spikeAt(i)
	if !ok {
		return false
	}
	return !t.Before(from) && t.Before(from.Add(time.Duration(minutes)*time.Minute))
}

func (s *simulator) spikes() []time.Time {
	out := make([]time.Time, 0, len(spikeTimes))
	for _, sp := range spikeTimes {
		t, _ := stream.ParseTime(sp, s.cfg.Input.TimeFormat)
		out = append(out, t)
	}
	return out
}

func f2(v float64) string { return fmt.Sprintf("%.2f", v) }

// honest discharges steadily within consent limits; NA gaps mirror the
// CETP timeline.
func (s *simulator) honest(i int, row stream.CETPRow) []string {
	if row.InletCOD == nil {
		return []string{"", "", "", ""}
	}
	cod := 120 + s.rng.NormFloat64()*3
	return []string{
		f2(cod),
		f2(cod*0.35 + s.rng.NormFloat64()*2),
		f2(7.2 + s.rng.NormFloat64()*0.15),
		f2(140 + s.rng.NormFloat64()*8),
	}
}

// shock is the guilty discharger: a 450 mg/l COD slug (BOD 180, TSS 300)
// one pipe-travel before each CETP spike.
func (s *simulator) shock(i int, row stream.CETPRow) []string {
	for _, sp := range s.spikes() {
		if s.inWindow(i, sp.Add(-s.travel()), shockMinutes) {
			return []string{
				f2(450 + s.rng.NormFloat64()*5),
				f2(180),
				f2(6.4 + s.rng.NormFloat64()*0.1),
				f2(300),
			}
		}
	}
	if row.InletCOD == nil {
		return []string{"", "", "", ""}
	}
	cod := 160 + s.rng.NormFloat64()*5
	return []string{
		f2(cod),
		f2(cod*0.40 + s.rng.NormFloat64()*2),
		f2(7.0 + s.rng.NormFloat64()*0.15),
		f2(170 + s.rng.NormFloat64()*10),
	}
}

// frozen reports the same reading forever, the zero-variance signature.
func (s *simulator) frozen(i int, row stream.CETPRow) []string {
	return []string{"115.00", "40.25", "7.00", "90.00"}
}

// blackout goes dark for twenty minutes just before the first spike's
// discharge window, otherwise behaves like an honest factory.
func (s *simulator) blackout(i int, row stream.CETPRow) []string {
	first := s.spikes()[0]
	dark := first.Add(-s.travel()).Add(-5 * time.Minute)
	if s.inWindow(i, dark, blackoutMins) {
		return []string{"", "", "", ""}
	}
	if row.InletCOD == nil {
		return []string{"", "", "", ""}
	}
	cod := 130 + s.rng.NormFloat64()*4
	return []string{
		f2(cod),
		f2(cod*0.33 + s.rng.NormFloat64()*2),
		f2(7.4 + s.rng.NormFloat64()*0.1),
		f2(150 + s.rng.NormFloat64()*9),
	}
}

func (s *simulator) writeFactory(path, factoryID string, gen func(i int, row stream.CETPRow) []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"s_no", "time", "factory_id", "cod", "bod", "ph", "tss"}); err != nil {
		return err
	}
	for i, row := range s.timeline {
		channels := gen(i, row)
		rec := append([]string{fmt.Sprintf("%d", i+1), row.Time, factoryID}, channels...)
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeCETP(path string, rows []stream.CETPRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"s_no", "time",
		"cetp_inlet_cod", "cetp_inlet_bod", "cetp_inlet_ph", "cetp_inlet_tss",
		"cetp_outlet_cod", "cetp_outlet_bod", "cetp_outlet_ph", "cetp_outlet_tss",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	cell := func(v *float64) string {
		if v == nil {
			return ""
		}
		return f2(*v)
	}
	for _, row := range rows {
		rec := []string{
			fmt.Sprintf("%d", row.SeqNo), row.Time,
			cell(row.InletCOD), cell(row.InletBOD), cell(row.InletPH), cell(row.InletTSS),
			cell(row.OutletCOD), cell(row.OutletBOD), cell(row.OutletPH), cell(row.OutletTSS),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

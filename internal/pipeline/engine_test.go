package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cetp/sentinel/internal/config"
	"github.com/cetp/sentinel/internal/events"
	"github.com/cetp/sentinel/internal/ingest"
)

// testConfig builds a replay scenario small enough to reason about by hand:
// minute-cadence readings, 5-minute windows, a two-reading persistence gate.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()

	dir := t.TempDir()
	cfg.Input.CETPDataDir = filepath.Join(dir, "cetp")
	cfg.Input.FactoryDataDir = filepath.Join(dir, "factories")
	cfg.Sinks.EvidencePath = filepath.Join(dir, "alerts", "evidence_log.jsonl")
	cfg.Sinks.AlertsPath = filepath.Join(dir, "alerts", "active_alerts.jsonl")
	cfg.Sinks.QuarantinePath = filepath.Join(dir, "alerts", "quarantine_log.jsonl")
	cfg.Sinks.MetricsPath = filepath.Join(dir, "alerts", "metrics.json")

	cfg.Scoring.WindowDurationMS = 300000
	cfg.Scoring.WindowHopMS = 60000
	cfg.Scoring.ZScoreThreshold = 1.5
	cfg.Scoring.PersistenceCount = 2
	cfg.Groups.GroupThreshold = 1.0

	require.NoError(t, cfg.Validate())
	require.NoError(t, os.MkdirAll(cfg.Input.CETPDataDir, 0o755))
	require.NoError(t, os.MkdirAll(cfg.Input.FactoryDataDir, 0o755))
	return cfg
}

// writeScenario builds matching CETP and factory archives: FACTORY_B slugs
// 450 mg/l at 12:10-12:11 and the CETP inlet sees the shock at 12:23, one
// pipe travel later.
func writeScenario(t *testing.T, cfg *config.Config) {
	t.Helper()

	var cetp strings.Builder
	cetp.WriteString("s_no,time,cetp_inlet_cod\n")
	for i := 0; i < 30; i++ {
		cod := 193.0
		if i == 23 {
			cod = 455.2
		}
		fmt.Fprintf(&cetp, "%d,2026-02-01 12:%02d,%.1f\n", i+1, i, cod)
	}
	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.Input.CETPDataDir, "cetp_clean.csv"), []byte(cetp.String()), 0o644))

	var fac strings.Builder
	fac.WriteString("s_no,time,factory_id,cod,bod,ph,tss\n")
	for i := 0; i < 15; i++ {
		v := 120.0
		if i >= 10 && i <= 11 {
			v = 450.0
		}
		fmt.Fprintf(&fac, "%d,2026-02-01 12:%02d,FACTORY_B,%.1f,%.1f,7.2,%.1f\n", i+1, i, v, v, v)
	}
	// One malformed row for the quarantine path.
	fac.WriteString("99,not a time,FACTORY_B,120.0,40.0,7.2,90.0\n")
	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.Input.FactoryDataDir, "factory_B.csv"), []byte(fac.String()), 0o644))
}

func readJSONL(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		var rec map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		out = append(out, rec)
	}
	return out
}

func TestEngineEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	writeScenario(t, cfg)

	history, err := ingest.LoadFactoryRows(cfg.Input.FactoryDataDir)
	require.NoError(t, err)

	bus := events.NewEventBus()
	alertEvents := bus.Subscribe(events.TypeAlertRouted)

	engine := NewEngine(cfg, Options{
		RunID:       "run-test",
		CETPSource:  ingest.NewReplayCETPSource(cfg.Input.CETPDataDir),
		FactorySrc:  ingest.NewReplayFactorySource(cfg.Input.FactoryDataDir),
		HistoryRows: history,
		Bus:         bus,
	})

	require.NoError(t, engine.Run(context.Background()))

	// Shock path: the 12:23 inlet spike backtracks to FACTORY_B's slug.
	evidence := readJSONL(t, cfg.Sinks.EvidencePath)
	require.Len(t, evidence, 1)
	assert.Equal(t, "run-test", evidence[0]["run_id"])
	assert.Equal(t, "2026-02-01 12:23", evidence[0]["cetp_event_time"])
	assert.Equal(t, "2026-02-01 12:08", evidence[0]["backtrack_time"])
	assert.Equal(t, "FACTORY_B", evidence[0]["attributed_factory"])
	assert.Equal(t, "HIGH", evidence[0]["alert_level"])

	// Scoring path: the sustained multivariate spike becomes a routed alert.
	alerts := readJSONL(t, cfg.Sinks.AlertsPath)
	require.NotEmpty(t, alerts)
	assert.Equal(t, "FACTORY_B", alerts[0]["discharge_point_id"])

	// The malformed row landed in quarantine, not the pipeline.
	quarantined := readJSONL(t, cfg.Sinks.QuarantinePath)
	require.NotEmpty(t, quarantined)
	assert.Contains(t, quarantined[0]["rejection_reason"], "timestamp")

	// Final KPI snapshot was written on shutdown.
	var snap map[string]interface{}
	data, err := os.ReadFile(cfg.Sinks.MetricsPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Greater(t, snap["events_processed_total"], float64(0))
	assert.Greater(t, snap["anomalies_detected_total"], float64(0))

	// The routed alert was also published on the bus.
	select {
	case ev := <-alertEvents:
		assert.Equal(t, "FACTORY_B", ev.Subject)
		assert.Equal(t, "run-test", ev.Data["run_id"])
	default:
		t.Fatal("no alert event published")
	}
}

func TestEngineCancelledContext(t *testing.T) {
	cfg := testConfig(t)
	writeScenario(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := NewEngine(cfg, Options{
		RunID:      "run-cancelled",
		CETPSource: ingest.NewReplayCETPSource(cfg.Input.CETPDataDir),
		FactorySrc: ingest.NewReplayFactorySource(cfg.Input.FactoryDataDir),
	})
	assert.NoError(t, engine.Run(ctx))
}

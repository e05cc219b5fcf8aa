package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cetp/sentinel/internal/config"
)

const boxWidth = 80

// FormatSummary renders the startup diagnostic box printed once before the
// first record is read. Pure function, ASCII only, 80 columns.
func FormatSummary(cfg *config.Config, runID string) string {
	var b strings.Builder

	rule := "+" + strings.Repeat("-", boxWidth-2) + "+"
	line := func(text string) {
		if len(text) > boxWidth-4 {
			text = text[:boxWidth-4]
		}
		fmt.Fprintf(&b, "| %-*s |\n", boxWidth-4, text)
	}
	section := func(title string) {
		line("")
		line(strings.ToUpper(title))
		line(strings.Repeat("-", len(title)))
	}

	b.WriteString(rule + "\n")
	line(fmt.Sprintf("SENTINEL  |  %s  |  run %s", cfg.API.SiteName, runID))
	b.WriteString(rule + "\n")

	section("Architecture")
	line("CETP path    : ingest -> tripwire -> backtrack -> evidence log")
	line("Factory path : ingest -> validate -> windows -> z-score -> persistence")
	line("               -> multivariate -> ERI -> alert router -> alert log")
	line("Fan-out      : event bus -> webhooks, websocket livefeed, KPI snapshot")

	section("Active Configuration")
	line(fmt.Sprintf("Window       : %d ms duration, %d ms hop, epsilon %g",
		cfg.Scoring.WindowDurationMS, cfg.Scoring.WindowHopMS, cfg.Scoring.Epsilon))
	line(fmt.Sprintf("Scoring      : |z| > %.2f, persistence %d, group threshold %.2f",
		cfg.Scoring.ZScoreThreshold, cfg.Scoring.PersistenceCount, cfg.Groups.GroupThreshold))
	line(fmt.Sprintf("Tripwire     : COD >= %.1f mg/l (baseline %.1f), travel %d min, asof +/- %d s",
		cfg.CETP.CODThreshold, cfg.CETP.CODBaseline, cfg.CETP.PipeTravelMinutes, cfg.CETP.ASOFToleranceSeconds))
	line(fmt.Sprintf("Alerting     : min band %s, cooldown %d s",
		cfg.Alerts.MinRiskBand, cfg.Alerts.CooldownSeconds))
	line(fmt.Sprintf("Inputs       : cetp=%s factories=%s",
		cfg.Input.CETPDataDir, cfg.Input.FactoryDataDir))

	section("Environmental Context")
	points := make([]string, 0, len(cfg.ERI.RiverSensitivity))
	for p := range cfg.ERI.RiverSensitivity {
		points = append(points, p)
	}
	sort.Strings(points)
	for _, p := range points {
		line(fmt.Sprintf("%-12s : river sensitivity %.1f", p, cfg.ERI.RiverSensitivity[p]))
	}
	line(fmt.Sprintf("ERI bands    : LOW < %.1f <= MEDIUM < %.1f <= HIGH < %.1f <= CRITICAL",
		cfg.ERI.ThresholdLow, cfg.ERI.ThresholdMedium, cfg.ERI.ThresholdHigh))

	section("Readiness Checklist")
	line("[x] configuration validated")
	line(fmt.Sprintf("[x] evidence log  -> %s", cfg.Sinks.EvidencePath))
	line(fmt.Sprintf("[x] alert log     -> %s", cfg.Sinks.AlertsPath))
	line(fmt.Sprintf("[x] KPI snapshot  -> %s", cfg.Sinks.MetricsPath))
	if cfg.Alerts.WebhookURL != "" {
		line(fmt.Sprintf("[x] webhook       -> %s", cfg.Alerts.WebhookURL))
	} else {
		line("[ ] webhook       (not configured)")
	}
	if cfg.API.Port > 0 {
		line(fmt.Sprintf("[x] API + livefeed on :%d", cfg.API.Port))
	} else {
		line("[ ] API + livefeed (disabled, SENTINEL_API_PORT=0)")
	}
	line("")

	b.WriteString(rule + "\n")
	return b.String()
}

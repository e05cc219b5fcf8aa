package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cetp/sentinel/internal/config"
)

func TestFormatSummaryLayout(t *testing.T) {
	out := FormatSummary(config.Default(), "run-42")

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.NotEmpty(t, lines)

	rule := "+" + strings.Repeat("-", 78) + "+"
	assert.Equal(t, rule, lines[0])
	assert.Equal(t, rule, lines[len(lines)-1])

	for i, line := range lines {
		assert.Lenf(t, line, 80, "line %d: %q", i, line)
		assert.True(t, strings.HasPrefix(line, "+") || strings.HasPrefix(line, "|"),
			"line %d: %q", i, line)
	}
}

func TestFormatSummaryContent(t *testing.T) {
	cfg := config.Default()
	out := FormatSummary(cfg, "run-42")

	assert.Contains(t, out, "SENTINEL")
	assert.Contains(t, out, cfg.API.SiteName)
	assert.Contains(t, out, "run run-42")

	assert.Contains(t, out, "ARCHITECTURE")
	assert.Contains(t, out, "ACTIVE CONFIGURATION")
	assert.Contains(t, out, "ENVIRONMENTAL CONTEXT")
	assert.Contains(t, out, "READINESS CHECKLIST")

	// Discharge points listed in sorted order.
	a := strings.Index(out, "FACTORY_A")
	b := strings.Index(out, "FACTORY_B")
	d := strings.Index(out, "FACTORY_D")
	require.NotEqual(t, -1, a)
	require.NotEqual(t, -1, b)
	require.NotEqual(t, -1, d)
	assert.Less(t, a, b)
	assert.Less(t, b, d)
}

func TestFormatSummaryReadinessToggles(t *testing.T) {
	cfg := config.Default()
	out := FormatSummary(cfg, "r")
	assert.Contains(t, out, "[ ] webhook")
	assert.Contains(t, out, "[ ] API + livefeed")

	cfg.Alerts.WebhookURL = "https://hooks.example.com/cetp"
	cfg.API.Port = 8080
	out = FormatSummary(cfg, "r")
	assert.Contains(t, out, "[x] webhook")
	assert.Contains(t, out, "[x] API + livefeed on :8080")
}

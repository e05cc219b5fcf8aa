package alerting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cetp/sentinel/internal/config"
	"github.com/cetp/sentinel/internal/stream"
)

func newRouter(minBand string, cooldownSeconds int) *Router {
	return NewRouter(config.AlertsConfig{
		MinRiskBand:     minBand,
		CooldownSeconds: cooldownSeconds,
	}, stream.DefaultTimeFormat)
}

func eriReading(point, ts string, band stream.RiskBand) stream.ERIReading {
	return stream.ERIReading{
		DischargePointID:  point,
		Timestamp:         ts,
		ERI:               4.2,
		RiskBand:          band,
		SensitivityFactor: 2.5,
		TopContributor:    "FACTORY_B_cod",
		AlertMessage:      "Anomaly in FACTORY_B: primary driver FACTORY_B_cod (76% of score)",
	}
}

func TestBandFilter(t *testing.T) {
	r := newRouter("HIGH", 0)

	_, ok := r.Route(eriReading("FACTORY_B", "2026-02-01 12:00", stream.BandMedium))
	assert.False(t, ok)

	_, ok = r.Route(eriReading("FACTORY_B", "2026-02-01 12:00", stream.BandHigh))
	assert.True(t, ok)
}

func TestCooldownOnEventTime(t *testing.T) {
	r := newRouter("MEDIUM", 60)

	// Two alerts in the same event minute: the second is suppressed; one
	// cooldown later a third passes.
	_, ok := r.Route(eriReading("FACTORY_B", "2026-02-01 12:00", stream.BandHigh))
	assert.True(t, ok)

	_, ok = r.Route(eriReading("FACTORY_B", "2026-02-01 12:00", stream.BandHigh))
	assert.False(t, ok)

	_, ok = r.Route(eriReading("FACTORY_B", "2026-02-01 12:01", stream.BandHigh))
	assert.True(t, ok)
}

func TestZeroCooldownNeverSuppresses(t *testing.T) {
	r := newRouter("MEDIUM", 0)

	// Same event minute, then an out-of-order earlier one: both pass.
	_, ok := r.Route(eriReading("FACTORY_B", "2026-02-01 12:05", stream.BandHigh))
	assert.True(t, ok)

	_, ok = r.Route(eriReading("FACTORY_B", "2026-02-01 12:05", stream.BandHigh))
	assert.True(t, ok)

	_, ok = r.Route(eriReading("FACTORY_B", "2026-02-01 12:00", stream.BandHigh))
	assert.True(t, ok)
}

func TestCooldownIsPerPoint(t *testing.T) {
	r := newRouter("MEDIUM", 300)

	_, ok := r.Route(eriReading("FACTORY_B", "2026-02-01 12:00", stream.BandHigh))
	assert.True(t, ok)

	_, ok = r.Route(eriReading("FACTORY_D", "2026-02-01 12:00", stream.BandHigh))
	assert.True(t, ok)
}

func TestUnparseableTimestampBypassesCooldown(t *testing.T) {
	r := newRouter("MEDIUM", 300)

	_, ok := r.Route(eriReading("FACTORY_B", "garbage", stream.BandHigh))
	assert.True(t, ok)
	// Nothing recorded for the point.
	assert.Empty(t, r.LastAlertTimes())
}

func TestAlertLevels(t *testing.T) {
	r := newRouter("LOW", 0)

	rec, ok := r.Route(eriReading("FACTORY_B", "2026-02-01 12:00", stream.BandCritical))
	require.True(t, ok)
	assert.Equal(t, stream.LevelCritical, rec.AlertLevel)

	rec, ok = r.Route(eriReading("FACTORY_B", "2026-02-01 12:10", stream.BandHigh))
	require.True(t, ok)
	assert.Equal(t, stream.LevelWarning, rec.AlertLevel)

	rec, ok = r.Route(eriReading("FACTORY_B", "2026-02-01 12:20", stream.BandLow))
	require.True(t, ok)
	assert.Equal(t, stream.LevelInfo, rec.AlertLevel)
}

func TestMediumAlertsAreMasked(t *testing.T) {
	r := newRouter("MEDIUM", 0)

	rec, ok := r.Route(eriReading("FACTORY_B", "2026-02-01 12:00", stream.BandMedium))
	require.True(t, ok)
	assert.Equal(t, "", rec.TopContributor)
	assert.Equal(t, "", rec.AlertMessage)
	assert.Equal(t, 0.0, rec.SensitivityFactor)

	rec, ok = r.Route(eriReading("FACTORY_B", "2026-02-01 12:05", stream.BandHigh))
	require.True(t, ok)
	assert.Equal(t, "FACTORY_B_cod", rec.TopContributor)
	assert.Equal(t, 2.5, rec.SensitivityFactor)
}

package tripwire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cetp/sentinel/internal/config"
	"github.com/cetp/sentinel/internal/stream"
)

func newTripwire() *Tripwire {
	return New(config.CETPConfig{CODBaseline: 193, CODThreshold: 250})
}

func row(ts string, cod *float64) stream.CETPRow {
	return stream.CETPRow{Time: ts, InletCOD: cod}
}

func TestBelowThresholdDoesNotTrip(t *testing.T) {
	tw := newTripwire()
	_, ok := tw.Check(row("2026-02-01 12:00", stream.Float(249.99)))
	assert.False(t, ok)
}

func TestThresholdTripsMedium(t *testing.T) {
	tw := newTripwire()
	ev, ok := tw.Check(row("2026-02-01 12:23", stream.Float(250)))
	require.True(t, ok)
	assert.Equal(t, "MEDIUM", ev.AlertLevel)
	assert.Equal(t, 250.0, ev.CODValue)
	assert.InDelta(t, 57.0, ev.BreachMag, 1e-9) // measured against the 193 baseline
	assert.Equal(t, "2026-02-01 12:23", ev.Time)
}

func TestTwiceBaselineEscalatesHigh(t *testing.T) {
	tw := newTripwire()

	ev, ok := tw.Check(row("2026-02-01 12:23", stream.Float(385.99)))
	require.True(t, ok)
	assert.Equal(t, "MEDIUM", ev.AlertLevel)

	ev, ok = tw.Check(row("2026-02-01 12:23", stream.Float(386)))
	require.True(t, ok)
	assert.Equal(t, "HIGH", ev.AlertLevel)
	assert.InDelta(t, 193.0, ev.BreachMag, 1e-9)
}

func TestNullInletCODNeverTrips(t *testing.T) {
	tw := newTripwire()
	_, ok := tw.Check(row("2026-02-01 12:00", nil))
	assert.False(t, ok)
}

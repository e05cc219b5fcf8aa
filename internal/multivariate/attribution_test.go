package multivariate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cetp/sentinel/internal/stream"
)

func groupRow() stream.GroupRow {
	return stream.GroupRow{
		GroupName: "OUTFALL_1",
		Timestamp: "2026-02-01 12:00",
		SensorZScores: map[string]float64{
			"sensor_ph":        4,
			"sensor_turbidity": -2,
			"sensor_flow":      1,
		},
		Contributing:   []string{"sensor_ph", "sensor_turbidity", "sensor_flow"},
		CompositeScore: 2.6457513110645907,
		IsGroupAnomaly: true,
	}
}

func TestAttributeFractions(t *testing.T) {
	contribs := Attribute(groupRow())
	require.Len(t, contribs, 3)

	// z² shares of 21: 16, 4, 1.
	assert.Equal(t, "sensor_ph", contribs[0].Sensor)
	assert.InDelta(t, 16.0/21.0, contribs[0].Fraction, 1e-9)
	assert.Equal(t, "sensor_turbidity", contribs[1].Sensor)
	assert.InDelta(t, 4.0/21.0, contribs[1].Fraction, 1e-9)
	assert.Equal(t, "sensor_flow", contribs[2].Sensor)
	assert.InDelta(t, 1.0/21.0, contribs[2].Fraction, 1e-9)
}

func TestAttributeEqualSplitWhenAllZero(t *testing.T) {
	row := stream.GroupRow{
		GroupName:     "OUTFALL_1",
		SensorZScores: map[string]float64{"a": 0, "b": 0},
		Contributing:  []string{"a", "b"},
	}
	contribs := Attribute(row)
	require.Len(t, contribs, 2)
	assert.Equal(t, 0.5, contribs[0].Fraction)
	assert.Equal(t, 0.5, contribs[1].Fraction)
	// Tie broken by sensor id.
	assert.Equal(t, "a", contribs[0].Sensor)
}

func TestFormatAlertMessageAndDetail(t *testing.T) {
	out := FormatAlert(groupRow())

	assert.Equal(t, "sensor_ph", out.TopContributor)
	assert.Equal(t,
		"Anomaly in OUTFALL_1: primary driver sensor_ph (76% of score)",
		out.AlertMessage)
	assert.Equal(t,
		`{"sensor_ph": 0.762, "sensor_turbidity": 0.19, "sensor_flow": 0.048}`,
		out.AttributionDetail)
}

func TestFormatAlertEmptyContributors(t *testing.T) {
	out := FormatAlert(stream.GroupRow{GroupName: "OUTFALL_1"})
	assert.Equal(t, "", out.TopContributor)
	assert.Equal(t, "", out.AlertMessage)
	assert.Equal(t, "{}", out.AttributionDetail)
}

func TestFormatFraction(t *testing.T) {
	assert.Equal(t, "1.0", formatFraction(1))
	assert.Equal(t, "0.5", formatFraction(0.5))
	assert.Equal(t, "0.333", formatFraction(1.0/3.0))
	assert.Equal(t, "0.0", formatFraction(0))
}

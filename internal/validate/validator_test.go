package validate

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cetp/sentinel/internal/config"
	"github.com/cetp/sentinel/internal/stream"
)

func newValidator() *Validator {
	return New(config.InputConfig{
		TimeFormat:        stream.DefaultTimeFormat,
		MaxSensorIDLength: 64,
		ValueRanges: []config.RangeRule{
			{Pattern: "*_ph", Min: 0, Max: 14},
			{Pattern: "*", Min: -1e6, Max: 1e6},
		},
	})
}

func valid() stream.Reading {
	return stream.Reading{
		SensorID:  "FACTORY_B_cod",
		Timestamp: "2026-02-01 12:00",
		Value:     stream.Float(450),
	}
}

func TestValidReadingPasses(t *testing.T) {
	ok, reason := newValidator().Validate(valid())
	assert.True(t, ok)
	assert.Equal(t, "", reason)
}

func TestRejectionReasons(t *testing.T) {
	v := newValidator()

	cases := []struct {
		name   string
		mutate func(*stream.Reading)
		reason string
	}{
		{"missing sensor id", func(r *stream.Reading) { r.SensorID = "" }, "missing 'sensor_id'"},
		{"missing timestamp", func(r *stream.Reading) { r.Timestamp = "" }, "missing 'timestamp'"},
		{"missing value", func(r *stream.Reading) { r.Value = nil }, "missing 'value'"},
		{"blank sensor id", func(r *stream.Reading) { r.SensorID = "   " }, "invalid 'sensor_id': empty after trimming"},
		{"bad timestamp", func(r *stream.Reading) { r.Timestamp = "yesterday" }, `invalid 'timestamp' format: "yesterday"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := valid()
			tc.mutate(&r)
			ok, reason := v.Validate(r)
			assert.False(t, ok)
			assert.Equal(t, tc.reason, reason)
		})
	}
}

func TestNonFiniteValueRejected(t *testing.T) {
	v := newValidator()

	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		r := valid()
		r.Value = stream.Float(bad)
		ok, reason := v.Validate(r)
		assert.False(t, ok)
		assert.Contains(t, reason, "value must be finite")
	}
}

func TestSensorIDLengthLimit(t *testing.T) {
	v := newValidator()
	r := valid()
	r.SensorID = strings.Repeat("x", 65)
	ok, reason := v.Validate(r)
	assert.False(t, ok)
	assert.Contains(t, reason, "sensor_id exceeds max length")
}

func TestRangeRuleFirstMatchWins(t *testing.T) {
	v := newValidator()

	// A pH sensor is bounded by the *_ph rule, not the catch-all.
	r := valid()
	r.SensorID = "FACTORY_B_ph"
	r.Value = stream.Float(15)
	ok, reason := v.Validate(r)
	assert.False(t, ok)
	assert.Contains(t, reason, `pattern "*_ph"`)

	r.Value = stream.Float(7.2)
	ok, _ = v.Validate(r)
	assert.True(t, ok)
}

func TestCatchAllRange(t *testing.T) {
	v := newValidator()
	r := valid()
	r.Value = stream.Float(2e6)
	ok, reason := v.Validate(r)
	assert.False(t, ok)
	assert.Contains(t, reason, "out of range")
}

func TestQuarantineWrapsReading(t *testing.T) {
	r := valid()
	r.Value = nil
	rec := Quarantine("run-1", r, "missing 'value'")
	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, "missing 'value'", rec.RejectionReason)
	assert.Equal(t, r.SensorID, rec.Payload.SensorID)
	assert.NotEmpty(t, rec.ReceivedAt)
}

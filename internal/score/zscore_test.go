package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cetp/sentinel/internal/stream"
)

func stats(sensor string, mean, std float64) stream.WindowStats {
	return stream.WindowStats{SensorID: sensor, Mean: mean, Std: std}
}

func TestScoreFormula(t *testing.T) {
	s := NewScorer(3.0, 1e-9)
	s.Observe(stats("s1", 100, 10))

	sr, ok := s.Score(stream.Reading{SensorID: "s1", Timestamp: "0", Value: stream.Float(135)})
	require.True(t, ok)
	assert.InDelta(t, 3.5, sr.ZScore, 1e-6)
	assert.True(t, sr.IsAnomaly)
	assert.Equal(t, 100.0, sr.RollingMean)
	assert.Equal(t, 10.0, sr.RollingStd)
}

func TestThresholdIsStrict(t *testing.T) {
	s := NewScorer(3.0, 0)
	s.Observe(stats("s1", 0, 1))

	// |z| exactly 3.0 stays normal.
	sr, ok := s.Score(stream.Reading{SensorID: "s1", Timestamp: "0", Value: stream.Float(3)})
	require.True(t, ok)
	assert.InDelta(t, 3.0, sr.ZScore, 1e-12)
	assert.False(t, sr.IsAnomaly)

	sr, ok = s.Score(stream.Reading{SensorID: "s1", Timestamp: "0", Value: stream.Float(-3.001)})
	require.True(t, ok)
	assert.True(t, sr.IsAnomaly)
}

func TestNoWindowYetSkips(t *testing.T) {
	s := NewScorer(3.0, 1e-9)
	_, ok := s.Score(stream.Reading{SensorID: "cold", Timestamp: "0", Value: stream.Float(1)})
	assert.False(t, ok)
}

func TestNullValueSkips(t *testing.T) {
	s := NewScorer(3.0, 1e-9)
	s.Observe(stats("s1", 0, 1))
	_, ok := s.Score(stream.Reading{SensorID: "s1", Timestamp: "0"})
	assert.False(t, ok)
}

func TestEpsilonGuardsZeroStd(t *testing.T) {
	s := NewScorer(3.0, 1e-9)
	s.Observe(stats("s1", 50, 0))

	sr, ok := s.Score(stream.Reading{SensorID: "s1", Timestamp: "0", Value: stream.Float(51)})
	require.True(t, ok)
	assert.False(t, sr.ZScore != sr.ZScore) // not NaN
	assert.True(t, sr.IsAnomaly)
}

func TestObserveReplacesStats(t *testing.T) {
	s := NewScorer(3.0, 1e-9)
	s.Observe(stats("s1", 0, 1))
	s.Observe(stats("s1", 100, 5))

	sr, ok := s.Score(stream.Reading{SensorID: "s1", Timestamp: "0", Value: stream.Float(110)})
	require.True(t, ok)
	assert.InDelta(t, 2.0, sr.ZScore, 1e-6)
}

package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cetp/sentinel/internal/stream"
)

func scored(sensor string, anomaly bool) stream.ScoredReading {
	return stream.ScoredReading{SensorID: sensor, IsAnomaly: anomaly}
}

func TestGateConfirmsAfterStreak(t *testing.T) {
	g := NewGate(3)

	// T T F T T T T with need=3: confirmations on readings 6 and 7.
	pattern := []bool{true, true, false, true, true, true, true}
	var confirmedAt []int
	for i, anomalous := range pattern {
		if _, ok := g.Process(scored("s1", anomalous)); ok {
			confirmedAt = append(confirmedAt, i+1)
		}
	}
	assert.Equal(t, []int{6, 7}, confirmedAt)
}

func TestGateResetOnNormal(t *testing.T) {
	g := NewGate(2)
	g.Process(scored("s1", true))
	assert.Equal(t, 1, g.Count("s1"))

	g.Process(scored("s1", false))
	assert.Equal(t, 0, g.Count("s1"))

	// Reset on an already-zero counter stays zero, no underflow.
	g.Process(scored("s1", false))
	assert.Equal(t, 0, g.Count("s1"))
}

func TestGateCountsPerSensor(t *testing.T) {
	g := NewGate(2)
	g.Process(scored("a", true))
	g.Process(scored("b", true))
	_, okA := g.Process(scored("a", true))
	assert.True(t, okA)
	assert.Equal(t, 1, g.Count("b"))
}

func TestGateReportsConsecutiveCount(t *testing.T) {
	g := NewGate(2)
	g.Process(scored("s1", true))
	c, ok := g.Process(scored("s1", true))
	require.True(t, ok)
	assert.Equal(t, 2, c.ConsecutiveCount)

	c, ok = g.Process(scored("s1", true))
	require.True(t, ok)
	assert.Equal(t, 3, c.ConsecutiveCount)
}

func TestGateNeedOneConfirmsImmediately(t *testing.T) {
	g := NewGate(1)
	_, ok := g.Process(scored("s1", true))
	assert.True(t, ok)
}

package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentileInterpolation(t *testing.T) {
	c := NewLatencyCollector(60)
	for _, v := range []float64{1, 2, 3, 4} {
		c.RecordLatency(v)
	}

	assert.Equal(t, 2.5, c.Percentile(50))
	assert.Equal(t, 1.0, c.Percentile(0))
	assert.Equal(t, 4.0, c.Percentile(100))
	assert.InDelta(t, 1.75, c.Percentile(25), 1e-9)
}

func TestPercentileEmptyIsZero(t *testing.T) {
	c := NewLatencyCollector(60)
	assert.Equal(t, 0.0, c.Percentile(50))
	assert.Equal(t, 0.0, c.Percentile(99))
}

func TestPercentileSingleSample(t *testing.T) {
	c := NewLatencyCollector(60)
	c.RecordLatency(7)
	assert.Equal(t, 7.0, c.Percentile(50))
	assert.Equal(t, 7.0, c.Percentile(99))
}

func TestSampleBufferBounded(t *testing.T) {
	c := NewLatencyCollector(60)
	for i := 0; i < maxLatencySamples+500; i++ {
		c.RecordLatency(float64(i))
	}
	assert.Equal(t, maxLatencySamples, c.SampleCount())
	// Oldest samples rolled off: the minimum survivor is sample 500.
	assert.Equal(t, 500.0, c.Percentile(0))
}

func TestAlertsPerMinute(t *testing.T) {
	c := NewLatencyCollector(60)
	assert.Equal(t, 0.0, c.AlertsPerMinute())

	c.RecordAlert()
	c.RecordAlert()
	c.RecordAlert()
	assert.InDelta(t, 3.0, c.AlertsPerMinute(), 1e-9)
}

func TestSummaryFormat(t *testing.T) {
	c := NewLatencyCollector(60)
	c.RecordLatency(10)
	c.RecordLatency(20)
	assert.Equal(t, "Latency P50: 15.0ms | P99: 19.9ms | Alerts/min: 0.0", c.Summary())
}

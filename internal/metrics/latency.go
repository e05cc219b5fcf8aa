// Package metrics tracks pipeline health: end-to-end latency percentiles,
// alert rate, the KPI snapshot file, and the Prometheus exposition.
package metrics

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// maxLatencySamples bounds the percentile buffer; older samples roll off.
const maxLatencySamples = 1000

// LatencyCollector keeps a bounded ring of the most recent end-to-end
// latency samples plus the timestamps of recent alerts for rate reporting.
type LatencyCollector struct {
	mu         sync.Mutex
	samples    []float64 // milliseconds, insertion order
	alertTimes []time.Time
	rateWindow time.Duration
}

func NewLatencyCollector(rateWindowSeconds int) *LatencyCollector {
	return &LatencyCollector{
		rateWindow: time.Duration(rateWindowSeconds) * time.Second,
	}
}

// RecordLatency adds one sample in milliseconds.
func (c *LatencyCollector) RecordLatency(ms float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, ms)
	if len(c.samples) > maxLatencySamples {
		c.samples = c.samples[len(c.samples)-maxLatencySamples:]
	}
}

// RecordAlert notes that an alert was routed now.
func (c *LatencyCollector) RecordAlert() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alertTimes = append(c.alertTimes, time.Now())
}

// Percentile computes the p-th percentile (0–100) of the current samples
// with linear interpolation between the two nearest ranks. Zero samples
// yields zero.
func (c *LatencyCollector) Percentile(p float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return computePercentile(c.samples, p)
}

// AlertsPerMinute reports the alert rate over the trailing rate window,
// normalized to a per-minute figure. Stale timestamps are pruned in place.
func (c *LatencyCollector) AlertsPerMinute() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-c.rateWindow)
	kept := c.alertTimes[:0]
	for _, t := range c.alertTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	c.alertTimes = kept

	if c.rateWindow <= 0 {
		return 0
	}
	return float64(len(c.alertTimes)) / c.rateWindow.Minutes()
}

// SampleCount reports how many latency samples are buffered.
func (c *LatencyCollector) SampleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

// Summary renders the operator console line.
func (c *LatencyCollector) Summary() string {
	return fmt.Sprintf("Latency P50: %.1fms | P99: %.1fms | Alerts/min: %.1f",
		c.Percentile(50), c.Percentile(99), c.AlertsPerMinute())
}

func computePercentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	k := (p / 100) * float64(len(sorted)-1)
	lo := int(k)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[lo]
	}
	frac := k - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Reporter prints the latency summary on a fixed cadence until its context
// is cancelled; the pipeline runs it as a background goroutine.
type Reporter struct {
	collector *LatencyCollector
	interval  time.Duration
	logger    *log.Logger
}

func NewReporter(collector *LatencyCollector, intervalSeconds int) *Reporter {
	return &Reporter{
		collector: collector,
		interval:  time.Duration(intervalSeconds) * time.Second,
		logger:    log.New(log.Writer(), "[METRICS] ", log.LstdFlags),
	}
}

// Tick prints one summary line; a collector with no samples stays silent.
func (r *Reporter) Tick() {
	if r.collector.SampleCount() == 0 {
		return
	}
	r.logger.Print(r.collector.Summary())
}

// Interval returns the configured reporting cadence.
func (r *Reporter) Interval() time.Duration { return r.interval }

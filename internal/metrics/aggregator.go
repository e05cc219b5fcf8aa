package metrics

import (
	"sync"
	"time"

	"github.com/cetp/sentinel/internal/sinks"
	"github.com/cetp/sentinel/internal/stream"
)

// Snapshot is the KPI document written to the metrics file and served by
// the status endpoint.
type Snapshot struct {
	EventsProcessedTotal   int64   `json:"events_processed_total"`
	AnomaliesDetectedTotal int64   `json:"anomalies_detected_total"`
	ActiveAlertsCount      int     `json:"active_alerts_count"`
	AvgERILast5Min         float64 `json:"avg_eri_last_5min"`
	HighestRiskBand        string  `json:"highest_risk_band"`
	PipelineUptimeSeconds  float64 `json:"pipeline_uptime_seconds"`
	LastEventTimestamp     string  `json:"last_event_timestamp"`
}

type eriSample struct {
	at  time.Time
	eri float64
}

type activeAlert struct {
	at   time.Time
	band stream.RiskBand
}

// Aggregator accumulates the KPI counters. An alert counts as active while
// its routing time is inside the cooldown window; the highest risk band is
// taken over the currently active set only.
type Aggregator struct {
	mu        sync.Mutex
	started   time.Time
	cooldown  time.Duration
	events    int64
	anomalies int64
	lastEvent string
	eris      []eriSample
	alerts    map[string]activeAlert // discharge point → most recent alert
}

func NewAggregator(cooldownSeconds int) *Aggregator {
	return &Aggregator{
		started:  time.Now(),
		cooldown: time.Duration(cooldownSeconds) * time.Second,
		alerts:   make(map[string]activeAlert),
	}
}

// ObserveEvent counts one processed reading and remembers its timestamp.
func (a *Aggregator) ObserveEvent(timestamp string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events++
	if timestamp != "" {
		a.lastEvent = timestamp
	}
}

// ObserveAnomaly counts one confirmed anomaly.
func (a *Aggregator) ObserveAnomaly() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.anomalies++
}

// ObserveERI adds one ERI value to the 5-minute rolling average.
func (a *Aggregator) ObserveERI(eri float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.eris = append(a.eris, eriSample{at: time.Now(), eri: eri})
}

// ObserveAlert marks a discharge point as actively alerting.
func (a *Aggregator) ObserveAlert(point string, band stream.RiskBand) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts[point] = activeAlert{at: time.Now(), band: band}
}

// Snapshot freezes the current KPI view. Expired ERI samples and cooled-down
// alerts are pruned as a side effect.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()

	eriCutoff := now.Add(-5 * time.Minute)
	kept := a.eris[:0]
	var eriSum float64
	for _, s := range a.eris {
		if s.at.After(eriCutoff) {
			kept = append(kept, s)
			eriSum += s.eri
		}
	}
	a.eris = kept
	avgERI := 0.0
	if len(a.eris) > 0 {
		avgERI = eriSum / float64(len(a.eris))
	}

	highest := "NONE"
	highestRank := -1
	active := 0
	for point, al := range a.alerts {
		if now.Sub(al.at) >= a.cooldown {
			delete(a.alerts, point)
			continue
		}
		active++
		if r := al.band.Rank(); r > highestRank {
			highestRank = r
			highest = string(al.band)
		}
	}

	return Snapshot{
		EventsProcessedTotal:   a.events,
		AnomaliesDetectedTotal: a.anomalies,
		ActiveAlertsCount:      active,
		AvgERILast5Min:         avgERI,
		HighestRiskBand:        highest,
		PipelineUptimeSeconds:  now.Sub(a.started).Seconds(),
		LastEventTimestamp:     a.lastEvent,
	}
}

// WriteSnapshot persists the current KPI view atomically.
func (a *Aggregator) WriteSnapshot(path string) error {
	return sinks.WriteAtomicJSON(path, a.Snapshot())
}

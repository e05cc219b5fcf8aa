// Package score holds the two per-sensor scoring stages: the z-score
// scorer, which joins readings with their rolling window statistics, and
// the persistence gate, which confirms anomalies only after a configured
// consecutive streak.
package score

import (
	"math"

	"github.com/cetp/sentinel/internal/stream"
)

// Scorer joins each reading with the most recent WindowStats row emitted
// for its sensor and computes the z-score and anomaly flag.
type Scorer struct {
	threshold float64
	epsilon   float64
	latest    map[string]stream.WindowStats
}

func NewScorer(threshold, epsilon float64) *Scorer {
	return &Scorer{
		threshold: threshold,
		epsilon:   epsilon,
		latest:    make(map[string]stream.WindowStats),
	}
}

// Observe records a newly emitted window row as the current statistics for
// its sensor.
func (s *Scorer) Observe(ws stream.WindowStats) {
	s.latest[ws.SensorID] = ws
}

// Score computes the z-score for one reading. A sensor with no emitted
// window yet is skipped (false); it still feeds the window engine upstream.
// The anomaly comparison is strictly greater-than: |z| exactly at the
// threshold is not anomalous.
func (s *Scorer) Score(r stream.Reading) (stream.ScoredReading, bool) {
	if r.Value == nil {
		return stream.ScoredReading{}, false
	}
	ws, ok := s.latest[r.SensorID]
	if !ok {
		return stream.ScoredReading{}, false
	}

	z := (*r.Value - ws.Mean) / (ws.Std + s.epsilon)
	return stream.ScoredReading{
		SensorID:    r.SensorID,
		Timestamp:   r.Timestamp,
		Value:       *r.Value,
		RollingMean: ws.Mean,
		RollingStd:  ws.Std,
		ZScore:      z,
		IsAnomaly:   math.Abs(z) > s.threshold,
	}, true
}

package score

import (
	"log"

	"github.com/cetp/sentinel/internal/stream"
)

// Gate is the consecutive-anomaly persistence filter. A reading is
// confirmed once its sensor has produced at least `need` anomalous readings
// in a row; any normal reading resets that sensor's streak to zero. The
// counters are process-local; reset on restart is intentional.
type Gate struct {
	need   int
	counts map[string]int
	logger *log.Logger
}

func NewGate(persistenceCount int) *Gate {
	return &Gate{
		need:   persistenceCount,
		counts: make(map[string]int),
		logger: log.New(log.Writer(), "[PERSIST] ", log.LstdFlags),
	}
}

// Process updates the streak for the reading's sensor and reports whether
// the reading is a confirmed anomaly. Counter resets are logged so
// operators can confirm the gate is working; underflow is impossible.
func (g *Gate) Process(sr stream.ScoredReading) (stream.ConfirmedAnomaly, bool) {
	current := g.counts[sr.SensorID]

	if !sr.IsAnomaly {
		if current > 0 {
			g.logger.Printf("counter reset: sensor=%s (was %d → 0)", sr.SensorID, current)
			g.counts[sr.SensorID] = 0
		}
		return stream.ConfirmedAnomaly{}, false
	}

	current++
	g.counts[sr.SensorID] = current
	if current < g.need {
		return stream.ConfirmedAnomaly{}, false
	}
	return stream.ConfirmedAnomaly{ScoredReading: sr, ConsecutiveCount: current}, true
}

// Count returns the current streak for a sensor without mutating it.
func (g *Gate) Count(sensorID string) int { return g.counts[sensorID] }

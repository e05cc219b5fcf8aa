// Package stats maintains per-sensor sliding-window statistics. Each
// arriving reading contributes O(1) work to every window it overlaps (at
// most ceil(duration/hop) windows); a window is finalized and emitted when
// the sensor's event time passes its end. There is never a re-scan of
// window contents.
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/cetp/sentinel/internal/stream"
)

// winAgg is the running aggregate of one open window.
type winAgg struct {
	startMS int64
	sum     float64
	sumSq   float64
	min     float64
	max     float64
	count   int
}

type sensorWindows struct {
	open map[int64]*winAgg // keyed by window start in unix ms
}

// WindowEngine computes sliding-window statistics for every sensor it sees.
// Per-sensor readings must arrive in event-time order (the ingest layer
// guarantees per-file insertion order).
type WindowEngine struct {
	durationMS int64
	hopMS      int64
	epsilon    float64
	timeFormat string
	sensors    map[string]*sensorWindows
}

func NewWindowEngine(durationMS, hopMS int, epsilon float64, timeFormat string) *WindowEngine {
	return &WindowEngine{
		durationMS: int64(durationMS),
		hopMS:      int64(hopMS),
		epsilon:    epsilon,
		timeFormat: timeFormat,
		sensors:    make(map[string]*sensorWindows),
	}
}

// Process folds one reading into every overlapping window of its sensor and
// returns the windows that closed as a consequence of the advancing event
// time, in window-start order. Null values never reach this stage.
func (e *WindowEngine) Process(r stream.Reading) []stream.WindowStats {
	if r.Value == nil {
		return nil
	}
	ts, ok := stream.ParseTime(r.Timestamp, e.timeFormat)
	if !ok {
		return nil
	}
	ms := ts.UnixMilli()

	sw := e.sensors[r.SensorID]
	if sw == nil {
		sw = &sensorWindows{open: make(map[int64]*winAgg)}
		e.sensors[r.SensorID] = sw
	}

	// Close every window whose end the new reading has passed.
	closed := e.closeBefore(r.SensorID, sw, ms)

	// Fold the value into each overlapping window: starts aligned on the
	// hop, within (ms - duration, ms].
	v := *r.Value
	first := (ms / e.hopMS) * e.hopMS
	for start := first; start > ms-e.durationMS; start -= e.hopMS {
		agg := sw.open[start]
		if agg == nil {
			agg = &winAgg{startMS: start, min: v, max: v}
			sw.open[start] = agg
		}
		agg.sum += v
		agg.sumSq += v * v
		if v < agg.min {
			agg.min = v
		}
		if v > agg.max {
			agg.max = v
		}
		agg.count++
	}

	return closed
}

// Flush finalizes every still-open window, for end-of-stream draining.
// Output is ordered by (sensor, window start) for determinism.
func (e *WindowEngine) Flush() []stream.WindowStats {
	sensorIDs := make([]string, 0, len(e.sensors))
	for id := range e.sensors {
		sensorIDs = append(sensorIDs, id)
	}
	sort.Strings(sensorIDs)

	var out []stream.WindowStats
	for _, id := range sensorIDs {
		out = append(out, e.closeBefore(id, e.sensors[id], math.MaxInt64)...)
	}
	return out
}

func (e *WindowEngine) closeBefore(sensorID string, sw *sensorWindows, watermarkMS int64) []stream.WindowStats {
	var done []*winAgg
	for start, agg := range sw.open {
		if start+e.durationMS <= watermarkMS {
			done = append(done, agg)
			delete(sw.open, start)
		}
	}
	if len(done) == 0 {
		return nil
	}
	sort.Slice(done, func(i, j int) bool { return done[i].startMS < done[j].startMS })

	out := make([]stream.WindowStats, 0, len(done))
	for _, agg := range done {
		if agg.count == 0 {
			continue
		}
		out = append(out, e.finalize(sensorID, agg))
	}
	return out
}

// finalize derives the emitted row. Population variance comes from the
// identity Var = E[X²] − E[X]², clamped at zero to absorb float rounding on
// near-constant input, and the std is floored at epsilon so the z-score
// divide is always safe. A single-sample window emits std = epsilon.
func (e *WindowEngine) finalize(sensorID string, agg *winAgg) stream.WindowStats {
	n := float64(agg.count)
	mean := agg.sum / n
	variance := agg.sumSq/n - mean*mean
	std := math.Sqrt(math.Max(0, variance)) + e.epsilon

	return stream.WindowStats{
		SensorID:    sensorID,
		WindowStart: time.UnixMilli(agg.startMS).UTC().Format(e.timeFormat),
		WindowEnd:   time.UnixMilli(agg.startMS + e.durationMS).UTC().Format(e.timeFormat),
		Mean:        mean,
		Std:         std,
		Min:         agg.min,
		Max:         agg.max,
		SampleCount: agg.count,
	}
}

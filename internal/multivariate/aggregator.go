// Package multivariate synchronizes confirmed per-sensor anomalies into
// group-level composite scores. Readings of one group are aligned into time
// buckets (timestamp rounded to the sync tolerance); each bucket tracks a
// bitmask of which group sensors have fired and emits exactly one row when
// the mask completes or a later bucket is observed for the same group.
package multivariate

import (
	"math"
	"math/bits"

	"github.com/cetp/sentinel/internal/config"
	"github.com/cetp/sentinel/internal/stream"
)

type memberRef struct {
	group int
	bit   uint
}

// bucket accumulates one (group, time bucket) pair.
type bucket struct {
	key      int64 // bucket timestamp in unix ms, rounded to tolerance
	mask     uint64
	zScores  map[string]float64
	latestTS string
	latestMS int64
}

// Aggregator is keyed by group; sensors outside every group contribute
// nothing. State is process-local and discarded after emission.
type Aggregator struct {
	groups     []config.SensorGroup
	membership map[string]memberRef
	fullMask   []uint64
	tolMS      int64
	threshold  float64
	timeFormat string

	open map[string]*bucket // group name → current bucket
}

func NewAggregator(groups config.GroupsConfig, timeFormat string) *Aggregator {
	a := &Aggregator{
		groups:     groups.SensorGroups,
		membership: make(map[string]memberRef),
		fullMask:   make([]uint64, len(groups.SensorGroups)),
		tolMS:      groups.SyncToleranceMS,
		threshold:  groups.GroupThreshold,
		timeFormat: timeFormat,
		open:       make(map[string]*bucket),
	}
	for gi, g := range groups.SensorGroups {
		for si, sensor := range g.Sensors {
			a.membership[sensor] = memberRef{group: gi, bit: uint(si)}
			a.fullMask[gi] |= 1 << uint(si)
		}
	}
	return a
}

// Process folds one confirmed anomaly into its group's current bucket and
// returns zero, one, or two emitted rows (a closing stale bucket plus a
// completing current one).
func (a *Aggregator) Process(c stream.ConfirmedAnomaly) []stream.GroupRow {
	ref, ok := a.membership[c.SensorID]
	if !ok {
		return nil
	}
	ts, ok := stream.ParseTime(c.Timestamp, a.timeFormat)
	if !ok {
		return nil
	}
	key := stream.BucketMillis(ts, a.tolMS)
	g := a.groups[ref.group]

	var out []stream.GroupRow

	b := a.open[g.Name]
	switch {
	case b == nil:
		b = &bucket{key: key, zScores: make(map[string]float64)}
		a.open[g.Name] = b
	case key > b.key:
		// A later bucket closes the previous one.
		out = append(out, a.emit(ref.group, b))
		b = &bucket{key: key, zScores: make(map[string]float64)}
		a.open[g.Name] = b
	case key < b.key:
		// Straggler for an already-closed bucket; dropped.
		return out
	}

	b.mask |= 1 << ref.bit
	b.zScores[c.SensorID] = c.ZScore
	ms := ts.UnixMilli()
	if ms >= b.latestMS {
		b.latestMS = ms
		b.latestTS = c.Timestamp
	}

	if b.mask == a.fullMask[ref.group] {
		out = append(out, a.emit(ref.group, b))
		delete(a.open, g.Name)
	}
	return out
}

// Flush finalizes every open bucket at end of stream.
func (a *Aggregator) Flush() []stream.GroupRow {
	var out []stream.GroupRow
	for gi, g := range a.groups {
		if b := a.open[g.Name]; b != nil {
			out = append(out, a.emit(gi, b))
			delete(a.open, g.Name)
		}
	}
	return out
}

// emit builds the single row for a finished bucket. The composite score is
// the root-mean-square of the contributing z-scores only; the bucket's
// effective timestamp is the latest contributing reading's timestamp.
func (a *Aggregator) emit(groupIdx int, b *bucket) stream.GroupRow {
	g := a.groups[groupIdx]

	contributing := make([]string, 0, bits.OnesCount64(b.mask))
	missing := make([]string, 0, len(g.Sensors))
	var sumSq float64
	for i, sensor := range g.Sensors {
		if b.mask&(1<<uint(i)) != 0 {
			contributing = append(contributing, sensor)
			z := b.zScores[sensor]
			sumSq += z * z
		} else {
			missing = append(missing, sensor)
		}
	}

	composite := 0.0
	if len(contributing) > 0 {
		composite = math.Sqrt(sumSq / float64(len(contributing)))
	}

	zCopy := make(map[string]float64, len(b.zScores))
	for k, v := range b.zScores {
		zCopy[k] = v
	}

	return stream.GroupRow{
		GroupName:      g.Name,
		Timestamp:      b.latestTS,
		CompositeScore: composite,
		SensorZScores:  zCopy,
		Contributing:   contributing,
		Missing:        missing,
		IsGroupAnomaly: composite > a.threshold,
	}
}

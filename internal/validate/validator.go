// Package validate enforces the per-record field, type, and range rules at
// the pipeline boundary. Valid readings continue; rejects are wrapped into
// quarantine records with the reason and arrival time. Validation never
// fails the pipeline.
package validate

import (
	"fmt"
	"math"
	"path"
	"strings"
	"time"

	"github.com/cetp/sentinel/internal/config"
	"github.com/cetp/sentinel/internal/stream"
)

// Validator is a pure per-record predicate configured once at startup.
type Validator struct {
	maxIDLen   int
	ranges     []config.RangeRule
	timeFormat string
}

func New(input config.InputConfig) *Validator {
	return &Validator{
		maxIDLen:   input.MaxSensorIDLength,
		ranges:     input.ValueRanges,
		timeFormat: input.TimeFormat,
	}
}

// Validate checks one reading against the industrial safety rules.
// Returns (true, "") when the reading may continue, else (false, reason).
func (v *Validator) Validate(r stream.Reading) (bool, string) {
	if r.SensorID == "" {
		return false, "missing 'sensor_id'"
	}
	if r.Timestamp == "" {
		return false, "missing 'timestamp'"
	}
	if r.Value == nil {
		return false, "missing 'value'"
	}

	if strings.TrimSpace(r.SensorID) == "" {
		return false, "invalid 'sensor_id': empty after trimming"
	}
	if len(r.SensorID) > v.maxIDLen {
		return false, fmt.Sprintf("sensor_id exceeds max length (%d > %d)", len(r.SensorID), v.maxIDLen)
	}

	val := *r.Value
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return false, fmt.Sprintf("value must be finite (got %g)", val)
	}

	if _, ok := stream.ParseTime(r.Timestamp, v.timeFormat); !ok {
		return false, fmt.Sprintf("invalid 'timestamp' format: %q", r.Timestamp)
	}

	// Ordered first-match range lookup. Config validation guarantees the
	// "*" catch-all exists, so a rule always matches.
	for _, rule := range v.ranges {
		matched, err := path.Match(rule.Pattern, r.SensorID)
		if err != nil || !matched {
			continue
		}
		if val < rule.Min || val > rule.Max {
			return false, fmt.Sprintf("value %g out of range [%g, %g] for pattern %q",
				val, rule.Min, rule.Max, rule.Pattern)
		}
		break
	}

	return true, ""
}

// Quarantine wraps a rejected reading with its reason and arrival time.
func Quarantine(runID string, r stream.Reading, reason string) stream.QuarantineRecord {
	return stream.QuarantineRecord{
		RunID:           runID,
		ReceivedAt:      time.Now().UTC().Format(time.RFC3339),
		RejectionReason: reason,
		Payload:         r,
	}
}

package stream

import (
	"math"
	"strconv"
	"time"
)

// DefaultTimeFormat is the wall-time layout used by the MPCB CSV exports.
const DefaultTimeFormat = "2006-01-02 15:04"

// fallback layouts tried after the configured one. MPCB archives mix
// minute-resolution stamps with full ISO forms depending on export tooling.
var fallbackLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseTime parses a record timestamp: first the configured layout, then the
// known ISO variants, finally a numeric Unix epoch (seconds, fractional
// allowed). The bool reports whether any interpretation succeeded.
func ParseTime(ts, layout string) (time.Time, bool) {
	if layout != "" {
		if t, err := time.Parse(layout, ts); err == nil {
			return t, true
		}
	}
	for _, l := range fallbackLayouts {
		if l == layout {
			continue
		}
		if t, err := time.Parse(l, ts); err == nil {
			return t, true
		}
	}
	if epoch, err := strconv.ParseFloat(ts, 64); err == nil && !math.IsNaN(epoch) && !math.IsInf(epoch, 0) {
		sec := int64(epoch)
		nsec := int64((epoch - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC(), true
	}
	return time.Time{}, false
}

// BucketMillis rounds t to the nearest multiple of tolMS milliseconds.
// Buckets align same-event readings across the sensors of a group.
func BucketMillis(t time.Time, tolMS int64) int64 {
	if tolMS < 1 {
		tolMS = 1
	}
	ms := t.UnixMilli()
	return ((ms + tolMS/2) / tolMS) * tolMS
}

// Round2 rounds to 2 decimal places (evidence log float precision).
func Round2(v float64) float64 { return math.Round(v*100) / 100 }

// Round3 rounds to 3 decimal places (attribution fraction precision).
func Round3(v float64) float64 { return math.Round(v*1000) / 1000 }

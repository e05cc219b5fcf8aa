package multivariate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cetp/sentinel/internal/stream"
)

// contribution pairs a sensor with its normalized share of the squared
// composite score.
type contribution struct {
	Sensor   string
	Fraction float64
}

// Attribute ranks each contributing sensor by z²/Σz². When every z-score is
// exactly zero the blame is split equally. Ordering is fraction descending,
// sensor id ascending on ties.
func Attribute(row stream.GroupRow) []contribution {
	var sumSq float64
	for _, s := range row.Contributing {
		z := row.SensorZScores[s]
		sumSq += z * z
	}

	out := make([]contribution, 0, len(row.Contributing))
	for _, s := range row.Contributing {
		frac := 0.0
		if sumSq > 0 {
			z := row.SensorZScores[s]
			frac = z * z / sumSq
		} else if len(row.Contributing) > 0 {
			frac = 1.0 / float64(len(row.Contributing))
		}
		out = append(out, contribution{Sensor: s, Fraction: frac})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Fraction != out[j].Fraction {
			return out[i].Fraction > out[j].Fraction
		}
		return out[i].Sensor < out[j].Sensor
	})
	return out
}

// FormatAlert enriches a group anomaly with its attribution breakdown and
// the operator-facing message. The detail JSON preserves descending blame
// order, which encoding/json would destroy for a map, so the object text is
// assembled by hand.
func FormatAlert(row stream.GroupRow) stream.AttributedAnomaly {
	contribs := Attribute(row)

	top := ""
	topFrac := 0.0
	if len(contribs) > 0 {
		top = contribs[0].Sensor
		topFrac = contribs[0].Fraction
	}

	var detail strings.Builder
	detail.WriteByte('{')
	for i, c := range contribs {
		if i > 0 {
			detail.WriteString(", ")
		}
		fmt.Fprintf(&detail, "%q: %s", c.Sensor, formatFraction(c.Fraction))
	}
	detail.WriteByte('}')

	msg := ""
	if top != "" {
		msg = fmt.Sprintf("Anomaly in %s: primary driver %s (%.0f%% of score)",
			row.GroupName, top, topFrac*100)
	}

	return stream.AttributedAnomaly{
		GroupRow:          row,
		TopContributor:    top,
		AttributionDetail: detail.String(),
		AlertMessage:      msg,
	}
}

// formatFraction renders a fraction rounded to three decimals with trailing
// zeros trimmed, keeping at least one digit after the point (0.5 stays
// "0.5", 1 becomes "1.0").
func formatFraction(f float64) string {
	s := strconv.FormatFloat(stream.Round3(f), 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

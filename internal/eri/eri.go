// Package eri converts composite anomaly scores into the Environmental Risk
// Index: the composite scaled by how sensitive the receiving river stretch
// is at that discharge point, then classified into operator risk bands.
package eri

import (
	"log"

	"github.com/cetp/sentinel/internal/config"
	"github.com/cetp/sentinel/internal/stream"
)

type Computer struct {
	sensitivity map[string]float64
	defaultSens float64
	severity    float64
	lowUpper    float64
	mediumUpper float64
	highUpper   float64
	logger      *log.Logger

	warned map[string]bool // discharge points already warned about
}

func NewComputer(cfg config.ERIConfig) *Computer {
	sens := make(map[string]float64, len(cfg.RiverSensitivity))
	for k, v := range cfg.RiverSensitivity {
		sens[k] = v
	}
	return &Computer{
		sensitivity: sens,
		defaultSens: cfg.DefaultSensitivity,
		severity:    cfg.SeverityMultiplier,
		lowUpper:    cfg.ThresholdLow,
		mediumUpper: cfg.ThresholdMedium,
		highUpper:   cfg.ThresholdHigh,
		logger:      log.New(log.Writer(), "[ERI] ", log.LstdFlags),
		warned:      make(map[string]bool),
	}
}

// Compute scales one attributed anomaly by the river sensitivity of its
// discharge point. A point absent from the sensitivity table falls back to
// the default factor, flags the reading, and warns once per point.
func (c *Computer) Compute(a stream.AttributedAnomaly) stream.ERIReading {
	point := a.GroupName
	factor, known := c.sensitivity[point]
	if !known {
		factor = c.defaultSens
		if !c.warned[point] {
			c.warned[point] = true
			c.logger.Printf("⚠️  no river sensitivity configured for %q; using default %.2f", point, factor)
		}
	}

	eri := a.CompositeScore * factor * c.severity
	return stream.ERIReading{
		DischargePointID:   point,
		Timestamp:          a.Timestamp,
		CompositeScore:     a.CompositeScore,
		SensitivityFactor:  factor,
		ERI:                eri,
		RiskBand:           c.Classify(eri),
		UnknownSensitivity: !known,
		TopContributor:     a.TopContributor,
		AttributionDetail:  a.AttributionDetail,
		AlertMessage:       a.AlertMessage,
	}
}

// Classify maps an ERI value onto the risk bands. Band edges belong to the
// band above: an ERI exactly at threshold_low is MEDIUM.
func (c *Computer) Classify(eri float64) stream.RiskBand {
	switch {
	case eri < c.lowUpper:
		return stream.BandLow
	case eri < c.mediumUpper:
		return stream.BandMedium
	case eri < c.highUpper:
		return stream.BandHigh
	default:
		return stream.BandCritical
	}
}

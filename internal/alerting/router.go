// Package alerting is the last gate before operators see anything: it drops
// sub-threshold risk bands, suppresses repeats inside the per-point cooldown
// window, and shapes the surviving records for the alert log.
package alerting

import (
	"log"
	"time"

	"github.com/cetp/sentinel/internal/config"
	"github.com/cetp/sentinel/internal/stream"
)

type Router struct {
	minRank    int
	cooldown   time.Duration
	timeFormat string
	lastAlert  map[string]time.Time // discharge point → last routed event time
	logger     *log.Logger
}

func NewRouter(cfg config.AlertsConfig, timeFormat string) *Router {
	return &Router{
		minRank:    stream.RiskBand(cfg.MinRiskBand).Rank(),
		cooldown:   time.Duration(cfg.CooldownSeconds) * time.Second,
		timeFormat: timeFormat,
		lastAlert:  make(map[string]time.Time),
		logger:     log.New(log.Writer(), "[ALERT] ", log.LstdFlags),
	}
}

// Route decides whether one ERI reading becomes an operator alert. Returns
// (record, true) on routing; (zero, false) when the band is below the
// configured minimum or the point is still cooling down. The cooldown clock
// runs on event time, so replayed history dedupes identically to live runs.
func (r *Router) Route(e stream.ERIReading) (stream.AlertRecord, bool) {
	if e.RiskBand.Rank() < r.minRank {
		return stream.AlertRecord{}, false
	}

	ts, parsed := stream.ParseTime(e.Timestamp, r.timeFormat)
	if parsed {
		// cooldown=0 disables suppression even for out-of-order event times.
		if last, seen := r.lastAlert[e.DischargePointID]; seen && r.cooldown > 0 && ts.Sub(last) < r.cooldown {
			r.logger.Printf("suppressed (cooldown): point=%s ts=%s band=%s",
				e.DischargePointID, e.Timestamp, e.RiskBand)
			return stream.AlertRecord{}, false
		}
		r.lastAlert[e.DischargePointID] = ts
	}

	rec := stream.AlertRecord{
		DischargePointID:  e.DischargePointID,
		Timestamp:         e.Timestamp,
		ERI:               e.ERI,
		RiskBand:          e.RiskBand,
		AlertLevel:        levelFor(e.RiskBand),
		SensitivityFactor: e.SensitivityFactor,
		TopContributor:    e.TopContributor,
		AlertMessage:      e.AlertMessage,
	}
	// MEDIUM alerts are advisory: attribution details stay internal.
	if e.RiskBand == stream.BandMedium {
		rec.TopContributor = ""
		rec.AlertMessage = ""
		rec.SensitivityFactor = 0.0
	}

	r.logger.Printf("routed: point=%s band=%s level=%s eri=%.2f",
		rec.DischargePointID, rec.RiskBand, rec.AlertLevel, rec.ERI)
	return rec, true
}

// LastAlertTimes exposes a copy of the cooldown table for KPI reporting.
func (r *Router) LastAlertTimes() map[string]time.Time {
	out := make(map[string]time.Time, len(r.lastAlert))
	for k, v := range r.lastAlert {
		out[k] = v
	}
	return out
}

func levelFor(band stream.RiskBand) stream.AlertLevel {
	switch band {
	case stream.BandCritical:
		return stream.LevelCritical
	case stream.BandHigh:
		return stream.LevelWarning
	default:
		return stream.LevelInfo
	}
}

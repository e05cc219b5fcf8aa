// Package tripwire watches the CETP inlet COD channel for shock loads. The
// check is a stateless threshold on each row; escalation to HIGH happens at
// twice the plant's design baseline.
package tripwire

import (
	"log"

	"github.com/cetp/sentinel/internal/config"
	"github.com/cetp/sentinel/internal/stream"
)

type Tripwire struct {
	baseline  float64
	threshold float64
	logger    *log.Logger
}

func New(cfg config.CETPConfig) *Tripwire {
	return &Tripwire{
		baseline:  cfg.CODBaseline,
		threshold: cfg.CODThreshold,
		logger:    log.New(log.Writer(), "[TRIPWIRE] ", log.LstdFlags),
	}
}

// Check inspects one inlet row. Rows with a null inlet COD never trip; a
// reading at or above the threshold produces a ShockEvent whose breach
// magnitude is measured against the baseline, not the threshold.
func (t *Tripwire) Check(row stream.CETPRow) (stream.ShockEvent, bool) {
	if row.InletCOD == nil {
		return stream.ShockEvent{}, false
	}
	cod := *row.InletCOD
	if cod < t.threshold {
		return stream.ShockEvent{}, false
	}

	level := "MEDIUM"
	if cod >= 2*t.baseline {
		level = "HIGH"
	}
	ev := stream.ShockEvent{
		Time:       row.Time,
		CODValue:   cod,
		BreachMag:  cod - t.baseline,
		AlertLevel: level,
	}
	t.logger.Printf("🚨 shock load: time=%s cod=%.2f breach=%.2f level=%s",
		ev.Time, ev.CODValue, ev.BreachMag, ev.AlertLevel)
	return ev, true
}

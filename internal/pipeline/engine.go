// Package pipeline wires the detection stages into the running engine: one
// dataflow goroutine per source keeps per-sensor ordering by construction,
// while the event bus, webhook dispatcher, livefeed hub, and snapshot ticker
// run alongside.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cetp/sentinel/internal/alerting"
	"github.com/cetp/sentinel/internal/backtrack"
	"github.com/cetp/sentinel/internal/config"
	"github.com/cetp/sentinel/internal/eri"
	"github.com/cetp/sentinel/internal/events"
	"github.com/cetp/sentinel/internal/ingest"
	"github.com/cetp/sentinel/internal/metrics"
	"github.com/cetp/sentinel/internal/multivariate"
	"github.com/cetp/sentinel/internal/score"
	"github.com/cetp/sentinel/internal/sinks"
	"github.com/cetp/sentinel/internal/stats"
	"github.com/cetp/sentinel/internal/stream"
	"github.com/cetp/sentinel/internal/tripwire"
	"github.com/cetp/sentinel/internal/validate"
	"github.com/cetp/sentinel/internal/webhooks"
)

// Engine owns the full detection dataflow for one run.
type Engine struct {
	cfg   *config.Config
	runID string

	cetpSrc    ingest.CETPSource
	factorySrc ingest.FactorySource

	validator  *validate.Validator
	windows    *stats.WindowEngine
	scorer     *score.Scorer
	gate       *score.Gate
	groups     *multivariate.Aggregator
	trip       *tripwire.Tripwire
	attributor *backtrack.Attributor
	eriComp    *eri.Computer
	router     *alerting.Router

	evidenceLog   *sinks.JSONLWriter
	alertsLog     *sinks.JSONLWriter
	quarantineLog *sinks.JSONLWriter

	kpis *metrics.Aggregator
	lat  *metrics.LatencyCollector
	prom *metrics.PromMetrics

	bus        *events.EventBus
	dispatcher webhooks.Emitter

	logger *log.Logger
}

// Options carries the externally constructed collaborators.
type Options struct {
	RunID      string
	CETPSource ingest.CETPSource
	FactorySrc ingest.FactorySource
	// HistoryRows is the eager-loaded factory history for backtracking.
	HistoryRows []stream.FactoryRow
	Bus         *events.EventBus
	Dispatcher  webhooks.Emitter
	KPIs        *metrics.Aggregator
}

func NewEngine(cfg *config.Config, opts Options) *Engine {
	idx := backtrack.NewIndex(opts.HistoryRows, cfg.Input.TimeFormat)

	kpis := opts.KPIs
	if kpis == nil {
		kpis = metrics.NewAggregator(cfg.Alerts.CooldownSeconds)
	}

	return &Engine{
		cfg:        cfg,
		runID:      opts.RunID,
		cetpSrc:    opts.CETPSource,
		factorySrc: opts.FactorySrc,

		validator:  validate.New(cfg.Input),
		windows:    stats.NewWindowEngine(cfg.Scoring.WindowDurationMS, cfg.Scoring.WindowHopMS, cfg.Scoring.Epsilon, cfg.Input.TimeFormat),
		scorer:     score.NewScorer(cfg.Scoring.ZScoreThreshold, cfg.Scoring.Epsilon),
		gate:       score.NewGate(cfg.Scoring.PersistenceCount),
		groups:     multivariate.NewAggregator(cfg.Groups, cfg.Input.TimeFormat),
		trip:       tripwire.New(cfg.CETP),
		attributor: backtrack.NewAttributor(idx, cfg.CETP, cfg.Input.TimeFormat),
		eriComp:    eri.NewComputer(cfg.ERI),
		router:     alerting.NewRouter(cfg.Alerts, cfg.Input.TimeFormat),

		evidenceLog:   sinks.NewJSONLWriter(cfg.Sinks.EvidencePath),
		alertsLog:     sinks.NewJSONLWriter(cfg.Sinks.AlertsPath),
		quarantineLog: sinks.NewJSONLWriter(cfg.Sinks.QuarantinePath),

		kpis: kpis,
		lat:  metrics.NewLatencyCollector(cfg.Metrics.RateWindowSeconds),
		prom: metrics.Prom(),

		bus:        opts.Bus,
		dispatcher: opts.Dispatcher,

		logger: log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags),
	}
}

// KPIs exposes the aggregator for the API server.
func (e *Engine) KPIs() *metrics.Aggregator { return e.kpis }

// Run drives both source loops to completion or cancellation, then drains
// the stateful stages, writes the final KPI snapshot, and closes the sinks.
func (e *Engine) Run(ctx context.Context) error {
	go e.backgroundTickers(ctx)

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := e.cetpLoop(ctx); err != nil {
			errs <- fmt.Errorf("cetp loop: %w", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := e.factoryLoop(ctx); err != nil {
			errs <- fmt.Errorf("factory loop: %w", err)
		}
	}()

	wg.Wait()
	close(errs)

	e.drain()

	if err := e.kpis.WriteSnapshot(e.cfg.Sinks.MetricsPath); err != nil {
		e.logger.Printf("final snapshot write failed: %v", err)
	}
	e.closeSinks()

	for err := range errs {
		if err != nil {
			return err
		}
	}
	e.logger.Printf("run %s complete", e.runID)
	return nil
}

// cetpLoop runs the shock path: tripwire then backtrack attribution.
func (e *Engine) cetpLoop(ctx context.Context) error {
	rows, err := e.cetpSrc.Rows(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case row, ok := <-rows:
			if !ok {
				return nil
			}
			start := time.Now()
			e.processCETPRow(row)
			e.observeLatency(start, "cetp", row.Time)
		}
	}
}

func (e *Engine) processCETPRow(row stream.CETPRow) {
	ev, tripped := e.trip.Check(row)
	if !tripped {
		return
	}
	e.prom.ShockEvents.Inc()
	e.publish(events.TypeShockDetected, ev.Time, map[string]interface{}{
		"cod_value":   ev.CODValue,
		"breach_mag":  ev.BreachMag,
		"alert_level": ev.AlertLevel,
	})

	rec := e.attributor.Attribute(e.runID, ev)
	if err := e.evidenceLog.Append(rec); err != nil {
		e.logger.Printf("evidence write failed: %v", err)
	}
	data := map[string]interface{}{
		"cetp_event_time": rec.CETPEventTime,
		"cetp_cod":        rec.CETPCOD,
		"backtrack_time":  rec.BacktrackTime,
	}
	subject := ""
	if rec.AttributedFactory != nil {
		subject = *rec.AttributedFactory
		data["attributed_factory"] = *rec.AttributedFactory
	}
	e.publish(events.TypeEvidenceLogged, subject, data)
	if e.dispatcher != nil {
		e.dispatcher.Emit(webhooks.EventEvidenceLogged, subject, data)
	}
}

// factoryLoop runs the scoring path: validation, windows, z-score,
// persistence, multivariate, ERI, routing.
func (e *Engine) factoryLoop(ctx context.Context) error {
	rows, err := e.factorySrc.Rows(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case row, ok := <-rows:
			if !ok {
				return nil
			}
			start := time.Now()
			for _, r := range expandFactoryRow(row) {
				e.processReading(r)
			}
			e.observeLatency(start, "factory", row.Time)
		}
	}
}

// expandFactoryRow fans a factory row out into one reading per non-null
// channel. Null channels carry no value to score; the blackout detector
// sees them through the anti-cheat path instead.
func expandFactoryRow(row stream.FactoryRow) []stream.Reading {
	channels := []struct {
		suffix string
		value  *float64
	}{
		{"cod", row.COD},
		{"bod", row.BOD},
		{"ph", row.PH},
		{"tss", row.TSS},
	}

	var out []stream.Reading
	for _, ch := range channels {
		if ch.value == nil {
			continue
		}
		out = append(out, stream.Reading{
			SensorID:  row.FactoryID + "_" + ch.suffix,
			Timestamp: row.Time,
			Value:     ch.value,
			BOD:       row.BOD,
			PH:        row.PH,
			TSS:       row.TSS,
			FactoryID: row.FactoryID,
			Status:    row.Status,
			SeqNo:     row.SeqNo,
		})
	}
	return out
}

func (e *Engine) processReading(r stream.Reading) {
	ok, reason := e.validator.Validate(r)
	if !ok {
		e.quarantine(r, reason)
		return
	}
	e.prom.ReadingsProcessed.WithLabelValues("factory").Inc()
	e.kpis.ObserveEvent(r.Timestamp)

	for _, ws := range e.windows.Process(r) {
		e.scorer.Observe(ws)
	}

	sr, scored := e.scorer.Score(r)
	if !scored {
		return
	}

	confirmed, pass := e.gate.Process(sr)
	if !pass {
		return
	}
	e.prom.AnomaliesConfirmed.WithLabelValues(confirmed.SensorID).Inc()
	e.kpis.ObserveAnomaly()

	for _, row := range e.groups.Process(confirmed) {
		e.processGroupRow(row)
	}
}

func (e *Engine) processGroupRow(row stream.GroupRow) {
	if !row.IsGroupAnomaly {
		return
	}
	e.prom.GroupAnomalies.WithLabelValues(row.GroupName).Inc()

	attributed := multivariate.FormatAlert(row)
	reading := e.eriComp.Compute(attributed)
	e.prom.ERIValue.WithLabelValues(reading.DischargePointID).Set(reading.ERI)
	e.kpis.ObserveERI(reading.ERI)

	alert, routed := e.router.Route(reading)
	if !routed {
		return
	}
	e.emitAlert(alert)
}

func (e *Engine) emitAlert(alert stream.AlertRecord) {
	e.prom.AlertsRouted.WithLabelValues(alert.DischargePointID, string(alert.RiskBand)).Inc()
	e.lat.RecordAlert()
	e.kpis.ObserveAlert(alert.DischargePointID, alert.RiskBand)

	// Console channel for the on-duty operator.
	fmt.Printf("[ALERT] level=%s point=%s eri=%.2f band=%s\n",
		alert.AlertLevel, alert.DischargePointID, alert.ERI, alert.RiskBand)

	if err := e.alertsLog.Append(alert); err != nil {
		e.logger.Printf("alert write failed: %v", err)
	}

	data := map[string]interface{}{
		"discharge_point": alert.DischargePointID,
		"timestamp":       alert.Timestamp,
		"eri":             alert.ERI,
		"risk_band":       string(alert.RiskBand),
		"alert_level":     string(alert.AlertLevel),
		"top_contributor": alert.TopContributor,
		"alert_message":   alert.AlertMessage,
	}
	e.publish(events.TypeAlertRouted, alert.DischargePointID, data)
	if e.dispatcher != nil {
		e.dispatcher.Emit(webhooks.EventAlertRouted, alert.DischargePointID, data)
	}
}

func (e *Engine) quarantine(r stream.Reading, reason string) {
	e.prom.RecordsQuarantined.Inc()
	rec := validate.Quarantine(e.runID, r, reason)
	if err := e.quarantineLog.Append(rec); err != nil {
		e.logger.Printf("quarantine write failed: %v", err)
	}
	e.publish(events.TypeRecordQuarantined, r.SensorID, map[string]interface{}{
		"reason": reason,
	})
}

// drain flushes the stateful stages after both sources finished: leftover
// windows feed the scorer's statistics, and open multivariate buckets get
// their final emission through the full downstream path.
func (e *Engine) drain() {
	for _, ws := range e.windows.Flush() {
		e.scorer.Observe(ws)
	}
	for _, row := range e.groups.Flush() {
		e.processGroupRow(row)
	}
}

func (e *Engine) observeLatency(start time.Time, source, timestamp string) {
	elapsed := time.Since(start)
	e.lat.RecordLatency(float64(elapsed.Microseconds()) / 1000.0)
	e.prom.PipelineLatency.Observe(elapsed.Seconds())
	if source == "cetp" {
		e.prom.ReadingsProcessed.WithLabelValues("cetp").Inc()
		e.kpis.ObserveEvent(timestamp)
	}
}

func (e *Engine) publish(eventType, subject string, data map[string]interface{}) {
	if e.bus == nil {
		return
	}
	data["run_id"] = e.runID
	e.bus.Emit(eventType, "/cetp/sentinel", subject, data)
}

// backgroundTickers drives the periodic KPI snapshot and the console
// latency summary until the run ends.
func (e *Engine) backgroundTickers(ctx context.Context) {
	reporter := metrics.NewReporter(e.lat, e.cfg.Metrics.ReportIntervalSeconds)

	snapshotTick := time.NewTicker(time.Duration(e.cfg.Metrics.SnapshotIntervalSeconds) * time.Second)
	reportTick := time.NewTicker(reporter.Interval())
	defer snapshotTick.Stop()
	defer reportTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-snapshotTick.C:
			if err := e.kpis.WriteSnapshot(e.cfg.Sinks.MetricsPath); err != nil {
				e.logger.Printf("snapshot write failed: %v", err)
			}
		case <-reportTick.C:
			reporter.Tick()
		}
	}
}

func (e *Engine) closeSinks() {
	for _, w := range []*sinks.JSONLWriter{e.evidenceLog, e.alertsLog, e.quarantineLog} {
		if err := w.Close(); err != nil {
			e.logger.Printf("sink close failed: %v", err)
		}
	}
}

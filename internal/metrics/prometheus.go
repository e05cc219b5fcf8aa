package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PromMetrics holds the Prometheus instruments exposed at /metrics.
type PromMetrics struct {
	ReadingsProcessed   *prometheus.CounterVec
	RecordsQuarantined  prometheus.Counter
	AnomaliesConfirmed  *prometheus.CounterVec
	GroupAnomalies      *prometheus.CounterVec
	AlertsRouted        *prometheus.CounterVec
	ShockEvents         prometheus.Counter
	TamperFindings      *prometheus.CounterVec
	ERIValue            *prometheus.GaugeVec
	PipelineLatency     prometheus.Histogram
	WebhookDeliveries   *prometheus.CounterVec
	LivefeedSubscribers prometheus.Gauge
}

var (
	promOnce      sync.Once
	promSingleton *PromMetrics
)

// Prom returns the process-wide metrics set. promauto registers with the
// default registry, which panics on duplicates, so construction happens
// exactly once no matter how many components ask.
func Prom() *PromMetrics {
	promOnce.Do(func() {
		promSingleton = &PromMetrics{
			ReadingsProcessed: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sentinel_readings_processed_total",
					Help: "Total sensor readings accepted onto the scoring path",
				},
				[]string{"source"}, // source: cetp, factory
			),
			RecordsQuarantined: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "sentinel_records_quarantined_total",
					Help: "Total records rejected by validation",
				},
			),
			AnomaliesConfirmed: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sentinel_anomalies_confirmed_total",
					Help: "Per-sensor anomalies that survived the persistence gate",
				},
				[]string{"sensor_id"},
			),
			GroupAnomalies: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sentinel_group_anomalies_total",
					Help: "Multivariate composite scores above the group threshold",
				},
				[]string{"group"},
			),
			AlertsRouted: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sentinel_alerts_routed_total",
					Help: "Alerts that passed the band and cooldown gates",
				},
				[]string{"discharge_point", "risk_band"},
			),
			ShockEvents: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "sentinel_shock_events_total",
					Help: "CETP inlet COD threshold breaches",
				},
			),
			TamperFindings: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sentinel_tamper_findings_total",
					Help: "Anti-cheat audit findings by detector",
				},
				[]string{"tamper_type", "factory_id"},
			),
			ERIValue: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "sentinel_eri_value",
					Help: "Most recent Environmental Risk Index per discharge point",
				},
				[]string{"discharge_point"},
			),
			PipelineLatency: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "sentinel_pipeline_latency_seconds",
					Help:    "End-to-end latency from record read to stage completion",
					Buckets: prometheus.DefBuckets,
				},
			),
			WebhookDeliveries: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sentinel_webhook_deliveries_total",
					Help: "Webhook delivery attempts by outcome",
				},
				[]string{"status"}, // status: ok, failed
			),
			LivefeedSubscribers: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "sentinel_livefeed_subscribers",
					Help: "Currently connected websocket alert subscribers",
				},
			),
		}
	})
	return promSingleton
}

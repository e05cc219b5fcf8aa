// Package stream defines the record types that flow between pipeline stages
// and the contracts every stage implements. Stages own the streams they
// produce; downstream stages observe values but never mutate them.
package stream

// RowStatus tags a factory row by the state of its primary COD channel.
type RowStatus string

const (
	StatusNormal   RowStatus = "NORMAL"   // numeric COD reading present
	StatusBlackout RowStatus = "BLACKOUT" // COD is null (sensor silence)
)

// ============================================================================
// SOURCE ROWS
// ============================================================================

// CETPRow is one record from the CETP inlet/outlet CSV after column
// normalization. Nil pointers represent null readings ("NA" or blank).
type CETPRow struct {
	SeqNo     int64
	Time      string
	InletCOD  *float64
	InletBOD  *float64
	InletPH   *float64
	InletTSS  *float64
	OutletCOD *float64
	OutletBOD *float64
	OutletPH  *float64
	OutletTSS *float64
}

// FactoryRow is one record from a factory discharge CSV after normalization.
type FactoryRow struct {
	SeqNo     int64
	Time      string
	FactoryID string
	COD       *float64
	BOD       *float64
	PH        *float64
	TSS       *float64
	Status    RowStatus
}

// Reading is a single sensor sample on the scoring path. FactoryID and the
// aux channels are carried through for factory-derived readings so the
// evidence path can reference them later.
type Reading struct {
	SensorID  string   `json:"sensor_id"`
	Timestamp string   `json:"timestamp"`
	Value     *float64 `json:"value"`
	BOD       *float64 `json:"bod,omitempty"`
	PH        *float64 `json:"ph,omitempty"`
	TSS       *float64 `json:"tss,omitempty"`
	FactoryID string   `json:"factory_id,omitempty"`
	Status    RowStatus `json:"status,omitempty"`
	SeqNo     int64    `json:"s_no,omitempty"`
}

// QuarantineRecord wraps a rejected reading with the reason it was refused.
type QuarantineRecord struct {
	RunID           string  `json:"run_id"`
	ReceivedAt      string  `json:"received_at"`
	RejectionReason string  `json:"rejection_reason"`
	Payload         Reading `json:"payload"`
}

// ============================================================================
// SCORING PATH
// ============================================================================

// WindowStats is the aggregate for one (sensor, window) pair.
type WindowStats struct {
	SensorID    string  `json:"sensor_id"`
	WindowStart string  `json:"window_start"`
	WindowEnd   string  `json:"window_end"`
	Mean        float64 `json:"mean"`
	Std         float64 `json:"std"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	SampleCount int     `json:"sample_count"`
}

// ScoredReading is a reading joined with its rolling window statistics.
type ScoredReading struct {
	SensorID    string  `json:"sensor_id"`
	Timestamp   string  `json:"timestamp"`
	Value       float64 `json:"value"`
	RollingMean float64 `json:"rolling_mean"`
	RollingStd  float64 `json:"rolling_std"`
	ZScore      float64 `json:"z_score"`
	IsAnomaly   bool    `json:"is_anomaly"`
}

// ConfirmedAnomaly is a scored reading that survived the persistence gate.
type ConfirmedAnomaly struct {
	ScoredReading
	ConsecutiveCount int `json:"consecutive_count"`
}

// GroupRow is one emission of the multivariate aggregator: the synchronized
// z-scores of a sensor group within a single time bucket.
type GroupRow struct {
	GroupName      string             `json:"group_name"`
	Timestamp      string             `json:"timestamp"`
	CompositeScore float64            `json:"composite_score"`
	SensorZScores  map[string]float64 `json:"sensor_z_scores"`
	Contributing   []string           `json:"contributing"`
	Missing        []string           `json:"missing"`
	IsGroupAnomaly bool               `json:"is_group_anomaly"`
}

// AttributedAnomaly is a GroupRow enriched with causal attribution.
type AttributedAnomaly struct {
	GroupRow
	TopContributor    string `json:"top_contributor"`
	AttributionDetail string `json:"attribution_detail"`
	AlertMessage      string `json:"alert_message"`
}

// ============================================================================
// RISK AND ALERTS
// ============================================================================

// RiskBand classifies an ERI value.
type RiskBand string

const (
	BandLow      RiskBand = "LOW"
	BandMedium   RiskBand = "MEDIUM"
	BandHigh     RiskBand = "HIGH"
	BandCritical RiskBand = "CRITICAL"
)

// Rank orders bands for threshold comparison. Unknown bands rank below LOW.
func (b RiskBand) Rank() int {
	switch b {
	case BandLow:
		return 0
	case BandMedium:
		return 1
	case BandHigh:
		return 2
	case BandCritical:
		return 3
	default:
		return -1
	}
}

// AlertLevel is the operator-facing severity of a routed alert.
type AlertLevel string

const (
	LevelInfo     AlertLevel = "INFO"
	LevelWarning  AlertLevel = "WARNING"
	LevelCritical AlertLevel = "CRITICAL"
)

// ERIReading is an attributed anomaly scaled by river sensitivity.
type ERIReading struct {
	DischargePointID   string   `json:"discharge_point_id"`
	Timestamp          string   `json:"timestamp"`
	CompositeScore     float64  `json:"composite_score"`
	SensitivityFactor  float64  `json:"sensitivity_factor"`
	ERI                float64  `json:"eri"`
	RiskBand           RiskBand `json:"risk_band"`
	UnknownSensitivity bool     `json:"unknown_sensitivity"`
	TopContributor     string   `json:"top_contributor"`
	AttributionDetail  string   `json:"attribution_detail"`
	AlertMessage       string   `json:"alert_message"`
}

// AlertRecord is an ERIReading that passed the band and cooldown gates.
// MEDIUM-band records carry masked extra fields.
type AlertRecord struct {
	DischargePointID  string     `json:"discharge_point_id"`
	Timestamp         string     `json:"timestamp"`
	ERI               float64    `json:"eri"`
	RiskBand          RiskBand   `json:"risk_band"`
	AlertLevel        AlertLevel `json:"alert_level"`
	SensitivityFactor float64    `json:"sensitivity_factor"`
	TopContributor    string     `json:"top_contributor"`
	AlertMessage      string     `json:"alert_message"`
}

// ============================================================================
// CETP PATH
// ============================================================================

// ShockEvent is a CETP inlet reading that breached the COD threshold.
type ShockEvent struct {
	Time       string  `json:"time"`
	CODValue   float64 `json:"cod_value"`
	BreachMag  float64 `json:"breach_mag"`
	AlertLevel string  `json:"alert_level"` // HIGH when >= 2x baseline, else MEDIUM
}

// EvidenceRecord is the append-only attribution row written once per shock.
// Field order here dictates JSON key order in the evidence log.
type EvidenceRecord struct {
	RunID             string   `json:"run_id"`
	LoggedAt          string   `json:"logged_at"`
	CETPEventTime     string   `json:"cetp_event_time"`
	CETPCOD           float64  `json:"cetp_cod"`
	BreachMag         float64  `json:"breach_mag"`
	AlertLevel        string   `json:"alert_level"`
	BacktrackTime     string   `json:"backtrack_time"`
	AttributedFactory *string  `json:"attributed_factory"`
	FactoryCOD        *float64 `json:"factory_cod"`
	FactoryBOD        *float64 `json:"factory_bod"`
	FactoryTSS        *float64 `json:"factory_tss"`
}

// ============================================================================
// ANTI-CHEAT
// ============================================================================

// TamperType labels an anti-cheat detection.
type TamperType string

const (
	TamperZeroVariance TamperType = "ZERO_VARIANCE"
	TamperDilution     TamperType = "DILUTION_TAMPER"
	TamperBlackout     TamperType = "BLACKOUT_TAMPER"
)

// TamperRecord is one anti-cheat detection. The optional fields are
// detector-specific; only the set belonging to TamperType is populated.
type TamperRecord struct {
	RunID      string     `json:"run_id"`
	LoggedAt   string     `json:"logged_at"`
	TamperType TamperType `json:"tamper_type"`
	FactoryID  string     `json:"factory_id"`
	WindowEnd  string     `json:"window_end"`

	// ZERO_VARIANCE
	CODMax   *float64 `json:"cod_max,omitempty"`
	CODMin   *float64 `json:"cod_min,omitempty"`
	CODRange *float64 `json:"cod_range,omitempty"`
	RowCount *int     `json:"row_count,omitempty"`

	// DILUTION_TAMPER
	MeanCOD     *float64 `json:"mean_cod,omitempty"`
	MeanTSS     *float64 `json:"mean_tss,omitempty"`
	BaselineCOD *float64 `json:"baseline_cod,omitempty"`
	BaselineTSS *float64 `json:"baseline_tss,omitempty"`

	// BLACKOUT_TAMPER
	TotalRows     *int     `json:"total_rows,omitempty"`
	BlackoutRows  *int     `json:"blackout_rows,omitempty"`
	BlackoutRatio *float64 `json:"blackout_ratio,omitempty"`
}

// Float returns a pointer to v. Convenience for optional numeric fields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Str returns a pointer to v.
func Str(v string) *string { return &v }

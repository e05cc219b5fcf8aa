// Package config holds every pipeline tunable. Values resolve in three
// layers: typed defaults, then an optional YAML file (SENTINEL_CONFIG_FILE),
// then environment variable overrides. Validation runs once at startup;
// an invalid config terminates the process before any record is read.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"

	"github.com/cetp/sentinel/internal/stream"
)

type Config struct {
	Input     InputConfig     `yaml:"input"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Groups    GroupsConfig    `yaml:"groups"`
	CETP      CETPConfig      `yaml:"cetp"`
	ERI       ERIConfig       `yaml:"eri"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	AntiCheat AntiCheatConfig `yaml:"anticheat"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Sinks     SinksConfig     `yaml:"sinks"`
	API       APIConfig       `yaml:"api"`
	LogLevel  string          `yaml:"log_level"`
}

type InputConfig struct {
	CETPDataDir       string      `yaml:"cetp_data_dir"`
	FactoryDataDir    string      `yaml:"factory_data_dir"`
	TimeFormat        string      `yaml:"time_format"`
	MaxSensorIDLength int         `yaml:"max_sensor_id_length"`
	ValueRanges       []RangeRule `yaml:"sensor_value_range"`
}

// RangeRule bounds sensor values for every sensor_id matching Pattern.
// Rules are evaluated in order; the first match wins, so the "*" catch-all
// must be last.
type RangeRule struct {
	Pattern string  `yaml:"pattern"`
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
}

type ScoringConfig struct {
	WindowDurationMS int     `yaml:"window_duration_ms"`
	WindowHopMS      int     `yaml:"window_hop_ms"`
	Epsilon          float64 `yaml:"epsilon"`
	ZScoreThreshold  float64 `yaml:"zscore_threshold"`
	PersistenceCount int     `yaml:"persistence_count"`
}

type GroupsConfig struct {
	SensorGroups    []SensorGroup `yaml:"sensor_groups"`
	SyncToleranceMS int64         `yaml:"sync_tolerance_ms"`
	GroupThreshold  float64       `yaml:"group_threshold"`
}

// SensorGroup names an ordered set of sensors whose readings are
// synchronized into one multivariate composite score.
type SensorGroup struct {
	Name    string   `yaml:"name"`
	Sensors []string `yaml:"sensors"`
}

type CETPConfig struct {
	CODBaseline          float64 `yaml:"cod_baseline"`
	CODThreshold         float64 `yaml:"cod_threshold"`
	PipeTravelMinutes    int     `yaml:"pipe_travel_minutes"`
	ASOFToleranceSeconds int     `yaml:"asof_tolerance_seconds"`
}

type ERIConfig struct {
	RiverSensitivity   map[string]float64 `yaml:"river_sensitivity"`
	DefaultSensitivity float64            `yaml:"default_sensitivity"`
	SeverityMultiplier float64            `yaml:"severity_multiplier"`
	ThresholdLow       float64            `yaml:"threshold_low"`
	ThresholdMedium    float64            `yaml:"threshold_medium"`
	ThresholdHigh      float64            `yaml:"threshold_high"`
}

type AlertsConfig struct {
	MinRiskBand     string `yaml:"min_risk_band"`
	CooldownSeconds int    `yaml:"cooldown_seconds"`
	WebhookURL      string `yaml:"webhook_url"`
	WebhookSecret   string `yaml:"webhook_secret"`
	WebhookWorkers  int    `yaml:"webhook_workers"`
}

type AntiCheatConfig struct {
	ZeroVarianceMinutes   int     `yaml:"zero_variance_minutes"`
	DilutionWindowMinutes int     `yaml:"dilution_window_minutes"`
	CODDropFraction       float64 `yaml:"cod_drop_fraction"`
	TSSStableFraction     float64 `yaml:"tss_stable_fraction"`
	BlackoutMinMinutes    int     `yaml:"blackout_min_minutes"`
	BlackoutNullRatio     float64 `yaml:"blackout_null_ratio"`
}

type MetricsConfig struct {
	ReportIntervalSeconds   int `yaml:"report_interval_seconds"`
	RateWindowSeconds       int `yaml:"rate_window_seconds"`
	SnapshotIntervalSeconds int `yaml:"snapshot_interval_seconds"`
}

type SinksConfig struct {
	EvidencePath   string `yaml:"evidence_path"`
	TamperPath     string `yaml:"tamper_path"`
	AlertsPath     string `yaml:"alerts_path"`
	QuarantinePath string `yaml:"quarantine_path"`
	MetricsPath    string `yaml:"metrics_path"`
}

type APIConfig struct {
	Port               int    `yaml:"port"`
	SiteName           string `yaml:"site_name"`
	SiteLabel          string `yaml:"site_label"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
}

// Default returns the built-in configuration: the demo CETP site with four
// simulated factories.
func Default() *Config {
	return &Config{
		Input: InputConfig{
			CETPDataDir:       "data/cetp",
			FactoryDataDir:    "data/factories",
			TimeFormat:        stream.DefaultTimeFormat,
			MaxSensorIDLength: 64,
			ValueRanges: []RangeRule{
				{Pattern: "*_ph", Min: 0, Max: 14},
				{Pattern: "*", Min: -1e6, Max: 1e6},
			},
		},
		Scoring: ScoringConfig{
			WindowDurationMS: 30000,
			WindowHopMS:      5000,
			Epsilon:          1e-9,
			ZScoreThreshold:  3.0,
			PersistenceCount: 3,
		},
		Groups: GroupsConfig{
			SensorGroups: []SensorGroup{
				{Name: "FACTORY_A", Sensors: []string{"FACTORY_A_cod", "FACTORY_A_bod", "FACTORY_A_tss"}},
				{Name: "FACTORY_B", Sensors: []string{"FACTORY_B_cod", "FACTORY_B_bod", "FACTORY_B_tss"}},
				{Name: "FACTORY_C", Sensors: []string{"FACTORY_C_cod", "FACTORY_C_bod", "FACTORY_C_tss"}},
				{Name: "FACTORY_D", Sensors: []string{"FACTORY_D_cod", "FACTORY_D_bod", "FACTORY_D_tss"}},
			},
			SyncToleranceMS: 60000,
			GroupThreshold:  2.5,
		},
		CETP: CETPConfig{
			CODBaseline:          193.0,
			CODThreshold:         250.0,
			PipeTravelMinutes:    15,
			ASOFToleranceSeconds: 120,
		},
		ERI: ERIConfig{
			RiverSensitivity: map[string]float64{
				"FACTORY_A": 1.2,
				"FACTORY_B": 2.5,
				"FACTORY_C": 1.8,
				"FACTORY_D": 3.0,
			},
			DefaultSensitivity: 1.0,
			SeverityMultiplier: 1.0,
			ThresholdLow:       2.0,
			ThresholdMedium:    3.5,
			ThresholdHigh:      5.0,
		},
		Alerts: AlertsConfig{
			MinRiskBand:     string(stream.BandMedium),
			CooldownSeconds: 300,
			WebhookWorkers:  4,
		},
		AntiCheat: AntiCheatConfig{
			ZeroVarianceMinutes:   5,
			DilutionWindowMinutes: 60,
			CODDropFraction:       0.3,
			TSSStableFraction:     0.1,
			BlackoutMinMinutes:    15,
			BlackoutNullRatio:     0.80,
		},
		Metrics: MetricsConfig{
			ReportIntervalSeconds:   30,
			RateWindowSeconds:       60,
			SnapshotIntervalSeconds: 10,
		},
		Sinks: SinksConfig{
			EvidencePath:   "data/alerts/evidence_log.jsonl",
			TamperPath:     "data/alerts/tamper_log.jsonl",
			AlertsPath:     "data/alerts/active_alerts.jsonl",
			QuarantinePath: "data/alerts/quarantine_log.jsonl",
			MetricsPath:    "data/alerts/metrics.json",
		},
		API: APIConfig{
			Port:               0,
			SiteName:           "Demo CETP Site",
			SiteLabel:          "PRIYA_CETP",
			RateLimitPerMinute: 120,
		},
		LogLevel: "INFO",
	}
}

// Load resolves the effective configuration: defaults, the YAML file named
// by SENTINEL_CONFIG_FILE (when set), then environment overrides. The result
// is validated; callers must treat an error as fatal.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("SENTINEL_CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	// Decoding into the pre-populated struct keeps defaults for any key
	// the file omits. Slices and maps are replaced wholesale when present.
	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return err
	}
	return nil
}

// ============================================================================
// ENVIRONMENT OVERRIDES
// ============================================================================

func (c *Config) applyEnv() {
	envStr("SENTINEL_CETP_DATA_DIR", &c.Input.CETPDataDir)
	envStr("SENTINEL_FACTORY_DATA_DIR", &c.Input.FactoryDataDir)
	envStr("SENTINEL_INPUT_TIME_FORMAT", &c.Input.TimeFormat)
	envInt("SENTINEL_MAX_SENSOR_ID_LENGTH", &c.Input.MaxSensorIDLength)

	envInt("SENTINEL_WINDOW_DURATION_MS", &c.Scoring.WindowDurationMS)
	envInt("SENTINEL_WINDOW_HOP_MS", &c.Scoring.WindowHopMS)
	envFloat("SENTINEL_EPSILON", &c.Scoring.Epsilon)
	envFloat("SENTINEL_ZSCORE_THRESHOLD", &c.Scoring.ZScoreThreshold)
	envInt("SENTINEL_PERSISTENCE_COUNT", &c.Scoring.PersistenceCount)

	envInt64("SENTINEL_SYNC_TOLERANCE_MS", &c.Groups.SyncToleranceMS)
	envFloat("SENTINEL_GROUP_THRESHOLD", &c.Groups.GroupThreshold)

	envFloat("SENTINEL_COD_BASELINE", &c.CETP.CODBaseline)
	envFloat("SENTINEL_COD_THRESHOLD", &c.CETP.CODThreshold)
	envInt("SENTINEL_PIPE_TRAVEL_MINUTES", &c.CETP.PipeTravelMinutes)
	envInt("SENTINEL_ASOF_TOLERANCE_SECONDS", &c.CETP.ASOFToleranceSeconds)

	envFloat("SENTINEL_DEFAULT_SENSITIVITY", &c.ERI.DefaultSensitivity)
	envFloat("SENTINEL_SEVERITY_MULTIPLIER", &c.ERI.SeverityMultiplier)
	envFloat("SENTINEL_ERI_THRESHOLD_LOW", &c.ERI.ThresholdLow)
	envFloat("SENTINEL_ERI_THRESHOLD_MEDIUM", &c.ERI.ThresholdMedium)
	envFloat("SENTINEL_ERI_THRESHOLD_HIGH", &c.ERI.ThresholdHigh)

	envStr("SENTINEL_ALERT_MIN_RISK_BAND", &c.Alerts.MinRiskBand)
	envInt("SENTINEL_ALERT_COOLDOWN_SECONDS", &c.Alerts.CooldownSeconds)
	envStr("SENTINEL_ALERT_WEBHOOK_URL", &c.Alerts.WebhookURL)
	envStr("SENTINEL_ALERT_WEBHOOK_SECRET", &c.Alerts.WebhookSecret)
	envInt("SENTINEL_ALERT_WEBHOOK_WORKERS", &c.Alerts.WebhookWorkers)

	envInt("SENTINEL_ZERO_VARIANCE_MINUTES", &c.AntiCheat.ZeroVarianceMinutes)
	envInt("SENTINEL_DILUTION_WINDOW_MINUTES", &c.AntiCheat.DilutionWindowMinutes)
	envFloat("SENTINEL_COD_DROP_FRACTION", &c.AntiCheat.CODDropFraction)
	envFloat("SENTINEL_TSS_STABLE_FRACTION", &c.AntiCheat.TSSStableFraction)
	envInt("SENTINEL_BLACKOUT_MIN_MINUTES", &c.AntiCheat.BlackoutMinMinutes)
	envFloat("SENTINEL_BLACKOUT_NULL_RATIO", &c.AntiCheat.BlackoutNullRatio)

	envInt("SENTINEL_METRICS_INTERVAL_SECONDS", &c.Metrics.ReportIntervalSeconds)
	envInt("SENTINEL_RATE_WINDOW_SECONDS", &c.Metrics.RateWindowSeconds)
	envInt("SENTINEL_SNAPSHOT_INTERVAL_SECONDS", &c.Metrics.SnapshotIntervalSeconds)

	envStr("SENTINEL_EVIDENCE_PATH", &c.Sinks.EvidencePath)
	envStr("SENTINEL_TAMPER_PATH", &c.Sinks.TamperPath)
	envStr("SENTINEL_ALERTS_PATH", &c.Sinks.AlertsPath)
	envStr("SENTINEL_QUARANTINE_PATH", &c.Sinks.QuarantinePath)
	envStr("SENTINEL_METRICS_PATH", &c.Sinks.MetricsPath)

	envInt("SENTINEL_API_PORT", &c.API.Port)
	envStr("SENTINEL_SITE_NAME", &c.API.SiteName)
	envStr("SENTINEL_SITE_LABEL", &c.API.SiteLabel)
	envInt("SENTINEL_API_RATE_LIMIT_PER_MINUTE", &c.API.RateLimitPerMinute)

	envStr("SENTINEL_LOG_LEVEL", &c.LogLevel)
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envInt64(key string, dst *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

// ============================================================================
// VALIDATION
// ============================================================================

// Validate enforces the bounded-value rules. The first violation is
// returned; the caller exits with status 1 before any processing starts.
func (c *Config) Validate() error {
	if c.Scoring.WindowHopMS <= 0 {
		return fmt.Errorf("window_hop_ms must be positive (got %d)", c.Scoring.WindowHopMS)
	}
	if c.Scoring.WindowDurationMS <= c.Scoring.WindowHopMS {
		return fmt.Errorf("window_duration_ms (%d) must exceed window_hop_ms (%d)",
			c.Scoring.WindowDurationMS, c.Scoring.WindowHopMS)
	}
	if c.Scoring.Epsilon <= 0 {
		return fmt.Errorf("epsilon must be positive (got %g)", c.Scoring.Epsilon)
	}
	if c.Scoring.ZScoreThreshold <= 0 {
		return fmt.Errorf("zscore_threshold must be positive (got %g)", c.Scoring.ZScoreThreshold)
	}
	if c.Scoring.PersistenceCount < 1 {
		return fmt.Errorf("persistence_count must be at least 1 (got %d)", c.Scoring.PersistenceCount)
	}

	if len(c.Groups.SensorGroups) == 0 {
		return fmt.Errorf("sensor_groups must not be empty")
	}
	for _, g := range c.Groups.SensorGroups {
		if g.Name == "" {
			return fmt.Errorf("sensor group with empty name")
		}
		if len(g.Sensors) == 0 {
			return fmt.Errorf("sensor group %q has no members", g.Name)
		}
	}
	if c.Groups.SyncToleranceMS < 1 {
		return fmt.Errorf("sync_tolerance_ms must be at least 1 (got %d)", c.Groups.SyncToleranceMS)
	}
	if c.Groups.GroupThreshold <= 0 {
		return fmt.Errorf("group_threshold must be positive (got %g)", c.Groups.GroupThreshold)
	}

	if !(c.ERI.ThresholdLow < c.ERI.ThresholdMedium && c.ERI.ThresholdMedium < c.ERI.ThresholdHigh) {
		return fmt.Errorf("eri thresholds must be strictly ascending (got %g, %g, %g)",
			c.ERI.ThresholdLow, c.ERI.ThresholdMedium, c.ERI.ThresholdHigh)
	}
	for point, factor := range c.ERI.RiverSensitivity {
		if factor < 1.0 || factor > 5.0 {
			return fmt.Errorf("river_sensitivity[%s] must be within [1.0, 5.0] (got %g)", point, factor)
		}
	}
	if c.ERI.DefaultSensitivity < 1.0 {
		return fmt.Errorf("default_sensitivity must be at least 1.0 (got %g)", c.ERI.DefaultSensitivity)
	}
	if c.ERI.SeverityMultiplier <= 0 {
		return fmt.Errorf("severity_multiplier must be positive (got %g)", c.ERI.SeverityMultiplier)
	}

	if stream.RiskBand(c.Alerts.MinRiskBand).Rank() < 0 {
		return fmt.Errorf("alert_min_risk_band must be one of LOW, MEDIUM, HIGH, CRITICAL (got %q)",
			c.Alerts.MinRiskBand)
	}
	if c.Alerts.CooldownSeconds < 0 {
		return fmt.Errorf("alert_cooldown_seconds must not be negative (got %d)", c.Alerts.CooldownSeconds)
	}

	if c.Input.TimeFormat == "" {
		return fmt.Errorf("input time_format must not be empty")
	}
	if c.Input.MaxSensorIDLength < 1 {
		return fmt.Errorf("max_sensor_id_length must be at least 1 (got %d)", c.Input.MaxSensorIDLength)
	}
	if len(c.Input.ValueRanges) == 0 {
		return fmt.Errorf("sensor_value_range must not be empty")
	}
	catchAll := false
	for _, r := range c.Input.ValueRanges {
		if r.Pattern == "" {
			return fmt.Errorf("sensor_value_range entry with empty pattern")
		}
		if r.Min > r.Max {
			return fmt.Errorf("sensor_value_range %q has min %g > max %g", r.Pattern, r.Min, r.Max)
		}
		if r.Pattern == "*" {
			catchAll = true
		}
	}
	if !catchAll {
		return fmt.Errorf(`sensor_value_range must include the "*" catch-all pattern`)
	}

	if c.AntiCheat.ZeroVarianceMinutes < 1 {
		return fmt.Errorf("zero_variance_minutes must be at least 1 (got %d)", c.AntiCheat.ZeroVarianceMinutes)
	}
	if c.AntiCheat.DilutionWindowMinutes < 1 {
		return fmt.Errorf("dilution_window_minutes must be at least 1 (got %d)", c.AntiCheat.DilutionWindowMinutes)
	}
	if c.AntiCheat.CODDropFraction <= 0 || c.AntiCheat.CODDropFraction >= 1 {
		return fmt.Errorf("cod_drop_fraction must be within (0, 1) (got %g)", c.AntiCheat.CODDropFraction)
	}
	if c.AntiCheat.TSSStableFraction <= 0 || c.AntiCheat.TSSStableFraction >= 1 {
		return fmt.Errorf("tss_stable_fraction must be within (0, 1) (got %g)", c.AntiCheat.TSSStableFraction)
	}
	if c.AntiCheat.BlackoutMinMinutes < 1 {
		return fmt.Errorf("blackout_min_minutes must be at least 1 (got %d)", c.AntiCheat.BlackoutMinMinutes)
	}
	if c.AntiCheat.BlackoutNullRatio <= 0 || c.AntiCheat.BlackoutNullRatio > 1 {
		return fmt.Errorf("blackout_null_ratio must be within (0, 1] (got %g)", c.AntiCheat.BlackoutNullRatio)
	}

	if c.CETP.PipeTravelMinutes < 0 {
		return fmt.Errorf("pipe_travel_minutes must not be negative (got %d)", c.CETP.PipeTravelMinutes)
	}
	if c.CETP.ASOFToleranceSeconds < 0 {
		return fmt.Errorf("asof_tolerance_seconds must not be negative (got %d)", c.CETP.ASOFToleranceSeconds)
	}

	return nil
}

// MinRiskRank returns the numeric rank of the configured minimum alert band.
func (c *Config) MinRiskRank() int {
	return stream.RiskBand(c.Alerts.MinRiskBand).Rank()
}

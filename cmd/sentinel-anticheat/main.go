// Command sentinel-anticheat runs the batch tamper audit over the factory
// discharge history and appends the findings to the tamper log.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/cetp/sentinel/internal/anticheat"
	"github.com/cetp/sentinel/internal/config"
	"github.com/cetp/sentinel/internal/history"
	"github.com/cetp/sentinel/internal/metrics"
	"github.com/cetp/sentinel/internal/sinks"
)

const (
	exitOK            = 0
	exitConfigInvalid = 1
	exitMissingInput  = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	factoryDir := flag.String("factory-dir", "", "factory CSV directory (overrides config)")
	factoryDSN := flag.String("factory-dsn", "", "Postgres DSN for the factory history (instead of CSVs)")
	flag.Parse()

	runID := uuid.NewString()
	logger := newLogger(runID)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return exitConfigInvalid
	}
	if *factoryDir != "" {
		cfg.Input.FactoryDataDir = *factoryDir
	}

	var loader history.Loader
	if *factoryDSN != "" {
		loader = history.NewPostgresLoader(*factoryDSN)
	} else {
		if _, err := os.Stat(cfg.Input.FactoryDataDir); err != nil {
			logger.Error("input directory missing", "dir", cfg.Input.FactoryDataDir, "error", err)
			return exitMissingInput
		}
		loader = history.CSVLoader{Dir: cfg.Input.FactoryDataDir}
	}

	rows, err := loader.Load(context.Background())
	if err != nil {
		logger.Error("factory history load failed", "error", err)
		return exitMissingInput
	}
	logger.Info("factory history loaded", "rows", len(rows))

	detector := anticheat.New(cfg.AntiCheat, cfg.Input.TimeFormat)
	findings := detector.Run(runID, rows)

	tamperLog := sinks.NewJSONLWriter(cfg.Sinks.TamperPath)
	defer tamperLog.Close()
	for _, rec := range findings {
		metrics.Prom().TamperFindings.WithLabelValues(string(rec.TamperType), rec.FactoryID).Inc()
		if err := tamperLog.Append(rec); err != nil {
			logger.Error("tamper log write failed", "error", err)
		}
	}

	logger.Info("audit finished", "findings", len(findings))
	return exitOK
}

func newLogger(runID string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToUpper(os.Getenv("SENTINEL_LOG_LEVEL")) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler).With("run_id", runID)
	slog.SetDefault(logger)
	return logger
}

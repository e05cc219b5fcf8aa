// Command sentinel-pipeline runs the full monitoring pipeline: CETP shock
// attribution and factory anomaly scoring, with the compliance API, webhook
// delivery, and websocket livefeed alongside.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/cetp/sentinel/internal/api"
	"github.com/cetp/sentinel/internal/config"
	"github.com/cetp/sentinel/internal/events"
	"github.com/cetp/sentinel/internal/history"
	"github.com/cetp/sentinel/internal/ingest"
	"github.com/cetp/sentinel/internal/livefeed"
	"github.com/cetp/sentinel/internal/pipeline"
	"github.com/cetp/sentinel/internal/webhooks"
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

	cetpDir := flag.String("cetp-dir", "", "CETP CSV directory (overrides config)")
	factoryDir := flag.String("factory-dir", "", "factory CSV directory (overrides config)")
	factoryDSN := flag.String("factory-dsn", "", "Postgres DSN for the factory history (instead of CSVs)")
	follow := flag.Bool("follow", false, "tail input files for appended rows instead of replaying once")
	flag.Parse()

	runID := uuid.NewString()
	logger := newLogger(runID)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return exitConfigInvalid
	}
	if *cetpDir != "" {
		cfg.Input.CETPDataDir = *cetpDir
	}
	if *factoryDir != "" {
		cfg.Input.FactoryDataDir = *factoryDir
	}

	for _, dir := range []string{cfg.Input.CETPDataDir, cfg.Input.FactoryDataDir} {
		if _, err := os.Stat(dir); err != nil {
			logger.Error("input directory missing", "dir", dir, "error", err)
			return exitMissingInput
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Factory history for the backtrack index.
	var loader history.Loader
	if *factoryDSN != "" {
		loader = history.NewPostgresLoader(*factoryDSN)
	} else {
		loader = history.CSVLoader{Dir: cfg.Input.FactoryDataDir}
	}
	historyRows, err := loader.Load(ctx)
	if err != nil {
		logger.Error("factory history load failed", "error", err)
		return exitMissingInput
	}
	logger.Info("factory history loaded", "rows", len(historyRows))

	// Outbound surfaces.
	bus := events.NewEventBus()
	registry := webhooks.NewRegistry()
	dispatcher := webhooks.NewDispatcher(registry, cfg.Alerts.WebhookWorkers)
	defer dispatcher.Shutdown()
	if cfg.Alerts.WebhookURL != "" {
		err := registry.Register(&webhooks.Subscription{
			URL:    cfg.Alerts.WebhookURL,
			Secret: cfg.Alerts.WebhookSecret,
			Events: []webhooks.EventType{
				webhooks.EventAlertRouted,
				webhooks.EventEvidenceLogged,
			},
		})
		if err != nil {
			logger.Warn("webhook registration failed", "error", err)
		}
	}

	feed := livefeed.NewHub(bus)
	go feed.Run()

	var cetpSrc ingest.CETPSource
	var factorySrc ingest.FactorySource
	if *follow {
		cetpSrc = &ingest.TailCETPSource{Dir: cfg.Input.CETPDataDir}
		factorySrc = &ingest.TailFactorySource{Dir: cfg.Input.FactoryDataDir}
	} else {
		cetpSrc = ingest.NewReplayCETPSource(cfg.Input.CETPDataDir)
		factorySrc = ingest.NewReplayFactorySource(cfg.Input.FactoryDataDir)
	}

	engine := pipeline.NewEngine(cfg, pipeline.Options{
		RunID:       runID,
		CETPSource:  cetpSrc,
		FactorySrc:  factorySrc,
		HistoryRows: historyRows,
		Bus:         bus,
		Dispatcher:  dispatcher,
	})

	if cfg.API.Port > 0 {
		server := api.NewServer(cfg.API, engine.KPIs(), feed, registry)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("api server stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("api shutdown incomplete", "error", err)
			}
		}()
	}

	fmt.Print(pipeline.FormatSummary(cfg, runID))
	logger.Info("pipeline starting",
		"cetp_dir", cfg.Input.CETPDataDir,
		"factory_dir", cfg.Input.FactoryDataDir,
		"follow", *follow)

	if err := engine.Run(ctx); err != nil {
		logger.Error("pipeline run failed", "error", err)
		return exitConfigInvalid
	}
	logger.Info("pipeline finished")
	return exitOK
}

// newLogger builds the JSON entry-point logger with the per-run correlation
// id attached to every record.
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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/triagestack/triage-engine/internal/analyzer"
	"github.com/triagestack/triage-engine/internal/config"
	"github.com/triagestack/triage-engine/internal/engine"
	"github.com/triagestack/triage-engine/internal/metrics"
	"github.com/triagestack/triage-engine/internal/models"
	"github.com/triagestack/triage-engine/internal/recorder"
	"github.com/triagestack/triage-engine/internal/service"
	"github.com/triagestack/triage-engine/internal/source"
	"github.com/triagestack/triage-engine/internal/utils"
)

func main() {
	var (
		configPath string
		once       bool
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&once, "once", false, "Run a single triage cycle and exit")
	flag.Parse()

	// Local development convenience; missing .env is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting triage-engine",
		slog.String("source", cfg.Source.Mode),
		slog.Duration("poll_interval", cfg.Source.PollInterval))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry, err := buildSource(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build telemetry source", slog.Any("error", err))
		os.Exit(1)
	}

	analysisClient := analyzer.NewClient(
		cfg.Analysis.BaseURL,
		cfg.Analysis.LogsPath,
		cfg.Analysis.RCAPath,
		cfg.Analysis.Timeout,
	)

	incidentRecorder, err := recorder.NewFileRecorder(cfg.Recorder.Dir, logger)
	if err != nil {
		logger.Error("failed to open incident store", slog.String("dir", cfg.Recorder.Dir), slog.Any("error", err))
		os.Exit(1)
	}

	escalation, err := models.ParseSeverity(cfg.Triage.EscalationThreshold)
	if err != nil {
		logger.Error("invalid escalation threshold", slog.Any("error", err))
		os.Exit(1)
	}

	pipeline := engine.NewPipeline(logger, telemetry, analysisClient, incidentRecorder)
	runner := service.NewRunner(logger, pipeline, service.Options{
		ThresholdsPath:      cfg.Triage.ThresholdsPath,
		EscalationThreshold: escalation,
		Window:              cfg.Source.Window,
		PollInterval:        cfg.Source.PollInterval,
		AnalysisTimeout:     cfg.Analysis.Timeout,
		AnalysisRetries:     cfg.Analysis.Retries,
		MaxErrorSamples:     cfg.Triage.MaxErrorSamples,
		MaxInfoSamples:      cfg.Triage.MaxInfoSamples,
	})

	if once {
		if _, err := runner.RunOnce(ctx); err != nil {
			os.Exit(1)
		}
		return
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("runner exited", slog.Any("error", err))
	}
	logger.Info("shutdown signal received")

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancel()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("triage-engine stopped")
}

// buildSource selects the telemetry backend from configuration.
func buildSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engine.TelemetrySource, error) {
	switch cfg.Source.Mode {
	case "cloudwatch":
		return source.NewCloudWatchSource(ctx, source.CloudWatchConfig{
			Region:          cfg.Source.Region,
			Endpoint:        cfg.Source.Endpoint,
			AccessKeyID:     cfg.Source.AccessKeyID,
			SecretAccessKey: cfg.Source.SecretAccessKey,
			Namespace:       cfg.Source.Namespace,
			LogGroup:        cfg.Source.LogGroup,
			MetricNames:     cfg.Source.MetricNames,
		}, logger)
	case "synthetic":
		return &source.SyntheticSource{Degrade: os.Getenv("TRIAGE_SYNTHETIC_DEGRADE") == "true"}, nil
	default:
		return nil, fmt.Errorf("unknown source mode %q", cfg.Source.Mode)
	}
}

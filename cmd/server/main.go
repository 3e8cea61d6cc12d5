package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fatygaoscar/sidekick/internal/audio"
	"github.com/fatygaoscar/sidekick/internal/config"
	"github.com/fatygaoscar/sidekick/internal/events"
	"github.com/fatygaoscar/sidekick/internal/export"
	"github.com/fatygaoscar/sidekick/internal/metrics"
	"github.com/fatygaoscar/sidekick/internal/pipeline"
	"github.com/fatygaoscar/sidekick/internal/server"
	"github.com/fatygaoscar/sidekick/internal/session"
	"github.com/fatygaoscar/sidekick/internal/store"
	"github.com/fatygaoscar/sidekick/internal/summarize"
	"github.com/fatygaoscar/sidekick/internal/transcription"
	"github.com/fatygaoscar/sidekick/internal/upload"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "sidekick"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("http_port", cfg.HTTP.Port),
		slog.String("address", cfg.HTTP.Address),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.String("transcription_backend", cfg.Transcription.Backend),
		slog.String("summarization_backend", cfg.Summarization.Backend),
		slog.String("vault_path", cfg.Export.VaultPath),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)
	logger.Info("Prometheus metrics initialized")

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error("Failed to create database directory", slog.String("error", err.Error()))
		os.Exit(1)
	}
	repo, err := store.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("Failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("Database opened", slog.String("path", cfg.Database.Path))

	// A crashed process can leave a session stuck in the active state;
	// close it before accepting new recordings.
	if stale, err := repo.ActiveSession(); err != nil {
		logger.Error("Failed to check for stale active session", slog.String("error", err.Error()))
		os.Exit(1)
	} else if stale != nil {
		if err := repo.EndSession(stale.ID); err != nil {
			logger.Error("Failed to close stale active session",
				slog.String("session_id", stale.ID),
				slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Warn("Closed session left active by a previous run",
			slog.String("session_id", stale.ID),
			slog.String("title", stale.Title))
	}

	bus := events.NewBus(logger)
	sessions := session.NewManager(repo, bus, logger)

	transcriber, err := transcription.NewManager(cfg.Transcription, logger, bus)
	if err != nil {
		logger.Error("Failed to create transcription manager", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer transcriber.Close()
	logger.Info("Transcription manager initialized",
		slog.String("backend", transcriber.Backend()))

	summarizer, err := summarize.NewManager(cfg.Summarization, logger)
	if err != nil {
		logger.Error("Failed to create summarization manager", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Summarization manager initialized",
		slog.String("backend", summarizer.Backend()))

	live, err := pipeline.NewLive(cfg, sessions, transcriber, appMetrics, logger)
	if err != nil {
		logger.Error("Failed to create live pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}

	uploads, err := upload.NewStore(cfg.Upload.ChunkDir, logger)
	if err != nil {
		logger.Error("Failed to create upload store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	recordings, err := audio.NewRecordingStore(filepath.Join(cfg.Audio.DataDir, "recordings"))
	if err != nil {
		logger.Error("Failed to create recording store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	exports := export.NewRegistry()
	exporter := export.NewPipeline(repo, recordings, transcriber, summarizer,
		bus, logger, cfg.Export.VaultPath)

	httpServer := server.NewHTTPServer(cfg, logger, sessions, live, uploads,
		recordings, repo, exports, exporter, appMetrics)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Flush pending live audio before closing the session state
	live.Stop()
	if sessions.CurrentSession() != nil {
		if _, err := sessions.EndSession(); err != nil {
			logger.Error("Error ending active session", slog.String("error", err.Error()))
		}
	}

	stats := live.GetStats()
	logger.Info("Final pipeline statistics",
		slog.Int64("chunks_ingested", stats.ChunksIngested),
		slog.Int64("flushes", stats.Flushes),
		slog.Int64("segments_stored", stats.SegmentsStored),
		slog.Int64("errors", stats.Errors),
	)

	logger.Info("Service stopped")
}

// initLogger creates the structured logger from configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbroumsadja/WonderFilm/internal/config"
	"github.com/mbroumsadja/WonderFilm/internal/metrics"
	"github.com/mbroumsadja/WonderFilm/internal/server"
	"github.com/mbroumsadja/WonderFilm/internal/telemetry"
)

// Build information (set by linker flags during build)
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cfg := config.Load()

	if cfg.ShowVersion {
		fmt.Println()
		fmt.Println("🎬 WonderFilm - Local Film Streaming")
		fmt.Printf("📦 Version: %s\n", version)
		if commit != "unknown" {
			fmt.Printf("🔗 Commit: %s\n", commit)
		}
		if date != "unknown" {
			fmt.Printf("📅 Built: %s\n", date)
		}
		fmt.Println()
		os.Exit(0)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	metrics.Register(prometheus.DefaultRegisterer)

	traceOpts := telemetry.FromConfig(cfg, version)
	shutdownTracer, err := telemetry.Init(context.Background(), traceOpts)
	if err != nil {
		logger.Warn("otel init failed, tracing disabled", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("version", version),
		slog.Int("port", cfg.Port),
		slog.String("mediaDir", cfg.MediaDir),
		slog.Bool("customStyle", strings.TrimSpace(cfg.StylePath) != ""),
		slog.String("cacheDir", cfg.CacheDir),
		slog.Int("maxStreams", cfg.MaxStreams),
		slog.Float64("rateLimitRPS", cfg.RateLimitRPS),
		slog.Int("rateLimitBurst", cfg.RateLimitBurst),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Bool("tracing", traceOpts.Enabled()),
		slog.Float64("traceSample", cfg.TraceSample),
	)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mbroumsadja/WonderFilm/internal/catalog"
	"github.com/mbroumsadja/WonderFilm/internal/config"
	"github.com/mbroumsadja/WonderFilm/internal/handlers"
	"github.com/mbroumsadja/WonderFilm/internal/media"
	"github.com/mbroumsadja/WonderFilm/internal/storage"
)

const shutdownTimeout = 30 * time.Second

type Server struct {
	config         *config.Config
	logger         *slog.Logger
	library        *media.Library
	scanner        *catalog.Scanner
	store          *storage.SnapshotStore
	httpServer     *http.Server
	browserHandler *handlers.BrowserHandler
	apiHandler     *handlers.APIHandler
	playHandler    *handlers.PlayHandler
	styleHandler   *handlers.StyleHandler
}

func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	library, err := media.NewLibrary(cfg.MediaDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open media library: %w", err)
	}

	scanOpts := []catalog.Option{catalog.WithLogger(logger.With(slog.String("component", "catalog")))}

	var store *storage.SnapshotStore
	if cfg.CacheDir != "" {
		store, err = storage.New(cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create snapshot store: %w", err)
		}
		scanOpts = append(scanOpts, catalog.WithSnapshotStore(store))
	}

	scanner := catalog.NewScanner(library.Root(), scanOpts...)

	server := &Server{
		config:         cfg,
		logger:         logger,
		library:        library,
		scanner:        scanner,
		store:          store,
		browserHandler: handlers.NewBrowserHandler(scanner, logger),
		apiHandler:     handlers.NewAPIHandler(scanner),
		playHandler:    handlers.NewPlayHandler(library, cfg.MaxStreams, logger),
		styleHandler:   handlers.NewStyleHandler(cfg.StylePath, logger),
	}

	// No WriteTimeout: a film streamed at playback speed outlives any fixed deadline.
	server.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return server, nil
}

// Handler returns the fully wrapped handler chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.setupRoutes(mux)

	var handler http.Handler = mux
	if s.config.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(s.config.RateLimitRPS, s.config.RateLimitBurst, handler)
	}
	handler = metricsMiddleware(handler)
	handler = recoveryMiddleware(s.logger, handler)
	handler = loggingMiddleware(s.logger, handler)
	return otelhttp.NewHandler(handler, "wonderfilm",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return !isNoisyPath(r.URL.Path)
		}),
	)
}

func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/films", s.apiHandler)
	mux.Handle("/play", s.playHandler)
	mux.Handle("/style.css", s.styleHandler)
	mux.Handle("/", s.browserHandler)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    "healthy",
		"media_dir": s.library.Root(),
	})
}

func (s *Server) Start() error {
	s.logger.Info("starting WonderFilm server",
		slog.Int("port", s.config.Port),
		slog.String("mediaDir", s.library.Root()),
		slog.Bool("snapshotCache", s.store != nil),
		slog.Int("maxStreams", s.config.MaxStreams),
		slog.Float64("rateLimitRPS", s.config.RateLimitRPS),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.logger.Info("server started", slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)))

	return s.waitForShutdown(errCh)
}

// waitForShutdown waits for shutdown signals and gracefully shuts down the server
func (s *Server) waitForShutdown(errCh <-chan error) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("shutting down server", slog.String("signal", sig.String()))
	case err := <-errCh:
		s.closeStore()
		return fmt.Errorf("server failed to start: %w", err)
	}

	if err := s.Stop(); err != nil {
		s.logger.Error("server forced to shutdown", slog.String("error", err.Error()))
		return err
	}

	s.logger.Info("server shutdown complete")
	return nil
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.closeStore()
		return err
	}

	s.closeStore()
	return nil
}

func (s *Server) closeStore() {
	if s.store == nil {
		return
	}
	if err := s.store.RunGarbageCollection(); err != nil {
		s.logger.Warn("snapshot store gc failed", slog.String("error", err.Error()))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing snapshot store", slog.String("error", err.Error()))
	}
	s.store = nil
}

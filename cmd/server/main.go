package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/aquilu/jacobo/internal/analysis"
	"github.com/aquilu/jacobo/internal/api"
	"github.com/aquilu/jacobo/internal/config"
	"github.com/aquilu/jacobo/internal/datasource"
	"github.com/aquilu/jacobo/internal/logging"
	"github.com/aquilu/jacobo/internal/model"
	"github.com/aquilu/jacobo/internal/reconcile"
	"github.com/aquilu/jacobo/internal/service"
	"github.com/aquilu/jacobo/internal/state"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ./config.yaml if present)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	// Model: a load failure is reported on every page instead of stopping the server
	shared := &model.Shared{}
	if err := shared.Load(cfg.Model); err != nil {
		logging.LogError(logger, "Model unavailable", err)
	} else {
		logger.WithField("model", shared.Name()).Info("Model loaded")
	}
	defer shared.Close()

	// Optional database source
	var source datasource.DataSource
	if cfg.Source.Enabled() {
		src, err := datasource.Open(context.Background(), cfg.Source)
		if err != nil {
			logging.LogError(logger, "Database source disabled", err)
		} else {
			source = src
			defer src.Close()
		}
	}

	recOpts, err := cfg.Reconcile.Options()
	if err != nil {
		logging.LogFatal(logger, "Invalid reconcile settings", err)
	}

	// Initialize Services
	predictions := service.NewPredictionService(
		reconcile.New(recOpts),
		shared,
		source,
		analysis.NewService(analysis.DefaultBin),
		logger,
	)
	sessions := state.NewStore(cfg.Server.SessionTTL)

	// Initialize Handler
	handler, err := api.NewHandler(predictions, sessions, api.Options{
		MaxUpload:    cfg.Server.MaxUploadBytes(),
		PreviewRows:  cfg.Server.PreviewRows,
		SourceDriver: cfg.Source.Driver,
		Logger:       logger,
	})
	if err != nil {
		logging.LogFatal(logger, "Failed to build handler", err)
	}

	// Router Setup
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	// CORS for API clients
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", api.SessionHeader},
		ExposedHeaders:   []string{api.SessionHeader, "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	handler.RegisterRoutes(r)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sessions.RunSweeper(ctx, cfg.Server.SweepInterval, func(n int) {
		logger.WithField("removed", n).Debug("Expired sessions swept")
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.LogError(logger, "Shutdown failed", err)
		}
	}()

	logger.WithFields(logrus.Fields{
		"addr":  cfg.Addr(),
		"model": cfg.Model.Kind,
	}).Info("Starting BLAA prediction server")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.LogFatal(logger, "Server failed to start", err)
	}
	logging.LogInfo(logger, "Server stopped")
}

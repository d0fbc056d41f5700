package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"templateflow/pkg/api"
	"templateflow/pkg/config"
	"templateflow/pkg/logger"
	"templateflow/pkg/otel"
	"templateflow/pkg/storage"
	"templateflow/pkg/template"
)

// @title Templateflow API
// @version 1.0
// @description CRUD API for message templates
// @host localhost:3000
// @BasePath /
func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load(os.LookupEnv)
	if err != nil {
		// The logger is not configured yet.
		logger.New(os.Stderr, logger.LevelInfo, "templateflow", nil).Error(ctx, "load config", "error", err)
		return err
	}
	level, _ := logger.ParseLevel(cfg.LogLevel)
	log := logger.New(os.Stdout, level, "templateflow", otel.GetTraceID)
	defer log.Sync()

	tp, shutdown, err := otel.InitTracing(log, otel.Config{ServiceName: "templateflow", Host: cfg.OtelHost, Probability: cfg.TraceProbability})
	if err != nil {
		log.Error(ctx, "init tracing", "error", err)
		return err
	}
	defer shutdown(context.Background())

	repo, closer, err := storage.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Error(ctx, "open storage", "error", err)
		return err
	}
	defer closer.Close()

	ids, err := template.NewIDGenerator(cfg.IDStrategy, repo)
	if err != nil {
		log.Error(ctx, "id generator", "error", err)
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.New(repo, ids, log, tp.Tracer("templateflow")).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "listening", "addr", cfg.Addr, "id_strategy", cfg.IDStrategy)
		serverErr <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "server closed", "error", err)
			return err
		}
	case sig := <-stop:
		log.Info(ctx, "shutdown started", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(ctx, "graceful shutdown", "error", err)
			srv.Close()
			return err
		}
	}
	log.Info(ctx, "shutdown complete")
	return nil
}

// Package server wires the HTTP routes and runs the listener.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/hazard-impact/internal/core/config"
	"github.com/mohammed-shakir/hazard-impact/internal/core/health"
	middleware "github.com/mohammed-shakir/hazard-impact/internal/core/middleware"
	"github.com/mohammed-shakir/hazard-impact/internal/core/router"
)

type Deps struct {
	Calculator router.Calculator
	// Ready reports readiness; nil means always ready.
	Ready health.ReadinessReporter
	// Metrics serves the metrics path; nil disables it.
	Metrics     http.Handler
	MetricsPath string
}

// Handler builds the route table.
func Handler(cfg config.Config, logger *slog.Logger, d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	ready := d.Ready
	if ready == nil {
		ready = health.Always{}
	}
	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(ready))
	if d.Metrics != nil {
		path := d.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, d.Metrics)
	}
	r.Post("/calculate", router.HandleCalculate(logger, cfg, d.Calculator))
	r.Get("/functions", router.HandleFunctions(logger, cfg, d.Calculator))
	return r
}

// Run serves until ctx is done.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, d Deps) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           Handler(cfg, logger, d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// calculations download and process whole layers
		WriteTimeout: cfg.OWSTimeout*2 + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

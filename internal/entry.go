// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/starford/safeguard/internal/api"
	"github.com/starford/safeguard/internal/catalog"
	"github.com/starford/safeguard/internal/download"
	"github.com/starford/safeguard/internal/sse"
)

// Run starts the background downloader and the local API with the given
// options, and blocks until a shutdown signal or a fatal error.
func Run(ctx context.Context, opts ...Option) error {
	c, err := build(opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	cfg := c.cfg
	logger := c.logger

	// Run initial catalog sync.
	c.syncCatalog()

	// SSE broker; keepalive holds idle connections open through proxies.
	broker := sse.NewBroker(15 * time.Second)
	defer broker.Close()

	c.state.Watch(broker.PublishDownload)
	c.sched.OnCycle(func(o download.Outcome) {
		broker.PublishCycle(string(o))
		// The directory watcher covers the fs backend; bolt writes are
		// only visible through the cycle itself.
		if cfg.Safeguard.Backend == BackendBolt {
			for _, ch := range c.syncCatalog() {
				broker.PublishSnapshotEvent(ch.Kind, ch.Key)
			}
		}
	})

	var limiter *rate.Limiter
	if n := cfg.App.HTTP.SyncPerMinute; n > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
	}
	apiRouter := api.NewRouter(c.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, limiter)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := c.store.List(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"cache unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", c.metrics.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start cache directory watcher with SSE callback.
	if c.watchDir != "" {
		g.Go(func() error {
			err := catalog.Watch(gCtx, c.db, c.store, c.watchDir, logger, func(ch catalog.Change) {
				broker.PublishSnapshotEvent(ch.Kind, ch.Key)
			})
			if err != nil {
				logger.Warn("watcher unavailable", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start download scheduler.
	g.Go(func() error {
		return c.sched.Run(gCtx)
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the scheduler and watcher stop with the
// HTTP server.
var errShutdown = errors.New("shutdown")

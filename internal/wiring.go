package internal

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/starford/safeguard/internal/catalog"
	"github.com/starford/safeguard/internal/download"
	"github.com/starford/safeguard/internal/logging"
	"github.com/starford/safeguard/internal/metrics"
	"github.com/starford/safeguard/internal/remote"
	"github.com/starford/safeguard/internal/safeguard"
	"github.com/starford/safeguard/internal/scheduler"
	"github.com/starford/safeguard/internal/snapshot"
	"github.com/starford/safeguard/internal/storage"
)

// components is everything a command needs, built from one Config.
type components struct {
	cfg    *Config
	logger *slog.Logger
	store  storage.Store
	// watchDir is the fs backend's root; empty for bolt.
	watchDir string
	db       *catalog.DB
	state    *download.State
	metrics  *metrics.Metrics
	sched    *scheduler.Scheduler
	svc      *safeguard.Service

	closers []func() error
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.logger.Warn("close failed", slog.String("error", err.Error()))
		}
	}
}

// syncCatalog reconciles the catalog with the store and returns the changes.
func (c *components) syncCatalog() []catalog.Change {
	changes, err := catalog.Sync(c.db, c.store, c.logger)
	if err != nil {
		c.logger.Warn("catalog sync failed", slog.String("error", err.Error()))
	}
	return changes
}

func build(opts ...Option) (*components, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger, closeLog, err := logging.New(logging.Options{
		Level:   cfg.App.LogLevel,
		File:    cfg.App.LogFile,
		Console: app.console,
	})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	c := &components{cfg: cfg, logger: logger, closers: []func() error{closeLog}}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("remote", cfg.Remote.BaseAddress),
		slog.String("cache_dir", cfg.Safeguard.Dir),
		slog.String("backend", cfg.Safeguard.Backend),
		slog.String("catalog_path", cfg.Catalog.Path),
		slog.Duration("window_offset", cfg.Safeguard.WindowOffset),
		slog.Duration("interval", cfg.Safeguard.Interval),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.App.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	// Initialize cache store.
	switch cfg.Safeguard.Backend {
	case BackendBolt:
		if err := os.MkdirAll(cfg.Safeguard.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
		b, err := storage.OpenBolt(cfg.Safeguard.BoltPath())
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		c.closers = append(c.closers, b.Close)
		c.store = b
	default:
		fs, err := storage.NewFS(cfg.Safeguard.Dir)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		c.store = fs
		c.watchDir = fs.Root()
	}

	// Initialize SQLite catalog.
	db, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("init catalog: %w", err)
	}
	c.closers = append(c.closers, db.Close)
	c.db = db

	client, err := remote.New(cfg.Remote.Client(), &http.Client{})
	if err != nil {
		return nil, fmt.Errorf("init remote: %w", err)
	}
	logger.Debug("Remote client ready", slog.String("endpoint", client.Endpoint()))

	c.metrics = metrics.New()
	c.state = download.NewState()
	coord := download.New(c.store, client, c.state, cfg.Safeguard.WindowOffset,
		download.WithLogger(logger),
		download.WithMetrics(c.metrics),
		download.WithRetain(cfg.Safeguard.Retain))
	c.sched = scheduler.New(coord, cfg.Safeguard.Interval, scheduler.WithLogger(logger))
	c.svc = safeguard.NewService(c.sched, coord, c.state, snapshot.NewReader(c.store, nil), c.store, db)

	ok = true
	return c, nil
}

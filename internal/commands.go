package internal

import (
	"context"
	"fmt"

	"github.com/starford/safeguard/internal/catalog"
	"github.com/starford/safeguard/internal/download"
	"github.com/starford/safeguard/internal/mcpserver"
	"github.com/starford/safeguard/internal/models"
	"github.com/starford/safeguard/internal/recovery"
)

// Sync runs a single download cycle and updates the catalog.
func Sync(ctx context.Context, opts ...Option) (download.Outcome, error) {
	c, err := build(opts...)
	if err != nil {
		return "", err
	}
	defer c.Close()

	outcome, err := c.svc.EnsureFreshSnapshot(ctx)
	if err != nil {
		return outcome, err
	}
	c.syncCatalog()
	if outcome.Failed() {
		return outcome, fmt.Errorf("cycle failed: %s", outcome)
	}
	return outcome, nil
}

// Transactions returns up to limit cached transactions in random order;
// limit <= 0 returns all of them.
func Transactions(ctx context.Context, limit int, opts ...Option) ([]models.Transaction, error) {
	c, err := build(opts...)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	txs, err := c.svc.GetCachedTransactions(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && limit < len(txs) {
		txs = txs[:limit]
	}
	return txs, nil
}

// Snapshots refreshes the catalog and lists it, newest first.
func Snapshots(ctx context.Context, opts ...Option) ([]catalog.Row, error) {
	c, err := build(opts...)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	c.syncCatalog()
	return c.svc.Snapshots(ctx)
}

// Recover scans the latest snapshot for the entries of the watch list at path.
func Recover(ctx context.Context, watchlistPath string, opts ...Option) (*recovery.Report, error) {
	wl, err := recovery.LoadWatchlist(watchlistPath)
	if err != nil {
		return nil, err
	}
	c, err := build(opts...)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	return recovery.NewScanner(c.svc, c.logger).Scan(ctx, wl)
}

// ServeMCP serves the safeguard tools over stdio until stdin closes.
func ServeMCP(_ context.Context, opts ...Option) error {
	c, err := build(opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	c.syncCatalog()
	return mcpserver.New(c.svc).ServeStdio()
}

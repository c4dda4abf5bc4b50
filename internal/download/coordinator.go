// Package download decides when the safeguard snapshot must be refreshed and
// runs the fetch → encode → persist cycle.
package download

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/oklog/ulid/v2"

	"github.com/starford/safeguard/internal/apperr"
	"github.com/starford/safeguard/internal/checksum"
	"github.com/starford/safeguard/internal/codec"
	"github.com/starford/safeguard/internal/metrics"
	"github.com/starford/safeguard/internal/models"
	"github.com/starford/safeguard/internal/storage"
)

// DefaultWindowOffset is the lag between now and the snapshot day (1.8 days).
const DefaultWindowOffset = 43*time.Hour + 12*time.Minute

// Outcome is how a cycle ended.
type Outcome string

// Cycle outcomes.
const (
	OutcomeCached       Outcome = "cached"
	OutcomeWritten      Outcome = "written"
	OutcomeEmpty        Outcome = "empty"
	OutcomeCancelled    Outcome = "cancelled"
	OutcomeCheckFailed  Outcome = "check_failed"
	OutcomeFetchFailed  Outcome = "fetch_failed"
	OutcomeEncodeFailed Outcome = "encode_failed"
	OutcomeWriteFailed  Outcome = "write_failed"
	OutcomePanic        Outcome = "panic"
)

// Failed reports whether the cycle ended without the policy snapshot cached
// for a reason other than an empty remote result or shutdown.
func (o Outcome) Failed() bool {
	switch o {
	case OutcomeCached, OutcomeWritten, OutcomeEmpty, OutcomeCancelled:
		return false
	}
	return true
}

// Fetcher retrieves the safeguard headers from the remote node.
type Fetcher interface {
	FetchHeaders(ctx context.Context) ([]models.BlockHeader, error)
}

// Coordinator runs one download cycle per call. It does not serialize
// callers itself; the scheduler guarantees cycles never overlap.
type Coordinator struct {
	store   storage.Store
	fetcher Fetcher
	state   *State
	offset  time.Duration
	retain  int
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the wall clock.
func WithClock(c clock.Clock) Option {
	return func(co *Coordinator) { co.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(co *Coordinator) { co.logger = l }
}

// WithMetrics records cycle metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(co *Coordinator) { co.metrics = m }
}

// WithRetain prunes the cache to the newest n snapshots after each write.
func WithRetain(n int) Option {
	return func(co *Coordinator) { co.retain = n }
}

// New creates a Coordinator. An offset of 0 keys snapshots by the current
// UTC day; a negative offset selects DefaultWindowOffset.
func New(store storage.Store, fetcher Fetcher, state *State, offset time.Duration, opts ...Option) *Coordinator {
	if offset < 0 {
		offset = DefaultWindowOffset
	}
	c := &Coordinator{
		store:   store,
		fetcher: fetcher,
		state:   state,
		offset:  offset,
		clock:   clock.NewDefaultClock(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PolicyKey is the day whose snapshot should be cached right now.
func (c *Coordinator) PolicyKey() storage.Key {
	return storage.KeyAt(c.clock.Now(), c.offset)
}

// NeedsFetch reports whether the policy key is missing from the cache.
func (c *Coordinator) NeedsFetch() (storage.Key, bool, error) {
	key := c.PolicyKey()
	ok, err := c.store.Exists(key)
	if err != nil {
		return key, false, err
	}
	return key, !ok, nil
}

// RunCycle runs one cycle. Every failure is logged and folded into the
// returned Outcome; nothing escapes, including panics.
func (c *Coordinator) RunCycle(ctx context.Context) (outcome Outcome) {
	logger := c.logger.With(slog.String("cycle", ulid.Make().String()))
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("safeguard: cycle panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			outcome = OutcomePanic
		}
		c.metrics.Cycle(string(outcome))
		logger.Debug("safeguard: cycle finished",
			slog.String("outcome", string(outcome)),
			slog.Duration("elapsed", time.Since(started)))
	}()

	key, need, err := c.NeedsFetch()
	if err != nil {
		logger.Error("safeguard: cache check failed",
			slog.String("op", "exists"),
			slog.String("key", key.String()),
			slog.String("error", err.Error()))
		return OutcomeCheckFailed
	}
	if !need {
		logger.Debug("safeguard: snapshot already cached", slog.String("key", key.String()))
		return OutcomeCached
	}
	if ctx.Err() != nil {
		return OutcomeCancelled
	}
	return c.download(ctx, logger, key)
}

func (c *Coordinator) download(ctx context.Context, logger *slog.Logger, key storage.Key) Outcome {
	release := c.state.Acquire()
	c.metrics.SetDownloading(true)
	defer func() {
		release()
		c.metrics.SetDownloading(false)
	}()

	logger.Info("safeguard: downloading", slog.String("key", key.String()))

	fetchStart := time.Now()
	headers, err := c.fetcher.FetchHeaders(ctx)
	c.metrics.Fetched(time.Since(fetchStart))
	switch {
	case err != nil && (errors.Is(err, apperr.ErrCancelled) || ctx.Err() != nil):
		logger.Debug("safeguard: download cancelled", slog.String("key", key.String()))
		return OutcomeCancelled
	case err != nil:
		logger.Error("safeguard: fetch failed",
			slog.String("op", "fetch"),
			slog.String("key", key.String()),
			slog.String("error", err.Error()))
		return OutcomeFetchFailed
	case len(headers) == 0:
		logger.Warn("safeguard: remote returned no headers", slog.String("key", key.String()))
		return OutcomeEmpty
	}

	data, err := codec.Encode(headers)
	if err != nil {
		logger.Error("safeguard: encode failed",
			slog.String("op", "encode"),
			slog.String("key", key.String()),
			slog.String("error", err.Error()))
		return OutcomeEncodeFailed
	}

	// Shutdown won the race with a completed fetch: skip the write.
	if ctx.Err() != nil {
		logger.Debug("safeguard: download cancelled before write", slog.String("key", key.String()))
		return OutcomeCancelled
	}

	if err := c.store.Write(key, data); err != nil {
		logger.Error("safeguard: write failed",
			slog.String("op", "write"),
			slog.String("key", key.String()),
			slog.String("error", err.Error()))
		return OutcomeWriteFailed
	}
	c.metrics.Written(len(data), c.clock.Now())

	logger.Info("safeguard: snapshot written",
		slog.String("key", key.String()),
		slog.Int("headers", len(headers)),
		slog.Int("transactions", len(models.HeaderList{Data: headers}.Transactions())),
		slog.Int("bytes", len(data)),
		slog.String("checksum", checksum.Short(data)))

	if c.retain > 0 {
		if err := c.store.Prune(c.retain); err != nil {
			logger.Warn("safeguard: prune failed",
				slog.String("op", "prune"),
				slog.String("error", err.Error()))
		}
	}
	return OutcomeWritten
}

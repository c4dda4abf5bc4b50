// Package scheduler drives download cycles: once at start, then on a fixed
// interval, with at most one cycle in flight.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"golang.org/x/sync/semaphore"

	"github.com/starford/safeguard/internal/apperr"
	"github.com/starford/safeguard/internal/download"
)

// Cycler runs one download cycle.
type Cycler interface {
	RunCycle(ctx context.Context) download.Outcome
}

// Scheduler owns the single cycle slot. Periodic and manual triggers both go
// through it, so cycles never overlap.
type Scheduler struct {
	cycler   Cycler
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger
	slot     *semaphore.Weighted

	mu    sync.Mutex
	hooks []func(download.Outcome)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the clock used for ticks.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New creates a Scheduler. An interval of zero runs a single cycle.
func New(c Cycler, interval time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		cycler:   c,
		interval: interval,
		clock:    clock.NewDefaultClock(),
		logger:   slog.Default(),
		slot:     semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnCycle registers fn to run after every cycle with its outcome.
func (s *Scheduler) OnCycle(fn func(download.Outcome)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Trigger waits for the cycle slot and runs one cycle. It returns an
// ErrCancelled error if ctx ends before the slot frees up.
func (s *Scheduler) Trigger(ctx context.Context) (download.Outcome, error) {
	if err := s.slot.Acquire(ctx, 1); err != nil {
		return download.OutcomeCancelled, fmt.Errorf("scheduler: wait for slot: %w: %w", apperr.ErrCancelled, err)
	}
	defer s.slot.Release(1)

	outcome := s.cycler.RunCycle(ctx)

	s.mu.Lock()
	hooks := make([]func(download.Outcome), len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()
	for _, fn := range hooks {
		s.runHook(fn, outcome)
	}
	return outcome, nil
}

// runHook keeps a panicking hook from taking the scheduler down with it.
func (s *Scheduler) runHook(fn func(download.Outcome), outcome download.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("safeguard: cycle hook panicked",
				slog.String("outcome", string(outcome)),
				slog.String("panic", fmt.Sprint(r)))
		}
	}()
	fn(outcome)
}

// Run triggers a cycle immediately and then every interval until ctx is
// done. Shutdown is not an error.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("safeguard scheduler started", slog.Duration("interval", s.interval))
	defer s.logger.Info("safeguard scheduler stopped")

	for {
		if _, err := s.Trigger(ctx); err != nil {
			return nil
		}
		if s.interval <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.TickAfter(s.interval):
		}
	}
}

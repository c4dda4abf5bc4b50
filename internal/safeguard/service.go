// Package safeguard is the entry point other parts of the wallet use: it
// triggers cycles, reports status and hands out cached transactions.
package safeguard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/starford/safeguard/internal/apperr"
	"github.com/starford/safeguard/internal/catalog"
	"github.com/starford/safeguard/internal/download"
	"github.com/starford/safeguard/internal/models"
	"github.com/starford/safeguard/internal/scheduler"
	"github.com/starford/safeguard/internal/snapshot"
	"github.com/starford/safeguard/internal/storage"
)

// Status is a point-in-time view of the subsystem.
type Status struct {
	Downloading bool      `json:"downloading"`
	PolicyKey   string    `json:"policy_key"`
	Cached      bool      `json:"cached"`
	LatestKey   string    `json:"latest_key,omitempty"`
	Snapshots   int       `json:"snapshots"`
	LastOutcome string    `json:"last_outcome,omitempty"`
	LastCycleAt time.Time `json:"last_cycle_at,omitzero"`
}

// Service coordinates the scheduler, the reader and the catalog.
type Service struct {
	sched  *scheduler.Scheduler
	coord  *download.Coordinator
	state  *download.State
	reader *snapshot.Reader
	store  storage.Store
	db     *catalog.DB

	mu          sync.Mutex
	lastOutcome download.Outcome
	lastCycleAt time.Time
}

// NewService creates a Service. db may be nil, in which case Snapshots
// lists the store directly without header counts.
func NewService(sched *scheduler.Scheduler, coord *download.Coordinator, state *download.State, reader *snapshot.Reader, store storage.Store, db *catalog.DB) *Service {
	s := &Service{
		sched:  sched,
		coord:  coord,
		state:  state,
		reader: reader,
		store:  store,
		db:     db,
	}
	sched.OnCycle(s.recordCycle)
	return s
}

func (s *Service) recordCycle(o download.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastOutcome = o
	s.lastCycleAt = time.Now()
}

// EnsureFreshSnapshot runs one cycle, waiting for any cycle already in
// flight to finish first. The outcome is cached when no fetch was needed.
func (s *Service) EnsureFreshSnapshot(ctx context.Context) (download.Outcome, error) {
	return s.sched.Trigger(ctx)
}

// GetCachedTransactions returns the transactions of the latest snapshot in
// random order. It never touches the network.
func (s *Service) GetCachedTransactions(ctx context.Context) ([]models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("safeguard: %w: %w", apperr.ErrCancelled, err)
	}
	return s.reader.GetTransactions()
}

// Downloading reports whether a download is in flight.
func (s *Service) Downloading() bool {
	return s.state.Downloading()
}

// Status reports the download flag, the policy day and the cache contents.
func (s *Service) Status(_ context.Context) (Status, error) {
	key, need, err := s.coord.NeedsFetch()
	if err != nil {
		return Status{}, err
	}
	entries, err := s.store.List()
	if err != nil {
		return Status{}, err
	}

	st := Status{
		Downloading: s.state.Downloading(),
		PolicyKey:   key.String(),
		Cached:      !need,
		Snapshots:   len(entries),
	}
	if n := len(entries); n > 0 {
		st.LatestKey = entries[n-1].Key.String()
	}

	s.mu.Lock()
	st.LastOutcome = string(s.lastOutcome)
	st.LastCycleAt = s.lastCycleAt
	s.mu.Unlock()
	return st, nil
}

// Snapshots lists cached snapshots, newest first.
func (s *Service) Snapshots(_ context.Context) ([]catalog.Row, error) {
	if s.db != nil {
		return s.db.List()
	}
	entries, err := s.store.List()
	if err != nil {
		return nil, err
	}
	out := make([]catalog.Row, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		out = append(out, catalog.Row{Key: e.Key.String(), Name: e.Name, Size: e.Size, ModTime: e.ModTime})
	}
	return out, nil
}

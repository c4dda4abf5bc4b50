package api

import (
	"github.com/starford/safeguard/internal/catalog"
	"github.com/starford/safeguard/internal/models"
	"github.com/starford/safeguard/internal/safeguard"
)

// StatusResponse is the subsystem status (aliased from the domain layer).
type StatusResponse = safeguard.Status

// Snapshot is one cached snapshot (aliased from the catalog).
type Snapshot = catalog.Row

// SyncResponse is returned by a manual sync.
type SyncResponse struct {
	Outcome string `json:"outcome" example:"written" validate:"required"`
}

// TransactionsResponse wraps the shuffled cached transactions.
type TransactionsResponse struct {
	Transactions []models.Transaction `json:"transactions" validate:"required"`
	Total        int                  `json:"total" example:"42" validate:"required"`
}

// SnapshotsResponse wraps the snapshot listing.
type SnapshotsResponse struct {
	Snapshots []Snapshot `json:"snapshots" validate:"required"`
}

package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/starford/safeguard/internal/apperr"
	"github.com/starford/safeguard/internal/catalog"
	"github.com/starford/safeguard/internal/download"
	"github.com/starford/safeguard/internal/models"
	"github.com/starford/safeguard/internal/safeguard"
)

// Service is the safeguard surface the handlers depend on.
type Service interface {
	EnsureFreshSnapshot(ctx context.Context) (download.Outcome, error)
	GetCachedTransactions(ctx context.Context) ([]models.Transaction, error)
	Status(ctx context.Context) (safeguard.Status, error)
	Snapshots(ctx context.Context) ([]catalog.Row, error)
}

// Handler holds API route handlers.
type Handler struct {
	svc Service
}

// NewHandler creates a new Handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Status handles GET /api/safeguard/status.
//
//	@Summary		Download flag, policy day and cache contents
//	@Tags			safeguard
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Security		BearerAuth
//	@Router			/safeguard/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context())
	if err != nil {
		slog.Error("status failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Sync handles POST /api/safeguard/sync.
//
//	@Summary		Run one download cycle now
//	@Tags			safeguard
//	@Produce		json
//	@Success		200	{object}	SyncResponse
//	@Failure		429	{object}	errResponse
//	@Failure		502	{object}	SyncResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/safeguard/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.svc.EnsureFreshSnapshot(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("sync cancelled"))
		return
	}
	status := http.StatusOK
	switch {
	case outcome == download.OutcomeFetchFailed:
		status = http.StatusBadGateway
	case outcome.Failed():
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, SyncResponse{Outcome: string(outcome)})
}

// Transactions handles GET /api/safeguard/transactions.
//
//	@Summary		Cached transactions of the latest snapshot, shuffled
//	@Tags			safeguard
//	@Produce		json
//	@Param			limit	query		int	false	"Max transactions returned"
//	@Success		200		{object}	TransactionsResponse
//	@Failure		404		{object}	errResponse
//	@Failure		500		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/safeguard/transactions [get]
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	txs, err := h.svc.GetCachedTransactions(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("no snapshot cached"))
		case errors.Is(err, apperr.ErrDeserialization):
			slog.Error("read transactions failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("cache corrupt"))
		case errors.Is(err, apperr.ErrCancelled):
			writeJSON(w, http.StatusServiceUnavailable, errorBody("cancelled"))
		default:
			slog.Error("read transactions failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}

	total := len(txs)
	if limit > 0 && limit < total {
		txs = txs[:limit]
	}
	writeJSON(w, http.StatusOK, TransactionsResponse{Transactions: txs, Total: total})
}

// Snapshots handles GET /api/safeguard/snapshots.
//
//	@Summary		List cached snapshots, newest first
//	@Tags			safeguard
//	@Produce		json
//	@Success		200	{object}	SnapshotsResponse
//	@Security		BearerAuth
//	@Router			/safeguard/snapshots [get]
func (h *Handler) Snapshots(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.Snapshots(r.Context())
	if err != nil {
		slog.Error("list snapshots failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if rows == nil {
		rows = []catalog.Row{}
	}
	writeJSON(w, http.StatusOK, SnapshotsResponse{Snapshots: rows})
}

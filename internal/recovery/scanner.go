package recovery

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/starford/safeguard/internal/models"
)

// Match kinds.
const (
	ByOutputKey = "output_key"
	ByKeyImage  = "key_image"
	ByTxnID     = "txn_id"
)

// Match is one transaction that hit the watch list.
type Match struct {
	TxnID string `json:"txn_id"`
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// Report is the result of one scan.
type Report struct {
	Scanned int     `json:"scanned"`
	Matches []Match `json:"matches"`
	// Stale is set when a download was in flight during the scan, so a
	// newer snapshot may be about to land.
	Stale bool `json:"stale"`
}

// Source supplies cached transactions.
type Source interface {
	GetCachedTransactions(ctx context.Context) ([]models.Transaction, error)
	Downloading() bool
}

// Scanner matches cached transactions against a watch list.
type Scanner struct {
	src    Source
	logger *slog.Logger
}

// NewScanner creates a Scanner.
func NewScanner(src Source, logger *slog.Logger) *Scanner {
	return &Scanner{src: src, logger: logger}
}

// Scan reads the latest snapshot and returns every match, ordered by
// transaction id. Snapshot order is random, so the sort keeps reports stable.
func (s *Scanner) Scan(ctx context.Context, wl *Watchlist) (*Report, error) {
	stale := s.src.Downloading()
	if stale {
		s.logger.Info("recovery: download in progress, scanning the previous snapshot")
	}

	txs, err := s.src.GetCachedTransactions(ctx)
	if err != nil {
		return nil, err
	}

	outputs := set(wl.OutputKeys)
	images := set(wl.KeyImages)
	ids := set(wl.TxnIDs)

	report := &Report{Scanned: len(txs), Matches: []Match{}, Stale: stale}
	for _, tx := range txs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if _, ok := ids[strings.ToLower(tx.TxnID)]; ok {
			report.Matches = append(report.Matches, Match{TxnID: tx.TxnID, Kind: ByTxnID, Value: tx.TxnID})
		}
		for _, in := range tx.Vin {
			if _, ok := images[strings.ToLower(in.KeyImage)]; ok {
				report.Matches = append(report.Matches, Match{TxnID: tx.TxnID, Kind: ByKeyImage, Value: in.KeyImage})
			}
		}
		for _, out := range tx.Vout {
			if _, ok := outputs[strings.ToLower(out.P)]; ok {
				report.Matches = append(report.Matches, Match{TxnID: tx.TxnID, Kind: ByOutputKey, Value: out.P})
			}
		}
	}

	sort.SliceStable(report.Matches, func(i, j int) bool {
		a, b := report.Matches[i], report.Matches[j]
		if a.TxnID != b.TxnID {
			return a.TxnID < b.TxnID
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Value < b.Value
	})

	s.logger.Info("recovery: scan finished",
		slog.String("watchlist", wl.Name),
		slog.Int("scanned", report.Scanned),
		slog.Int("matches", len(report.Matches)))
	return report, nil
}

func set(values []string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

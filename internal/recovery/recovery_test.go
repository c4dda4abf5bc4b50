package recovery

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/safeguard/internal/apperr"
	"github.com/starford/safeguard/internal/models"
)

type stubSource struct {
	txs         []models.Transaction
	err         error
	downloading bool
}

func (s stubSource) GetCachedTransactions(context.Context) ([]models.Transaction, error) {
	return s.txs, s.err
}

func (s stubSource) Downloading() bool { return s.downloading }

func quiet() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestParseWatchlist(t *testing.T) {
	data := []byte(`
name: savings
output_keys:
  - "AA11"
  - "aa11"
txn_ids: [t1]
`)
	wl, err := ParseWatchlist(data)
	if err != nil {
		t.Fatalf("ParseWatchlist: %v", err)
	}
	if wl.Name != "savings" {
		t.Errorf("name = %q", wl.Name)
	}
	if len(wl.OutputKeys) != 1 || wl.OutputKeys[0] != "aa11" {
		t.Errorf("output keys = %v, want [aa11]", wl.OutputKeys)
	}
}

func TestParseWatchlist_Empty(t *testing.T) {
	if _, err := ParseWatchlist([]byte("name: nothing\n")); err == nil {
		t.Error("expected error for a watch list with no entries")
	}
}

func TestParseWatchlist_UnknownField(t *testing.T) {
	if _, err := ParseWatchlist([]byte("outputs: [a]\n")); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestParseWatchlist_BlankEntry(t *testing.T) {
	if _, err := ParseWatchlist([]byte("key_images: [\"\"]\n")); err == nil {
		t.Error("expected error for blank entry")
	}
}

func TestLoadWatchlist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.yaml")
	if err := os.WriteFile(path, []byte("key_images: [ki]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	wl, err := LoadWatchlist(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(wl.KeyImages) != 1 {
		t.Errorf("key images = %v", wl.KeyImages)
	}
}

func TestScan(t *testing.T) {
	src := stubSource{txs: []models.Transaction{
		{TxnID: "t3", Vout: []models.Vout{{P: "AA11"}, {P: "bb22"}}},
		{TxnID: "t1", Vin: []models.Vin{{KeyImage: "ki-1"}}},
		{TxnID: "t2", Vout: []models.Vout{{P: "cc33"}}},
	}}
	wl := &Watchlist{OutputKeys: []string{"aa11"}, KeyImages: []string{"ki-1"}, TxnIDs: []string{"t3"}}

	report, err := NewScanner(src, quiet()).Scan(context.Background(), wl)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if report.Scanned != 3 || report.Stale {
		t.Errorf("report = %+v", report)
	}
	want := []Match{
		{TxnID: "t1", Kind: ByKeyImage, Value: "ki-1"},
		{TxnID: "t3", Kind: ByOutputKey, Value: "AA11"},
		{TxnID: "t3", Kind: ByTxnID, Value: "t3"},
	}
	if len(report.Matches) != len(want) {
		t.Fatalf("matches = %+v, want %+v", report.Matches, want)
	}
	for i := range want {
		if report.Matches[i] != want[i] {
			t.Errorf("match[%d] = %+v, want %+v", i, report.Matches[i], want[i])
		}
	}
}

func TestScan_StaleWhileDownloading(t *testing.T) {
	src := stubSource{downloading: true}
	report, err := NewScanner(src, quiet()).Scan(context.Background(), &Watchlist{TxnIDs: []string{"x"}})
	if err != nil {
		t.Fatal(err)
	}
	if !report.Stale || len(report.Matches) != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestScan_NoSnapshot(t *testing.T) {
	src := stubSource{err: apperr.ErrNotFound}
	_, err := NewScanner(src, quiet()).Scan(context.Background(), &Watchlist{TxnIDs: []string{"x"}})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

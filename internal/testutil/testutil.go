// Package testutil provides shared test helpers for setting up caches and catalogs.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/safeguard/internal/catalog"
	"github.com/starford/safeguard/internal/codec"
	"github.com/starford/safeguard/internal/models"
	"github.com/starford/safeguard/internal/storage"
)

// TestDB creates a temporary catalog database that is automatically cleaned up.
func TestDB(t *testing.T) *catalog.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "safeguard-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := catalog.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestCache creates a temporary cache directory with an FS store.
func TestCache(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "safeguard")
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// Headers builds one header per entry of txCounts, each holding that many
// transactions with ids "<height>-<n>".
func Headers(txCounts ...int) []models.BlockHeader {
	out := make([]models.BlockHeader, 0, len(txCounts))
	for i, n := range txCounts {
		h := models.BlockHeader{Version: 1, Height: uint64(i + 1)}
		for j := 0; j < n; j++ {
			h.Transactions = append(h.Transactions, models.Transaction{
				TxnID: txID(i+1, j),
				Vout:  []models.Vout{{P: "p" + txID(i+1, j)}},
			})
		}
		out = append(out, h)
	}
	return out
}

// WriteSnapshot encodes headers and stores them under day (DD-MM-YYYY).
func WriteSnapshot(t *testing.T, s storage.Store, day string, headers []models.BlockHeader) {
	t.Helper()
	data, err := codec.Encode(headers)
	if err != nil {
		t.Fatal(err)
	}
	k, err := storage.ParseKey(day)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Write(k, data); err != nil {
		t.Fatal(err)
	}
}

func txID(height, n int) string {
	return fmt.Sprintf("%d-%d", height, n)
}

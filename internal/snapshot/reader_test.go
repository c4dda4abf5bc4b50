package snapshot

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"testing"

	"github.com/starford/safeguard/internal/apperr"
	"github.com/starford/safeguard/internal/codec"
	"github.com/starford/safeguard/internal/models"
	"github.com/starford/safeguard/internal/storage"
)

func newStore(t *testing.T) *storage.FS {
	t.Helper()
	fs, err := storage.NewFS(filepath.Join(t.TempDir(), "safeguard"))
	if err != nil {
		t.Fatal(err)
	}
	return fs
}

func write(t *testing.T, s storage.Store, day string, txCounts ...int) {
	t.Helper()
	var headers []models.BlockHeader
	for i, n := range txCounts {
		h := models.BlockHeader{Height: uint64(i)}
		for j := 0; j < n; j++ {
			h.Transactions = append(h.Transactions, models.Transaction{TxnID: fmt.Sprintf("%s/%d/%d", day, i, j)})
		}
		headers = append(headers, h)
	}
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

func sortedIDs(txs []models.Transaction) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.TxnID
	}
	slices.Sort(out)
	return out
}

func TestGetTransactions_LatestOnly(t *testing.T) {
	s := newStore(t)
	write(t, s, "31-12-2023", 4)
	write(t, s, "02-01-2024", 2, 1)

	txs, err := NewReader(s, nil).GetTransactions()
	if err != nil {
		t.Fatalf("GetTransactions: %v", err)
	}
	want := []string{"02-01-2024/0/0", "02-01-2024/0/1", "02-01-2024/1/0"}
	if got := sortedIDs(txs); !slices.Equal(got, want) {
		t.Errorf("ids = %v, want %v", got, want)
	}
}

func TestGetTransactions_SameMultisetEachCall(t *testing.T) {
	s := newStore(t)
	write(t, s, "05-05-2024", 3, 0, 5, 2)
	r := NewReader(s, nil)

	a, err := r.GetTransactions()
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.GetTransactions()
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 10 {
		t.Fatalf("len = %d, want 10", len(a))
	}
	if !slices.Equal(sortedIDs(a), sortedIDs(b)) {
		t.Error("two reads of one snapshot must return the same multiset")
	}
}

func TestGetTransactions_UsesShuffle(t *testing.T) {
	s := newStore(t)
	write(t, s, "05-05-2024", 3)

	reverse := func(n int, swap func(i, j int)) {
		for i := 0; i < n/2; i++ {
			swap(i, n-1-i)
		}
	}
	txs, err := NewReader(s, reverse).GetTransactions()
	if err != nil {
		t.Fatal(err)
	}
	if txs[0].TxnID != "05-05-2024/0/2" || txs[2].TxnID != "05-05-2024/0/0" {
		t.Errorf("shuffle not applied: %v", sortedIDs(txs))
	}
}

func TestGetTransactions_NotFound(t *testing.T) {
	_, err := NewReader(newStore(t), nil).GetTransactions()
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGetTransactions_Corrupt(t *testing.T) {
	s := newStore(t)
	k, _ := storage.ParseKey("01-01-2024")
	if err := s.Write(k, []byte{0xc1, 0x00}); err != nil {
		t.Fatal(err)
	}
	_, err := NewReader(s, nil).GetTransactions()
	if !errors.Is(err, apperr.ErrDeserialization) {
		t.Errorf("err = %v, want ErrDeserialization", err)
	}
}

func TestGetTransactions_EmptyHeaders(t *testing.T) {
	s := newStore(t)
	write(t, s, "01-01-2024", 0, 0)
	txs, err := NewReader(s, nil).GetTransactions()
	if err != nil {
		t.Fatalf("GetTransactions: %v", err)
	}
	if len(txs) != 0 {
		t.Errorf("len = %d, want 0", len(txs))
	}
}

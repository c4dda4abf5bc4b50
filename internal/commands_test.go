package internal

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/starford/safeguard/internal/codec"
	"github.com/starford/safeguard/internal/download"
	"github.com/starford/safeguard/internal/models"
)

// node serves a fixed safeguard response and counts requests.
func node(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	headers := []models.BlockHeader{
		{Height: 10, Transactions: []models.Transaction{
			{TxnID: "aa", Vout: []models.Vout{{P: "key-1"}}},
			{TxnID: "bb", Vin: []models.Vin{{KeyImage: "img-1"}}},
		}},
		{Height: 11, Transactions: []models.Transaction{{TxnID: "cc"}}},
	}
	body, err := codec.Encode(headers)
	if err != nil {
		t.Fatal(err)
	}
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/safeguardtransactions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", codec.ContentType)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func testConfig(t *testing.T, baseAddress, backend string) []Option {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.App.DataDir = t.TempDir()
	cfg.Remote.BaseAddress = baseAddress
	cfg.Safeguard.Backend = backend
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return []Option{WithConfig(cfg), WithConsole(io.Discard)}
}

func TestCommands_EndToEnd(t *testing.T) {
	for _, backend := range []string{BackendFS, BackendBolt} {
		t.Run(backend, func(t *testing.T) {
			srv, hits := node(t)
			opts := testConfig(t, srv.URL, backend)
			ctx := context.Background()

			outcome, err := Sync(ctx, opts...)
			if err != nil || outcome != download.OutcomeWritten {
				t.Fatalf("Sync = %s, %v; want written", outcome, err)
			}
			outcome, err = Sync(ctx, opts...)
			if err != nil || outcome != download.OutcomeCached {
				t.Fatalf("second Sync = %s, %v; want cached", outcome, err)
			}
			if hits.Load() != 1 {
				t.Errorf("remote hits = %d, want 1", hits.Load())
			}

			txs, err := Transactions(ctx, 0, opts...)
			if err != nil {
				t.Fatalf("Transactions: %v", err)
			}
			if len(txs) != 3 {
				t.Errorf("transactions = %d, want 3", len(txs))
			}

			rows, err := Snapshots(ctx, opts...)
			if err != nil {
				t.Fatalf("Snapshots: %v", err)
			}
			if len(rows) != 1 || rows[0].Transactions != 3 || rows[0].Headers != 2 {
				t.Errorf("rows = %+v", rows)
			}

			wl := filepath.Join(t.TempDir(), "watch.yaml")
			if err := os.WriteFile(wl, []byte("output_keys: [key-1]\nkey_images: [img-1]\n"), 0o644); err != nil {
				t.Fatal(err)
			}
			report, err := Recover(ctx, wl, opts...)
			if err != nil {
				t.Fatalf("Recover: %v", err)
			}
			if report.Scanned != 3 || len(report.Matches) != 2 {
				t.Errorf("report = %+v", report)
			}
		})
	}
}

func TestSync_RemoteDown(t *testing.T) {
	srv, _ := node(t)
	srv.Close()
	opts := testConfig(t, srv.URL, BackendFS)

	outcome, err := Sync(context.Background(), opts...)
	if err == nil || outcome != download.OutcomeFetchFailed {
		t.Errorf("Sync = %s, %v; want fetch_failed error", outcome, err)
	}
}

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Error("Run without config should fail")
	}
}

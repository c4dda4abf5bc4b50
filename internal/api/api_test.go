package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"golang.org/x/time/rate"

	"github.com/starford/safeguard/internal/apperr"
	"github.com/starford/safeguard/internal/catalog"
	"github.com/starford/safeguard/internal/download"
	"github.com/starford/safeguard/internal/models"
	"github.com/starford/safeguard/internal/safeguard"
	"github.com/starford/safeguard/internal/scheduler"
	"github.com/starford/safeguard/internal/snapshot"
	"github.com/starford/safeguard/internal/storage"
	"github.com/starford/safeguard/internal/testutil"
)

type fetchFunc func(ctx context.Context) ([]models.BlockHeader, error)

func (f fetchFunc) FetchHeaders(ctx context.Context) ([]models.BlockHeader, error) { return f(ctx) }

type testEnv struct {
	store   *storage.FS
	router  http.Handler
	fetches atomic.Int32
}

// newTestEnv wires a real service over a temp cache. fetchErr, when set,
// makes every remote fetch fail with it.
func newTestEnv(t *testing.T, authToken string, limiter *rate.Limiter, fetchErr error) *testEnv {
	t.Helper()
	env := &testEnv{}
	_, env.store = testutil.TestCache(t)

	logger := slog.New(slog.DiscardHandler)
	state := download.NewState()
	fetcher := fetchFunc(func(context.Context) ([]models.BlockHeader, error) {
		env.fetches.Add(1)
		if fetchErr != nil {
			return nil, fetchErr
		}
		return testutil.Headers(2, 3), nil
	})
	coord := download.New(env.store, fetcher, state, download.DefaultWindowOffset,
		download.WithClock(clock.NewTestClock(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))),
		download.WithLogger(logger))
	sched := scheduler.New(coord, 0, scheduler.WithLogger(logger))
	svc := safeguard.NewService(sched, coord, state, snapshot.NewReader(env.store, nil), env.store, nil)

	env.router = NewRouter(svc, authToken != "", authToken, nil, limiter)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestSyncThenTransactions(t *testing.T) {
	env := newTestEnv(t, "", nil, nil)

	w := env.do(t, http.MethodPost, "/safeguard/sync", "")
	if w.Code != http.StatusOK {
		t.Fatalf("sync status = %d, body = %s", w.Code, w.Body.String())
	}
	var sync SyncResponse
	_ = json.Unmarshal(w.Body.Bytes(), &sync)
	if sync.Outcome != "written" {
		t.Errorf("outcome = %q, want written", sync.Outcome)
	}

	w = env.do(t, http.MethodGet, "/safeguard/transactions", "")
	if w.Code != http.StatusOK {
		t.Fatalf("transactions status = %d", w.Code)
	}
	var resp TransactionsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 5 || len(resp.Transactions) != 5 {
		t.Errorf("total = %d, len = %d, want 5", resp.Total, len(resp.Transactions))
	}
}

func TestSync_SecondCallCached(t *testing.T) {
	env := newTestEnv(t, "", nil, nil)
	env.do(t, http.MethodPost, "/safeguard/sync", "")

	w := env.do(t, http.MethodPost, "/safeguard/sync", "")
	var sync SyncResponse
	_ = json.Unmarshal(w.Body.Bytes(), &sync)
	if sync.Outcome != "cached" {
		t.Errorf("outcome = %q, want cached", sync.Outcome)
	}
	if env.fetches.Load() != 1 {
		t.Errorf("fetches = %d, want 1", env.fetches.Load())
	}
}

func TestSync_FetchFailed(t *testing.T) {
	env := newTestEnv(t, "", nil, fmt.Errorf("remote: %w", apperr.ErrNetwork))
	w := env.do(t, http.MethodPost, "/safeguard/sync", "")
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestSync_RateLimited(t *testing.T) {
	env := newTestEnv(t, "", rate.NewLimiter(rate.Every(time.Hour), 1), nil)

	if w := env.do(t, http.MethodPost, "/safeguard/sync", ""); w.Code != http.StatusOK {
		t.Fatalf("first sync = %d", w.Code)
	}
	w := env.do(t, http.MethodPost, "/safeguard/sync", "")
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second sync = %d, want 429", w.Code)
	}
	// Reads are not throttled.
	if w := env.do(t, http.MethodGet, "/safeguard/status", ""); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestTransactions_Limit(t *testing.T) {
	env := newTestEnv(t, "", nil, nil)
	env.do(t, http.MethodPost, "/safeguard/sync", "")

	w := env.do(t, http.MethodGet, "/safeguard/transactions?limit=2", "")
	var resp TransactionsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 5 || len(resp.Transactions) != 2 {
		t.Errorf("total = %d, len = %d, want 5/2", resp.Total, len(resp.Transactions))
	}
}

func TestTransactions_NotFound(t *testing.T) {
	env := newTestEnv(t, "", nil, nil)
	w := env.do(t, http.MethodGet, "/safeguard/transactions", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestTransactions_Corrupt(t *testing.T) {
	env := newTestEnv(t, "", nil, nil)
	k, _ := storage.ParseKey("01-01-2024")
	if err := env.store.Write(k, []byte{0xc1}); err != nil {
		t.Fatal(err)
	}
	w := env.do(t, http.MethodGet, "/safeguard/transactions", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var body errResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Error != "cache corrupt" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t, "", nil, nil)
	w := env.do(t, http.MethodGet, "/safeguard/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var st StatusResponse
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if st.PolicyKey != "08-03-2024" || st.Cached || st.Downloading {
		t.Errorf("status = %+v", st)
	}
}

func TestSnapshotsEndpoint(t *testing.T) {
	env := newTestEnv(t, "", nil, nil)

	w := env.do(t, http.MethodGet, "/safeguard/snapshots", "")
	var empty SnapshotsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &empty)
	if empty.Snapshots == nil || len(empty.Snapshots) != 0 {
		t.Errorf("empty cache should list [] got %v", empty.Snapshots)
	}

	env.do(t, http.MethodPost, "/safeguard/sync", "")
	w = env.do(t, http.MethodGet, "/safeguard/snapshots", "")
	var resp SnapshotsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Snapshots) != 1 || resp.Snapshots[0].Key != "08-03-2024" {
		t.Errorf("snapshots = %+v", resp.Snapshots)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	env := newTestEnv(t, "secret", nil, nil)
	if w := env.do(t, http.MethodGet, "/safeguard/status", "secret"); w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	env := newTestEnv(t, "secret", nil, nil)
	if w := env.do(t, http.MethodGet, "/safeguard/status", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	env := newTestEnv(t, "secret", nil, nil)
	if w := env.do(t, http.MethodPost, "/safeguard/sync", "nope"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
	if env.fetches.Load() != 0 {
		t.Error("unauthorized sync must not fetch")
	}
}

// stubService fails every call with err.
type stubService struct{ err error }

func (s stubService) EnsureFreshSnapshot(context.Context) (download.Outcome, error) {
	return download.OutcomeCancelled, s.err
}

func (s stubService) GetCachedTransactions(context.Context) ([]models.Transaction, error) {
	return nil, s.err
}

func (s stubService) Status(context.Context) (safeguard.Status, error) {
	return safeguard.Status{}, s.err
}

func (s stubService) Snapshots(context.Context) ([]catalog.Row, error) {
	return nil, s.err
}

func TestErrorMapping(t *testing.T) {
	cancelled := stubService{err: fmt.Errorf("scheduler: %w", apperr.ErrCancelled)}
	router := NewRouter(cancelled, false, "", nil, nil)

	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodPost, "/safeguard/sync", http.StatusServiceUnavailable},
		{http.MethodGet, "/safeguard/transactions", http.StatusServiceUnavailable},
		{http.MethodGet, "/safeguard/status", http.StatusInternalServerError},
		{http.MethodGet, "/safeguard/snapshots", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		if w.Code != tc.want {
			t.Errorf("%s %s = %d, want %d", tc.method, tc.path, w.Code, tc.want)
		}
	}
}

// SSE endpoint auth tests.

func testRouterWithSSE(t *testing.T, authEnabled bool, token string) http.Handler {
	t.Helper()
	// Minimal SSE handler stub: writes headers and blocks until context done.
	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
	return NewRouter(stubService{}, authEnabled, token, sseHandler, nil)
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testRouterWithSSE(t, true, "secret")

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_AuthDisabled(t *testing.T) {
	router := testRouterWithSSE(t, false, "")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE should not require auth when disabled")
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testRouterWithSSE(t, true, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func next(t *testing.T, ch <-chan []byte) string {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return string(msg)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return ""
	}
}

// eventually polls cond every 10ms until it returns true or timeout elapses.
func eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestSubscribe_ReplaysStatus(t *testing.T) {
	b := NewBroker(0)
	defer b.Close()

	b.PublishCycle("written")
	b.PublishDownload(true)

	// The loop handles updates in order, so once Status reflects the
	// download the new subscriber must see it too.
	eventually(t, time.Second, func() bool { return b.Status().Downloading })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := next(t, b.Subscribe(ctx))

	if !strings.Contains(first, "event: status") {
		t.Fatalf("first message = %q, want status", first)
	}
	for _, want := range []string{`"downloading":true`, `"last_outcome":"written"`, `"last_cycle_at"`} {
		if !strings.Contains(first, want) {
			t.Errorf("status %q missing %s", first, want)
		}
	}
}

func TestSubscribe_IdleStatus(t *testing.T) {
	b := NewBroker(0)
	defer b.Close()

	first := next(t, b.Subscribe(context.Background()))
	if !strings.Contains(first, `"downloading":false`) || strings.Contains(first, "last_cycle_at") {
		t.Errorf("idle status = %q", first)
	}
}

func TestPublishDownload_Transitions(t *testing.T) {
	b := NewBroker(0)
	defer b.Close()
	ch := b.Subscribe(context.Background())
	next(t, ch)

	b.PublishDownload(true)
	b.PublishDownload(true)
	b.PublishDownload(false)
	b.PublishCycle("written")

	if s := next(t, ch); !strings.Contains(s, "event: download.started") {
		t.Errorf("got %q, want download.started", s)
	}
	// The repeated true is not re-sent.
	if s := next(t, ch); !strings.Contains(s, "event: download.finished") {
		t.Errorf("got %q, want download.finished", s)
	}
	if s := next(t, ch); !strings.Contains(s, "event: cycle.finished") || !strings.Contains(s, `"outcome":"written"`) {
		t.Errorf("got %q, want cycle.finished", s)
	}
}

func TestPublishSnapshotEvent(t *testing.T) {
	b := NewBroker(0)
	defer b.Close()
	ch := b.Subscribe(context.Background())
	next(t, ch)

	b.PublishSnapshotEvent("created", "01-01-2024")
	b.PublishSnapshotEvent("deleted", "01-12-2023")

	if s := next(t, ch); !strings.Contains(s, "event: snapshot.created") || !strings.Contains(s, `"key":"01-01-2024"`) {
		t.Errorf("got %q", s)
	}
	if s := next(t, ch); !strings.Contains(s, "event: snapshot.deleted") {
		t.Errorf("got %q", s)
	}
}

func TestEventIDsIncrease(t *testing.T) {
	b := NewBroker(0)
	defer b.Close()
	ch := b.Subscribe(context.Background())

	if s := next(t, ch); !strings.HasPrefix(s, "id: 1\n") {
		t.Errorf("first = %q", s)
	}
	b.PublishCycle("cached")
	if s := next(t, ch); !strings.HasPrefix(s, "id: 2\n") {
		t.Errorf("second = %q", s)
	}
}

func TestSlowClientDropped(t *testing.T) {
	b := NewBroker(0)
	defer b.Close()
	slow := b.Subscribe(context.Background())

	for i := 0; i < clientBuffer+5; i++ {
		b.PublishCycle("cached")
	}
	eventually(t, time.Second, func() bool { return b.Status().Clients == 0 })

	n := 0
	for range slow {
		n++
	}
	if n != clientBuffer {
		t.Errorf("drained %d messages, want %d", n, clientBuffer)
	}
}

func TestSubscribe_EndsWithContext(t *testing.T) {
	b := NewBroker(0)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx)
	if n := b.Status().Clients; n != 1 {
		t.Fatalf("clients = %d, want 1", n)
	}
	cancel()
	eventually(t, time.Second, func() bool { return b.Status().Clients == 0 })

	for range ch {
	}
}

func TestClose(t *testing.T) {
	b := NewBroker(0)
	ch := b.Subscribe(context.Background())
	next(t, ch)

	b.Close()
	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	// Calls after Close return without blocking.
	b.PublishDownload(true)
	b.PublishSnapshotEvent("updated", "01-01-2024")
	if st := b.Status(); st.Clients != 0 || st.Downloading {
		t.Errorf("status after close = %+v", st)
	}
	if _, ok := <-b.Subscribe(context.Background()); ok {
		t.Error("subscribe after close should return a closed channel")
	}
}

// flushRecorder is an httptest.ResponseRecorder safe to read while the
// handler is still writing.
type flushRecorder struct {
	mu  sync.Mutex
	rec *httptest.ResponseRecorder
}

func (f *flushRecorder) Header() http.Header { return f.rec.Header() }

func (f *flushRecorder) WriteHeader(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rec.WriteHeader(code)
}

func (f *flushRecorder) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rec.Write(p)
}

func (f *flushRecorder) Flush() {}

func (f *flushRecorder) body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rec.Body.String()
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(20 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := &flushRecorder{rec: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	eventually(t, time.Second, func() bool { return b.Status().Clients == 1 })
	b.PublishSnapshotEvent("created", "02-01-2024")
	eventually(t, time.Second, func() bool {
		body := w.body()
		return strings.Contains(body, "event: snapshot.created") && strings.Contains(body, ": keepalive")
	})

	cancel()
	<-done

	body := w.body()
	if !strings.HasPrefix(body, "id: 1\nevent: status\n") {
		t.Errorf("stream should open with status: %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	eventually(t, time.Second, func() bool { return b.Status().Clients == 0 })
}

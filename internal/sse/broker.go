// Package sse streams download, cycle and cache changes to local clients as
// Server-Sent Events.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Event types sent to clients.
const (
	EventStatus           = "status"
	EventDownloadStarted  = "download.started"
	EventDownloadFinished = "download.finished"
	EventCycleFinished    = "cycle.finished"
	EventSnapshotPrefix   = "snapshot."
)

// clientBuffer is how many events a client may lag behind before it is
// dropped. A dropped client catches up from the status event on reconnect.
const clientBuffer = 64

// Status is the broker's view of the downloader, replayed to every new
// subscriber.
type Status struct {
	Downloading bool      `json:"downloading"`
	LastOutcome string    `json:"last_outcome,omitempty"`
	LastCycleAt time.Time `json:"last_cycle_at,omitzero"`
	Clients     int       `json:"-"`
}

// update is one change fed into the loop. Exactly one field group is set.
type update struct {
	downloading *bool
	outcome     string
	at          time.Time
	kind, key   string
}

type subscription struct {
	ch    chan []byte
	reply chan struct{}
}

// Broker fans safeguard updates out to SSE clients. One goroutine owns the
// client set and the current Status; everything else talks to it over
// channels.
type Broker struct {
	keepalive time.Duration
	now       func() time.Time

	updates chan update
	subs    chan subscription
	unsubs  chan chan []byte
	query   chan chan Status

	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewBroker starts a broker. keepalive is the interval between comment
// lines sent to idle clients; 0 disables them.
func NewBroker(keepalive time.Duration) *Broker {
	b := &Broker{
		keepalive: keepalive,
		now:       time.Now,
		updates:   make(chan update, 256),
		subs:      make(chan subscription),
		unsubs:    make(chan chan []byte),
		query:     make(chan chan Status),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *Broker) loop() {
	defer close(b.stopped)

	var (
		status  Status
		seq     uint64
		clients = make(map[chan []byte]struct{})
	)

	frame := func(typ string, data any) []byte {
		payload, err := json.Marshal(data)
		if err != nil {
			return nil
		}
		seq++
		return fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", seq, typ, payload)
	}
	drop := func(ch chan []byte) {
		delete(clients, ch)
		close(ch)
	}
	send := func(msg []byte) {
		if msg == nil {
			return
		}
		for ch := range clients {
			select {
			case ch <- msg:
			default:
				drop(ch)
			}
		}
	}

	for {
		select {
		case <-b.done:
			for ch := range clients {
				drop(ch)
			}
			return

		case s := <-b.subs:
			clients[s.ch] = struct{}{}
			s.ch <- frame(EventStatus, status)
			close(s.reply)

		case ch := <-b.unsubs:
			if _, ok := clients[ch]; ok {
				drop(ch)
			}

		case u := <-b.updates:
			switch {
			case u.downloading != nil:
				if *u.downloading == status.Downloading {
					continue
				}
				status.Downloading = *u.downloading
				typ := EventDownloadFinished
				if status.Downloading {
					typ = EventDownloadStarted
				}
				send(frame(typ, map[string]bool{"downloading": status.Downloading}))
			case u.outcome != "":
				status.LastOutcome = u.outcome
				status.LastCycleAt = u.at
				send(frame(EventCycleFinished, map[string]any{"outcome": u.outcome, "at": u.at}))
			case u.kind != "":
				send(frame(EventSnapshotPrefix+u.kind, map[string]string{"key": u.key}))
			}

		case resp := <-b.query:
			s := status
			s.Clients = len(clients)
			resp <- s
		}
	}
}

func (b *Broker) push(u update) {
	select {
	case b.updates <- u:
	case <-b.done:
	}
}

// PublishDownload records a DownloadState transition. Repeated values are
// not re-sent.
func (b *Broker) PublishDownload(downloading bool) {
	b.push(update{downloading: &downloading})
}

// PublishCycle records the outcome of a finished cycle.
func (b *Broker) PublishCycle(outcome string) {
	b.push(update{outcome: outcome, at: b.now().UTC()})
}

// PublishSnapshotEvent announces a cache change; kind is created, updated
// or deleted.
func (b *Broker) PublishSnapshotEvent(kind, key string) {
	b.push(update{kind: kind, key: key})
}

// Status returns the current view and the number of connected clients.
func (b *Broker) Status() Status {
	resp := make(chan Status, 1)
	select {
	case b.query <- resp:
		return <-resp
	case <-b.stopped:
		return Status{}
	}
}

// Subscribe registers a client until ctx ends. The first message is always
// the current status. The channel is closed when the client is dropped or
// the broker shuts down.
func (b *Broker) Subscribe(ctx context.Context) <-chan []byte {
	ch := make(chan []byte, clientBuffer)
	s := subscription{ch: ch, reply: make(chan struct{})}
	select {
	case b.subs <- s:
		<-s.reply
	case <-b.stopped:
		close(ch)
		return ch
	case <-ctx.Done():
		close(ch)
		return ch
	}

	go func() {
		select {
		case <-ctx.Done():
			select {
			case b.unsubs <- ch:
			case <-b.stopped:
			}
		case <-b.stopped:
		}
	}()
	return ch
}

// Close disconnects every client and stops the loop.
func (b *Broker) Close() {
	b.closeOnce.Do(func() { close(b.done) })
	<-b.stopped
}

// ServeHTTP streams events until the client goes away (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events := b.Subscribe(r.Context())

	var tick <-chan time.Time
	if b.keepalive > 0 {
		t := time.NewTicker(b.keepalive)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case msg, ok := <-events:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
		case <-tick:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}

package download

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// State is the process-wide "download in flight" flag. It is advisory: a
// reader seeing true should expect a briefly stale cache, never block on it.
type State struct {
	downloading atomic.Bool

	mu       sync.Mutex
	watchers []func(bool)
}

// NewState returns a State that starts idle.
func NewState() *State {
	return &State{}
}

// Downloading reports whether a download is in flight.
func (s *State) Downloading() bool {
	return s.downloading.Load()
}

// Watch registers fn to be called on every transition.
func (s *State) Watch(fn func(bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}

// Acquire marks a download as in flight. The returned release resets the
// flag; calling it more than once has no further effect. Watchers run after
// the flag is stored and cannot prevent release from being returned.
func (s *State) Acquire() (release func()) {
	s.set(true)
	var once sync.Once
	return func() {
		once.Do(func() { s.set(false) })
	}
}

func (s *State) set(v bool) {
	s.downloading.Store(v)
	s.mu.Lock()
	watchers := make([]func(bool), len(s.watchers))
	copy(watchers, s.watchers)
	s.mu.Unlock()
	for _, fn := range watchers {
		notify(fn, v)
	}
}

func notify(fn func(bool), v bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("safeguard: state watcher panicked",
				slog.Bool("downloading", v),
				slog.String("panic", fmt.Sprint(r)))
		}
	}()
	fn(v)
}

// Package storage defines the snapshot cache abstraction.
package storage

import "time"

// Entry describes one cached snapshot.
type Entry struct {
	Key     Key       `json:"key"`
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Store is the interface for snapshot cache operations. Implementations
// key snapshots by calendar day and hold at most one snapshot per key.
type Store interface {
	// Exists reports whether a snapshot for key is cached.
	Exists(key Key) (bool, error)
	// Write atomically stores data as the snapshot for key.
	Write(key Key, data []byte) error
	// Read returns the snapshot for key, or apperr.ErrNotFound.
	Read(key Key) ([]byte, error)
	// ReadEntry returns the snapshot behind an entry returned by List.
	ReadEntry(e Entry) ([]byte, error)
	// ReadLatest returns the chronologically latest snapshot, or apperr.ErrNotFound.
	ReadLatest() ([]byte, error)
	// List returns every snapshot ordered oldest to newest.
	List() ([]Entry, error)
	// Prune removes all but the newest keep snapshots. keep <= 0 is a no-op.
	Prune(keep int) error
}

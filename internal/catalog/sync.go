package catalog

import (
	"fmt"
	"log/slog"

	"github.com/starford/safeguard/internal/checksum"
	"github.com/starford/safeguard/internal/codec"
	"github.com/starford/safeguard/internal/storage"
)

// Change kinds reported by Sync.
const (
	Created = "created"
	Updated = "updated"
	Deleted = "deleted"
)

// Change is one catalog mutation made by Sync.
type Change struct {
	Kind string `json:"kind"`
	Key  string `json:"key"`
}

// Sync brings the catalog in line with the store:
//   - new or changed snapshots are decoded and upserted
//   - rows whose snapshot is gone are deleted
//
// Unchanged snapshots (same name, size and mtime) are not re-read.
func Sync(db *DB, store storage.Store, logger *slog.Logger) ([]Change, error) {
	entries, err := store.List()
	if err != nil {
		return nil, err
	}
	known, err := db.fingerprints()
	if err != nil {
		return nil, err
	}

	// List is oldest first, so a later entry for the same day wins.
	latest := make(map[string]storage.Entry, len(entries))
	for _, e := range entries {
		latest[e.Key.String()] = e
	}

	var changes []Change
	for key, e := range latest {
		fp := fingerprint(e)
		prev, seen := known[key]
		if seen && prev == fp {
			continue
		}
		row, err := describe(store, e)
		if err != nil {
			logger.Warn("catalog: read failed", slog.String("key", key), slog.String("error", err.Error()))
			continue
		}
		if err := db.Upsert(row); err != nil {
			logger.Warn("catalog: upsert failed", slog.String("key", key), slog.String("error", err.Error()))
			continue
		}
		kind := Created
		if seen {
			kind = Updated
		}
		logger.Debug("catalog: indexed", slog.String("key", key), slog.String("op", kind))
		changes = append(changes, Change{Kind: kind, Key: key})
	}

	for key := range known {
		if _, ok := latest[key]; ok {
			continue
		}
		if err := db.Delete(key); err != nil {
			logger.Warn("catalog: delete failed", slog.String("key", key), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("catalog: removed stale", slog.String("key", key))
		changes = append(changes, Change{Kind: Deleted, Key: key})
	}
	return changes, nil
}

// describe reads a snapshot and builds its row. A snapshot that fails to
// decode is still cataloged, flagged corrupt.
func describe(store storage.Store, e storage.Entry) (Row, error) {
	data, err := store.ReadEntry(e)
	if err != nil {
		return Row{}, err
	}
	row := Row{
		Key:         e.Key.String(),
		Name:        e.Name,
		Size:        int64(len(data)),
		Checksum:    checksum.Sum(data),
		ModTime:     e.ModTime,
		day:         e.Key.Time().Format("2006-01-02"),
		fingerprint: fingerprint(e),
	}
	list, err := codec.Decode(data)
	if err != nil {
		row.Corrupt = true
		return row, nil
	}
	row.Headers = len(list.Data)
	row.Transactions = len(list.Transactions())
	return row, nil
}

func fingerprint(e storage.Entry) string {
	return fmt.Sprintf("%s|%d|%d", e.Name, e.Size, e.ModTime.UnixNano())
}

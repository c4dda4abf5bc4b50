package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/safeguard/internal/apperr"
)

// Row is one cataloged snapshot.
type Row struct {
	Key          string    `json:"key"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	Checksum     string    `json:"checksum"`
	Headers      int       `json:"headers"`
	Transactions int       `json:"transactions"`
	Corrupt      bool      `json:"corrupt"`
	ModTime      time.Time `json:"modified_at"`

	day         string
	fingerprint string
}

// Upsert inserts or replaces a snapshot row.
func (db *DB) Upsert(r Row) error {
	_, err := db.conn.Exec(`
		INSERT INTO snapshots (key, day, name, size, checksum, fingerprint, headers, transactions, corrupt, modified_at, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			day          = excluded.day,
			name         = excluded.name,
			size         = excluded.size,
			checksum     = excluded.checksum,
			fingerprint  = excluded.fingerprint,
			headers      = excluded.headers,
			transactions = excluded.transactions,
			corrupt      = excluded.corrupt,
			modified_at  = excluded.modified_at,
			indexed_at   = excluded.indexed_at
	`, r.Key, r.day, r.Name, r.Size, r.Checksum, r.fingerprint, r.Headers, r.Transactions, r.Corrupt, r.ModTime.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("catalog: upsert %s: %w", r.Key, err)
	}
	return nil
}

// Delete removes the row for key.
func (db *DB) Delete(key string) error {
	if _, err := db.conn.Exec(`DELETE FROM snapshots WHERE key = ?`, key); err != nil {
		return fmt.Errorf("catalog: delete %s: %w", key, err)
	}
	return nil
}

// Get returns the row for key.
func (db *DB) Get(key string) (*Row, error) {
	row := db.conn.QueryRow(`
		SELECT key, name, size, checksum, headers, transactions, corrupt, modified_at
		FROM snapshots WHERE key = ?`, key)
	var r Row
	err := row.Scan(&r.Key, &r.Name, &r.Size, &r.Checksum, &r.Headers, &r.Transactions, &r.Corrupt, &r.ModTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("catalog: get %s: %w", key, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get %s: %w", key, err)
	}
	return &r, nil
}

// List returns all rows, newest day first.
func (db *DB) List() ([]Row, error) {
	rows, err := db.conn.Query(`
		SELECT key, name, size, checksum, headers, transactions, corrupt, modified_at
		FROM snapshots ORDER BY day DESC`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Key, &r.Name, &r.Size, &r.Checksum, &r.Headers, &r.Transactions, &r.Corrupt, &r.ModTime); err != nil {
			return nil, fmt.Errorf("catalog: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// fingerprints maps every cataloged key to the fingerprint it was indexed at.
func (db *DB) fingerprints() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT key, fingerprint FROM snapshots`)
	if err != nil {
		return nil, fmt.Errorf("catalog: fingerprints: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, fp string
		if err := rows.Scan(&k, &fp); err != nil {
			return nil, fmt.Errorf("catalog: scan: %w", err)
		}
		out[k] = fp
	}
	return out, rows.Err()
}

package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/starford/safeguard/internal/apperr"
)

var (
	snapshotsBucket = []byte("snapshots")
	metaBucket      = []byte("meta")
)

// Bolt implements Store on a single bbolt file. Keys are stored as
// YYYYMMDD so cursor order is day order; each value is written in one
// transaction, so a torn snapshot is never visible.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the bbolt file at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: open bolt: %w: %w", apperr.ErrIO, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(snapshotsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: init buckets: %w: %w", apperr.ErrIO, err)
	}
	return &Bolt{db: db}, nil
}

// Close closes the underlying database.
func (b *Bolt) Close() error {
	return b.db.Close()
}

// Exists reports whether a snapshot for key is stored.
func (b *Bolt) Exists(key Key) (bool, error) {
	var ok bool
	err := b.db.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket(snapshotsBucket).Get([]byte(key.sortable())) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("storage: exists %s: %w: %w", key, apperr.ErrIO, err)
	}
	return ok, nil
}

// Write stores data and its write time in one transaction.
func (b *Bolt) Write(key Key, data []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		k := []byte(key.sortable())
		if err := tx.Bucket(snapshotsBucket).Put(k, data); err != nil {
			return err
		}
		var ts [8]byte
		binary.BigEndian.PutUint64(ts[:], uint64(time.Now().UnixNano()))
		return tx.Bucket(metaBucket).Put(k, ts[:])
	})
	if err != nil {
		return fmt.Errorf("storage: write %s: %w: %w", key, apperr.ErrIO, err)
	}
	return nil
}

// Read returns the snapshot stored for key.
func (b *Bolt) Read(key Key) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(snapshotsBucket).Get([]byte(key.sortable()))
		if v == nil {
			return apperr.ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, wrapBolt("read "+key.String(), err)
	}
	return out, nil
}

// ReadEntry returns the snapshot for e.Key; bolt holds one value per day.
func (b *Bolt) ReadEntry(e Entry) ([]byte, error) {
	return b.Read(e.Key)
}

// ReadLatest returns the snapshot under the greatest key.
func (b *Bolt) ReadLatest() ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		_, v := tx.Bucket(snapshotsBucket).Cursor().Last()
		if v == nil {
			return apperr.ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, wrapBolt("read latest", err)
	}
	return out, nil
}

// List returns every stored snapshot ordered oldest to newest.
func (b *Bolt) List() ([]Entry, error) {
	var out []Entry
	err := b.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		return tx.Bucket(snapshotsBucket).ForEach(func(k, v []byte) error {
			day, err := time.Parse("20060102", string(k))
			if err != nil {
				return nil
			}
			key := KeyOf(day)
			e := Entry{Key: key, Name: key.String() + Extension, Size: int64(len(v))}
			if ts := meta.Get(k); len(ts) == 8 {
				e.ModTime = time.Unix(0, int64(binary.BigEndian.Uint64(ts)))
			}
			out = append(out, e)
			return nil
		})
	})
	if err != nil {
		return nil, wrapBolt("list", err)
	}
	return out, nil
}

// Prune deletes all but the newest keep snapshots.
func (b *Bolt) Prune(keep int) error {
	if keep <= 0 {
		return nil
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		snaps := tx.Bucket(snapshotsBucket)
		meta := tx.Bucket(metaBucket)
		var all [][]byte
		c := snaps.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			all = append(all, append([]byte(nil), k...))
		}
		if len(all) <= keep {
			return nil
		}
		for _, k := range all[:len(all)-keep] {
			if err := snaps.Delete(k); err != nil {
				return err
			}
			if err := meta.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapBolt("prune", err)
	}
	return nil
}

func wrapBolt(op string, err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("storage: %s: %w", op, err)
	}
	return fmt.Errorf("storage: %s: %w: %w", op, apperr.ErrIO, err)
}

// Verify *Bolt satisfies Store at compile time.
var _ Store = (*Bolt)(nil)

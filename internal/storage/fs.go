package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/safeguard/internal/apperr"
)

const (
	// Extension is the suffix of snapshot files written by FS.
	Extension = ".snapshot"
	// LegacyExtension is recognized when reading caches written by older clients.
	LegacyExtension = ".messagepack"

	tmpPrefix = ".safeguard-tmp-"
)

// FS implements Store backed by a directory: one file per key, and the
// directory listing is the only index.
type FS struct {
	root string // absolute path to the cache directory
}

// NewFS creates an FS store rooted at dir. The directory is created lazily
// on first write; a missing directory reads as an empty cache.
func NewFS(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	switch {
	case err == nil && !info.IsDir():
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("storage: stat root: %w: %w", apperr.ErrIO, err)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute cache directory.
func (f *FS) Root() string { return f.root }

// Path returns the file a new snapshot for key is written to.
func (f *FS) Path(key Key) string {
	return filepath.Join(f.root, key.String()+Extension)
}

// Exists reports whether a file named for key is present.
func (f *FS) Exists(key Key) (bool, error) {
	for _, ext := range []string{Extension, LegacyExtension} {
		info, err := os.Stat(filepath.Join(f.root, key.String()+ext))
		if err == nil {
			if !info.IsDir() {
				return true, nil
			}
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("storage: stat %s: %w: %w", key, apperr.ErrIO, err)
		}
	}
	return false, nil
}

// Write atomically writes data: tmp file → fsync → rename.
func (f *FS) Write(key Key, data []byte) error {
	if err := os.MkdirAll(f.root, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w: %w", apperr.ErrIO, err)
	}

	tmp, err := os.CreateTemp(f.root, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w: %w", apperr.ErrIO, err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("storage: write temp: %w: %w", apperr.ErrIO, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w: %w", apperr.ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w: %w", apperr.ErrIO, err)
	}
	if err := os.Rename(tmpName, f.Path(key)); err != nil {
		return fmt.Errorf("storage: rename: %w: %w", apperr.ErrIO, err)
	}
	success = true
	return nil
}

// Read returns the snapshot stored for key.
func (f *FS) Read(key Key) ([]byte, error) {
	for _, ext := range []string{Extension, LegacyExtension} {
		data, err := os.ReadFile(filepath.Join(f.root, key.String()+ext))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("storage: read %s: %w: %w", key, apperr.ErrIO, err)
		}
	}
	return nil, fmt.Errorf("storage: read %s: %w", key, apperr.ErrNotFound)
}

// ReadEntry reads the file named by e. When a day has files under both
// extensions, this is the only way to read the one List chose.
func (f *FS) ReadEntry(e Entry) ([]byte, error) {
	key, ok := keyFromName(e.Name)
	if !ok || !key.Equal(e.Key) {
		return nil, fmt.Errorf("storage: read %q: %w", e.Name, apperr.ErrNotFound)
	}
	data, err := os.ReadFile(filepath.Join(f.root, e.Name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("storage: read %s: %w", e.Name, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: read %s: %w: %w", e.Name, apperr.ErrIO, err)
	}
	return data, nil
}

// ReadLatest returns the contents of the newest snapshot file.
func (f *FS) ReadLatest() ([]byte, error) {
	entries, err := f.List()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("storage: read latest: %w", apperr.ErrNotFound)
	}
	return f.ReadEntry(entries[len(entries)-1])
}

// List returns snapshot files ordered by day. DD-MM-YYYY names do not sort
// chronologically as strings, so stems are parsed back into keys. Two files
// for the same day order by modification time, then by name.
func (f *FS) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(f.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: list: %w: %w", apperr.ErrIO, err)
	}

	var out []Entry
	for _, d := range dirEntries {
		if d.IsDir() {
			continue
		}
		key, ok := keyFromName(d.Name())
		if !ok {
			continue
		}
		info, err := d.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		out = append(out, Entry{
			Key:     key,
			Name:    d.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sortEntries(out)
	return out, nil
}

// Prune keeps the newest keep days and removes older snapshot files along
// with temp files left behind by an interrupted write.
func (f *FS) Prune(keep int) error {
	if keep <= 0 {
		return nil
	}
	entries, err := f.List()
	if err != nil {
		return err
	}

	days := make([]Key, 0, len(entries))
	for _, e := range entries {
		if len(days) == 0 || !days[len(days)-1].Equal(e.Key) {
			days = append(days, e.Key)
		}
	}
	var errs []error
	if len(days) > keep {
		cutoff := days[len(days)-keep]
		for _, e := range entries {
			if !e.Key.Before(cutoff) {
				continue
			}
			if err := os.Remove(filepath.Join(f.root, e.Name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
		}
	}

	leftovers, _ := filepath.Glob(filepath.Join(f.root, tmpPrefix+"*"))
	for _, p := range leftovers {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("storage: prune: %w: %w", apperr.ErrIO, err)
	}
	return nil
}

// keyFromName accepts "<DD-MM-YYYY>.snapshot" and the legacy extension.
func keyFromName(name string) (Key, bool) {
	if strings.HasPrefix(name, tmpPrefix) {
		return Key{}, false
	}
	ext := filepath.Ext(name)
	if ext != Extension && ext != LegacyExtension {
		return Key{}, false
	}
	key, err := ParseKey(strings.TrimSuffix(name, ext))
	if err != nil {
		return Key{}, false
	}
	return key, true
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.Key.Equal(b.Key) {
			return a.Key.Before(b.Key)
		}
		if !a.ModTime.Equal(b.ModTime) {
			return a.ModTime.Before(b.ModTime)
		}
		return a.Name < b.Name
	})
}

// Verify *FS satisfies Store at compile time.
var _ Store = (*FS)(nil)

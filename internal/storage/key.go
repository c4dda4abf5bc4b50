package storage

import (
	"fmt"
	"time"
)

// KeyLayout is the canonical DD-MM-YYYY form used in cache file names.
const KeyLayout = "02-01-2006"

// Key identifies a snapshot by UTC calendar day.
type Key struct {
	day time.Time
}

// KeyAt returns the key for the day containing now minus offset.
func KeyAt(now time.Time, offset time.Duration) Key {
	return KeyOf(now.UTC().Add(-offset))
}

// KeyOf truncates t to its UTC calendar day.
func KeyOf(t time.Time) Key {
	t = t.UTC()
	return Key{day: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseKey parses the canonical DD-MM-YYYY form.
func ParseKey(s string) (Key, error) {
	t, err := time.Parse(KeyLayout, s)
	if err != nil {
		return Key{}, fmt.Errorf("storage: parse key %q: %w", s, err)
	}
	return Key{day: t}, nil
}

// String returns the canonical DD-MM-YYYY form.
func (k Key) String() string { return k.day.Format(KeyLayout) }

// Time returns midnight UTC of the key's day.
func (k Key) Time() time.Time { return k.day }

// Equal reports whether k and other name the same day.
func (k Key) Equal(other Key) bool { return k.day.Equal(other.day) }

// Before reports whether k is an earlier day than other.
func (k Key) Before(other Key) bool { return k.day.Before(other.day) }

// sortable is YYYYMMDD; used where byte order must equal day order.
func (k Key) sortable() string { return k.day.Format("20060102") }

// MarshalText implements encoding.TextMarshaler.
func (k Key) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

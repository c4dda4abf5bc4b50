// Package recovery scans cached safeguard transactions for ones that belong
// to a wallet, identified by a watch list of output keys, key images and
// transaction ids.
package recovery

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Watchlist names what a wallet is looking for.
type Watchlist struct {
	Name       string   `yaml:"name"`
	OutputKeys []string `yaml:"output_keys"`
	KeyImages  []string `yaml:"key_images"`
	TxnIDs     []string `yaml:"txn_ids"`
}

// Validate implements config.Validator.
func (w Watchlist) Validate() error {
	if len(w.OutputKeys)+len(w.KeyImages)+len(w.TxnIDs) == 0 {
		return fmt.Errorf("watchlist: at least one of output_keys, key_images or txn_ids is required")
	}
	return validation.ValidateStruct(&w,
		validation.Field(&w.OutputKeys, validation.Each(validation.Required)),
		validation.Field(&w.KeyImages, validation.Each(validation.Required)),
		validation.Field(&w.TxnIDs, validation.Each(validation.Required)),
	)
}

// ParseWatchlist decodes a YAML watch list. Unknown keys are rejected so a
// typo cannot silently empty a list.
func ParseWatchlist(data []byte) (*Watchlist, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var w Watchlist
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("watchlist: decode: %w", err)
	}
	w.OutputKeys = normalize(w.OutputKeys)
	w.KeyImages = normalize(w.KeyImages)
	w.TxnIDs = normalize(w.TxnIDs)
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

// LoadWatchlist reads and parses the watch list at path.
func LoadWatchlist(path string) (*Watchlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("watchlist: read %s: %w", path, err)
	}
	return ParseWatchlist(data)
}

// normalize lowercases hex identifiers and drops duplicates.
func normalize(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

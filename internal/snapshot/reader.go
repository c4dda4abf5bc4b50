// Package snapshot reads cached safeguard snapshots back into transactions.
package snapshot

import (
	"fmt"
	"math/rand/v2"

	"github.com/starford/safeguard/internal/codec"
	"github.com/starford/safeguard/internal/models"
	"github.com/starford/safeguard/internal/storage"
)

// ShuffleFunc permutes n elements in place through swap.
type ShuffleFunc func(n int, swap func(i, j int))

// Reader returns the transactions of the latest cached snapshot.
type Reader struct {
	store   storage.Store
	shuffle ShuffleFunc
}

// NewReader creates a Reader. A nil shuffle uses math/rand/v2.
func NewReader(store storage.Store, shuffle ShuffleFunc) *Reader {
	if shuffle == nil {
		shuffle = rand.Shuffle
	}
	return &Reader{store: store, shuffle: shuffle}
}

// GetTransactions decodes the newest snapshot and returns its transactions,
// flattened across headers, in a uniformly random order.
//
// Errors wrap apperr.ErrNotFound when the cache is empty,
// apperr.ErrDeserialization when the file cannot be decoded and
// apperr.ErrIO when it cannot be read.
func (r *Reader) GetTransactions() ([]models.Transaction, error) {
	list, err := r.Latest()
	if err != nil {
		return nil, err
	}
	txs := list.Transactions()
	r.shuffle(len(txs), func(i, j int) { txs[i], txs[j] = txs[j], txs[i] })
	return txs, nil
}

// Latest decodes the newest snapshot without reordering it.
func (r *Reader) Latest() (models.HeaderList, error) {
	data, err := r.store.ReadLatest()
	if err != nil {
		return models.HeaderList{}, fmt.Errorf("snapshot: %w", err)
	}
	list, err := codec.Decode(data)
	if err != nil {
		return models.HeaderList{}, fmt.Errorf("snapshot: %w", err)
	}
	return list, nil
}

package badger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/lectern/storage"
)

// Ledger records settled identifiers in BadgerDB. Each key holds the time
// it was first settled.
type Ledger struct {
	backend *Backend
}

var _ storage.Ledger = (*Ledger)(nil)

// NewLedger creates a Ledger on backend.
func NewLedger(backend *Backend) *Ledger {
	return &Ledger{backend: backend}
}

// MarkSettled records key. The original timestamp is kept on repeat marks.
func (l *Ledger) MarkSettled(ctx context.Context, key string) error {
	return l.backend.Update(func(tx *badger.Txn) error {
		k := makeLedgerKey(key)
		_, err := tx.Get(k)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return tx.Set(k, storage.MarshalTimestamp(time.Now().UTC()))
	})
}

// SettledAt returns when key was settled. Returns storage.ErrNotFound if
// it never was.
func (l *Ledger) SettledAt(ctx context.Context, key string) (time.Time, error) {
	var ts time.Time
	err := l.backend.View(func(tx *badger.Txn) error {
		item, err := tx.Get(makeLedgerKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var err error
			ts, err = storage.UnmarshalTimestamp(val)
			return err
		})
	})
	return ts, err
}

// Settled returns every settled key.
func (l *Ledger) Settled(ctx context.Context) (map[string]struct{}, error) {
	settled := make(map[string]struct{})
	err := l.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(ledgerPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			key := strings.TrimPrefix(string(iter.Item().Key()), ledgerPrefix)
			settled[key] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

// Close is a no-op; the owner of the Backend closes it.
func (l *Ledger) Close() error {
	return nil
}

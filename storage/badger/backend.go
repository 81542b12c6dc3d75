package badger

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

const (
	maxConflictRetries = 5
	gcDiscardRatio     = 0.5
)

// Backend owns a BadgerDB instance shared by the vector index and the
// crawl ledger.
type Backend struct {
	db       *badger.DB
	inMemory bool
	logger   *slog.Logger
}

// badgerLoggerAdapter routes badger's internal logging onto slog.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

// Infof is demoted to debug; badger is chatty at info.
func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// BackendOption tunes the badger options before the database opens.
type BackendOption func(*badger.Options)

// WithSyncWrites makes every commit fsync before returning.
func WithSyncWrites(sync bool) BackendOption {
	return func(o *badger.Options) {
		o.SyncWrites = sync
	}
}

// WithCompression selects the block compression. Default is none.
func WithCompression(c options.CompressionType) BackendOption {
	return func(o *badger.Options) {
		o.Compression = c
	}
}

// OpenBackend opens the database under dirPath, creating the directory if
// needed. With inMemory set the path is ignored.
func OpenBackend(dirPath string, inMemory bool, opts ...BackendOption) (*Backend, error) {
	var bopts badger.Options
	if inMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := ensureDir(dirPath); err != nil {
			return nil, err
		}
		bopts = badger.DefaultOptions(dirPath)
	}

	logger := slog.Default().With("component", "badger")
	bopts.Logger = &badgerLoggerAdapter{logger: logger}
	bopts.Compression = options.None
	for _, opt := range opts {
		opt(&bopts)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %q: %w", dirPath, err)
	}
	logger.Debug("badger opened", "path", dirPath, "in_memory", inMemory)

	return &Backend{db: db, inMemory: inMemory, logger: logger}, nil
}

func ensureDir(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return os.MkdirAll(path, 0o755)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}

// View runs fn in a read-only transaction.
func (b *Backend) View(fn func(tx *badger.Txn) error) error {
	return b.db.View(fn)
}

// Update runs fn in a read-write transaction and commits it. Commits that
// lose a conflict are rerun a few times before the conflict is returned.
func (b *Backend) Update(fn func(tx *badger.Txn) error) error {
	var err error
	for range maxConflictRetries {
		err = b.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		b.logger.Debug("transaction conflict, retrying")
	}
	return err
}

// collectGarbage rewrites value log files until badger reports nothing
// left to reclaim.
func (b *Backend) collectGarbage() {
	if b.inMemory {
		return
	}
	for runs := 0; ; runs++ {
		if err := b.db.RunValueLogGC(gcDiscardRatio); err != nil {
			if !errors.Is(err, badger.ErrNoRewrite) {
				b.logger.Warn("value log gc failed", "err", err)
			}
			b.logger.Debug("value log gc finished", "rewrites", runs)
			return
		}
	}
}

// Close reclaims value log space and closes the database. Closing twice
// is a no-op.
func (b *Backend) Close() error {
	if b.db.IsClosed() {
		return nil
	}
	b.collectGarbage()
	return b.db.Close()
}

// IsClosed reports whether Close has run.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/poiesic/lectern/storage"
)

// FileLedger is an append-only text file holding one settled key per line.
// Appends are serialized and written with a single O_APPEND write each, so
// earlier lines are never rewritten.
type FileLedger struct {
	path    string
	mu      sync.Mutex
	file    *os.File
	settled map[string]struct{}
	logger  *slog.Logger
}

var _ storage.Ledger = (*FileLedger)(nil)

// OpenFileLedger opens or creates the ledger at path. A last line without
// a trailing newline is an interrupted append; it is dropped.
func OpenFileLedger(path string, logger *slog.Logger) (*FileLedger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	l := &FileLedger{
		path:   path,
		file:   file,
		logger: logger.With("component", "ledger", "path", path),
	}
	if err := l.load(); err != nil {
		file.Close()
		return nil, err
	}
	return l, nil
}

// load reads the settled keys and trims a torn tail.
func (l *FileLedger) load() error {
	data, err := io.ReadAll(io.NewSectionReader(l.file, 0, 1<<62))
	if err != nil {
		return fmt.Errorf("reading ledger: %w", err)
	}

	complete := data
	if i := bytes.LastIndexByte(data, '\n'); i < len(data)-1 {
		complete = data[:i+1]
		l.logger.Warn("dropping torn ledger line", "bytes", len(data)-len(complete))
		if err := l.file.Truncate(int64(len(complete))); err != nil {
			return fmt.Errorf("trimming ledger: %w", err)
		}
	}

	l.settled = parseLedger(complete)
	return nil
}

func parseLedger(data []byte) map[string]struct{} {
	settled := make(map[string]struct{})
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if key := strings.TrimSpace(scanner.Text()); key != "" {
			settled[key] = struct{}{}
		}
	}
	return settled
}

// MarkSettled appends key unless it is already recorded.
func (l *FileLedger) MarkSettled(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, "\r\n") {
		return fmt.Errorf("%w: ledger key %q", storage.ErrInvalidQuery, key)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return storage.ErrStorageClosed
	}
	if _, ok := l.settled[key]; ok {
		return nil
	}
	if _, err := l.file.WriteString(key + "\n"); err != nil {
		return fmt.Errorf("appending to ledger: %w", err)
	}
	l.settled[key] = struct{}{}
	return nil
}

// Settled returns a copy of the recorded keys.
func (l *FileLedger) Settled(ctx context.Context) (map[string]struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil, storage.ErrStorageClosed
	}
	out := make(map[string]struct{}, len(l.settled))
	for k := range l.settled {
		out[k] = struct{}{}
	}
	return out, nil
}

// Path returns the ledger file path.
func (l *FileLedger) Path() string {
	return l.path
}

// Close closes the file.
func (l *FileLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

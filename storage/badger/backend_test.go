package badger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "index")
	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	defer backend.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenBackend_PathIsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := OpenBackend(path, false)
	assert.Error(t, err)
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)

	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())

	// Closing twice is harmless.
	assert.NoError(t, backend.Close())
}

func TestBackend_UpdateAndView(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	require.NoError(t, backend.Update(func(tx *badger.Txn) error {
		return tx.Set([]byte("k"), []byte("v"))
	}))

	var got []byte
	require.NoError(t, backend.View(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte("k"))
		if err != nil {
			return err
		}
		got, err = item.ValueCopy(nil)
		return err
	}))
	assert.Equal(t, []byte("v"), got)

	failed := errors.New("abort")
	assert.ErrorIs(t, backend.Update(func(tx *badger.Txn) error {
		if err := tx.Set([]byte("k"), []byte("w")); err != nil {
			return err
		}
		return failed
	}), failed)

	require.NoError(t, backend.View(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte("k"))
		if err != nil {
			return err
		}
		got, err = item.ValueCopy(nil)
		return err
	}))
	assert.Equal(t, []byte("v"), got)
}

func TestBackend_ReopenWithOptions(t *testing.T) {
	dir := t.TempDir()
	backend, err := OpenBackend(dir, false, WithSyncWrites(true), WithCompression(options.ZSTD))
	require.NoError(t, err)
	require.NoError(t, backend.Update(func(tx *badger.Txn) error {
		return tx.Set([]byte("durable"), []byte("yes"))
	}))
	require.NoError(t, backend.Close())

	backend, err = OpenBackend(dir, false)
	require.NoError(t, err)
	defer backend.Close()

	assert.NoError(t, backend.View(func(tx *badger.Txn) error {
		_, err := tx.Get([]byte("durable"))
		return err
	}))
}

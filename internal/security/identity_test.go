package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensegate/internal/shared/testutil"
)

func TestIdentityStoreGetOrCreate(t *testing.T) {
	t.Run("creates and persists a new identity", func(t *testing.T) {
		logger, _ := testutil.NewTestLogger(t)
		path := filepath.Join(t.TempDir(), "device.id")
		store := NewIdentityStore(path, logger)

		id, err := store.GetOrCreate()
		require.NoError(t, err)
		require.Len(t, id, 64)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), id)
	})

	t.Run("returns the persisted identity unchanged", func(t *testing.T) {
		logger, _ := testutil.NewTestLogger(t)
		path := filepath.Join(t.TempDir(), "device.id")
		store := NewIdentityStore(path, logger)

		first, err := store.GetOrCreate()
		require.NoError(t, err)
		second, err := store.GetOrCreate()
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("trusts an existing file over fresh derivation", func(t *testing.T) {
		logger, _ := testutil.NewTestLogger(t)
		path := filepath.Join(t.TempDir(), "device.id")
		require.NoError(t, os.WriteFile(path, []byte("stored-identity\n"), 0600))

		id, err := NewIdentityStore(path, logger).GetOrCreate()
		require.NoError(t, err)
		assert.Equal(t, "stored-identity", id)
	})

	t.Run("regenerates over an empty file", func(t *testing.T) {
		logger, handler := testutil.NewTestLogger(t)
		path := filepath.Join(t.TempDir(), "device.id")
		require.NoError(t, os.WriteFile(path, []byte("  \n"), 0600))

		id, err := NewIdentityStore(path, logger).GetOrCreate()
		require.NoError(t, err)
		assert.Len(t, id, 64)
		assert.True(t, handler.ContainsMessage("identity file is empty"))
	})

	t.Run("propagates unreadable file errors", func(t *testing.T) {
		logger, _ := testutil.NewTestLogger(t)
		dir := t.TempDir()
		// The path is a directory, so the read fails with something other
		// than not-exist.
		store := NewIdentityStore(dir, logger)

		_, err := store.GetOrCreate()
		require.Error(t, err)
	})
}

func TestIdentityStoreReset(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	path := filepath.Join(t.TempDir(), "device.id")
	store := NewIdentityStore(path, logger)

	_, err := store.GetOrCreate()
	require.NoError(t, err)

	require.NoError(t, store.Reset())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Resetting an absent identity is not an error.
	assert.NoError(t, store.Reset())
}

package tool

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsFileExists(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "present.txt")
	require.NoError(t, os.WriteFile(filename, []byte("x"), 0o600))

	exists, err := IsFileExists(filename)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = IsFileExists(filepath.Join(dir, "missing.txt"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWriteFileAtomic(t *testing.T) {
	t.Run("creates the file", func(t *testing.T) {
		filename := filepath.Join(t.TempDir(), "doc.json")

		require.NoError(t, WriteFileAtomic(filename, []byte("[1,2]"), 0o640))

		data, err := os.ReadFile(filename)
		require.NoError(t, err)
		assert.Equal(t, "[1,2]", string(data))
	})

	t.Run("replaces previous content and leaves no temporary file", func(t *testing.T) {
		dir := t.TempDir()
		filename := filepath.Join(dir, "doc.json")
		require.NoError(t, os.WriteFile(filename, []byte("old content"), 0o640))

		require.NoError(t, WriteFileAtomic(filename, []byte("new"), 0o640))

		data, err := os.ReadFile(filename)
		require.NoError(t, err)
		assert.Equal(t, "new", string(data))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("fails when the folder does not exist", func(t *testing.T) {
		filename := filepath.Join(t.TempDir(), "missing", "doc.json")

		err := WriteFileAtomic(filename, []byte("x"), 0o640)
		assert.Error(t, err)
	})
}

func TestWriteFileAtomicIf(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "doc.json")
	require.NoError(t, os.WriteFile(filename, []byte("before"), 0o640))

	refused := errors.New("refused")
	err := WriteFileAtomicIf(filename, []byte("after"), 0o640, func() error { return refused })
	assert.ErrorIs(t, err, refused)

	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Equal(t, "before", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, WriteFileAtomicIf(filename, []byte("after"), 0o640, func() error { return nil }))
	data, err = os.ReadFile(filename)
	require.NoError(t, err)
	assert.Equal(t, "after", string(data))
}

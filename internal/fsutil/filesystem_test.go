package fsutil

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFileSystem_CreateVisibleOnClose(t *testing.T) {
	t.Parallel()

	fs := NewMemoryFileSystem()
	w, err := fs.Create("out/file.txt")
	require.NoError(t, err)

	_, err = w.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = w.Write([]byte("world"))
	require.NoError(t, err)

	// Not visible until Close.
	assert.False(t, fs.Exists("out/file.txt"))
	require.NoError(t, w.Close())

	data, err := fs.ReadFile("out/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestMemoryFileSystem_ReadMissing(t *testing.T) {
	t.Parallel()

	fs := NewMemoryFileSystem()
	_, err := fs.ReadFile("nope.txt")
	assert.Error(t, err)
}

func TestMemoryFileSystem_WriteFileAndExists(t *testing.T) {
	t.Parallel()

	fs := NewMemoryFileSystem()
	require.NoError(t, fs.WriteFile("a/b.txt", []byte("x"), 0o644))
	assert.True(t, fs.Exists("a/b.txt"))
	assert.False(t, fs.Exists("a/c.txt"))

	// ReadFile returns a copy, not the backing slice.
	data, err := fs.ReadFile("a/b.txt")
	require.NoError(t, err)
	data[0] = 'y'
	again, err := fs.ReadFile("a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "x", string(again))
}

func TestMemoryFileSystem_MkdirAll(t *testing.T) {
	t.Parallel()

	fs := NewMemoryFileSystem()
	require.NoError(t, fs.MkdirAll("a/b/c", 0o755))
	assert.True(t, fs.Exists("a/b/c"))
	assert.True(t, fs.Exists("a/b"))
	assert.True(t, fs.Exists("a"))
}

func TestMemoryFileSystem_Files(t *testing.T) {
	t.Parallel()

	fs := NewMemoryFileSystem()
	require.NoError(t, fs.WriteFile("one", nil, 0o644))
	require.NoError(t, fs.WriteFile("two", nil, 0o644))
	assert.ElementsMatch(t, []string{"one", "two"}, fs.Files())
}

func TestMemoryFileSystem_Concurrent(t *testing.T) {
	t.Parallel()

	fs := NewMemoryFileSystem()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := filepath.Join("dir", string(rune('a'+i)))
			assert.NoError(t, fs.WriteFile(name, []byte{byte(i)}, 0o644))
			_, err := fs.ReadFile(name)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Len(t, fs.Files(), 8)
}

func TestOSFileSystem_Roundtrip(t *testing.T) {
	t.Parallel()

	fs := OSFileSystem{}
	dir := t.TempDir()
	name := filepath.Join(dir, "sub", "file.txt")

	require.NoError(t, fs.MkdirAll(filepath.Dir(name), 0o755))
	w, err := fs.Create(name)
	require.NoError(t, err)
	_, err = w.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.True(t, fs.Exists(name))
	data, err := fs.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	require.NoError(t, fs.WriteFile(name, []byte("other"), os.FileMode(0o644)))
	data, err = fs.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "other", string(data))
}

func TestTimestamp(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 11, 3, 14, 5, 9, 0, time.UTC)
	assert.Equal(t, "20251103_140509", Timestamp(ts))
}

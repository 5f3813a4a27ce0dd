package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSFileSystem_CreateOpenStat(t *testing.T) {
	t.Parallel()
	fsys := OSFileSystem{}
	path := filepath.Join(t.TempDir(), "frames.jsonl")

	w, err := fsys.Create(path)
	require.NoError(t, err)
	_, err = io.WriteString(w, "{}\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	info, err := fsys.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Size())

	f, err := fsys.Open(path)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(data))

	_, err = fsys.Stat(filepath.Join(t.TempDir(), "missing"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestMemoryFileSystem_WriterVisibleAfterClose(t *testing.T) {
	t.Parallel()
	mfs := NewMemoryFileSystem()

	w, err := mfs.Create("/rec/a.jsonl")
	require.NoError(t, err)
	_, err = w.Write([]byte("line\n"))
	require.NoError(t, err)

	data, err := mfs.ReadFile("/rec/a.jsonl")
	require.NoError(t, err)
	assert.Empty(t, data, "data is not visible before Close")

	require.NoError(t, w.Close())
	data, err = mfs.ReadFile("/rec/./a.jsonl")
	require.NoError(t, err)
	assert.Equal(t, "line\n", string(data))

	info, err := mfs.Stat("/rec/a.jsonl")
	require.NoError(t, err)
	assert.Equal(t, "a.jsonl", info.Name())
	assert.Equal(t, int64(5), info.Size())
	assert.False(t, info.IsDir())
}

func TestMemoryFileSystem_OpenReadsSnapshot(t *testing.T) {
	t.Parallel()
	mfs := NewMemoryFileSystem()
	src := []byte("abc")
	mfs.WriteFile("x", src)
	src[0] = 'z'

	f, err := mfs.Open("x")
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Size())
	require.NoError(t, f.Close())
}

func TestMemoryFileSystem_Missing(t *testing.T) {
	t.Parallel()
	mfs := NewMemoryFileSystem()

	_, err := mfs.Open("nope")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = mfs.Stat("nope")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = mfs.ReadFile("nope")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestMemoryFileSystem_PathSpellings(t *testing.T) {
	t.Parallel()
	mfs := NewMemoryFileSystem()
	mfs.WriteFile("/data/../data/session.jsonl", []byte("x"))

	for _, name := range []string{"/data/session.jsonl", "data/session.jsonl", "./data/session.jsonl"} {
		data, err := mfs.ReadFile(name)
		require.NoError(t, err, name)
		assert.Equal(t, "x", string(data), name)
	}
}

var (
	_ FileSystem = OSFileSystem{}
	_ FileSystem = (*MemoryFileSystem)(nil)
)

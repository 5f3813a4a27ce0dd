// Package fsutil provides the filesystem abstraction used to read and write
// tensor recordings, with an in-memory implementation for tests.
package fsutil

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing/fstest"
)

// FileSystem is the subset of filesystem operations the recording adapters
// need. Use OSFileSystem in production and MemoryFileSystem in tests.
type FileSystem interface {
	Open(name string) (fs.File, error)
	Create(name string) (io.WriteCloser, error)
	Stat(name string) (fs.FileInfo, error)
}

// OSFileSystem is the host filesystem.
type OSFileSystem struct{}

func (OSFileSystem) Open(name string) (fs.File, error)          { return os.Open(name) }
func (OSFileSystem) Create(name string) (io.WriteCloser, error) { return os.Create(name) }
func (OSFileSystem) Stat(name string) (fs.FileInfo, error)      { return os.Stat(name) }

// MemoryFileSystem keeps files in a map. Absolute and relative spellings of
// the same path refer to the same file. Data written through Create becomes
// visible when the writer is closed.
type MemoryFileSystem struct {
	mu    sync.RWMutex
	files fstest.MapFS
}

// NewMemoryFileSystem creates an empty in-memory filesystem.
func NewMemoryFileSystem() *MemoryFileSystem {
	return &MemoryFileSystem{files: fstest.MapFS{}}
}

// key maps a host-style path onto an fs.FS path.
func key(name string) string {
	k := strings.TrimPrefix(filepath.ToSlash(filepath.Clean(name)), "/")
	if k == "" {
		return "."
	}
	return k
}

// WriteFile stores a copy of data under name.
func (m *MemoryFileSystem) WriteFile(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key(name)] = &fstest.MapFile{Data: bytes.Clone(data), Mode: 0o644}
}

// ReadFile returns a copy of the named file's contents.
func (m *MemoryFileSystem) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.files.ReadFile(key(name))
}

// Open opens the named file for reading. The returned file reads a snapshot
// of the contents at the time of the call.
func (m *MemoryFileSystem) Open(name string) (fs.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.files.Open(key(name))
}

// Create truncates the named file and returns a writer for its new contents.
func (m *MemoryFileSystem) Create(name string) (io.WriteCloser, error) {
	m.WriteFile(name, nil)
	return &memWriter{fs: m, name: name}, nil
}

// Stat describes the named file.
func (m *MemoryFileSystem) Stat(name string) (fs.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.files.Stat(key(name))
}

type memWriter struct {
	fs   *MemoryFileSystem
	name string
	buf  bytes.Buffer
}

func (w *memWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *memWriter) Close() error {
	w.fs.WriteFile(w.name, w.buf.Bytes())
	return nil
}

package fsops

import (
	"fmt"
	"sync"
)

// Mem is an in-memory FS implementation for deterministic tests.
type Mem struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool
}

var _ FS = (*Mem)(nil)

// NewMem creates an empty in-memory filesystem.
func NewMem() *Mem {
	return &Mem{files: make(map[string][]byte), dirs: make(map[string]bool)}
}

func (m *Mem) Exists(path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok, nil
}

func (m *Mem) Size(path string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[path]
	if !ok {
		return 0, false, nil
	}
	return int64(len(b)), true, nil
}

func (m *Mem) CreateDirAll(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[path] = true
	return nil
}

func (m *Mem) CreateFile(path string, size int64) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, size)
	m.files[path] = buf
	return &memFile{m: m, path: path}, nil
}

func (m *Mem) Rename(from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[from]
	if !ok {
		return fmt.Errorf("fsops/mem: rename: %q does not exist", from)
	}
	m.files[to] = b
	delete(m.files, from)
	return nil
}

func (m *Mem) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

// Put seeds a file directly, for test setup.
func (m *Mem) Put(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = content
}

type memFile struct {
	m    *Mem
	path string
}

func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	buf := f.m.files[f.path]
	end := off + int64(len(p))
	if end > int64(len(buf)) {
		grown := make([]byte, end)
		copy(grown, buf)
		buf = grown
	}
	copy(buf[off:end], p)
	f.m.files[f.path] = buf
	return len(p), nil
}

func (f *memFile) Close() error { return nil }

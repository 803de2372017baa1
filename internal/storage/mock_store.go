package storage

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/TheMichaelB/jcrypt/internal/models"
)

// MockStore is an in-memory FileStore for tests.
type MockStore struct {
	mu     sync.RWMutex
	files  map[string][]byte
	failOn map[string]models.ErrorKind
	writes int
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		files:  make(map[string][]byte),
		failOn: make(map[string]models.ErrorKind),
	}
}

// Put seeds a file.
func (m *MockStore) Put(path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.files[path] = append([]byte(nil), data...)
}

// Get returns a copy of a stored file.
func (m *MockStore) Get(path string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.files[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// FailOn makes every access to path fail with kind.
func (m *MockStore) FailOn(path string, kind models.ErrorKind) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failOn[path] = kind
}

// Paths returns every stored path, sorted.
func (m *MockStore) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Writes returns how many writes succeeded.
func (m *MockStore) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.writes
}

// ReadRaw retrieves file contents.
func (m *MockStore) ReadRaw(path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if kind, ok := m.failOn[path]; ok {
		return nil, models.NewPathError(kind, "read", path, errors.New("injected failure"))
	}

	data, ok := m.files[path]
	if !ok {
		return nil, models.NewPathError(models.KindNotFound, "read", path, fmt.Errorf("file not found: %s", path))
	}

	return append([]byte(nil), data...), nil
}

// ReadRecord reads and parses a record.
func (m *MockStore) ReadRecord(path string) (*models.EncryptedRecord, error) {
	data, err := m.ReadRaw(path)
	if err != nil {
		return nil, err
	}

	rec, err := models.ParseRecord(data)
	if err != nil {
		return nil, models.WithPath(err, path)
	}
	return rec, nil
}

// WriteRaw saves data to a file.
func (m *MockStore) WriteRaw(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if kind, ok := m.failOn[path]; ok {
		return models.NewPathError(kind, "write", path, errors.New("injected failure"))
	}

	m.files[path] = append([]byte(nil), data...)
	m.writes++
	return nil
}

// WriteRecord serializes and stores a record.
func (m *MockStore) WriteRecord(path string, rec *models.EncryptedRecord) error {
	data, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	return m.WriteRaw(path, data)
}

// Stat returns file information.
func (m *MockStore) Stat(path string) (FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.files[path]
	if !ok {
		return FileInfo{}, models.NewPathError(models.KindNotFound, "stat", path, fmt.Errorf("file not found: %s", path))
	}

	return FileInfo{
		Path:    path,
		Size:    int64(len(data)),
		Mode:    DefaultFileMode,
		ModTime: time.Now(),
	}, nil
}

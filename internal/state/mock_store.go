package state

import (
	"fmt"
	"sort"
	"sync"

	"github.com/TheMichaelB/jcrypt/internal/models"
)

// MockStore keeps runs in memory for testing.
type MockStore struct {
	mu      sync.RWMutex
	runs    map[string]*models.RunRecord
	SaveErr error
}

// NewMockStore creates a mock run store.
func NewMockStore() *MockStore {
	return &MockStore{
		runs: make(map[string]*models.RunRecord),
	}
}

// Load returns a copy of a stored run.
func (m *MockStore) Load(id string) (*models.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if rec, ok := m.runs[id]; ok {
		return cloneRun(rec), nil
	}

	return nil, ErrRunNotFound
}

// Save stores a copy of rec.
func (m *MockStore) Save(rec *models.RunRecord) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs[rec.ID] = cloneRun(rec)
	return nil
}

// Reset removes a run.
func (m *MockStore) Reset(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.runs, id)
	return nil
}

// List returns all run IDs.
func (m *MockStore) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.runs))
	for id := range m.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close closes the store (no-op for mock).
func (m *MockStore) Close() error {
	return nil
}

func cloneRun(rec *models.RunRecord) *models.RunRecord {
	cp := *rec
	cp.Files = append([]string(nil), rec.Files...)
	cp.Failures = append([]models.FailureRecord(nil), rec.Failures...)
	return &cp
}

package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/TheMichaelB/jcrypt/internal/events"
	"github.com/TheMichaelB/jcrypt/internal/models"
)

// JSONStore keeps one JSON document per run.
type JSONStore struct {
	baseDir string
	logger  *events.Logger

	mu sync.RWMutex
}

// NewJSONStore creates a JSON-based run store.
func NewJSONStore(baseDir string, logger *events.Logger) (*JSONStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	return &JSONStore{
		baseDir: baseDir,
		logger:  logger.WithField("component", "json_history_store"),
	}, nil
}

// Load reads a run from its JSON file, falling back to the backup when the file is corrupt.
func (s *JSONStore) Load(id string) (*models.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := checkID(id); err != nil {
		return nil, err
	}

	path := s.runPath(id)

	s.logger.WithFields(map[string]interface{}{
		"run_id": id,
		"path":   path,
	}).Debug("Loading run")

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read run file: %w", err)
	}

	rec, err := decodeRun(data)
	if err != nil {
		s.logger.WithError(err).WithField("run_id", id).Warn("Run file corrupt, trying backup")

		backup, berr := os.ReadFile(path + ".backup")
		if berr != nil {
			return nil, ErrRunCorrupt
		}
		if rec, berr = decodeRun(backup); berr != nil {
			return nil, ErrRunCorrupt
		}
		if rec.ID != id {
			return nil, ErrRunCorrupt
		}
	}

	return rec, nil
}

// Save writes a run atomically, keeping the previous version as a backup.
func (s *JSONStore) Save(rec *models.RunRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}
	if err := checkID(rec.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.runPath(rec.ID)

	s.logger.WithFields(map[string]interface{}{
		"run_id":    rec.ID,
		"completed": rec.Completed,
		"failed":    rec.Failed,
	}).Debug("Saving run")

	data, err := encodeRun(rec)
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+".backup"); err != nil {
			s.logger.WithError(err).Warn("Failed to create backup")
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if file, err := os.Open(tmpPath); err == nil {
		_ = file.Sync()
		file.Close()
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename run file: %w", err)
	}

	return nil
}

// Reset removes a run and its backup.
func (s *JSONStore) Reset(id string) error {
	if err := checkID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.WithField("run_id", id).Info("Removing run")

	path := s.runPath(id)
	_ = os.Remove(path)
	_ = os.Remove(path + ".backup")

	return nil
}

// List returns all stored run IDs.
func (s *JSONStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read history directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if filepath.Ext(name) == ".json" {
			ids = append(ids, strings.TrimSuffix(name, ".json"))
		}
	}
	sort.Strings(ids)

	return ids, nil
}

// Close releases resources.
func (s *JSONStore) Close() error {
	return nil
}

func (s *JSONStore) runPath(id string) string {
	return filepath.Join(s.baseDir, id+".json")
}

// encodeRun wraps rec with a checksum over the wrapper without the checksum set.
func encodeRun(rec *models.RunRecord) ([]byte, error) {
	wrapper := StoredRun{
		RunRecord:     rec,
		SchemaVersion: CurrentSchemaVersion,
		SavedAt:       time.Now().UTC(),
	}

	sum, err := wrapperChecksum(wrapper)
	if err != nil {
		return nil, err
	}
	wrapper.Checksum = sum

	data, err := json.MarshalIndent(wrapper, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal run with checksum: %w", err)
	}
	return data, nil
}

func decodeRun(data []byte) (*models.RunRecord, error) {
	var wrapper StoredRun
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parse run: %w", err)
	}
	if wrapper.RunRecord == nil {
		return nil, fmt.Errorf("parse run: empty document")
	}

	if wrapper.Checksum != "" {
		want := wrapper.Checksum
		wrapper.Checksum = ""
		got, err := wrapperChecksum(wrapper)
		if err != nil {
			return nil, err
		}
		if got != want {
			return nil, fmt.Errorf("checksum mismatch: expected %s, got %s", want, got)
		}
	}

	return wrapper.RunRecord, nil
}

func wrapperChecksum(w StoredRun) (string, error) {
	w.Checksum = ""
	data, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("marshal run for checksum: %w", err)
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// checkID keeps IDs usable as file names.
func checkID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("invalid run ID %q", id)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

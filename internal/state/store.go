package state

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/TheMichaelB/jcrypt/internal/config"
	"github.com/TheMichaelB/jcrypt/internal/events"
	"github.com/TheMichaelB/jcrypt/internal/models"
)

// Store persists run records.
type Store interface {
	// Save inserts or replaces the record with the same ID.
	Save(rec *models.RunRecord) error

	// Load retrieves a run by ID.
	Load(id string) (*models.RunRecord, error)

	// List returns all run IDs in ascending order.
	List() ([]string, error)

	// Reset removes a run.
	Reset(id string) error

	// Close releases resources.
	Close() error
}

// Errors
var (
	ErrRunNotFound = errors.New("run not found")
	ErrRunCorrupt  = errors.New("run file is corrupt")
)

// StoredRun wraps a record with store metadata.
type StoredRun struct {
	*models.RunRecord

	SchemaVersion int       `json:"schema_version"`
	SavedAt       time.Time `json:"saved_at"`
	Checksum      string    `json:"checksum,omitempty"`
}

// CurrentSchemaVersion for migrations.
const CurrentSchemaVersion = 1

// Open creates the history store selected by cfg.
func Open(cfg *config.HistoryConfig, logger *events.Logger) (Store, error) {
	switch cfg.Backend {
	case "json", "":
		return NewJSONStore(cfg.Dir, logger)
	case "sqlite":
		return NewSQLiteStore(filepath.Join(cfg.Dir, "history.db"), logger)
	default:
		return nil, fmt.Errorf("unknown history backend %q: %w", cfg.Backend, models.ErrInvalidConfiguration)
	}
}

// Migrate copies every run from src into dst. Runs that fail to load are skipped.
func Migrate(src, dst Store, logger *events.Logger) (int, error) {
	ids, err := src.List()
	if err != nil {
		return 0, fmt.Errorf("list runs: %w", err)
	}

	logger.WithField("count", len(ids)).Info("Migrating runs")

	copied := 0
	for _, id := range ids {
		rec, err := src.Load(id)
		if err != nil {
			logger.WithError(err).WithField("run_id", id).Error("Failed to load run")
			continue
		}

		if err := dst.Save(rec); err != nil {
			return copied, fmt.Errorf("save run %s: %w", id, err)
		}
		copied++
	}

	return copied, nil
}

package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/TheMichaelB/jcrypt/internal/events"
	"github.com/TheMichaelB/jcrypt/internal/models"
)

// SQLiteStore keeps runs and their failures in a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *events.Logger
}

// NewSQLiteStore opens or creates the database at dbPath.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "sqlite_history_store"),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

// initialize creates tables and indexes.
func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS runs (
        id TEXT PRIMARY KEY,
        mode TEXT NOT NULL,
        strategy TEXT NOT NULL,
        workers INTEGER NOT NULL,
        files TEXT NOT NULL,
        completed INTEGER NOT NULL DEFAULT 0,
        failed INTEGER NOT NULL DEFAULT 0,
        bytes INTEGER NOT NULL DEFAULT 0,
        elapsed_ns INTEGER NOT NULL DEFAULT 0,
        started_at_ns INTEGER NOT NULL,
        cancelled INTEGER NOT NULL DEFAULT 0,
        saved_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS run_failures (
        run_id TEXT NOT NULL,
        task_index INTEGER NOT NULL,
        path TEXT NOT NULL,
        kind TEXT NOT NULL,
        message TEXT NOT NULL,
        PRIMARY KEY (run_id, task_index),
        FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
    );

    CREATE INDEX IF NOT EXISTS idx_run_failures_run ON run_failures(run_id);

    CREATE TABLE IF NOT EXISTS schema_info (
        version INTEGER PRIMARY KEY
    );

    INSERT OR IGNORE INTO schema_info (version) VALUES (?);
    `

	if _, err := s.db.Exec(schema, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Load retrieves a run and its failures.
func (s *SQLiteStore) Load(id string) (*models.RunRecord, error) {
	s.logger.WithField("run_id", id).Debug("Loading run from SQLite")

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		rec       models.RunRecord
		mode      string
		files     string
		elapsed   int64
		startedAt int64
	)

	err = tx.QueryRow(`
        SELECT mode, strategy, workers, files, completed, failed, bytes, elapsed_ns, started_at_ns, cancelled
        FROM runs
        WHERE id = ?
    `, id).Scan(&mode, &rec.Strategy, &rec.Workers, &files, &rec.Completed, &rec.Failed,
		&rec.Bytes, &elapsed, &startedAt, &rec.Cancelled)

	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}

	rec.ID = id
	rec.Mode = models.Operation(mode)
	rec.Elapsed = time.Duration(elapsed)
	rec.StartedAt = time.Unix(0, startedAt).UTC()

	if err := json.Unmarshal([]byte(files), &rec.Files); err != nil {
		return nil, fmt.Errorf("decode files: %w", err)
	}

	rows, err := tx.Query(`
        SELECT task_index, path, kind, message
        FROM run_failures
        WHERE run_id = ?
        ORDER BY task_index
    `, id)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f models.FailureRecord
		if err := rows.Scan(&f.Index, &f.Path, &f.Kind, &f.Message); err != nil {
			return nil, fmt.Errorf("scan failure row: %w", err)
		}
		rec.Failures = append(rec.Failures, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failures: %w", err)
	}

	return &rec, nil
}

// Save inserts or replaces a run.
func (s *SQLiteStore) Save(rec *models.RunRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"run_id":    rec.ID,
		"completed": rec.Completed,
		"failed":    rec.Failed,
	}).Debug("Saving run to SQLite")

	files, err := json.Marshal(rec.Files)
	if err != nil {
		return fmt.Errorf("encode files: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
        INSERT INTO runs (id, mode, strategy, workers, files, completed, failed, bytes, elapsed_ns, started_at_ns, cancelled, saved_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(id) DO UPDATE SET
            mode = excluded.mode,
            strategy = excluded.strategy,
            workers = excluded.workers,
            files = excluded.files,
            completed = excluded.completed,
            failed = excluded.failed,
            bytes = excluded.bytes,
            elapsed_ns = excluded.elapsed_ns,
            started_at_ns = excluded.started_at_ns,
            cancelled = excluded.cancelled,
            saved_at = CURRENT_TIMESTAMP
    `, rec.ID, string(rec.Mode), rec.Strategy, rec.Workers, string(files), rec.Completed, rec.Failed,
		rec.Bytes, int64(rec.Elapsed), rec.StartedAt.UnixNano(), rec.Cancelled)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM run_failures WHERE run_id = ?", rec.ID); err != nil {
		return fmt.Errorf("delete old failures: %w", err)
	}

	if len(rec.Failures) > 0 {
		stmt, err := tx.Prepare(`
            INSERT INTO run_failures (run_id, task_index, path, kind, message)
            VALUES (?, ?, ?, ?, ?)
        `)
		if err != nil {
			return fmt.Errorf("prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, f := range rec.Failures {
			if _, err := stmt.Exec(rec.ID, f.Index, f.Path, f.Kind, f.Message); err != nil {
				return fmt.Errorf("insert failure %d: %w", f.Index, err)
			}
		}
	}

	return tx.Commit()
}

// Reset removes a run; its failures follow by cascade.
func (s *SQLiteStore) Reset(id string) error {
	s.logger.WithField("run_id", id).Info("Removing run from SQLite")

	if _, err := s.db.Exec("DELETE FROM runs WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}

	return nil
}

// List returns all run IDs.
func (s *SQLiteStore) List() ([]string, error) {
	rows, err := s.db.Query("SELECT id FROM runs ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run ID: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

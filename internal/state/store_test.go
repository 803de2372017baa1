package state_test

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/jcrypt/internal/config"
	"github.com/TheMichaelB/jcrypt/internal/events"
	"github.com/TheMichaelB/jcrypt/internal/models"
	"github.com/TheMichaelB/jcrypt/internal/state"
)

func testLogger() *events.Logger {
	var buf bytes.Buffer
	return events.NewTestLogger(events.DebugLevel, "json", &buf)
}

func sampleRun(id string, failed int) *models.RunRecord {
	rec := &models.RunRecord{
		ID:        id,
		Mode:      models.OpEncrypt,
		Strategy:  "pool",
		Workers:   4,
		Files:     []string{"a.txt", "b.txt", "c.txt", "d.txt"},
		Completed: 4 - failed,
		Failed:    failed,
		Bytes:     1234,
		Elapsed:   1500 * time.Millisecond,
		StartedAt: time.Date(2026, 10, 19, 9, 30, 0, 123456789, time.UTC),
	}
	for i := 0; i < failed; i++ {
		rec.Failures = append(rec.Failures, models.FailureRecord{
			Index:   i,
			Path:    rec.Files[i],
			Kind:    models.KindNotFound.String(),
			Message: fmt.Sprintf("read: NotFound %q", rec.Files[i]),
		})
	}
	return rec
}

func TestJSONStore(t *testing.T) {
	store, err := state.NewJSONStore(t.TempDir(), testLogger())
	require.NoError(t, err)
	defer store.Close()

	testStoreOperations(t, store)
}

func TestSQLiteStore(t *testing.T) {
	store, err := state.NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"), testLogger())
	require.NoError(t, err)
	defer store.Close()

	testStoreOperations(t, store)
}

func TestMockStore(t *testing.T) {
	testStoreOperations(t, state.NewMockStore())
}

func testStoreOperations(t *testing.T, store state.Store) {
	runID := "20261019-093000-aaaa"

	t.Run("load non-existent", func(t *testing.T) {
		_, err := store.Load(runID)
		assert.ErrorIs(t, err, state.ErrRunNotFound)
	})

	t.Run("save and load", func(t *testing.T) {
		rec := sampleRun(runID, 2)
		require.NoError(t, store.Save(rec))

		loaded, err := store.Load(runID)
		require.NoError(t, err)

		assert.Equal(t, rec.ID, loaded.ID)
		assert.Equal(t, rec.Mode, loaded.Mode)
		assert.Equal(t, rec.Strategy, loaded.Strategy)
		assert.Equal(t, rec.Workers, loaded.Workers)
		assert.Equal(t, rec.Files, loaded.Files)
		assert.Equal(t, rec.Completed, loaded.Completed)
		assert.Equal(t, rec.Failed, loaded.Failed)
		assert.Equal(t, rec.Bytes, loaded.Bytes)
		assert.Equal(t, rec.Elapsed, loaded.Elapsed)
		assert.True(t, rec.StartedAt.Equal(loaded.StartedAt))
		assert.Equal(t, rec.Failures, loaded.Failures)
	})

	t.Run("update existing", func(t *testing.T) {
		rec := sampleRun(runID, 0)
		rec.Cancelled = true
		require.NoError(t, store.Save(rec))

		loaded, err := store.Load(runID)
		require.NoError(t, err)
		assert.Equal(t, 4, loaded.Completed)
		assert.Empty(t, loaded.Failures)
		assert.True(t, loaded.Cancelled)
	})

	t.Run("reject invalid", func(t *testing.T) {
		assert.Error(t, store.Save(&models.RunRecord{}))

		bad := sampleRun("overcount", 0)
		bad.Completed = 10
		assert.Error(t, store.Save(bad))
	})

	t.Run("list runs", func(t *testing.T) {
		require.NoError(t, store.Save(sampleRun("20261018-120000-bbbb", 1)))

		ids, err := store.List()
		require.NoError(t, err)
		assert.Equal(t, []string{"20261018-120000-bbbb", runID}, ids)
	})

	t.Run("reset run", func(t *testing.T) {
		require.NoError(t, store.Reset(runID))

		_, err := store.Load(runID)
		assert.ErrorIs(t, err, state.ErrRunNotFound)

		loaded, err := store.Load("20261018-120000-bbbb")
		require.NoError(t, err)
		assert.Len(t, loaded.Failures, 1)
	})
}

func TestJSONStoreCorruption(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := state.NewJSONStore(tmpDir, testLogger())
	require.NoError(t, err)

	runID := "corrupt-test"
	require.NoError(t, store.Save(sampleRun(runID, 0)))

	path := filepath.Join(tmpDir, runID+".json")
	require.NoError(t, os.WriteFile(path, []byte("invalid json"), 0600))

	_, err = store.Load(runID)
	assert.ErrorIs(t, err, state.ErrRunCorrupt)
}

func TestJSONStoreChecksumTamper(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := state.NewJSONStore(tmpDir, testLogger())
	require.NoError(t, err)

	runID := "tamper-test"
	require.NoError(t, store.Save(sampleRun(runID, 0)))

	path := filepath.Join(tmpDir, runID+".json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	tampered := bytes.Replace(data, []byte(`"bytes": 1234`), []byte(`"bytes": 9999`), 1)
	require.NotEqual(t, data, tampered)
	require.NoError(t, os.WriteFile(path, tampered, 0600))

	_, err = store.Load(runID)
	assert.ErrorIs(t, err, state.ErrRunCorrupt)
}

func TestJSONStoreBackupRecovery(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := state.NewJSONStore(tmpDir, testLogger())
	require.NoError(t, err)
	defer store.Close()

	runID := "backup-test"

	require.NoError(t, store.Save(sampleRun(runID, 1)))
	require.NoError(t, store.Save(sampleRun(runID, 3)))

	loaded, err := store.Load(runID)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Failed)

	path := filepath.Join(tmpDir, runID+".json")
	require.NoError(t, os.WriteFile(path, []byte("corrupted"), 0600))

	recovered, err := store.Load(runID)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered.Failed, "backup holds the previous save")

	ids, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{runID}, ids, "backups are not listed")
}

func TestJSONStoreRejectsPathIDs(t *testing.T) {
	store, err := state.NewJSONStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	_, err = store.Load("../escape")
	assert.Error(t, err)
	assert.Error(t, store.Save(sampleRun("a/b", 0)))
	assert.Error(t, store.Reset(".."))
}

func TestMigrate(t *testing.T) {
	tmpDir := t.TempDir()
	logger := testLogger()

	jsonStore, err := state.NewJSONStore(filepath.Join(tmpDir, "json"), logger)
	require.NoError(t, err)
	defer jsonStore.Close()

	ids := []string{"run1", "run2", "run3"}
	for i, id := range ids {
		require.NoError(t, jsonStore.Save(sampleRun(id, i)))
	}

	sqliteStore, err := state.NewSQLiteStore(filepath.Join(tmpDir, "history.db"), logger)
	require.NoError(t, err)
	defer sqliteStore.Close()

	copied, err := state.Migrate(jsonStore, sqliteStore, logger)
	require.NoError(t, err)
	assert.Equal(t, 3, copied)

	migrated, err := sqliteStore.List()
	require.NoError(t, err)
	assert.Equal(t, ids, migrated)

	for i, id := range ids {
		rec, err := sqliteStore.Load(id)
		require.NoError(t, err)
		assert.Equal(t, i, rec.Failed)
		assert.Len(t, rec.Failures, i)
	}
}

func TestMigrateSaveError(t *testing.T) {
	src := state.NewMockStore()
	require.NoError(t, src.Save(sampleRun("run1", 0)))

	dst := state.NewMockStore()
	dst.SaveErr = errors.New("disk full")

	copied, err := state.Migrate(src, dst, testLogger())
	assert.Error(t, err)
	assert.Equal(t, 0, copied)
}

func TestOpen(t *testing.T) {
	tmpDir := t.TempDir()

	for _, backend := range []string{"json", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			cfg := &config.HistoryConfig{Enabled: true, Backend: backend, Dir: filepath.Join(tmpDir, backend)}
			require.NoError(t, os.MkdirAll(cfg.Dir, 0700))

			store, err := state.Open(cfg, testLogger())
			require.NoError(t, err)
			defer store.Close()

			require.NoError(t, store.Save(sampleRun("open-test", 0)))
			_, err = store.Load("open-test")
			assert.NoError(t, err)
		})
	}

	_, err := state.Open(&config.HistoryConfig{Backend: "redis"}, testLogger())
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
}

func TestLargeFailureSet(t *testing.T) {
	store, err := state.NewSQLiteStore(filepath.Join(t.TempDir(), "large.db"), testLogger())
	require.NoError(t, err)
	defer store.Close()

	rec := &models.RunRecord{ID: "large", Mode: models.OpDecrypt, Strategy: "lock", Workers: 8}
	for i := 0; i < 500; i++ {
		rec.Files = append(rec.Files, fmt.Sprintf("file-%04d.encrypted", i))
		rec.Failures = append(rec.Failures, models.FailureRecord{
			Index: i, Path: rec.Files[i], Kind: "ChecksumMismatch", Message: "checksum mismatch",
		})
	}
	rec.Failed = 500

	require.NoError(t, store.Save(rec))

	loaded, err := store.Load("large")
	require.NoError(t, err)
	require.Len(t, loaded.Failures, 500)
	assert.Equal(t, "file-0042.encrypted", loaded.Failures[42].Path)
}

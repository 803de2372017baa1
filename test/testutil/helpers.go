package testutil

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/jcrypt/internal/config"
	"github.com/TheMichaelB/jcrypt/internal/crypto"
	"github.com/TheMichaelB/jcrypt/internal/models"
)

// TestHelpers bundles a temp directory with file assertions.
type TestHelpers struct {
	t       *testing.T
	tempDir string
}

func NewTestHelpers(t *testing.T) *TestHelpers {
	return &TestHelpers{t: t, tempDir: t.TempDir()}
}

func (h *TestHelpers) TempDir() string {
	return h.tempDir
}

// AssertFileExists fails the test if path is missing.
func (h *TestHelpers) AssertFileExists(path string) {
	_, err := os.Stat(path)
	assert.NoError(h.t, err, "File should exist: %s", path)
}

// AssertRecordDecrypts reads the record at path and checks it opens to want under password.
func (h *TestHelpers) AssertRecordDecrypts(path, password string, want []byte) {
	raw, err := os.ReadFile(path)
	require.NoError(h.t, err)

	rec, err := models.ParseRecord(raw)
	require.NoError(h.t, err, "parse %s", path)

	clear, err := crypto.NewCodec().Decrypt(password, rec)
	require.NoError(h.t, err, "decrypt %s", path)
	assert.Equal(h.t, want, clear)
}

// TestTimeout provides timeout context for tests.
func TestTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

// TestContext creates a test context with reasonable timeout.
func TestContext() (context.Context, context.CancelFunc) {
	return TestTimeout(30 * time.Second)
}

// TestConfigWithDir creates a test configuration rooted at dataDir.
func TestConfigWithDir(dataDir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Crypt.Workers = 4
	cfg.Crypt.OutputDir = filepath.Join(dataDir, "out")
	cfg.History.Enabled = true
	cfg.History.Dir = filepath.Join(dataDir, "history")
	cfg.Log.Level = "debug"
	cfg.Log.Format = "json"
	cfg.Log.Color = false
	return cfg
}

// CompareFiles compares two files for equality.
func CompareFiles(t *testing.T, path1, path2 string) {
	t.Helper()

	content1, err := os.ReadFile(path1)
	require.NoError(t, err, "Failed to read %s", path1)

	content2, err := os.ReadFile(path2)
	require.NoError(t, err, "Failed to read %s", path2)

	assert.Equal(t, content1, content2, "Files should be identical")
}

// SkipIfShort skips test if testing.Short() is true.
func SkipIfShort(t *testing.T, reason string) {
	if testing.Short() {
		t.Skipf("Skipping test in short mode: %s", reason)
	}
}

// LogEntry is one decoded JSON log line.
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"msg"`
	Time    time.Time `json:"time"`
	Caller  string    `json:"caller"`
	RunID   string    `json:"run_id"`
	Source  string    `json:"source"`
}

// LogOutput collects JSON log lines written by a test logger.
type LogOutput struct {
	mu      sync.RWMutex
	entries []LogEntry
}

func NewLogOutput() *LogOutput {
	return &LogOutput{}
}

// Write decodes one log line. Lines that are not JSON are ignored.
func (lo *LogOutput) Write(p []byte) (n int, err error) {
	var entry LogEntry
	if err := json.Unmarshal(p, &entry); err == nil {
		lo.mu.Lock()
		lo.entries = append(lo.entries, entry)
		lo.mu.Unlock()
	}
	return len(p), nil
}

// Entries returns captured log entries.
func (lo *LogOutput) Entries() []LogEntry {
	lo.mu.RLock()
	defer lo.mu.RUnlock()

	return append([]LogEntry(nil), lo.entries...)
}

// HasLevel checks if any log entry has the specified level.
func (lo *LogOutput) HasLevel(level string) bool {
	for _, entry := range lo.Entries() {
		if entry.Level == level {
			return true
		}
	}
	return false
}

// HasMessage checks if any log entry contains the message.
func (lo *LogOutput) HasMessage(message string) bool {
	for _, entry := range lo.Entries() {
		if strings.Contains(entry.Message, message) {
			return true
		}
	}
	return false
}

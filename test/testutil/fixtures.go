package testutil

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/jcrypt/internal/events"
)

// NewTestLogger creates a logger for testing.
func NewTestLogger() *events.Logger {
	var buf bytes.Buffer
	return events.NewTestLogger(events.DebugLevel, "json", &buf)
}

// NewTestLoggerTo creates a debug JSON logger writing to w, for asserting on log lines.
func NewTestLoggerTo(w io.Writer) *events.Logger {
	return events.NewTestLogger(events.DebugLevel, "json", w)
}

// SampleFiles is a small mixed corpus used across batch tests.
func SampleFiles() map[string][]byte {
	binary := make([]byte, 4096)
	for i := range binary {
		binary[i] = byte(i)
	}

	return map[string][]byte{
		"notes.txt":      []byte("meeting at noon\nbring the report\n"),
		"empty.txt":      {},
		"block.txt":      []byte("12345678"),
		"image.bin":      binary,
		"sub/readme.md":  []byte("# readme\n\nnested file\n"),
		"unicode.txt":    []byte("naïve café ☕\n"),
		"large/data.csv": bytes.Repeat([]byte("id,value\n1,2\n"), 5000),
	}
}

// WriteFiles writes files under dir and returns their paths sorted by name.
func WriteFiles(t testing.TB, dir string, files map[string][]byte) []string {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	paths := make([]string, len(names))
	for i, name := range names {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, files[name], 0644))
		paths[i] = path
	}

	return paths
}

// GenerateFiles writes count random files of size bytes each.
func GenerateFiles(t testing.TB, dir string, count, size int) []string {
	t.Helper()

	files := make(map[string][]byte, count)
	for i := 0; i < count; i++ {
		data := make([]byte, size)
		_, err := rand.Read(data)
		require.NoError(t, err)
		files[fmt.Sprintf("file-%04d.dat", i)] = data
	}

	return WriteFiles(t, dir, files)
}

// SafeBuffer is a bytes.Buffer safe for concurrent writers.
type SafeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *SafeBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

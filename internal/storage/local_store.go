package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/TheMichaelB/jcrypt/internal/events"
	"github.com/TheMichaelB/jcrypt/internal/models"
)

// LocalStore implements FileStore on the host file system. Reads buffer the whole
// file; there is no streaming.
type LocalStore struct {
	logger *events.Logger

	maxFileSize int64 // 0 = unlimited
}

// NewLocalStore creates a local file store.
func NewLocalStore(logger *events.Logger) *LocalStore {
	return &LocalStore{
		logger: logger.WithField("component", "local_store"),
	}
}

// SetMaxFileSize sets the maximum readable file size. Zero disables the limit.
func (s *LocalStore) SetMaxFileSize(size int64) {
	s.maxFileSize = size
}

// ReadRaw retrieves file contents.
func (s *LocalStore) ReadRaw(path string) ([]byte, error) {
	const op = "read"

	if err := checkPath(path); err != nil {
		return nil, models.NewPathError(models.KindReadFailed, op, path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, models.NewPathError(openKind(err), op, path, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, models.NewPathError(models.KindReadFailed, op, path, err)
	}
	if stat.IsDir() {
		return nil, models.NewPathError(models.KindReadFailed, op, path, errors.New("is a directory"))
	}

	size := stat.Size()
	if s.maxFileSize > 0 && size > s.maxFileSize {
		return nil, models.NewPathError(models.KindReadFailed, op, path,
			fmt.Errorf("file too large: %d bytes (max: %d)", size, s.maxFileSize))
	}

	data, err := readFull(f, size)
	if err != nil {
		return nil, models.NewPathError(models.KindReadFailed, op, path, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"path": path,
		"size": len(data),
	}).Debug("Read file")

	return data, nil
}

// ReadRecord reads an encrypted record file.
func (s *LocalStore) ReadRecord(path string) (*models.EncryptedRecord, error) {
	data, err := s.ReadRaw(path)
	if err != nil {
		return nil, err
	}

	rec, err := models.ParseRecord(data)
	if err != nil {
		return nil, models.WithPath(err, path)
	}

	return rec, nil
}

// WriteRaw saves data to a file, replacing any previous content.
func (s *LocalStore) WriteRaw(path string, data []byte) error {
	const op = "write"

	if err := checkPath(path); err != nil {
		return models.NewPathError(models.KindWriteFailed, op, path, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"path": path,
		"size": len(data),
	}).Debug("Writing file")

	if parent := filepath.Dir(path); parent != "." {
		if err := os.MkdirAll(parent, 0755); err != nil {
			return models.NewPathError(models.KindWriteFailed, op, path, fmt.Errorf("create parent directory: %w", err))
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, DefaultFileMode)
	if err != nil {
		return models.NewPathError(models.KindWriteFailed, op, path, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return models.NewPathError(models.KindWriteFailed, op, path, err)
	}

	if err := f.Close(); err != nil {
		return models.NewPathError(models.KindWriteFailed, op, path, err)
	}

	return nil
}

// WriteRecord serializes rec and writes it to path.
func (s *LocalStore) WriteRecord(path string, rec *models.EncryptedRecord) error {
	if rec == nil {
		return models.NewPathError(models.KindWriteFailed, "write", path, errors.New("nil record"))
	}

	data, err := rec.MarshalBinary()
	if err != nil {
		return models.NewPathError(models.KindWriteFailed, "write", path, err)
	}

	return s.WriteRaw(path, data)
}

// Stat returns file information.
func (s *LocalStore) Stat(path string) (FileInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, models.NewPathError(openKind(err), "stat", path, err)
	}

	return FileInfo{
		Path:    path,
		Size:    stat.Size(),
		Mode:    stat.Mode(),
		ModTime: stat.ModTime(),
		IsDir:   stat.IsDir(),
	}, nil
}

// readFull reads until size bytes arrive or EOF. The file may change between stat and
// read, so the result length is whatever was actually read.
func readFull(r io.Reader, size int64) ([]byte, error) {
	buf := make([]byte, 0, size+1)

	for {
		if len(buf) == cap(buf) {
			buf = append(buf, 0)[:len(buf)]
		}

		n, err := r.Read(buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]

		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func openKind(err error) models.ErrorKind {
	if errors.Is(err, fs.ErrNotExist) {
		return models.KindNotFound
	}
	return models.KindReadFailed
}

// checkPath rejects paths the host cannot open.
func checkPath(path string) error {
	if path == "" {
		return errors.New("empty path")
	}

	if strings.ContainsRune(path, 0) {
		return errors.New("path contains null bytes")
	}

	if runtime.GOOS == "windows" {
		return validateWindowsPath(path)
	}

	return nil
}

var reservedNames = []string{"CON", "PRN", "AUX", "NUL", "COM1", "COM2", "COM3", "COM4",
	"COM5", "COM6", "COM7", "COM8", "COM9", "LPT1", "LPT2", "LPT3",
	"LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9"}

func validateWindowsPath(path string) error {
	base := filepath.Base(path)
	name := strings.ToUpper(strings.TrimSuffix(base, filepath.Ext(base)))

	for _, reserved := range reservedNames {
		if name == reserved {
			return fmt.Errorf("invalid path: contains reserved name '%s'", base)
		}
	}

	for _, char := range `<>"|?*` {
		if strings.ContainsRune(base, char) {
			return fmt.Errorf("invalid path: contains character '%c'", char)
		}
	}

	return nil
}

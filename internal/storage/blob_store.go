package storage

import (
	"os"
	"time"

	"github.com/TheMichaelB/jcrypt/internal/models"
)

// FileStore reads task inputs and writes task outputs.
type FileStore interface {
	// ReadRaw returns the entire content of a plain file.
	ReadRaw(path string) ([]byte, error)

	// ReadRecord reads and splits an encrypted record file.
	ReadRecord(path string) (*models.EncryptedRecord, error)

	// WriteRaw creates or truncates path and writes data.
	WriteRaw(path string, data []byte) error

	// WriteRecord writes the checksum header followed by the ciphertext.
	WriteRecord(path string, rec *models.EncryptedRecord) error

	// Stat returns file information.
	Stat(path string) (FileInfo, error)
}

// FileInfo contains file metadata.
type FileInfo struct {
	Path    string
	Size    int64
	Mode    os.FileMode
	ModTime time.Time
	IsDir   bool
}

// DefaultFileMode is applied to every written output.
const DefaultFileMode os.FileMode = 0644

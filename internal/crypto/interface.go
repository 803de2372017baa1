package crypto

import (
	"context"

	"github.com/TheMichaelB/jcrypt/internal/models"
)

// Codec turns a password and a clear buffer into an encrypted record and back.
type Codec interface {
	// Encrypt checksums clear and encrypts it under a key derived from password.
	Encrypt(password string, clear []byte) (*models.EncryptedRecord, error)

	// Decrypt recovers the clear buffer and verifies it against the record checksum.
	Decrypt(password string, record *models.EncryptedRecord) ([]byte, error)
}

// Cracker recovers a clear buffer without knowing the password.
type Cracker interface {
	Crack(ctx context.Context, record *models.EncryptedRecord) ([]byte, error)
}

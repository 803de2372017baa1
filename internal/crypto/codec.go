package crypto

import (
	"hash/crc32"

	"github.com/TheMichaelB/jcrypt/internal/models"
)

// PBECodec implements Codec with the legacy password-based DES scheme and a CRC-32 checksum.
// It holds no state and is safe for concurrent use.
type PBECodec struct{}

// NewCodec creates the legacy codec.
func NewCodec() Codec {
	return &PBECodec{}
}

// Checksum returns the IEEE CRC-32 of data, zero-extended to 64 bits.
func Checksum(data []byte) uint64 {
	return uint64(crc32.ChecksumIEEE(data))
}

// Encrypt checksums clear before encrypting it.
func (c *PBECodec) Encrypt(password string, clear []byte) (*models.EncryptedRecord, error) {
	km, err := deriveKey(password)
	if err != nil {
		return nil, models.NewError(models.KindBadPassword, "encrypt", err)
	}

	content, err := km.seal(clear)
	if err != nil {
		return nil, models.NewError(models.KindEncryptionFailed, "encrypt", err)
	}

	return &models.EncryptedRecord{
		Checksum: Checksum(clear),
		Content:  content,
	}, nil
}

// Decrypt fails with ChecksumMismatch when the cipher accepts the ciphertext
// but the result does not match the stored checksum. That is the only wrong-password signal.
func (c *PBECodec) Decrypt(password string, record *models.EncryptedRecord) ([]byte, error) {
	km, err := deriveKey(password)
	if err != nil {
		return nil, models.NewError(models.KindBadPassword, "decrypt", err)
	}

	clear, err := km.open(record.Content)
	if err != nil {
		return nil, models.NewError(models.KindDecryptionFailed, "decrypt", err)
	}

	if actual := Checksum(clear); actual != record.Checksum {
		return nil, &models.ChecksumError{Expected: record.Checksum, Actual: actual}
	}

	return clear, nil
}

package models

import (
	"encoding/binary"
	"fmt"
)

// RecordHeaderSize is the length of the big-endian checksum that prefixes every encrypted file.
const RecordHeaderSize = 8

// EncryptedRecord pairs ciphertext with the CRC-32 of its plaintext.
// Checksum only ever populates the low 32 bits.
type EncryptedRecord struct {
	Checksum uint64
	Content  []byte
}

// MarshalBinary serializes the record: checksum (8 bytes, big-endian) then ciphertext.
func (r *EncryptedRecord) MarshalBinary() ([]byte, error) {
	out := make([]byte, RecordHeaderSize+len(r.Content))
	binary.BigEndian.PutUint64(out[:RecordHeaderSize], r.Checksum)
	copy(out[RecordHeaderSize:], r.Content)
	return out, nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (r *EncryptedRecord) UnmarshalBinary(data []byte) error {
	if len(data) < RecordHeaderSize {
		return NewError(KindMalformedRecord, "parse record",
			fmt.Errorf("need at least %d bytes, have %d", RecordHeaderSize, len(data)))
	}

	r.Checksum = binary.BigEndian.Uint64(data[:RecordHeaderSize])
	r.Content = make([]byte, len(data)-RecordHeaderSize)
	copy(r.Content, data[RecordHeaderSize:])
	return nil
}

// ParseRecord decodes an encrypted file image.
func ParseRecord(data []byte) (*EncryptedRecord, error) {
	var r EncryptedRecord
	if err := r.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &r, nil
}

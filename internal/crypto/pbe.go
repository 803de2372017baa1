package crypto

import (
	"crypto/cipher"
	"crypto/des"
	"crypto/md5"
	"errors"
	"fmt"
)

// The legacy format derives its DES key with PKCS#5 v1.5 (PBKDF1, MD5) and
// encrypts with DES-CBC/PKCS5Padding, the scheme known as PBEWithMD5AndDES.
// It is weak by modern standards: 56-bit keys, a fixed salt and 20 iterations.
// The constants below must never change or existing .encrypted files become unreadable.
const (
	// Iterations is the MD5 iteration count of the key derivation.
	Iterations = 20

	// BlockSize is the DES block size; ciphertext is always a multiple of it.
	BlockSize = des.BlockSize
)

var legacySalt = [8]byte{0x37, 0x73, 0xf1, 0x2b, 0xff, 0x98, 0xd5, 0xa9}

var (
	errNotASCII   = errors.New("password is not printable ASCII")
	errBadLength  = errors.New("ciphertext length is not a positive multiple of the block size")
	errBadPadding = errors.New("invalid padding")
)

// keyMaterial is the DES key and CBC IV derived from one password.
type keyMaterial struct {
	key [8]byte
	iv  [8]byte
}

// passwordBytes applies the legacy key-spec encoding: one byte per character,
// each character restricted to printable ASCII.
func passwordBytes(password string) ([]byte, error) {
	out := make([]byte, 0, len(password))
	for _, r := range password {
		if r < 0x20 || r > 0x7e {
			return nil, errNotASCII
		}
		out = append(out, byte(r))
	}
	return out, nil
}

// deriveKey runs PBKDF1-MD5 over password||salt and splits the 16-byte digest into key and IV.
func deriveKey(password string) (*keyMaterial, error) {
	pw, err := passwordBytes(password)
	if err != nil {
		return nil, err
	}

	h := md5.New()
	h.Write(pw)
	h.Write(legacySalt[:])
	digest := h.Sum(nil)

	for i := 1; i < Iterations; i++ {
		sum := md5.Sum(digest)
		digest = sum[:]
	}

	var km keyMaterial
	copy(km.key[:], digest[:8])
	copy(km.iv[:], digest[8:16])
	return &km, nil
}

func (km *keyMaterial) block() (cipher.Block, error) {
	block, err := des.NewCipher(km.key[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return block, nil
}

// seal pads and encrypts clear in CBC mode.
func (km *keyMaterial) seal(clear []byte) ([]byte, error) {
	block, err := km.block()
	if err != nil {
		return nil, err
	}

	padded := pkcs5Pad(clear)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, km.iv[:]).CryptBlocks(out, padded)
	return out, nil
}

// open decrypts content in CBC mode and strips the padding.
func (km *keyMaterial) open(content []byte) ([]byte, error) {
	if len(content) == 0 || len(content)%BlockSize != 0 {
		return nil, errBadLength
	}

	block, err := km.block()
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(content))
	cipher.NewCBCDecrypter(block, km.iv[:]).CryptBlocks(out, content)
	return pkcs5Unpad(out)
}

func pkcs5Pad(data []byte) []byte {
	n := BlockSize - len(data)%BlockSize
	out := make([]byte, len(data)+n)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func pkcs5Unpad(data []byte) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > BlockSize || n > len(data) {
		return nil, errBadPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errBadPadding
		}
	}
	return data[:len(data)-n], nil
}

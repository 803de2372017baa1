package storage

import (
	"path/filepath"
	"strings"

	"github.com/TheMichaelB/jcrypt/internal/models"
)

const (
	// EncryptedSuffix marks encrypted record files.
	EncryptedSuffix = ".encrypted"

	// DecryptedSuffix is appended when a decrypted file has no suffix to strip.
	DecryptedSuffix = ".decrypted"
)

// ResolveOutputPath returns where the result of op on src is written. Record-producing
// operations always append EncryptedSuffix, so a re-encrypted X.encrypted becomes
// X.encrypted.encrypted. Decryption strips the suffix (case-insensitive) or appends
// DecryptedSuffix. A non-empty outputDir replaces the source directory.
func ResolveOutputPath(src string, op models.Operation, outputDir string) string {
	src = filepath.Clean(filepath.FromSlash(src))
	base := filepath.Base(src)

	if op.ProducesRecord() {
		base += EncryptedSuffix
	} else if stripped := trimEncryptedSuffix(base); stripped != base && stripped != "" {
		base = stripped
	} else {
		base += DecryptedSuffix
	}

	dir := filepath.Dir(src)
	if outputDir != "" {
		dir = filepath.Clean(filepath.FromSlash(outputDir))
	}

	return filepath.Join(dir, base)
}

func trimEncryptedSuffix(name string) string {
	if len(name) >= len(EncryptedSuffix) &&
		strings.EqualFold(name[len(name)-len(EncryptedSuffix):], EncryptedSuffix) {
		return name[:len(name)-len(EncryptedSuffix)]
	}
	return name
}

package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the codec, file store and distributor can report.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotFound
	KindReadFailed
	KindWriteFailed
	KindMalformedRecord
	KindBadPassword
	KindEncryptionFailed
	KindDecryptionFailed
	KindChecksumMismatch
	KindInvalidConfiguration
	KindNotImplemented
)

var kindNames = map[ErrorKind]string{
	KindUnknown:              "Unknown",
	KindNotFound:             "NotFound",
	KindReadFailed:           "ReadFailed",
	KindWriteFailed:          "WriteFailed",
	KindMalformedRecord:      "MalformedRecord",
	KindBadPassword:          "BadPassword",
	KindEncryptionFailed:     "EncryptionFailed",
	KindDecryptionFailed:     "DecryptionFailed",
	KindChecksumMismatch:     "ChecksumMismatch",
	KindInvalidConfiguration: "InvalidConfiguration",
	KindNotImplemented:       "NotImplemented",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Sentinel errors, one per kind. Match with errors.Is.
var (
	ErrNotFound             = errors.New("not found")
	ErrReadFailed           = errors.New("read failed")
	ErrWriteFailed          = errors.New("write failed")
	ErrMalformedRecord      = errors.New("malformed encrypted record")
	ErrBadPassword          = errors.New("bad password")
	ErrEncryptionFailed     = errors.New("encryption failed")
	ErrDecryptionFailed     = errors.New("decryption failed")
	ErrChecksumMismatch     = errors.New("checksum mismatch")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrNotImplemented       = errors.New("not implemented")
)

var kindSentinels = map[ErrorKind]error{
	KindNotFound:             ErrNotFound,
	KindReadFailed:           ErrReadFailed,
	KindWriteFailed:          ErrWriteFailed,
	KindMalformedRecord:      ErrMalformedRecord,
	KindBadPassword:          ErrBadPassword,
	KindEncryptionFailed:     ErrEncryptionFailed,
	KindDecryptionFailed:     ErrDecryptionFailed,
	KindChecksumMismatch:     ErrChecksumMismatch,
	KindInvalidConfiguration: ErrInvalidConfiguration,
	KindNotImplemented:       ErrNotImplemented,
}

// CryptError carries the kind of a failure together with the operation and path it hit.
type CryptError struct {
	Kind ErrorKind
	Op   string
	Path string
	Err  error
}

// NewError builds a CryptError without a path.
func NewError(kind ErrorKind, op string, err error) *CryptError {
	return &CryptError{Kind: kind, Op: op, Err: err}
}

// NewPathError builds a CryptError bound to a file path.
func NewPathError(kind ErrorKind, op, path string, err error) *CryptError {
	return &CryptError{Kind: kind, Op: op, Path: path, Err: err}
}

func (e *CryptError) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *CryptError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *CryptError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

// ChecksumError is returned when a decrypted buffer does not match the stored CRC-32.
// A wrong password and a corrupted file both end up here.
type ChecksumError struct {
	Path     string
	Expected uint64
	Actual   uint64
}

func (e *ChecksumError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("checksum mismatch for %s: expected %08x, got %08x", e.Path, e.Expected, e.Actual)
	}
	return fmt.Sprintf("checksum mismatch: expected %08x, got %08x", e.Expected, e.Actual)
}

func (e *ChecksumError) Is(target error) bool {
	return target == ErrChecksumMismatch
}

// KindOf extracts the ErrorKind of err, or KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var ce *CryptError
	if errors.As(err, &ce) {
		return ce.Kind
	}

	var cs *ChecksumError
	if errors.As(err, &cs) {
		return KindChecksumMismatch
	}

	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}

	return KindUnknown
}

// WithPath attaches a path to err when it is a CryptError or ChecksumError without one.
func WithPath(err error, path string) error {
	var ce *CryptError
	if errors.As(err, &ce) && ce.Path == "" {
		cp := *ce
		cp.Path = path
		return &cp
	}

	var cs *ChecksumError
	if errors.As(err, &cs) && cs.Path == "" {
		cp := *cs
		cp.Path = path
		return &cp
	}

	return err
}

package models

import (
	"bytes"
	"path/filepath"
)

// Operation is the transformation applied to one input file.
type Operation string

const (
	// OpEncrypt reads a plain file and writes an encrypted record.
	OpEncrypt Operation = "encrypt"

	// OpDecrypt reads an encrypted record and writes the plaintext.
	OpDecrypt Operation = "decrypt"

	// OpReencrypt decrypts with one password and encrypts the result with another.
	// The plaintext is only written when the task asks for it.
	OpReencrypt Operation = "reencrypt"

	// OpCrack recovers the plaintext without a password.
	OpCrack Operation = "crack"

	// OpCrackReencrypt cracks and then encrypts the recovered plaintext.
	OpCrackReencrypt Operation = "crack-reencrypt"
)

// ReadsRecord reports whether the source file is an encrypted record.
func (o Operation) ReadsRecord() bool {
	return o != OpEncrypt
}

// Cracks reports whether the plaintext is recovered without a password.
func (o Operation) Cracks() bool {
	return o == OpCrack || o == OpCrackReencrypt
}

// ProducesRecord reports whether the task output is an encrypted record.
func (o Operation) ProducesRecord() bool {
	return o == OpEncrypt || o == OpReencrypt || o == OpCrackReencrypt
}

// Reencrypts reports whether a record is decrypted or cracked and then encrypted again.
func (o Operation) Reencrypts() bool {
	return o.ReadsRecord() && o.ProducesRecord()
}

// Verb is the progressive form used in per-file log lines.
func (o Operation) Verb() string {
	switch o {
	case OpEncrypt:
		return "Encrypting"
	case OpDecrypt, OpReencrypt:
		return "Decrypting"
	default:
		return "Cracking"
	}
}

// Routing selects where a task's result goes.
type Routing int

const (
	// RouteStdout hands the result to the reporting collaborator.
	RouteStdout Routing = iota

	// RouteFile writes the result to Task.Output.
	RouteFile
)

func (r Routing) String() string {
	if r == RouteFile {
		return "file"
	}
	return "stdout"
}

// Task is one unit of work. Tasks are immutable once built.
type Task struct {
	Index     int       `json:"index"`
	Source    string    `json:"source"`
	Operation Operation `json:"operation"`
	Routing   Routing   `json:"routing"`
	Output    string    `json:"output,omitempty"` // resolved path when Routing == RouteFile

	// PlaintextOutput, when set, also receives the recovered plaintext of a re-encrypting task.
	PlaintextOutput string `json:"plaintext_output,omitempty"`
}

// Name returns the base name of the source file.
func (t *Task) Name() string {
	return filepath.Base(t.Source)
}

// sniffLen bounds how much of a buffer LooksBinary inspects.
const sniffLen = 8192

// LooksBinary guesses whether content is unsuitable for a terminal.
func LooksBinary(content []byte) bool {
	if len(content) == 0 {
		return false
	}

	head := content
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}

	if bytes.IndexByte(head, 0) != -1 {
		return true
	}

	control := 0
	for _, b := range head {
		if b < 32 && b != '\t' && b != '\n' && b != '\r' {
			control++
		}
	}

	// More than 30% control characters.
	return control*10 > len(head)*3
}

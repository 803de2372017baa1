package batch

import (
	"errors"
	"fmt"

	"github.com/TheMichaelB/jcrypt/internal/models"
	"github.com/TheMichaelB/jcrypt/internal/storage"
	"github.com/TheMichaelB/jcrypt/internal/workers"
)

// Request describes one batch invocation. An empty password means the option is not set.
type Request struct {
	Files           []string
	EncryptPassword string
	DecryptPassword string
	Crack           bool
	SaveToFile      bool
	OutputDir       string
	KeepPlaintext   bool // also save the intermediate plaintext when re-encrypting
	Workers         int
	Strategy        workers.Strategy
}

// Mode returns the operation every task in the batch performs. Decryption takes
// precedence over cracking; encryption then applies to the recovered plaintext.
func (r *Request) Mode() (models.Operation, error) {
	encrypt := r.EncryptPassword != ""

	switch {
	case r.DecryptPassword != "" && encrypt:
		return models.OpReencrypt, nil
	case r.DecryptPassword != "":
		return models.OpDecrypt, nil
	case r.Crack && encrypt:
		return models.OpCrackReencrypt, nil
	case r.Crack:
		return models.OpCrack, nil
	case encrypt:
		return models.OpEncrypt, nil
	default:
		return "", models.NewError(models.KindInvalidConfiguration, "batch",
			errors.New("one of encrypt, decrypt or crack is required"))
	}
}

// Validate checks the request before any task is built.
func (r *Request) Validate() error {
	if len(r.Files) == 0 {
		return models.NewError(models.KindInvalidConfiguration, "batch", errors.New("no input files"))
	}

	for i, f := range r.Files {
		if f == "" {
			return models.NewError(models.KindInvalidConfiguration, "batch", fmt.Errorf("file %d has an empty path", i))
		}
	}

	if r.Workers <= 0 {
		return models.NewError(models.KindInvalidConfiguration, "batch",
			fmt.Errorf("worker count must be positive, got %d", r.Workers))
	}

	mode, err := r.Mode()
	if err != nil {
		return err
	}

	if r.KeepPlaintext && (!r.SaveToFile || !mode.Reencrypts()) {
		return models.NewError(models.KindInvalidConfiguration, "batch",
			errors.New("keeping the plaintext needs --save and a decrypt or crack with encrypt"))
	}

	return nil
}

// BuildTasks resolves routing and output paths for every input file, in input order.
func BuildTasks(r *Request) ([]models.Task, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	mode, _ := r.Mode()

	tasks := make([]models.Task, len(r.Files))
	for i, src := range r.Files {
		t := models.Task{
			Index:     i,
			Source:    src,
			Operation: mode,
			Routing:   models.RouteStdout,
		}
		if r.SaveToFile {
			t.Routing = models.RouteFile
			t.Output = storage.ResolveOutputPath(src, mode, r.OutputDir)
			if r.KeepPlaintext {
				t.PlaintextOutput = storage.ResolveOutputPath(src, models.OpDecrypt, r.OutputDir)
			}
		}
		tasks[i] = t
	}

	return tasks, nil
}

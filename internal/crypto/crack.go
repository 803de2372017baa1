package crypto

import (
	"context"

	"github.com/TheMichaelB/jcrypt/internal/models"
)

type unimplementedCracker struct{}

// NewCracker returns the password-recovery extension point.
// No recovery algorithm exists yet, so every call fails with NotImplemented.
func NewCracker() Cracker {
	return unimplementedCracker{}
}

func (unimplementedCracker) Crack(ctx context.Context, record *models.EncryptedRecord) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, models.NewError(models.KindNotImplemented, "crack", nil)
}

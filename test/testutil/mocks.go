package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/TheMichaelB/jcrypt/internal/models"
)

// MockCodec mocks the password codec.
type MockCodec struct {
	mock.Mock
}

func NewMockCodec() *MockCodec {
	return &MockCodec{}
}

func (m *MockCodec) Encrypt(password string, clear []byte) (*models.EncryptedRecord, error) {
	args := m.Called(password, clear)
	if rec := args.Get(0); rec != nil {
		return rec.(*models.EncryptedRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCodec) Decrypt(password string, record *models.EncryptedRecord) ([]byte, error) {
	args := m.Called(password, record)
	if data := args.Get(0); data != nil {
		return data.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockCracker mocks password recovery.
type MockCracker struct {
	mock.Mock
}

func NewMockCracker() *MockCracker {
	return &MockCracker{}
}

func (m *MockCracker) Crack(ctx context.Context, record *models.EncryptedRecord) ([]byte, error) {
	args := m.Called(ctx, record)
	if data := args.Get(0); data != nil {
		return data.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

// AssertMockExpectations asserts all expectations on the given mocks.
func AssertMockExpectations(t mock.TestingT, mocks ...interface{}) {
	for _, m := range mocks {
		if mockObj, ok := m.(interface{ AssertExpectations(mock.TestingT) bool }); ok {
			mockObj.AssertExpectations(t)
		}
	}
}

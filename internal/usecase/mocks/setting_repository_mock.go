package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/zots0127/marketadmin/internal/domain/entities"
)

// MockSettingRepository is a mock implementation of SettingRepository
type MockSettingRepository struct {
	mock.Mock
}

// Get mocks the Get method
func (m *MockSettingRepository) Get(ctx context.Context, key string) (*entities.Setting, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Setting), args.Error(1)
}

// Set mocks the Set method
func (m *MockSettingRepository) Set(ctx context.Context, setting *entities.Setting) (*entities.Setting, error) {
	args := m.Called(ctx, setting)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Setting), args.Error(1)
}

// List mocks the List method
func (m *MockSettingRepository) List(ctx context.Context) ([]*entities.Setting, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Setting), args.Error(1)
}

// MockUploadSigner is a mock implementation of UploadSigner
type MockUploadSigner struct {
	mock.Mock
}

// SignUpload mocks the SignUpload method
func (m *MockUploadSigner) SignUpload(ctx context.Context, key, contentType string) (*entities.SignedUpload, error) {
	args := m.Called(ctx, key, contentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.SignedUpload), args.Error(1)
}

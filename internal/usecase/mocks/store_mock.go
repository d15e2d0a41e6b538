package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/zots0127/marketadmin/internal/domain/entities"
)

// MockEntityStore is a mock implementation of EntityStore
type MockEntityStore struct {
	mock.Mock
}

// ListAll mocks the ListAll method
func (m *MockEntityStore) ListAll(ctx context.Context, kind entities.Kind) ([]entities.Record, error) {
	args := m.Called(ctx, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entities.Record), args.Error(1)
}

// Upsert mocks the Upsert method
func (m *MockEntityStore) Upsert(ctx context.Context, kind entities.Kind, record entities.Record) error {
	args := m.Called(ctx, kind, record)
	return args.Error(0)
}

// IDField mocks the IDField method
func (m *MockEntityStore) IDField() string {
	args := m.Called()
	return args.String(0)
}

// MockHistoryRepository is a mock implementation of HistoryRepository
type MockHistoryRepository struct {
	mock.Mock
}

// Add mocks the Add method
func (m *MockHistoryRepository) Add(ctx context.Context, entry *entities.HistoryEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// List mocks the List method
func (m *MockHistoryRepository) List(ctx context.Context, limit int) ([]*entities.HistoryEntry, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.HistoryEntry), args.Error(1)
}

// Get mocks the Get method
func (m *MockHistoryRepository) Get(ctx context.Context, id string) (*entities.HistoryEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.HistoryEntry), args.Error(1)
}

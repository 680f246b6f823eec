// Package mocks provides mock implementations for testing
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/studiocms/service/internal/storage"
)

// MockStore is a mock implementation of storage.Store
type MockStore struct {
	mock.Mock
}

// Fetch mocks the Fetch method
func (m *MockStore) Fetch(ctx context.Context, id string) (*storage.Object, error) {
	args := m.Called(ctx, id)
	obj, _ := args.Get(0).(*storage.Object)
	return obj, args.Error(1)
}

// Upload mocks the Upload method
func (m *MockStore) Upload(ctx context.Context, req storage.UploadRequest) (*storage.Record, error) {
	args := m.Called(ctx, req)
	rec, _ := args.Get(0).(*storage.Record)
	return rec, args.Error(1)
}

var _ storage.Store = (*MockStore)(nil)

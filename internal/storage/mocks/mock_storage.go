package mocks

import (
	"context"

	"htmlurl/internal/model"
	"htmlurl/internal/storage"

	"github.com/stretchr/testify/mock"
)

type MockContentStore struct {
	mock.Mock
}

var _ storage.ContentStore = (*MockContentStore)(nil)

func (m *MockContentStore) Create(ctx context.Context, kind model.Kind, data []byte) (model.Artifact, error) {
	args := m.Called(ctx, kind, data)
	if f, ok := args.Get(0).(func(context.Context, model.Kind, []byte) model.Artifact); ok {
		return f(ctx, kind, data), args.Error(1)
	}
	return args.Get(0).(model.Artifact), args.Error(1)
}

func (m *MockContentStore) CreateWithID(ctx context.Context, id string, kind model.Kind, data []byte) (model.Artifact, error) {
	args := m.Called(ctx, id, kind, data)
	return args.Get(0).(model.Artifact), args.Error(1)
}

func (m *MockContentStore) Read(ctx context.Context, id string, kind model.Kind) ([]byte, model.Artifact, error) {
	args := m.Called(ctx, id, kind)
	var data []byte
	if b, ok := args.Get(0).([]byte); ok {
		data = b
	}
	return data, args.Get(1).(model.Artifact), args.Error(2)
}

func (m *MockContentStore) Stat(ctx context.Context, id string, kind model.Kind) (model.Artifact, error) {
	args := m.Called(ctx, id, kind)
	return args.Get(0).(model.Artifact), args.Error(1)
}

func (m *MockContentStore) Delete(ctx context.Context, id string, kind model.Kind) error {
	args := m.Called(ctx, id, kind)
	return args.Error(0)
}

func (m *MockContentStore) List(ctx context.Context) ([]model.Artifact, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Artifact), args.Error(1)
}

package mocks

import (
	"context"

	"htmlurl/internal/model"
	"htmlurl/internal/service"

	"github.com/stretchr/testify/mock"
)

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) Upload(ctx context.Context, p model.Payload) (*service.UploadResult, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.UploadResult), args.Error(1)
}

func (m *MockDocumentService) Open(ctx context.Context, id string, kind model.Kind) (*service.File, error) {
	args := m.Called(ctx, id, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.File), args.Error(1)
}

func (m *MockDocumentService) Stats(ctx context.Context) (*service.Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Stats), args.Error(1)
}

func (m *MockDocumentService) Health(ctx context.Context) *service.HealthStatus {
	args := m.Called(ctx)
	return args.Get(0).(*service.HealthStatus)
}

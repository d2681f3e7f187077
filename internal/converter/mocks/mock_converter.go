package mocks

import (
	"context"

	"htmlurl/internal/converter"

	"github.com/stretchr/testify/mock"
)

type MockConverter struct {
	mock.Mock
}

var _ converter.Converter = (*MockConverter)(nil)

func (m *MockConverter) Convert(ctx context.Context, id string, html []byte) converter.Result {
	args := m.Called(ctx, id, html)
	return args.Get(0).(converter.Result)
}

func (m *MockConverter) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"stegapi/internal/model"
	"stegapi/internal/service"
	"stegapi/internal/storage"
)

type MockStegoService struct {
	mock.Mock
}

func (m *MockStegoService) Hide(ctx context.Context, req service.HideRequest) (*service.HideResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.HideResult), args.Error(1)
}

func (m *MockStegoService) Extract(ctx context.Context, req service.ExtractRequest) (*model.ExtractionResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ExtractionResult), args.Error(1)
}

func (m *MockStegoService) ListOperations(ctx context.Context, limit, offset int) (*service.OperationListResult, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.OperationListResult), args.Error(1)
}

func (m *MockStegoService) OpenArchive(ctx context.Context, id string) (io.ReadCloser, storage.ObjectInfo, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Get(1).(storage.ObjectInfo), args.Error(2)
	}
	return args.Get(0).(io.ReadCloser), args.Get(1).(storage.ObjectInfo), args.Error(2)
}

func (m *MockStegoService) DeleteArchive(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

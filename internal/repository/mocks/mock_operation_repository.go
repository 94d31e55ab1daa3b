package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"stegapi/internal/model"
	"stegapi/internal/repository"
)

type MockOperationRepository struct {
	mock.Mock
}

func (m *MockOperationRepository) Create(ctx context.Context, op *model.Operation) (*model.Operation, error) {
	args := m.Called(ctx, op)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Operation), args.Error(1)
}

func (m *MockOperationRepository) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Operation], error) {
	args := m.Called(ctx, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.Operation]), args.Error(1)
}

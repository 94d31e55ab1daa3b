package repository

import (
	"context"

	"stegapi/internal/model"
)

// OperationRepository persists the audit trail of hide/extract calls.
// No business logic here, only persistence.
type OperationRepository interface {
	// Create inserts a new operation record and returns the stored row.
	Create(ctx context.Context, op *model.Operation) (*model.Operation, error)

	// List returns a page of operations, newest first, and the total row count.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.Operation], error)
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}

package postgres

import (
	"context"
	"database/sql"

	"stegapi/internal/model"
	"stegapi/internal/repository"
)

// OperationPostgres is a PostgreSQL implementation of repository.OperationRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type OperationPostgres struct {
	db *sql.DB
}

// NewOperationPostgres creates a new OperationPostgres repository.
func NewOperationPostgres(db *sql.DB) *OperationPostgres {
	return &OperationPostgres{db: db}
}

var _ repository.OperationRepository = (*OperationPostgres)(nil)

const operationColumns = `id, kind, outcome, request_id, width, height, envelope_bytes, time_locked, geo_locked, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperation(row rowScanner) (*model.Operation, error) {
	var op model.Operation
	if err := row.Scan(
		&op.ID,
		&op.Kind,
		&op.Outcome,
		&op.RequestID,
		&op.Width,
		&op.Height,
		&op.EnvelopeBytes,
		&op.TimeLocked,
		&op.GeoLocked,
		&op.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &op, nil
}

// Create inserts a new operation row and returns the stored record.
func (r *OperationPostgres) Create(ctx context.Context, op *model.Operation) (*model.Operation, error) {
	const q = `
		INSERT INTO stego_operations (` + operationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + operationColumns
	row := r.db.QueryRowContext(ctx, q,
		op.ID,
		op.Kind,
		op.Outcome,
		op.RequestID,
		op.Width,
		op.Height,
		op.EnvelopeBytes,
		op.TimeLocked,
		op.GeoLocked,
		op.CreatedAt,
	)
	return scanOperation(row)
}

// List returns operations using LIMIT/OFFSET pagination and a total count.
func (r *OperationPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Operation], error) {
	const qCount = `SELECT COUNT(*) FROM stego_operations`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `
		SELECT ` + operationColumns + `
		FROM stego_operations
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.QueryContext(ctx, qList, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Operation, 0)
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *op)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Operation]{
		Items: items,
		Total: total,
	}, nil
}

package database

import (
	"context"

	"github.com/google/uuid"
)

const createRun = `-- name: CreateRun :exec
INSERT INTO generation_runs (id, session_id, backend, model, created_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (id) DO NOTHING
`

type CreateRunParams struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	Backend   string
	Model     string
}

func (q *Queries) CreateRun(ctx context.Context, arg CreateRunParams) error {
	_, err := q.db.ExecContext(ctx, createRun,
		arg.ID,
		arg.SessionID,
		arg.Backend,
		arg.Model,
	)
	return err
}

const getRun = `-- name: GetRun :one
SELECT id, session_id, backend, model, created_at FROM generation_runs WHERE id=$1
`

func (q *Queries) GetRun(ctx context.Context, id uuid.UUID) (GenerationRun, error) {
	row := q.db.QueryRowContext(ctx, getRun, id)
	var i GenerationRun
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.Backend,
		&i.Model,
		&i.CreatedAt,
	)
	return i, err
}

package database

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

const upsertTaskStatus = `-- name: UpsertTaskStatus :exec
INSERT INTO generation_tasks (run_id, name, status, error_code, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (run_id, name)
DO UPDATE SET
    status = EXCLUDED.status,
    error_code = EXCLUDED.error_code,
    updated_at = NOW()
`

type UpsertTaskStatusParams struct {
	RunID     uuid.UUID
	Name      string
	Status    string
	ErrorCode sql.NullString
}

func (q *Queries) UpsertTaskStatus(ctx context.Context, arg UpsertTaskStatusParams) error {
	_, err := q.db.ExecContext(ctx, upsertTaskStatus,
		arg.RunID,
		arg.Name,
		arg.Status,
		arg.ErrorCode,
	)
	return err
}

const getTasksByRun = `-- name: GetTasksByRun :many
SELECT run_id, name, status, error_code, updated_at FROM generation_tasks WHERE run_id=$1 ORDER BY name
`

func (q *Queries) GetTasksByRun(ctx context.Context, runID uuid.UUID) ([]GenerationTask, error) {
	rows, err := q.db.QueryContext(ctx, getTasksByRun, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GenerationTask
	for rows.Next() {
		var i GenerationTask
		if err := rows.Scan(
			&i.RunID,
			&i.Name,
			&i.Status,
			&i.ErrorCode,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

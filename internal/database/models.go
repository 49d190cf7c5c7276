package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type GenerationRun struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	Backend   string
	Model     string
	CreatedAt time.Time
}

type GenerationTask struct {
	RunID     uuid.UUID
	Name      string
	Status    string
	ErrorCode sql.NullString
	UpdatedAt time.Time
}

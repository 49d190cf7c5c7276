// Package runstore records run and task status in Postgres. Generated text
// is never stored.
package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/muhammadolammi/coverletter/internal/database"
	"github.com/muhammadolammi/coverletter/internal/domain"
	"github.com/muhammadolammi/coverletter/internal/generation"
	"github.com/muhammadolammi/coverletter/internal/logger"
)

const writeTimeout = 5 * time.Second

// Queries is the subset of database.Queries the store uses.
type Queries interface {
	CreateRun(ctx context.Context, arg database.CreateRunParams) error
	UpsertTaskStatus(ctx context.Context, arg database.UpsertTaskStatusParams) error
	GetRun(ctx context.Context, id uuid.UUID) (database.GenerationRun, error)
	GetTasksByRun(ctx context.Context, runID uuid.UUID) ([]database.GenerationTask, error)
}

// RunStatus is a recorded run with the last state of each task.
type RunStatus struct {
	Run   database.GenerationRun
	Tasks []database.GenerationTask
}

// Store is both a generation.RunStarter and a generation.Observer.
type Store struct {
	q       Queries
	backend string
	db      *sql.DB
}

func New(q Queries, backend string) *Store {
	return &Store{q: q, backend: backend}
}

// Open connects to dbURL and checks the connection.
func Open(ctx context.Context, dbURL, backend string) (*Store, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("error opening db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error reaching db: %w", err)
	}
	s := New(database.New(db), backend)
	s.db = db
	return s, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// StartRun implements generation.RunStarter.
func (s *Store) StartRun(ctx context.Context, info generation.RunInfo) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	return s.q.CreateRun(ctx, database.CreateRunParams{
		ID:        info.RunID,
		SessionID: info.SessionID,
		Backend:   s.backend,
		Model:     info.Model,
	})
}

// OnTransition implements generation.Observer. Terminal states are written
// even when the task's context was cancelled.
func (s *Store) OnTransition(ctx context.Context, t generation.Transition) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	arg := database.UpsertTaskStatusParams{
		RunID:  t.RunID,
		Name:   t.Task,
		Status: string(t.To),
	}
	if t.Err != nil {
		arg.ErrorCode = sql.NullString{String: domain.Code(t.Err), Valid: true}
	}
	if err := s.q.UpsertTaskStatus(wctx, arg); err != nil {
		logger.FromContext(ctx).Warn("failed to record task status", "task", t.Task, "status", t.To, "error", err)
	}
}

// Run reads back a recorded run and its tasks, ordered by task name.
func (s *Store) Run(ctx context.Context, runID uuid.UUID) (RunStatus, error) {
	run, err := s.q.GetRun(ctx, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return RunStatus{}, domain.NewInvalidInputError(fmt.Sprintf("no run recorded with id %s", runID))
	}
	if err != nil {
		return RunStatus{}, fmt.Errorf("error getting run: %w", err)
	}
	tasks, err := s.q.GetTasksByRun(ctx, runID)
	if err != nil {
		return RunStatus{}, fmt.Errorf("error getting tasks: %w", err)
	}
	return RunStatus{Run: run, Tasks: tasks}, nil
}

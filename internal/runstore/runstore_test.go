package runstore

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"testing"

	"github.com/google/uuid"

	"github.com/muhammadolammi/coverletter/internal/database"
	"github.com/muhammadolammi/coverletter/internal/domain"
	"github.com/muhammadolammi/coverletter/internal/generation"
)

type fakeQueries struct {
	runs    []database.CreateRunParams
	tasks   []database.UpsertTaskStatusParams
	taskErr error
}

func (f *fakeQueries) CreateRun(_ context.Context, arg database.CreateRunParams) error {
	f.runs = append(f.runs, arg)
	return nil
}

func (f *fakeQueries) UpsertTaskStatus(ctx context.Context, arg database.UpsertTaskStatusParams) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	f.tasks = append(f.tasks, arg)
	return f.taskErr
}

func (f *fakeQueries) GetRun(_ context.Context, id uuid.UUID) (database.GenerationRun, error) {
	for _, r := range f.runs {
		if r.ID == id {
			return database.GenerationRun{ID: r.ID, SessionID: r.SessionID, Backend: r.Backend, Model: r.Model}, nil
		}
	}
	return database.GenerationRun{}, sql.ErrNoRows
}

// GetTasksByRun keeps the last write per task, like the upsert does.
func (f *fakeQueries) GetTasksByRun(_ context.Context, runID uuid.UUID) ([]database.GenerationTask, error) {
	latest := map[string]database.GenerationTask{}
	for _, arg := range f.tasks {
		if arg.RunID == runID {
			latest[arg.Name] = database.GenerationTask{RunID: arg.RunID, Name: arg.Name, Status: arg.Status, ErrorCode: arg.ErrorCode}
		}
	}
	var out []database.GenerationTask
	for _, task := range latest {
		out = append(out, task)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func TestStartRun(t *testing.T) {
	q := &fakeQueries{}
	s := New(q, "replicate")
	info := generation.RunInfo{RunID: uuid.New(), SessionID: uuid.New(), Model: "snowflake/snowflake-arctic-instruct"}

	if err := s.StartRun(context.Background(), info); err != nil {
		t.Fatal(err)
	}
	want := database.CreateRunParams{ID: info.RunID, SessionID: info.SessionID, Backend: "replicate", Model: info.Model}
	if len(q.runs) != 1 || q.runs[0] != want {
		t.Fatalf("runs = %+v", q.runs)
	}
}

func TestOnTransitionRecordsStatusAndCode(t *testing.T) {
	q := &fakeQueries{}
	s := New(q, "mock")
	runID := uuid.New()

	s.OnTransition(context.Background(), generation.Transition{RunID: runID, Task: "links", To: generation.StateDispatched})
	s.OnTransition(context.Background(), generation.Transition{
		RunID: runID, Task: "links", To: generation.StateFailed,
		Err: domain.NewRemoteStreamError("prediction failed", nil),
	})

	if len(q.tasks) != 2 {
		t.Fatalf("tasks = %+v", q.tasks)
	}
	if q.tasks[0].Status != "dispatched" || q.tasks[0].ErrorCode.Valid {
		t.Errorf("first = %+v", q.tasks[0])
	}
	if q.tasks[1].Status != "failed" || q.tasks[1].ErrorCode.String != "STREAM_TRANSPORT_FAILURE" {
		t.Errorf("second = %+v", q.tasks[1])
	}
}

func TestOnTransitionSurvivesCancelledTask(t *testing.T) {
	q := &fakeQueries{}
	s := New(q, "mock")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.OnTransition(ctx, generation.Transition{RunID: uuid.New(), Task: "cover_letter", To: generation.StateFailed, Err: context.Canceled})
	if len(q.tasks) != 1 {
		t.Fatal("terminal status must be written after cancellation")
	}
}

func TestOnTransitionLogsWriteFailure(t *testing.T) {
	q := &fakeQueries{taskErr: errors.New("relation does not exist")}
	s := New(q, "mock")
	s.OnTransition(context.Background(), generation.Transition{RunID: uuid.New(), Task: "links", To: generation.StateStreaming})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestRunReadsBackRecordedStatus(t *testing.T) {
	q := &fakeQueries{}
	s := New(q, "replicate")
	ctx := context.Background()
	info := generation.RunInfo{RunID: uuid.New(), SessionID: uuid.New(), Model: "snowflake/snowflake-arctic-instruct"}

	if err := s.StartRun(ctx, info); err != nil {
		t.Fatal(err)
	}
	for _, tr := range []generation.Transition{
		{RunID: info.RunID, Task: "links", To: generation.StateDispatched},
		{RunID: info.RunID, Task: "cover_letter", To: generation.StateDispatched},
		{RunID: info.RunID, Task: "links", To: generation.StateCompleted},
		{RunID: info.RunID, Task: "cover_letter", To: generation.StateFailed, Err: domain.NewAuthenticationError("invalid token", nil)},
	} {
		s.OnTransition(ctx, tr)
	}

	status, err := s.Run(ctx, info.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if status.Run.ID != info.RunID || status.Run.Backend != "replicate" || status.Run.Model != info.Model {
		t.Fatalf("run = %+v", status.Run)
	}
	if len(status.Tasks) != 2 {
		t.Fatalf("tasks = %+v", status.Tasks)
	}
	if got := status.Tasks[0]; got.Name != "cover_letter" || got.Status != "failed" || got.ErrorCode.String != "AUTHENTICATION_FAILURE" {
		t.Errorf("cover_letter = %+v", got)
	}
	if got := status.Tasks[1]; got.Name != "links" || got.Status != "completed" || got.ErrorCode.Valid {
		t.Errorf("links = %+v", got)
	}
}

func TestRunUnknownID(t *testing.T) {
	s := New(&fakeQueries{}, "mock")
	_, err := s.Run(context.Background(), uuid.New())
	if !domain.IsInvalidInput(err) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskState is the lifecycle of one generation task.
type TaskState string

const (
	StateIdle            TaskState = "idle"
	StateDispatched      TaskState = "dispatched"
	StateStreaming       TaskState = "streaming"
	StateCompleted       TaskState = "completed"
	StateFailed          TaskState = "failed"
	StateRejectedTooLong TaskState = "rejected_too_long"
)

// Terminal reports whether no further transition is possible.
func (s TaskState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateRejectedTooLong
}

// Idle -> Failed covers a gate that could not count tokens at all.
var transitions = map[TaskState][]TaskState{
	StateIdle:       {StateDispatched, StateRejectedTooLong, StateFailed},
	StateDispatched: {StateStreaming},
	StateStreaming:  {StateCompleted, StateFailed},
}

// Transition is reported to observers on every state change.
type Transition struct {
	RunID uuid.UUID
	Task  string
	From  TaskState
	To    TaskState
	Err   error
	At    time.Time
}

// Observer is notified of task transitions. Implementations must be safe
// for concurrent use; they are called from the task goroutines.
type Observer interface {
	OnTransition(ctx context.Context, t Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, t Transition)

func (f ObserverFunc) OnTransition(ctx context.Context, t Transition) { f(ctx, t) }

// Observers fans out to every non-nil observer in order.
type Observers []Observer

func (obs Observers) OnTransition(ctx context.Context, t Transition) {
	for _, o := range obs {
		if o != nil {
			o.OnTransition(ctx, t)
		}
	}
}

// machine enforces the allowed transitions of a single task. It is owned
// by one goroutine.
type machine struct {
	runID    uuid.UUID
	task     string
	state    TaskState
	observer Observer
}

func newMachine(runID uuid.UUID, task string, observer Observer) *machine {
	return &machine{runID: runID, task: task, state: StateIdle, observer: observer}
}

func (m *machine) to(ctx context.Context, next TaskState, err error) error {
	allowed := false
	for _, s := range transitions[m.state] {
		if s == next {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("task %s: illegal transition %s -> %s", m.task, m.state, next)
	}
	t := Transition{RunID: m.runID, Task: m.task, From: m.state, To: next, Err: err, At: time.Now()}
	m.state = next
	if m.observer != nil {
		m.observer.OnTransition(ctx, t)
	}
	return nil
}

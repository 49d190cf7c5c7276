package generation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/muhammadolammi/coverletter/internal/domain"
	"github.com/muhammadolammi/coverletter/internal/llm"
	"github.com/muhammadolammi/coverletter/internal/logger"
)

// Gate decides whether a prompt may be dispatched and returns its size.
type Gate interface {
	Check(prompt string) (int, error)
}

// Task is one prompt to generate.
type Task struct {
	Name   string
	Model  string
	Prompt string
	Params llm.Params
}

// Job binds a task to the sink that receives its output.
type Job struct {
	Task Task
	Sink Sink
}

// Result is the terminal outcome of a task.
type Result struct {
	Task         string
	State        TaskState
	PromptTokens int
	Fragments    int
	Err          error
	Duration     time.Duration
}

// Orchestrator runs jobs concurrently against one StreamClient.
type Orchestrator struct {
	client   llm.StreamClient
	gate     Gate
	observer Observer
	timeout  time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver reports every task transition to o.
func WithObserver(o Observer) Option {
	return func(orch *Orchestrator) { orch.observer = o }
}

// WithTimeout bounds each task's stream. Zero means no bound beyond ctx.
func WithTimeout(d time.Duration) Option {
	return func(orch *Orchestrator) { orch.timeout = d }
}

func NewOrchestrator(client llm.StreamClient, gate Gate, opts ...Option) *Orchestrator {
	o := &Orchestrator{client: client, gate: gate}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run starts one goroutine per job and blocks until every job is terminal.
// Jobs never cancel each other; results are in job order.
func (o *Orchestrator) Run(ctx context.Context, runID uuid.UUID, jobs ...Job) []Result {
	results := make([]Result, len(jobs))

	var wg sync.WaitGroup
	wg.Add(len(jobs))
	for i, job := range jobs {
		go func() {
			defer wg.Done()
			results[i] = o.runJob(ctx, runID, job)
		}()
	}
	wg.Wait()

	return results
}

func (o *Orchestrator) runJob(ctx context.Context, runID uuid.UUID, job Job) (res Result) {
	log := logger.FromContext(ctx).With("task", job.Task.Name)
	m := newMachine(runID, job.Task.Name, o.observer)
	start := time.Now()
	res.Task = job.Task.Name

	if job.Sink == nil {
		err := domain.NewInvalidInputError(fmt.Sprintf("task %s has no output sink", job.Task.Name))
		log.Error("generation task not started", "error", err)
		o.move(ctx, m, StateFailed, err)
		res.State, res.Err = StateFailed, err
		return res
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("task %s panicked: %v", job.Task.Name, r)
			log.Error("generation task panicked", "panic", r)
			if m.state == StateDispatched {
				o.move(ctx, m, StateStreaming, nil)
			}
			if !m.state.Terminal() {
				o.move(ctx, m, StateFailed, err)
			}
			res.State, res.Err = StateFailed, err
		}
		res.Duration = time.Since(start)
		closeSink(log, job.Sink)
	}()

	count, err := o.gate.Check(job.Task.Prompt)
	res.PromptTokens = count
	if err != nil {
		next := StateFailed
		if domain.IsPromptTooLong(err) {
			next = StateRejectedTooLong
		}
		log.Warn("prompt rejected before dispatch", "tokens", count, "error", err)
		o.move(ctx, m, next, err)
		job.Sink.Fail(err)
		res.State, res.Err = next, err
		return res
	}

	o.move(ctx, m, StateDispatched, nil)
	log.Info("dispatching generation", "model", job.Task.Model, "tokens", count)

	streamCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		streamCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	stream := o.client.Stream(streamCtx, llm.Request{
		Model:  job.Task.Model,
		Prompt: job.Task.Prompt,
		Params: job.Task.Params,
	})
	o.move(ctx, m, StateStreaming, nil)

	var streamErr error
	for fragment, err := range stream {
		if err != nil {
			streamErr = err
			break
		}
		job.Sink.Append(fragment)
		res.Fragments++
	}

	if streamErr != nil {
		log.Error("generation failed", "fragments", res.Fragments, "code", domain.Code(streamErr), "error", streamErr)
		o.move(ctx, m, StateFailed, streamErr)
		job.Sink.Fail(streamErr)
		res.State, res.Err = StateFailed, streamErr
		return res
	}

	log.Info("generation completed", "fragments", res.Fragments)
	o.move(ctx, m, StateCompleted, nil)
	res.State = StateCompleted
	return res
}

func closeSink(log *slog.Logger, s Sink) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("sink close panicked", "panic", r)
		}
	}()
	s.Close()
}

func (o *Orchestrator) move(ctx context.Context, m *machine, next TaskState, err error) {
	if terr := m.to(ctx, next, err); terr != nil {
		logger.FromContext(ctx).Error("task state machine violated", "error", terr)
	}
}

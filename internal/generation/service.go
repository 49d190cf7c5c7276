package generation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/muhammadolammi/coverletter/internal/llm"
	"github.com/muhammadolammi/coverletter/internal/logger"
	"github.com/muhammadolammi/coverletter/internal/prompt"
	"github.com/muhammadolammi/coverletter/internal/session"
)

// Sinks are the two output regions of a run.
type Sinks struct {
	Links       Sink
	CoverLetter Sink
}

// Report summarizes one run of the flow.
type Report struct {
	RunID     uuid.UUID
	SessionID uuid.UUID
	Started   time.Time
	Results   []Result
}

// Failed returns the results that did not complete.
func (r Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.State != StateCompleted {
			out = append(out, res)
		}
	}
	return out
}

// RunInfo identifies a run before its tasks start.
type RunInfo struct {
	RunID     uuid.UUID
	SessionID uuid.UUID
	Model     string
}

// RunStarter is told about every run before dispatch. A failing starter
// is logged and does not stop the run.
type RunStarter interface {
	StartRun(ctx context.Context, info RunInfo) error
}

// Service turns a session into the two concurrent generation tasks.
type Service struct {
	orch     *Orchestrator
	model    string
	params   llm.Params
	starters []RunStarter
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRunStarter registers rs to be called at the start of every run.
func WithRunStarter(rs RunStarter) ServiceOption {
	return func(s *Service) { s.starters = append(s.starters, rs) }
}

func NewService(orch *Orchestrator, model string, params llm.Params, opts ...ServiceOption) *Service {
	s := &Service{orch: orch, model: model, params: params}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate builds both prompts from st and streams them into sinks. Every
// call is a fresh run with fresh tasks. It returns an error only when the
// session is not ready; task failures are reported through the sinks and
// the Report.
func (s *Service) Generate(ctx context.Context, st *session.State, sinks Sinks) (Report, error) {
	if err := st.Validate(); err != nil {
		return Report{}, err
	}

	report := Report{RunID: uuid.New(), SessionID: st.ID, Started: time.Now()}
	ctx = logger.WithRunID(ctx, report.RunID.String())
	logger.FromContext(ctx).Info("generation run started", "session_id", st.ID, "model", s.model)

	info := RunInfo{RunID: report.RunID, SessionID: st.ID, Model: s.model}
	for _, rs := range s.starters {
		if err := rs.StartRun(ctx, info); err != nil {
			logger.FromContext(ctx).Warn("run starter failed", "error", err)
		}
	}

	report.Results = s.orch.Run(ctx, report.RunID,
		Job{
			Task: Task{
				Name:   string(prompt.KindLinks),
				Model:  s.model,
				Prompt: prompt.BuildLinksPrompt(st.CVText, st.OfferText),
				Params: s.params,
			},
			Sink: sinks.Links,
		},
		Job{
			Task: Task{
				Name:   string(prompt.KindCoverLetter),
				Model:  s.model,
				Prompt: prompt.BuildCoverLetterPrompt(st.CVText, st.OfferText),
				Params: s.params,
			},
			Sink: sinks.CoverLetter,
		},
	)

	logger.FromContext(ctx).Info("generation run finished", "failed", len(report.Failed()), "elapsed", time.Since(report.Started))
	return report, nil
}

// Package gemini streams completions from Gemini through an ADK agent
// runner, one throwaway agent session per generation.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	adkgemini "google.golang.org/adk/model/gemini"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/muhammadolammi/coverletter/internal/domain"
	"github.com/muhammadolammi/coverletter/internal/llm"
)

const (
	DefaultModel = "gemini-2.5-flash"
	appName      = "coverletter"
	userID       = "coverletter-cli"
)

// Client implements llm.StreamClient on top of the ADK runner.
type Client struct {
	modelName string
	model     model.LLM
	sessions  session.Service
}

// New creates a Client for modelName. The API key is checked lazily so a
// missing key surfaces per stream, like a bad token would.
func New(ctx context.Context, apiKey, modelName string) (*Client, error) {
	if modelName == "" {
		modelName = DefaultModel
	}
	c := &Client{
		modelName: modelName,
		sessions:  session.InMemoryService(),
	}
	if apiKey == "" {
		return c, nil
	}
	m, err := adkgemini.NewModel(ctx, modelName, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}
	c.model = m
	return c, nil
}

func (c *Client) newRunner(p llm.Params) (*runner.Runner, error) {
	temp := float32(p.Temperature)
	topP := float32(p.TopP)

	writer, err := llmagent.New(llmagent.Config{
		Name:        "writer",
		Model:       c.model,
		Description: "Writes cover letters and CV-to-offer key points",
		GenerateContentConfig: &genai.GenerateContentConfig{
			Temperature: &temp,
			TopP:        &topP,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	r, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          writer,
		SessionService: c.sessions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}
	return r, nil
}

// Stream implements llm.StreamClient. Partial SSE events are forwarded as
// fragments; the aggregated final event is only used when the model did
// not stream.
func (c *Client) Stream(ctx context.Context, req llm.Request) iter.Seq2[string, error] {
	if c.model == nil {
		return llm.Fail(domain.NewAuthenticationError("missing Gemini API key", nil))
	}
	if req.Model != "" && req.Model != c.modelName {
		slog.Debug("gemini backend ignores per-request model", "requested", req.Model, "using", c.modelName)
	}

	return func(yield func(string, error) bool) {
		r, err := c.newRunner(req.Params)
		if err != nil {
			yield("", err)
			return
		}

		created, err := c.sessions.Create(ctx, &session.CreateRequest{
			AppName:   appName,
			UserID:    userID,
			SessionID: uuid.NewString(),
		})
		if err != nil {
			yield("", fmt.Errorf("failed to create agent session: %w", err))
			return
		}
		defer func() {
			err := c.sessions.Delete(context.WithoutCancel(ctx), &session.DeleteRequest{
				AppName:   appName,
				UserID:    userID,
				SessionID: created.Session.ID(),
			})
			if err != nil {
				slog.Warn("failed to delete agent session", "session_id", created.Session.ID(), "error", err)
			}
		}()

		stream := r.Run(ctx, userID, created.Session.ID(), &genai.Content{
			Role:  "user",
			Parts: []*genai.Part{{Text: req.Prompt}},
		}, agent.RunConfig{StreamingMode: agent.StreamingModeSSE})

		sawPartial := false
		for ev, err := range stream {
			if err != nil {
				yield("", classify(err))
				return
			}
			if ev == nil {
				continue
			}
			if ev.ErrorCode != "" {
				yield("", domain.NewRemoteStreamError(fmt.Sprintf("the model failed mid-stream: %s %s", ev.ErrorCode, ev.ErrorMessage), nil))
				return
			}
			text := contentText(ev.Content)
			if ev.Partial {
				sawPartial = true
				if text != "" && !yield(text, nil) {
					return
				}
				continue
			}
			if !sawPartial && text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
	}
}

func contentText(content *genai.Content) string {
	if content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range content.Parts {
		if p != nil && !p.Thought {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// classify maps SDK failures onto the domain taxonomy.
func classify(err error) error {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 401 || apiErr.Code == 403 {
			return domain.NewAuthenticationError("the inference API rejected the key", err)
		}
		return domain.NewRemoteStreamError("the model request failed", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.NewConnectionError(err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "API key not valid"),
		strings.Contains(msg, "UNAUTHENTICATED"),
		strings.Contains(msg, "PERMISSION_DENIED"):
		return domain.NewAuthenticationError("the inference API rejected the key", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return domain.NewConnectionError(err)
	}
	return domain.NewRemoteStreamError("the model request failed", err)
}

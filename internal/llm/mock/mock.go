// Package mock is an in-process StreamClient for development and tests.
package mock

import (
	"context"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/muhammadolammi/coverletter/internal/llm"
)

// Client replays Fragments with an optional Delay between them. When Err is
// set it is yielded after FailAfter fragments.
type Client struct {
	Fragments []string
	Delay     time.Duration
	Err       error
	FailAfter int

	mu       sync.Mutex
	requests []llm.Request
}

// NewClient returns a client that streams text split on word boundaries,
// keeping the separating spaces.
func NewClient(text string, delay time.Duration) *Client {
	return &Client{Fragments: SplitWords(text), Delay: delay}
}

// Stream implements llm.StreamClient.
func (c *Client) Stream(ctx context.Context, req llm.Request) iter.Seq2[string, error] {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	return func(yield func(string, error) bool) {
		for i, f := range c.Fragments {
			if c.Err != nil && i == c.FailAfter {
				yield("", c.Err)
				return
			}
			if c.Delay > 0 {
				select {
				case <-ctx.Done():
					yield("", ctx.Err())
					return
				case <-time.After(c.Delay):
				}
			}
			if !yield(f, nil) {
				return
			}
		}
		if c.Err != nil && c.FailAfter >= len(c.Fragments) {
			yield("", c.Err)
		}
	}
}

// Requests returns a copy of every request seen so far.
func (c *Client) Requests() []llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llm.Request, len(c.requests))
	copy(out, c.requests)
	return out
}

// SplitWords cuts text into fragments that concatenate back to text.
func SplitWords(text string) []string {
	var out []string
	for len(text) > 0 {
		i := strings.IndexByte(text[1:], ' ')
		if i < 0 {
			out = append(out, text)
			break
		}
		out = append(out, text[:i+1])
		text = text[i+1:]
	}
	return out
}

// Router picks a Client by prompt content so one backend can serve both
// generation tasks in dev mode.
type Router struct {
	Routes  map[string]llm.StreamClient
	Default llm.StreamClient
}

// Stream implements llm.StreamClient.
func (r *Router) Stream(ctx context.Context, req llm.Request) iter.Seq2[string, error] {
	for marker, c := range r.Routes {
		if strings.Contains(req.Prompt, marker) {
			return c.Stream(ctx, req)
		}
	}
	return r.Default.Stream(ctx, req)
}

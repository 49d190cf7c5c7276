// Package replicate streams completions from the Replicate predictions API.
//
// A generation is two HTTP calls: a prediction is created with stream=true,
// then its server-sent event stream is read until the done event.
package replicate

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/network"
	"github.com/cloudwego/hertz/pkg/network/standard"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/muhammadolammi/coverletter/internal/domain"
	"github.com/muhammadolammi/coverletter/internal/llm"
)

const (
	DefaultBaseURL = "https://api.replicate.com"
	DefaultModel   = "snowflake/snowflake-arctic-instruct"
)

// Config configures a Client.
type Config struct {
	BaseURL     string
	Token       string
	DialTimeout time.Duration
}

// Client implements llm.StreamClient against Replicate.
type Client struct {
	client      *client.Client
	baseURL     string
	token       string
	dialTimeout time.Duration
}

// New creates a Client. An empty token is accepted; every stream then fails
// with an authentication error without touching the network.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}

	// Standard dialer: netpoll does not cope with long-lived streamed bodies.
	c, err := client.NewClient(
		client.WithDialTimeout(cfg.DialTimeout),
		client.WithMaxIdleConnDuration(60*time.Second),
		client.WithResponseBodyStream(true),
		client.WithDialer(standard.NewDialer()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &Client{
		client:      c,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		token:       cfg.Token,
		dialTimeout: cfg.DialTimeout,
	}, nil
}

type predictionInput struct {
	Prompt         string  `json:"prompt"`
	PromptTemplate string  `json:"prompt_template"`
	Temperature    float64 `json:"temperature"`
	TopP           float64 `json:"top_p"`
}

type predictionRequest struct {
	Version string          `json:"version,omitempty"`
	Input   predictionInput `json:"input"`
	Stream  bool            `json:"stream"`
}

type prediction struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  any    `json:"error"`
	URLs   struct {
		Get    string `json:"get"`
		Cancel string `json:"cancel"`
		Stream string `json:"stream"`
	} `json:"urls"`
}

type apiError struct {
	Detail string `json:"detail"`
	Title  string `json:"title"`
}

// Stream implements llm.StreamClient.
func (c *Client) Stream(ctx context.Context, req llm.Request) iter.Seq2[string, error] {
	if c.token == "" {
		return llm.Fail(domain.NewAuthenticationError("missing Replicate API token", nil))
	}

	return func(yield func(string, error) bool) {
		pred, err := c.createPrediction(ctx, req)
		if err != nil {
			yield("", err)
			return
		}
		slog.Debug("replicate prediction created", "id", pred.ID, "model", req.Model, "status", pred.Status)
		if pred.URLs.Stream == "" {
			yield("", domain.NewRemoteStreamError("prediction has no stream URL", nil))
			return
		}
		c.streamPrediction(ctx, pred.URLs.Stream, yield)
	}
}

// predictionURL maps "owner/name" to the model endpoint and "owner/name:version"
// to the version endpoint.
func (c *Client) predictionURL(model string) (string, string) {
	if _, version, ok := strings.Cut(model, ":"); ok {
		return c.baseURL + "/v1/predictions", version
	}
	return c.baseURL + "/v1/models/" + model + "/predictions", ""
}

func (c *Client) createPrediction(ctx context.Context, r llm.Request) (*prediction, error) {
	url, version := c.predictionURL(r.Model)
	bodyBytes, err := sonic.Marshal(predictionRequest{
		Version: version,
		Input: predictionInput{
			Prompt:         r.Prompt,
			PromptTemplate: r.Params.PromptTemplate,
			Temperature:    r.Params.Temperature,
			TopP:           r.Params.TopP,
		},
		Stream: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer func() {
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
	}()

	req.SetMethod(consts.MethodPost)
	req.SetRequestURI(url)
	req.Header.SetContentTypeBytes([]byte("application/json"))
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.SetBody(bodyBytes)

	if err := c.client.Do(ctx, req, resp); err != nil {
		return nil, domain.NewConnectionError(err)
	}

	status := resp.StatusCode()
	body := resp.Body()
	switch {
	case status == consts.StatusUnauthorized || status == consts.StatusForbidden:
		return nil, domain.NewAuthenticationError("the inference API rejected the token", statusError(status, body))
	case status < 200 || status >= 300:
		return nil, domain.NewRemoteStreamError("prediction request failed", statusError(status, body))
	}

	var pred prediction
	if err := sonic.Unmarshal(body, &pred); err != nil {
		return nil, domain.NewRemoteStreamError("malformed prediction response", err)
	}
	return &pred, nil
}

func statusError(status int, body []byte) error {
	var apiErr apiError
	if err := sonic.Unmarshal(body, &apiErr); err == nil && apiErr.Detail != "" {
		return fmt.Errorf("HTTP %d: %s", status, apiErr.Detail)
	}
	return fmt.Errorf("HTTP %d: %s", status, strings.TrimSpace(string(body)))
}

// connTracker dials through the standard dialer and keeps every connection
// it opens so a stalled stream can be cut from outside the reading goroutine.
type connTracker struct {
	network.Dialer

	mu    sync.Mutex
	conns []network.Conn
}

func (d *connTracker) DialConnection(n, address string, timeout time.Duration, tlsConfig *tls.Config) (network.Conn, error) {
	conn, err := d.Dialer.DialConnection(n, address, timeout, tlsConfig)
	if err != nil {
		return nil, err
	}
	d.track(conn)
	return conn, nil
}

func (d *connTracker) AddTLS(conn network.Conn, tlsConfig *tls.Config) (network.Conn, error) {
	conn, err := d.Dialer.AddTLS(conn, tlsConfig)
	if err != nil {
		return nil, err
	}
	d.track(conn)
	return conn, nil
}

func (d *connTracker) track(conn network.Conn) {
	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
}

// interrupt fails any read blocked on a tracked connection. The body stream
// then errors out and hertz closes the connection instead of recycling it.
func (d *connTracker) interrupt() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, conn := range d.conns {
		_ = conn.SetReadDeadline(time.Now())
	}
}

// newStreamClient returns a client owning its connections, one per stream.
func (c *Client) newStreamClient() (*client.Client, *connTracker, error) {
	tracker := &connTracker{Dialer: standard.NewDialer()}
	hc, err := client.NewClient(
		client.WithDialTimeout(c.dialTimeout),
		client.WithResponseBodyStream(true),
		client.WithDialer(tracker),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create stream client: %w", err)
	}
	return hc, tracker, nil
}

// streamPrediction reads the event stream on its own goroutine and hands
// events over a channel so a cancelled ctx unblocks the caller even while
// the body read is stuck. Leaving early interrupts the connection, so the
// reader never outlives the call.
func (c *Client) streamPrediction(ctx context.Context, url string, yield func(string, error) bool) {
	hc, tracker, err := c.newStreamClient()
	if err != nil {
		yield("", domain.NewConnectionError(err))
		return
	}
	defer hc.CloseIdleConnections()
	stop := context.AfterFunc(ctx, tracker.interrupt)
	defer stop()

	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()

	req.SetMethod(consts.MethodGet)
	req.SetRequestURI(url)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Authorization", "Bearer "+c.token)

	if err := hc.Do(ctx, req, resp); err != nil {
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
		yield("", domain.NewConnectionError(err))
		return
	}

	if status := resp.StatusCode(); status != consts.StatusOK {
		// the body belongs to the pooled response; read it before release
		serr := statusError(status, resp.Body())
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
		if status == consts.StatusUnauthorized || status == consts.StatusForbidden {
			yield("", domain.NewAuthenticationError("the inference API rejected the token", serr))
			return
		}
		yield("", domain.NewRemoteStreamError("stream request failed", serr))
		return
	}

	var body io.Reader = resp.BodyStream()
	if body == nil {
		body = strings.NewReader(string(resp.Body()))
	}

	events := make(chan event, 16)
	errCh := make(chan error, 1)
	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer func() {
			close(events)
			_ = resp.CloseBodyStream()
			protocol.ReleaseRequest(req)
			protocol.ReleaseResponse(resp)
			close(exited)
		}()

		errCh <- readEvents(body, func(ev event) bool {
			select {
			case events <- ev:
				return true
			case <-done:
				return false
			}
		})
	}()

	defer func() {
		close(done)
		tracker.interrupt()
		<-exited
	}()

	for {
		select {
		case <-ctx.Done():
			yield("", domain.NewConnectionError(ctx.Err()))
			return
		case ev, ok := <-events:
			if !ok {
				if err := <-errCh; err != nil {
					yield("", domain.NewRemoteStreamError("stream interrupted", err))
					return
				}
				yield("", domain.NewRemoteStreamError("stream ended without a done event", nil))
				return
			}
			fragment, finished, err := interpret(ev)
			if err != nil {
				yield("", err)
				return
			}
			if finished {
				return
			}
			if fragment != "" && !yield(fragment, nil) {
				return
			}
		}
	}
}

type doneEvent struct {
	Reason string `json:"reason"`
}

// interpret maps one server-sent event to a fragment, the end of the
// stream, or a remote failure.
func interpret(ev event) (fragment string, finished bool, err error) {
	switch ev.Name {
	case "output", "message", "":
		return ev.Data, false, nil
	case "error":
		var apiErr apiError
		msg := strings.TrimSpace(ev.Data)
		if uerr := sonic.UnmarshalString(ev.Data, &apiErr); uerr == nil && apiErr.Detail != "" {
			msg = apiErr.Detail
		}
		return "", false, domain.NewRemoteStreamError("the model failed mid-stream: "+msg, nil)
	case "done":
		var d doneEvent
		if strings.TrimSpace(ev.Data) != "" {
			_ = sonic.UnmarshalString(ev.Data, &d)
		}
		switch d.Reason {
		case "error":
			return "", false, domain.NewRemoteStreamError("the prediction failed", nil)
		case "canceled":
			return "", false, domain.NewRemoteStreamError("the prediction was canceled", nil)
		}
		return "", true, nil
	default:
		return "", false, nil
	}
}

package replicate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/muhammadolammi/coverletter/internal/domain"
	"github.com/muhammadolammi/coverletter/internal/llm"
)

const testToken = "r8_0123456789abcdef0123456789abcdef01234"

// fakeReplicate serves the prediction endpoint and one SSE stream.
func fakeReplicate(t *testing.T, streamBody string) (*httptest.Server, *predictionRequest) {
	t.Helper()
	var got predictionRequest
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/v1/models/snowflake/snowflake-arctic-instruct/predictions", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"title":"Unauthenticated","detail":"You did not pass a valid authentication token"}`)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id":"p1","status":"starting","urls":{"stream":"%s/stream/p1"}}`, srv.URL)
	})
	mux.HandleFunc("/stream/p1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, chunk := range strings.SplitAfter(streamBody, "\n\n") {
			fmt.Fprint(w, chunk)
			if flusher != nil {
				flusher.Flush()
			}
		}
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &got
}

func newTestClient(t *testing.T, baseURL, token string) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: baseURL, Token: token, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func drain(c llm.StreamClient, ctx context.Context) (string, error) {
	var b strings.Builder
	for f, err := range c.Stream(ctx, llm.Request{Model: DefaultModel, Prompt: "user\nhi\nassistant\n", Params: llm.DefaultParams()}) {
		if err != nil {
			return b.String(), err
		}
		b.WriteString(f)
	}
	return b.String(), nil
}

func TestStreamHappyPath(t *testing.T) {
	srv, got := fakeReplicate(t, "event: output\ndata: Hel\n\nevent: output\ndata: lo\n\nevent: output\ndata:  world\n\nevent: done\ndata: {}\n\n")
	c := newTestClient(t, srv.URL, testToken)

	text, err := drain(c, context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Hello world" {
		t.Fatalf("text = %q, want %q", text, "Hello world")
	}
	if !got.Stream || got.Input.PromptTemplate != "{prompt}" || got.Input.Temperature != 0.3 || got.Input.TopP != 0.9 {
		t.Fatalf("unexpected request body: %+v", *got)
	}
	if got.Input.Prompt != "user\nhi\nassistant\n" {
		t.Fatalf("prompt was altered: %q", got.Input.Prompt)
	}
}

func TestStreamRemoteErrorMidStream(t *testing.T) {
	srv, _ := fakeReplicate(t, "event: output\ndata: Dear\n\nevent: error\ndata: {\"detail\":\"model crashed\"}\n\n")
	c := newTestClient(t, srv.URL, testToken)

	text, err := drain(c, context.Background())
	if text != "Dear" {
		t.Fatalf("text before failure = %q", text)
	}
	if !domain.IsStreamTransportFailure(err) || domain.IsAuthenticationFailure(err) {
		t.Fatalf("expected a remote stream failure, got %v", err)
	}
}

func TestStreamEndsWithoutDone(t *testing.T) {
	srv, _ := fakeReplicate(t, "event: output\ndata: partial\n\n")
	c := newTestClient(t, srv.URL, testToken)

	_, err := drain(c, context.Background())
	if !domain.IsStreamTransportFailure(err) {
		t.Fatalf("expected a transport failure, got %v", err)
	}
}

func TestStreamBadToken(t *testing.T) {
	srv, _ := fakeReplicate(t, "")
	c := newTestClient(t, srv.URL, "r8_wrong")

	_, err := drain(c, context.Background())
	if !domain.IsAuthenticationFailure(err) {
		t.Fatalf("expected authentication failure, got %v", err)
	}
}

func TestStreamMissingToken(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1", "")
	_, err := drain(c, context.Background())
	if !domain.IsAuthenticationFailure(err) {
		t.Fatalf("expected authentication failure, got %v", err)
	}
}

func TestStreamConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url, testToken)
	_, err := drain(c, context.Background())
	if !domain.IsStreamTransportFailure(err) || !strings.Contains(err.Error(), domain.ErrConnection.Error()) {
		t.Fatalf("expected a connection failure, got %v", err)
	}
}

func TestStreamStopsOnContextTimeout(t *testing.T) {
	block := make(chan struct{})
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/v1/models/snowflake/snowflake-arctic-instruct/predictions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id":"p2","urls":{"stream":"%s/stream/p2"}}`, srv.URL)
	})
	mux.HandleFunc("/stream/p2", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: output\ndata: slow\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-block:
		case <-r.Context().Done():
		}
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()
	defer close(block)

	c := newTestClient(t, srv.URL, testToken)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := drain(c, ctx)
	if err == nil {
		t.Fatal("expected the stream to fail once the context expired")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("stream took %s to give up", elapsed)
	}
}

func TestStreamClosesConnectionAfterTimeout(t *testing.T) {
	serverGone := make(chan struct{})
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/v1/models/snowflake/snowflake-arctic-instruct/predictions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id":"p3","urls":{"stream":"%s/stream/p3"}}`, srv.URL)
	})
	mux.HandleFunc("/stream/p3", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: output\ndata: stalled\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(serverGone)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, testToken)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	text, err := drain(c, ctx)
	if !domain.IsStreamTransportFailure(err) {
		t.Fatalf("expected a transport failure, got %v", err)
	}
	if text != "stalled" {
		t.Fatalf("text = %q", text)
	}

	select {
	case <-serverGone:
	case <-time.After(2 * time.Second):
		t.Fatal("stream connection still open after the caller gave up")
	}
}

func TestStreamStatusErrorsStayWithTheirRequest(t *testing.T) {
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/v1/models/snowflake/snowflake-arctic-instruct/predictions", func(w http.ResponseWriter, r *http.Request) {
		var req predictionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id":"%[2]s","urls":{"stream":"%[1]s/stream/%[2]s"}}`, srv.URL, req.Input.Prompt)
	})
	mux.HandleFunc("/stream/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "outage while serving %s", strings.TrimPrefix(r.URL.Path, "/stream/"))
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, testToken)
	for round := 0; round < 50; round++ {
		var wg sync.WaitGroup
		for _, id := range []string{"links", "letter"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				var err error
				for _, e := range c.Stream(context.Background(), llm.Request{Model: DefaultModel, Prompt: id, Params: llm.DefaultParams()}) {
					err = e
				}
				if !domain.IsStreamTransportFailure(err) {
					t.Errorf("%s: expected a transport failure, got %v", id, err)
					return
				}
				if !strings.Contains(err.Error(), "HTTP 500: outage while serving "+id) {
					t.Errorf("%s: error carries another body: %v", id, err)
				}
			}()
		}
		wg.Wait()
	}
}

func TestPredictionURL(t *testing.T) {
	c := &Client{baseURL: "https://api.replicate.com"}

	url, version := c.predictionURL("snowflake/snowflake-arctic-instruct")
	if url != "https://api.replicate.com/v1/models/snowflake/snowflake-arctic-instruct/predictions" || version != "" {
		t.Errorf("model url = %q, version = %q", url, version)
	}

	url, version = c.predictionURL("owner/model:abc123")
	if url != "https://api.replicate.com/v1/predictions" || version != "abc123" {
		t.Errorf("version url = %q, version = %q", url, version)
	}
}

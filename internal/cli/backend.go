package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/muhammadolammi/coverletter/internal/config"
	"github.com/muhammadolammi/coverletter/internal/llm"
	"github.com/muhammadolammi/coverletter/internal/llm/gemini"
	"github.com/muhammadolammi/coverletter/internal/llm/mock"
	"github.com/muhammadolammi/coverletter/internal/llm/replicate"
)

const mockLinks = `1. **Distributed Systems in Go**
    * **Offer :** Build and operate backend services in Go.
    * **CV:** Five years building distributed systems in Go.
2. **Cloud Infrastructure**
    * **Offer :** Experience with cloud object storage and message brokers.
    * **CV:** Ran RabbitMQ and S3-compatible storage in production.
`

const mockLetter = `Dear Hiring Manager,

I am excited to apply for this position. My experience building backend services in Go matches the role closely, and I would welcome the chance to bring it to your team.

Kind regards`

// linksMarker appears only in the links prompt.
const linksMarker = "Numbered list"

// newStreamClient returns the backend named by cfg and the model to request.
func newStreamClient(ctx context.Context, cfg *config.Config, token string) (llm.StreamClient, string, error) {
	switch cfg.Backend {
	case config.BackendReplicate:
		c, err := replicate.New(replicate.Config{BaseURL: cfg.ReplicateBaseURL, Token: token})
		if err != nil {
			return nil, "", err
		}
		return c, cfg.Model, nil

	case config.BackendGemini:
		c, err := gemini.New(ctx, cfg.GoogleAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, "", err
		}
		return c, cfg.GeminiModel, nil

	case config.BackendMock:
		return &mock.Router{
			Routes:  map[string]llm.StreamClient{linksMarker: mock.NewClient(mockLinks, 20*time.Millisecond)},
			Default: mock.NewClient(mockLetter, 20*time.Millisecond),
		}, "mock", nil

	default:
		return nil, "", fmt.Errorf("unknown backend: %s", cfg.Backend)
	}
}

// Package tokens estimates prompt length against the model's context budget.
//
// The vocabulary is fixed and ships with the binary (offline BPE loader), so
// it is loaded once per process and shared read-only by every caller.
package tokens

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/muhammadolammi/coverletter/internal/domain"
)

const (
	// Encoding is the fixed vocabulary used for counting.
	Encoding = "cl100k_base"
	// DefaultLimit is the context ceiling a prompt must stay under.
	DefaultLimit = 3072
)

// Counter counts tokens in a prompt.
type Counter interface {
	Count(text string) (int, error)
}

var loadEncoding = sync.OnceValues(func() (*tiktoken.Tiktoken, error) {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	enc, err := tiktoken.GetEncoding(Encoding)
	if err != nil {
		return nil, domain.NewTokenizerUnavailableError(fmt.Errorf("loading %s: %w", Encoding, err))
	}
	return enc, nil
})

// Load forces the one-time tokenizer initialization. Callers use it at
// startup so a missing vocabulary fails the process early.
func Load() error {
	_, err := loadEncoding()
	return err
}

// CountTokens returns the number of tokens in text.
func CountTokens(text string) (int, error) {
	enc, err := loadEncoding()
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// BPECounter is the Counter backed by the process-wide tokenizer.
type BPECounter struct{}

func (BPECounter) Count(text string) (int, error) {
	return CountTokens(text)
}

// Gate rejects prompts whose token count reaches Limit.
type Gate struct {
	Counter Counter
	Limit   int
}

// NewGate returns a gate over the process-wide tokenizer.
func NewGate(limit int) *Gate {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Gate{Counter: BPECounter{}, Limit: limit}
}

// Check returns the prompt's token count, and a PromptTooLong error when
// count >= Limit.
func (g *Gate) Check(prompt string) (int, error) {
	count, err := g.Counter.Count(prompt)
	if err != nil {
		return 0, err
	}
	if count >= g.Limit {
		return count, domain.NewPromptTooLongError(count, g.Limit)
	}
	return count, nil
}
